// Package fetch retrieves a single web document and parses it into a DOM
// snapshot for extraction.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagechat/internal/dom"
)

// Fetcher downloads and parses one page at a time.
type Fetcher struct {
	httpClient *http.Client
	maxSize    int64
	userAgent  string
}

// New creates a fetcher with a request timeout, response size cap and UA.
func New(timeout time.Duration, maxSize int64, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxSize:   maxSize,
		userAgent: userAgent,
	}
}

// Fetch retrieves urlStr and returns the parsed document. The document's URL
// reflects the final location after redirects, so navigation detection sees
// server-side redirects.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*dom.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "text/html") &&
		!strings.Contains(strings.ToLower(contentType), "application/xhtml") {
		return nil, fmt.Errorf("non-HTML content type: %s", contentType)
	}

	finalURL := urlStr
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	limited := io.LimitReader(resp.Body, f.maxSize)
	doc, err := dom.Parse(limited, finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}
