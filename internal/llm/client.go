package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider identifies which chat backend to talk to. The two providers share
// a wire format and differ only in base URL, auth and identifying headers.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

// BaseURL returns the provider's API root.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

// ErrNoAPIKey marks a configuration problem rather than a network one.
var ErrNoAPIKey = errors.New("API key not configured")

// HTTPError carries a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Options configures a client.
type Options struct {
	Provider Provider
	APIKey   string
	BaseURL  string // override for tests; empty uses the provider default
	Timeout  time.Duration

	// OpenRouter asks callers to identify themselves with two extra headers.
	Referer string
	AppName string
}

// Client talks to one provider.
type Client struct {
	opts       Options
	httpClient *http.Client
	// streaming responses must not be cut off by the request timeout
	streamClient *http.Client
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = opts.Provider.BaseURL()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		opts:         opts,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.opts.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", c.opts.Provider, ErrNoAPIKey)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if c.opts.Provider == ProviderOpenRouter {
		if c.opts.Referer != "" {
			req.Header.Set("HTTP-Referer", c.opts.Referer)
		}
		if c.opts.AppName != "" {
			req.Header.Set("X-Title", c.opts.AppName)
		}
	}
	return req, nil
}

// Complete sends a non-streamed chat request and returns the full response
// content plus usage when the provider reports it.
func (c *Client) Complete(ctx context.Context, req Request) (string, *Usage, error) {
	req.Stream = false
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, "POST", "/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", out.Usage, fmt.Errorf("response contained no choices")
	}
	return out.Choices[0].Message.Content, out.Usage, nil
}

// Stream sends a streamed chat request, invoking onDelta for each content
// fragment, and returns the assembled content. Malformed frames are skipped;
// the stream ends at the `[DONE]` sentinel or EOF.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string)) (string, *Usage, error) {
	req.Stream = true
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, "POST", "/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return decodeStream(resp.Body, onDelta)
}

// decodeStream reads newline-delimited `data:` frames.
func decodeStream(body io.Reader, onDelta func(string)) (string, *Usage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	var usage *Usage

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip malformed frames rather than aborting the stream.
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), usage, fmt.Errorf("stream read failed: %w", err)
	}
	return full.String(), usage, nil
}

// ListModels fetches the provider's model identifiers. It doubles as the
// credential test: an invalid key surfaces as an HTTPError here.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := c.newRequest(ctx, "GET", "/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
