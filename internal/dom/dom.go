// Package dom wraps a parsed HTML document with the queries the extraction
// cascade needs: visibility checks, content/non-content tag classification,
// direct-text collection, and a small selector matcher.
package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document is an immutable parsed snapshot of a page.
type Document struct {
	Root  *html.Node
	Title string
	URL   string
}

// Parse reads HTML and captures the document title.
func Parse(r io.Reader, url string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{
		Root:  root,
		Title: findTitle(root),
		URL:   url,
	}, nil
}

// ParseString is a convenience wrapper for tests and fixtures.
func ParseString(s, url string) (*Document, error) {
	return Parse(strings.NewReader(s), url)
}

// Body returns the <body> element, or nil for a degenerate document.
func (d *Document) Body() *html.Node {
	return findElement(d.Root, "body")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(TextContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if e := findElement(c, tag); e != nil {
			return e
		}
	}
	return nil
}

// nonContentTags never contribute extractable text.
var nonContentTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"button":   true,
	"select":   true,
	"option":   true,
	"iframe":   true,
}

// IsNonContentTag reports whether a tag is boilerplate rather than content.
func IsNonContentTag(tag string) bool {
	return nonContentTags[strings.ToLower(tag)]
}

// Attr returns the value of an attribute on an element node.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// IsHidden reports whether an element is hidden via inline style or the
// hidden attribute. Only inline signals are available without a renderer;
// that matches what the cascade needs to reject invisible text.
func IsHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := Attr(n, "hidden"); ok {
		return true
	}
	style, ok := Attr(n, "style")
	if !ok {
		return false
	}
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if strings.Contains(style, "display:none") {
		return true
	}
	if strings.Contains(style, "visibility:hidden") {
		return true
	}
	if strings.Contains(style, "opacity:0;") || strings.HasSuffix(style, "opacity:0") {
		return true
	}
	return false
}

// HiddenAncestor reports whether the node or any element ancestor is hidden
// or a non-content tag.
func HiddenAncestor(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if IsHidden(p) || IsNonContentTag(p.Data) {
			return true
		}
	}
	return false
}

// TextContent returns all descendant text, whitespace-normalized per chunk.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && IsNonContentTag(n.Data) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return CollapseWhitespace(b.String())
}

// DirectText returns only the text nodes that are immediate children of the
// element, so a parent's text is not double-counted with its descendants'.
func DirectText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteString(" ")
		}
	}
	return CollapseWhitespace(b.String())
}

// WalkElements visits every element node in document order. Returning false
// from the visitor skips that element's subtree.
func WalkElements(root *html.Node, visit func(*html.Node) bool) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if !visit(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// WalkTextNodes visits every text node in document order.
func WalkTextNodes(root *html.Node, visit func(*html.Node)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			visit(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// CollapseWhitespace squeezes runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
