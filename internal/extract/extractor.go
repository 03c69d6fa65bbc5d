// Package extract turns a parsed page into a bounded context string for the
// model prompt. Extraction runs an ordered cascade of strategies, each tried
// only when the previous one produced too little signal.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"pagechat/internal/dom"
)

// Limits bounds the cascade's output and decides when a stage is "enough".
type Limits struct {
	ContentLimit     int // hard cap on extracted characters
	SuccessThreshold int // a stage yielding at least this many chars wins
	MinimumFloor     int // below this, the brute-force stage is forced
}

// DefaultLimits mirrors the shipped extension defaults.
func DefaultLimits() Limits {
	return Limits{
		ContentLimit:     15000,
		SuccessThreshold: 200,
		MinimumFloor:     100,
	}
}

// PageContext is an immutable snapshot of one extraction pass. Snapshots are
// replaced wholesale, never merged.
type PageContext struct {
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	ExtractedText string    `json:"extracted_text"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

// FrameFunc wraps raw page text with the prompt framing (title, URL, and the
// sharing-permission statement). The wording is policy, so it is injected
// rather than scattered through the cascade.
type FrameFunc func(title, url, content string) string

// DefaultFrame reproduces the extension's framing: the page is declared
// shareable so the model does not decline to quote it.
func DefaultFrame(title, pageURL, content string) string {
	return fmt.Sprintf(
		"Page: %s\nURL: %s\nThe user has granted permission to share this page's content, and you may quote from it freely.\nContent: %s",
		title, pageURL, content)
}

// Config controls one extractor instance.
type Config struct {
	Limits    Limits
	SidebarID string // element id of the injected chat UI, excluded everywhere
	Frame     FrameFunc
	// OnStage is an instrumentation hook invoked after each cascade stage
	// with the stage name and the character count it produced.
	OnStage func(stage string, chars int)
}

// Extractor runs the cascade. Safe for reuse across passes; each call is
// deterministic for the same document snapshot.
type Extractor struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Extractor {
	if cfg.Limits.ContentLimit <= 0 {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Frame == nil {
		cfg.Frame = DefaultFrame
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{cfg: cfg, log: log}
}

// minFragment is the smallest trimmed text-node length the visible walk
// accepts, matching the original's length filter.
const minFragment = 10

// dedupPrefix is how many leading characters of a candidate fragment are
// checked against the accumulated buffer. A cheap near-duplicate guard, not
// a full dedup.
const dedupPrefix = 50

// Extract runs the cascade and returns a framed snapshot. It never returns
// an error: a failing stage is skipped, and total failure produces a framed
// empty content region.
func (e *Extractor) Extract(doc *dom.Document) PageContext {
	text := e.cascade(doc)
	return PageContext{
		Title:         doc.Title,
		URL:           doc.URL,
		ExtractedText: e.cfg.Frame(doc.Title, doc.URL, text),
		ExtractedAt:   time.Now(),
	}
}

type stage struct {
	name string
	run  func(doc *dom.Document, acc *accumulator)
}

// cascade runs stages in order until one clears the success threshold. When
// nothing does and the best result sits below the floor, the brute-force
// stage's output is used even if it too is short.
func (e *Extractor) cascade(doc *dom.Document) string {
	visited := map[*html.Node]bool{}
	host := hostOf(doc.URL)

	stages := []stage{
		{"site", func(doc *dom.Document, acc *accumulator) {
			e.collectSelectors(doc, selectorsForHost(host), visited, acc)
		}},
		{"generic", func(doc *dom.Document, acc *accumulator) {
			e.collectSelectors(doc, genericSelectors, visited, acc)
		}},
		{"visible-walk", e.visibleWalk},
		{"body-dump", e.bodyDump},
		{"brute-force", e.bruteForce},
	}

	best := ""
	brute := ""
	for _, s := range stages {
		out := e.runStage(s, doc)
		if e.cfg.OnStage != nil {
			e.cfg.OnStage(s.name, len(out))
		}
		e.log.Debug("extraction stage finished",
			zap.String("stage", s.name),
			zap.Int("chars", len(out)))
		if s.name == "brute-force" {
			brute = out
		}
		if len(out) >= e.cfg.Limits.SuccessThreshold {
			return out
		}
		if len(out) > len(best) {
			best = out
		}
	}

	if len(best) < e.cfg.Limits.MinimumFloor {
		return brute
	}
	return best
}

// runStage contains a stage failure so the cascade proceeds.
func (e *Extractor) runStage(s stage, doc *dom.Document) (out string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("extraction stage panicked",
				zap.String("stage", s.name),
				zap.Any("cause", r))
			out = ""
		}
	}()
	acc := newAccumulator(e.cfg.Limits.ContentLimit)
	s.run(doc, acc)
	return acc.String()
}

// collectSelectors gathers text from a prioritized selector list. An element
// is processed at most once per pass, shared across the selector stages.
func (e *Extractor) collectSelectors(doc *dom.Document, selectors []string, visited map[*html.Node]bool, acc *accumulator) {
	for _, sel := range selectors {
		nodes, err := doc.Select(sel)
		if err != nil {
			e.log.Debug("skipping bad selector", zap.String("selector", sel), zap.Error(err))
			continue
		}
		for _, n := range nodes {
			if visited[n] || e.insideSidebar(n) || dom.IsHidden(n) {
				continue
			}
			visited[n] = true
			if !acc.Add(dom.TextContent(n)) {
				return
			}
		}
	}
}

// visibleWalk accepts text nodes whose ancestors are neither hidden nor
// boilerplate, with a minimum trimmed length.
func (e *Extractor) visibleWalk(doc *dom.Document, acc *accumulator) {
	body := doc.Body()
	if body == nil {
		return
	}
	dom.WalkTextNodes(body, func(n *html.Node) {
		if acc.Full() {
			return
		}
		text := dom.CollapseWhitespace(n.Data)
		if len(text) < minFragment {
			return
		}
		if dom.HiddenAncestor(n) || e.insideSidebarText(n) {
			return
		}
		acc.Add(text)
	})
}

// bodyDump collects all body text minus the sidebar and boilerplate tags.
func (e *Extractor) bodyDump(doc *dom.Document, acc *accumulator) {
	body := doc.Body()
	if body == nil {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if acc.Full() {
			return
		}
		if n.Type == html.ElementNode {
			if dom.IsNonContentTag(n.Data) || e.isSidebar(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			acc.AddRaw(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
}

// bruteForce scans every element, collecting only direct text per element so
// nested containers are not double-counted.
func (e *Extractor) bruteForce(doc *dom.Document, acc *accumulator) {
	dom.WalkElements(doc.Root, func(n *html.Node) bool {
		if acc.Full() {
			return false
		}
		if dom.IsNonContentTag(n.Data) || dom.IsHidden(n) || e.isSidebar(n) {
			return false
		}
		if text := dom.DirectText(n); len(text) >= 3 {
			acc.Add(text)
		}
		return true
	})
}

func (e *Extractor) isSidebar(n *html.Node) bool {
	if e.cfg.SidebarID == "" {
		return false
	}
	id, ok := dom.Attr(n, "id")
	return ok && id == e.cfg.SidebarID
}

func (e *Extractor) insideSidebar(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && e.isSidebar(p) {
			return true
		}
	}
	return false
}

func (e *Extractor) insideSidebarText(n *html.Node) bool {
	return e.insideSidebar(n.Parent)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// accumulator joins fragments with single spaces, applies the near-duplicate
// prefix guard, and enforces the hard character cap.
type accumulator struct {
	b     strings.Builder
	limit int
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{limit: limit}
}

// Add appends a fragment unless its leading characters already appear in the
// buffer. Returns false once the cap is reached.
func (a *accumulator) Add(frag string) bool {
	frag = dom.CollapseWhitespace(frag)
	if frag == "" {
		return !a.Full()
	}
	prefix := frag
	if len(prefix) > dedupPrefix {
		prefix = prefix[:dedupPrefix]
	}
	if strings.Contains(a.b.String(), prefix) {
		return !a.Full()
	}
	return a.append(frag)
}

// AddRaw appends without the duplicate guard; used by the body dump where
// fragments are naturally disjoint.
func (a *accumulator) AddRaw(frag string) bool {
	frag = dom.CollapseWhitespace(frag)
	if frag == "" {
		return !a.Full()
	}
	return a.append(frag)
}

func (a *accumulator) append(frag string) bool {
	if a.b.Len() > 0 {
		a.b.WriteString(" ")
	}
	a.b.WriteString(frag)
	return !a.Full()
}

func (a *accumulator) Full() bool {
	return a.b.Len() >= a.limit
}

// String returns the accumulated text, hard-capped at the limit. The cut is
// a plain rune slice, not sentence-aware.
func (a *accumulator) String() string {
	s := a.b.String()
	if len(s) <= a.limit {
		return s
	}
	runes := []rune(s)
	if len(runes) > a.limit {
		runes = runes[:a.limit]
	}
	return string(runes)
}
