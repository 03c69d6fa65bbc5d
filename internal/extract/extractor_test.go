package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagechat/internal/dom"
)

func mustDoc(t *testing.T, src, url string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, url)
	require.NoError(t, err)
	return doc
}

func newRecording(limits Limits) (*Extractor, *[]string) {
	var stages []string
	e := New(Config{
		Limits:    limits,
		SidebarID: "pagechat-sidebar",
		OnStage: func(name string, chars int) {
			stages = append(stages, name)
		},
	}, nil)
	return e, &stages
}

func TestCascadeShortCircuitsOnSiteStage(t *testing.T) {
	long := strings.Repeat("github readme content ", 20)
	doc := mustDoc(t, `<html><head><title>Repo</title></head><body>
		<div class="markdown-body">`+long+`</div>
		<p>unrelated</p></body></html>`, "https://github.com/some/repo")

	e, stages := newRecording(DefaultLimits())
	out := e.cascade(doc)

	assert.Contains(t, out, "github readme content")
	assert.Equal(t, []string{"site"}, *stages)
}

func TestCascadeFallsThroughToGeneric(t *testing.T) {
	long := strings.Repeat("article body text ", 30)
	doc := mustDoc(t, `<html><body><article>`+long+`</article></body></html>`,
		"https://blog.example.com/post")

	e, stages := newRecording(DefaultLimits())
	out := e.cascade(doc)

	assert.Contains(t, out, "article body text")
	assert.Equal(t, []string{"site", "generic"}, *stages)
}

func TestCascadeForcesBruteForceBelowFloor(t *testing.T) {
	// Nothing on the page clears the success threshold or the floor, so the
	// brute-force stage's output is used even though it is short too.
	doc := mustDoc(t, `<html><body><div>tiny page text here</div></body></html>`,
		"https://example.com/")

	e, stages := newRecording(DefaultLimits())
	out := e.cascade(doc)

	assert.Equal(t, []string{"site", "generic", "visible-walk", "body-dump", "brute-force"}, *stages)
	assert.Contains(t, out, "tiny page text here")
}

func TestExtractBounded(t *testing.T) {
	huge := strings.Repeat("word ", 10000)
	doc := mustDoc(t, `<html><body><article>`+huge+`</article></body></html>`, "https://example.com/")

	limits := DefaultLimits()
	e := New(Config{Limits: limits}, nil)
	out := e.cascade(doc)

	assert.LessOrEqual(t, len([]rune(out)), limits.ContentLimit)
}

func TestExtractEmptyBodyStillFramed(t *testing.T) {
	doc := mustDoc(t, `<html><head><title>Blank</title></head><body></body></html>`,
		"https://example.com/empty")

	e := New(Config{}, nil)
	assert.NotPanics(t, func() {
		pc := e.Extract(doc)
		assert.Equal(t, "Blank", pc.Title)
		assert.Contains(t, pc.ExtractedText, "Page: Blank")
		assert.Contains(t, pc.ExtractedText, "URL: https://example.com/empty")
		assert.Contains(t, pc.ExtractedText, "Content: ")
		assert.Equal(t, "", e.cascade(doc))
	})
}

func TestSidebarExcluded(t *testing.T) {
	long := strings.Repeat("real page content ", 30)
	doc := mustDoc(t, `<html><body>
		<div id="pagechat-sidebar"><p>`+strings.Repeat("sidebar chatter ", 40)+`</p></div>
		<article>`+long+`</article></body></html>`, "https://example.com/")

	e := New(Config{SidebarID: "pagechat-sidebar"}, nil)
	out := e.cascade(doc)

	assert.Contains(t, out, "real page content")
	assert.NotContains(t, out, "sidebar chatter")
}

func TestHiddenContentExcluded(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<article style="display:none">`+strings.Repeat("invisible words ", 30)+`</article>
		<article>`+strings.Repeat("visible words ", 30)+`</article>
		</body></html>`, "https://example.com/")

	e := New(Config{}, nil)
	out := e.cascade(doc)

	assert.Contains(t, out, "visible words")
	assert.NotContains(t, out, "invisible words")
}

func TestNearDuplicateGuard(t *testing.T) {
	para := "repeated lead sentence that exceeds the guard prefix length " +
		strings.Repeat("filler words to lengthen the paragraph beyond thresholds ", 5)
	doc := mustDoc(t, `<html><body>
		<article>`+para+`</article>
		<main>`+para+`</main>
		</body></html>`, "https://example.com/")

	e := New(Config{}, nil)
	out := e.cascade(doc)

	// The second container starts with the same 50 chars, so it is skipped.
	assert.Equal(t, 1, strings.Count(out, "repeated lead sentence that exceeds the guard prefix"))
}

func TestSelectorsForHost(t *testing.T) {
	assert.NotNil(t, selectorsForHost("www.linkedin.com"))
	assert.NotNil(t, selectorsForHost("x.com"))
	assert.NotNil(t, selectorsForHost("old.reddit.com"))
	assert.Nil(t, selectorsForHost("example.org"))
}

func TestDefaultFrame(t *testing.T) {
	framed := DefaultFrame("T", "https://u", "body text")
	assert.Contains(t, framed, "Page: T")
	assert.Contains(t, framed, "URL: https://u")
	assert.Contains(t, framed, "granted permission")
	assert.Contains(t, framed, "Content: body text")
}
