package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const fixture = `<!DOCTYPE html>
<html>
<head><title> Fixture Page </title></head>
<body>
  <nav>site navigation links</nav>
  <div id="main" class="content wrapper">
    <p>First paragraph of body text.</p>
    <p style="display: none">invisible paragraph</p>
    <span>inline fragment</span>
  </div>
  <div hidden><p>hidden subtree text</p></div>
  <script>var x = 1;</script>
  <footer>copyright</footer>
</body>
</html>`

func TestParseCapturesTitle(t *testing.T) {
	doc, err := ParseString(fixture, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Fixture Page", doc.Title)
	assert.Equal(t, "https://example.com/a", doc.URL)
	require.NotNil(t, doc.Body())
}

func TestIsHidden(t *testing.T) {
	doc, err := ParseString(fixture, "")
	require.NoError(t, err)

	hidden, err := doc.Select("p[style]")
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.True(t, IsHidden(hidden[0]))

	visible, err := doc.Select("#main p")
	require.NoError(t, err)
	require.NotEmpty(t, visible)
	assert.False(t, IsHidden(visible[0]))
}

func TestHiddenAncestor(t *testing.T) {
	doc, err := ParseString(fixture, "")
	require.NoError(t, err)

	var accepted []string
	WalkTextNodes(doc.Body(), func(n *html.Node) {
		if trimmed := CollapseWhitespace(n.Data); trimmed != "" && !HiddenAncestor(n) {
			accepted = append(accepted, trimmed)
		}
	})

	joined := strings.Join(accepted, " ")
	assert.Contains(t, joined, "First paragraph of body text.")
	assert.Contains(t, joined, "inline fragment")
	assert.NotContains(t, joined, "hidden subtree text")
	assert.NotContains(t, joined, "site navigation links")
	assert.NotContains(t, joined, "copyright")
}

func TestTextContentSkipsScriptAndCollapses(t *testing.T) {
	doc, err := ParseString(fixture, "")
	require.NoError(t, err)
	text := TextContent(doc.Body())
	assert.Contains(t, text, "First paragraph of body text.")
	assert.NotContains(t, text, "var x = 1")
	assert.NotContains(t, text, "site navigation")
}

func TestDirectText(t *testing.T) {
	doc, err := ParseString(`<div>outer <span>inner</span> tail</div>`, "")
	require.NoError(t, err)
	divs, err := doc.Select("div")
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.Equal(t, "outer tail", DirectText(divs[0]))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\t b   c  "))
	assert.Equal(t, "", CollapseWhitespace("   \n "))
}
