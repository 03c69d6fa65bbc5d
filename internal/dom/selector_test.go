package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectorFixture = `<html><body>
  <article class="post featured" id="top">
    <h1>Heading</h1>
    <div class="post-content">body one</div>
  </article>
  <article class="post">
    <div class="post-content">body two</div>
  </article>
  <main role="main"><p data-testid="tweet">tweet text</p></main>
  <div class="content">loose content</div>
</body></html>`

func sel(t *testing.T, doc *Document, s string) int {
	t.Helper()
	nodes, err := doc.Select(s)
	require.NoError(t, err)
	return len(nodes)
}

func TestSelectByTagClassID(t *testing.T) {
	doc, err := ParseString(selectorFixture, "")
	require.NoError(t, err)

	assert.Equal(t, 2, sel(t, doc, "article"))
	assert.Equal(t, 2, sel(t, doc, ".post"))
	assert.Equal(t, 1, sel(t, doc, ".post.featured"))
	assert.Equal(t, 1, sel(t, doc, "#top"))
	assert.Equal(t, 1, sel(t, doc, "article#top"))
	assert.Equal(t, 0, sel(t, doc, "section"))
}

func TestSelectByAttribute(t *testing.T) {
	doc, err := ParseString(selectorFixture, "")
	require.NoError(t, err)

	assert.Equal(t, 1, sel(t, doc, "[role=main]"))
	assert.Equal(t, 1, sel(t, doc, `[data-testid="tweet"]`))
	assert.Equal(t, 1, sel(t, doc, "[data-testid]"))
	assert.Equal(t, 0, sel(t, doc, "[data-testid=other]"))
}

func TestSelectDescendant(t *testing.T) {
	doc, err := ParseString(selectorFixture, "")
	require.NoError(t, err)

	assert.Equal(t, 2, sel(t, doc, "article .post-content"))
	assert.Equal(t, 1, sel(t, doc, "article.featured .post-content"))
	assert.Equal(t, 1, sel(t, doc, "main p"))
	assert.Equal(t, 0, sel(t, doc, "main .post-content"))
}

func TestSelectList(t *testing.T) {
	doc, err := ParseString(selectorFixture, "")
	require.NoError(t, err)

	// Comma groups union without double-counting.
	assert.Equal(t, 3, sel(t, doc, "article, .content"))
	assert.Equal(t, 2, sel(t, doc, "article, .post"))
}

func TestSelectInvalid(t *testing.T) {
	doc, err := ParseString(selectorFixture, "")
	require.NoError(t, err)

	_, err = doc.Select("")
	assert.Error(t, err)
	_, err = doc.Select("[unclosed")
	assert.Error(t, err)
}
