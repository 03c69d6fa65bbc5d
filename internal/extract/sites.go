package extract

import "strings"

// siteSelectors maps a hostname substring to a prioritized selector list
// tuned to that site's content containers. First match wins, ordered most
// specific to least.
var siteSelectors = []struct {
	host      string
	selectors []string
}{
	{"linkedin.com", []string{
		".feed-shared-update-v2",
		".feed-shared-text",
		".update-components-text",
		".artdeco-card",
		"main",
	}},
	{"twitter.com", []string{
		"[data-testid=tweetText]",
		"[data-testid=tweet]",
		"article",
		"main",
	}},
	{"x.com", []string{
		"[data-testid=tweetText]",
		"[data-testid=tweet]",
		"article",
		"main",
	}},
	{"facebook.com", []string{
		"[data-ad-preview=message]",
		"[role=article]",
		"[role=feed]",
		"[role=main]",
	}},
	{"reddit.com", []string{
		"[data-test-id=post-content]",
		"shreddit-post",
		".Post",
		"main",
	}},
	{"news.ycombinator.com", []string{
		".athing",
		".comment",
		".commtext",
		"td.title",
	}},
	{"github.com", []string{
		".markdown-body",
		".Box-body",
		"article",
		".repository-content",
		"main",
	}},
	{"stackoverflow.com", []string{
		".js-post-body",
		".question",
		".answer",
		"#mainbar",
	}},
}

// selectorsForHost returns the tuned selector list for a hostname, or nil
// when the site has no entry.
func selectorsForHost(host string) []string {
	host = strings.ToLower(host)
	for _, s := range siteSelectors {
		if strings.Contains(host, s.host) {
			return s.selectors
		}
	}
	return nil
}

// genericSelectors is the site-agnostic fallback list: semantic containers
// first, then common content class/id naming patterns.
var genericSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"[role=article]",
	"#content",
	"#main-content",
	"#article",
	".article",
	".article-body",
	".post-content",
	".post-body",
	".entry-content",
	".story-body",
	".content",
	".main-content",
	".page-content",
	".text",
	".body-text",
	"section",
}
