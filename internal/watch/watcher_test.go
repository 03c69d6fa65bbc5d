package watch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagechat/internal/dom"
)

// fakeSource serves whatever page the test sets.
type fakeSource struct {
	mu    sync.Mutex
	url   string
	title string
	body  string
}

func (f *fakeSource) set(url, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url, f.title, f.body = url, title, body
}

func (f *fakeSource) Fetch(ctx context.Context) (*dom.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := "<html><head><title>" + f.title + "</title></head><body><p>" + f.body + "</p></body></html>"
	return dom.ParseString(src, f.url)
}

type event struct {
	reason Reason
	url    string
}

func newTestWatcher(t *testing.T) (*Watcher, *fakeSource, *FakeScheduler, *[]event) {
	t.Helper()
	src := &fakeSource{}
	src.set("https://example.com/a", "Page A", "initial body text for page a")
	sched := NewFakeScheduler()

	var events []event
	var mu sync.Mutex
	w := NewWatcher(DefaultConfig(), sched, src, func(doc *dom.Document, reason Reason) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{reason: reason, url: doc.URL})
	}, nil)
	return w, src, sched, &events
}

func reasons(events []event) []Reason {
	out := make([]Reason, len(events))
	for i, e := range events {
		out[i] = e.reason
	}
	return out
}

func TestInitialAndDelayedPasses(t *testing.T) {
	w, _, sched, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	assert.Equal(t, []Reason{ReasonInitial}, reasons(*events))

	sched.Advance(1500 * time.Millisecond)
	assert.Equal(t, []Reason{ReasonInitial, ReasonDelayed}, reasons(*events))

	sched.Advance(1500 * time.Millisecond)
	assert.Contains(t, reasons(*events), ReasonDelayed)
	assert.Len(t, *events, 3) // second delayed pass at +3s
}

func TestNavigationDetected(t *testing.T) {
	w, src, sched, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	// Drain the delayed passes so only the poll remains.
	sched.Advance(3 * time.Second)

	src.set("https://example.com/b", "Page B", "a different page entirely")
	sched.Advance(2 * time.Second)

	rs := reasons(*events)
	assert.Contains(t, rs, ReasonNavigate)
	last := (*events)[len(*events)-1]
	assert.Equal(t, "https://example.com/b", last.url)
}

func TestMutationDebounced(t *testing.T) {
	w, src, sched, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	// Let the delayed passes drain so only polls remain.
	sched.Advance(3 * time.Second)
	before := len(*events)

	src.set("https://example.com/a", "Page A",
		"initial body text for page a "+strings.Repeat("lazily rendered content ", 10))

	// Poll at +2s sees growth; the mutate waits out the 2s quiet period.
	sched.Advance(2 * time.Second)
	assert.Len(t, *events, before)

	sched.Advance(2 * time.Second)
	rs := reasons(*events)
	assert.Equal(t, ReasonMutate, rs[len(rs)-1])
}

func TestMutationReportsSettledContent(t *testing.T) {
	src := &fakeSource{}
	src.set("https://example.com/a", "Page A", "initial body text for page a")
	sched := NewFakeScheduler()

	var mu sync.Mutex
	var lastMutate string
	w := NewWatcher(DefaultConfig(), sched, src, func(doc *dom.Document, reason Reason) {
		if reason != ReasonMutate {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		lastMutate = dom.TextContent(doc.Body())
	}, nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	sched.Advance(3 * time.Second) // drain the delayed passes

	grown := "initial body text for page a " + strings.Repeat("lazily rendered content ", 10)
	src.set("https://example.com/a", "Page A", grown)
	sched.Advance(2 * time.Second) // poll sees growth, quiet period starts

	// The page keeps changing during the quiet period. The mutate pass must
	// extract what is there when it fires, not the snapshot that armed it.
	src.set("https://example.com/a", "Page A", grown+"settled marker")
	sched.Advance(2 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lastMutate, "settled marker")
}

func TestSmallGrowthIgnored(t *testing.T) {
	w, src, sched, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	sched.Advance(3 * time.Second)
	before := len(*events)

	src.set("https://example.com/a", "Page A", "initial body text for page a plus")
	sched.Advance(10 * time.Second)

	for _, e := range (*events)[before:] {
		assert.NotEqual(t, ReasonMutate, e.reason)
	}
}

func TestRefreshForcesPass(t *testing.T) {
	w, _, _, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Dispose()

	w.Refresh(context.Background())
	rs := reasons(*events)
	assert.Equal(t, ReasonRefresh, rs[len(rs)-1])
}

func TestDisposeStopsEverything(t *testing.T) {
	w, src, sched, events := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))

	w.Dispose()
	src.set("https://example.com/z", "Gone", "new content")
	sched.Advance(time.Minute)

	assert.Equal(t, []Reason{ReasonInitial}, reasons(*events))
}
