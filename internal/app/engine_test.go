package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagechat/internal/config"
	"pagechat/internal/dom"
	"pagechat/internal/llm"
	"pagechat/internal/store"
	"pagechat/internal/watch"
)

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
	src := "<html><head><title>" + f.title + "</title></head><body><article><p>" +
		f.body + "</p></article></body></html>"
	return dom.ParseString(src, f.url)
}

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	content string
	block   chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	return f.content, nil, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, req llm.Request, onDelta func(string)) (string, *llm.Usage, error) {
	return f.Complete(ctx, req)
}

type testEngine struct {
	eng   *Engine
	src   *fakeSource
	sched *watch.FakeScheduler
	db    *store.DB
	fake  *fakeCompleter
}

func newTestEngine(t *testing.T, bridge PlatformBridge) *testEngine {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := &fakeSource{}
	src.set("https://example.com/article", "An Article",
		"A long enough body of article text that extraction has something real to work with on every pass.")
	sched := watch.NewFakeScheduler()
	fake := &fakeCompleter{content: "an answer"}

	base := config.Default()
	base.Stream = false
	resolver := config.NewResolver(base, db)

	eng, err := New(Options{
		URL:       "https://example.com/article",
		DB:        db,
		Resolver:  resolver,
		Source:    src,
		Scheduler: sched,
		Watch:     watch.DefaultConfig(),
		Client:    fake,
		Bridge:    bridge,
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Dispose(context.Background()) })
	return &testEngine{eng: eng, src: src, sched: sched, db: db, fake: fake}
}

func TestStartCapturesPageContext(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.eng.Start(context.Background()))

	pc, ok := te.eng.Page()
	require.True(t, ok)
	assert.Equal(t, "An Article", pc.Title)
	assert.Contains(t, pc.ExtractedText, "article text")
	assert.Contains(t, pc.ExtractedText, "granted permission")
	assert.Equal(t, "example.com", te.eng.Domain())
}

func TestSelectionShadowsPage(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.eng.Start(context.Background()))

	turn := te.eng.ActiveContext()
	assert.Equal(t, "page", turn.Kind)

	te.eng.Select("a quoted passage")
	turn = te.eng.ActiveContext()
	assert.Equal(t, "selection", turn.Kind)
	assert.Equal(t, "a quoted passage", turn.Text)

	te.eng.ClearSelection()
	turn = te.eng.ActiveContext()
	assert.Equal(t, "page", turn.Kind)
	assert.Contains(t, turn.Text, "article text")
}

func TestNavigationRefreshesContext(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.eng.Start(context.Background()))

	// Drain the delayed passes, then navigate.
	te.sched.Advance(3 * time.Second)
	te.src.set("https://example.com/other", "Another Page",
		"Completely different content after a client side navigation happened here.")
	te.sched.Advance(2 * time.Second)

	pc, ok := te.eng.Page()
	require.True(t, ok)
	assert.Equal(t, "Another Page", pc.Title)
	assert.Contains(t, pc.ExtractedText, "different content")
}

func TestSendRecordsTurn(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, te.eng.Start(ctx))

	require.NoError(t, te.eng.Send(ctx, "what is this about?"))

	msgs := te.eng.Sessions().Current().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "an answer", msgs[1].Content)
	assert.Equal(t, 1, te.fake.calls)
}

func TestDisposeCancelsInFlightSend(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, te.eng.Start(ctx))
	te.fake.block = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- te.eng.Send(ctx, "doomed question") }()
	require.Eventually(t, func() bool {
		te.fake.mu.Lock()
		defer te.fake.mu.Unlock()
		return te.fake.calls == 1
	}, time.Second, time.Millisecond)

	te.eng.Dispose(ctx)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, te.eng.Sessions().Current().Messages)
}

func TestToggleSidebarControl(t *testing.T) {
	var handler func(string)
	bridge := &FuncBridge{
		OnControlFn: func(h func(string)) { handler = h },
	}
	te := newTestEngine(t, bridge)
	require.NoError(t, te.eng.Start(context.Background()))
	require.NotNil(t, handler)

	assert.True(t, te.eng.Visible())
	handler(ControlToggleSidebar)
	assert.False(t, te.eng.Visible())
	handler(ControlToggleSidebar)
	assert.True(t, te.eng.Visible())
}

func TestDetachedEngineNoOps(t *testing.T) {
	bridge := &FuncBridge{AvailableFn: func() bool { return false }}
	te := newTestEngine(t, bridge)

	assert.True(t, te.eng.Detached())
	require.NoError(t, te.eng.Start(context.Background()))

	// Nothing fetched, nothing sent, nothing panics.
	_, ok := te.eng.Page()
	assert.False(t, ok)
	assert.NoError(t, te.eng.Send(context.Background(), "ignored"))
	assert.Equal(t, 0, te.fake.calls)
	te.eng.Select("also ignored")
	_, held := te.eng.Selection()
	assert.False(t, held)
	te.eng.Dispose(context.Background())
}

func TestStickyFlagRoundTrip(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, te.eng.Start(ctx))

	on, err := te.eng.Sticky(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, te.eng.SetSticky(ctx, true))
	on, err = te.eng.Sticky(ctx)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestBookmark(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, te.eng.Start(ctx))

	require.NoError(t, te.eng.Bookmark(ctx, "assistant", "worth keeping"))
	marks, err := te.db.ListBookmarks(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, "worth keeping", marks[0].Content)
}

func TestSwitchSessionRefreshesPage(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, te.eng.Start(ctx))

	require.NoError(t, te.eng.Send(ctx, "first question"))
	firstID := te.eng.Sessions().Current().ID

	_, err := te.eng.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, te.eng.Send(ctx, "second question"))

	back, err := te.eng.SwitchSession(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, firstID, back.ID)
	assert.Equal(t, "first question", back.Messages[0].Content)

	pc, ok := te.eng.Page()
	require.True(t, ok)
	assert.Equal(t, "An Article", pc.Title)
}

func TestSettingsChangedControl(t *testing.T) {
	var handler func(string)
	bridge := &FuncBridge{OnControlFn: func(h func(string)) { handler = h }}
	te := newTestEngine(t, bridge)
	require.NoError(t, te.eng.Start(context.Background()))
	require.NotNil(t, handler)

	// Applying a settings change must not disturb a working engine.
	handler(ControlSettingsChanged)
	require.NoError(t, te.eng.Send(context.Background(), "still works"))
	assert.Len(t, te.eng.Sessions().Current().Messages, 2)
}
