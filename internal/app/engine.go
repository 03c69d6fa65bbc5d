// Package app assembles the per-page engine: one watched document, its
// extraction pipeline, selection tracking, session history and the chat
// controller, constructed explicitly with no shared globals.
package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"pagechat/internal/chat"
	"pagechat/internal/config"
	"pagechat/internal/dom"
	"pagechat/internal/extract"
	"pagechat/internal/llm"
	"pagechat/internal/selection"
	"pagechat/internal/session"
	"pagechat/internal/store"
	"pagechat/internal/watch"
)

// Options wires an engine. URL, DB, Resolver, Source and Scheduler are
// required; the rest default sensibly.
type Options struct {
	URL      string
	DB       *store.DB
	Resolver *config.Resolver

	Source    watch.DocumentSource
	Scheduler watch.Scheduler
	Watch     watch.Config

	// Client overrides the provider client built from settings; tests use it.
	Client chat.Completer
	Bridge PlatformBridge

	SidebarID string
	OnDelta   func(string)
	Notify    func(string)
	Logger    *zap.Logger
}

// Engine owns one page's chat lifecycle.
type Engine struct {
	log       *zap.Logger
	domain    string
	pageURL   string
	sidebarID string
	db        *store.DB
	resolver  *config.Resolver
	bridge    PlatformBridge
	notify    func(string)

	extractor *extract.Extractor
	tracker   *selection.Tracker
	watcher   *watch.Watcher
	sessions  *session.Store
	chat      *chat.Controller

	override chat.Completer

	mu       sync.Mutex
	gen      uint64
	page     *extract.PageContext
	client   *llm.Client
	visible  bool
	detached bool
	disposed bool
}

// New constructs an engine. The bridge availability guard runs exactly once
// here: an unavailable bridge yields a detached engine that starts nothing
// and answers every operation as a no-op, rather than erroring repeatedly.
func New(opts Options) (*Engine, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("engine needs a URL")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	e := &Engine{
		log:       opts.Logger,
		domain:    u.Hostname(),
		pageURL:   opts.URL,
		sidebarID: opts.SidebarID,
		db:        opts.DB,
		resolver:  opts.Resolver,
		bridge:    opts.Bridge,
		notify:    opts.Notify,
		override:  opts.Client,
		visible:   true,
	}

	if opts.Bridge != nil && !opts.Bridge.Available() {
		e.detached = true
		e.log.Warn("platform bridge unavailable, engine detached",
			zap.String("url", opts.URL))
		return e, nil
	}

	settings := opts.Resolver.Resolve(context.Background())
	limits := extract.DefaultLimits()
	if settings.ContentLimit > 0 {
		limits.ContentLimit = settings.ContentLimit
	}
	e.extractor = extract.New(extract.Config{
		Limits:    limits,
		SidebarID: opts.SidebarID,
	}, opts.Logger)
	e.client = clientFromSettings(settings)

	e.tracker = selection.NewTracker()
	e.tracker.OnReplace = func(string) {
		if len(e.sessions.Current().Messages) > 0 {
			e.notify("Context changed to the new selection.")
		}
	}

	e.sessions = session.NewStore(opts.DB, opts.Logger)
	e.chat = chat.NewController(chat.Config{
		Client:   e,
		Sessions: e.sessions,
		Settings: func(ctx context.Context) config.Settings { return opts.Resolver.Resolve(ctx) },
		Context:  e.ActiveContext,
		OnDelta:  opts.OnDelta,
		Notify:   opts.Notify,
		Logger:   opts.Logger,
	})

	e.watcher = watch.NewWatcher(opts.Watch, opts.Scheduler, opts.Source,
		e.applySnapshot, opts.Logger)

	opts.Resolver.OnChange(func(s config.Settings) { e.applySettings(s) })
	return e, nil
}

// Start resumes the domain's most recent session, attaches the bridge
// listener and begins watching the page. Detached engines do nothing.
func (e *Engine) Start(ctx context.Context) error {
	if e.detached {
		return nil
	}
	if _, err := e.sessions.ResumeMostRecent(ctx, e.domain); err != nil {
		return err
	}
	if e.bridge != nil {
		e.bridge.OnControl(e.HandleControl)
	}
	if err := e.watcher.Start(ctx); err != nil {
		// The page may come up later; the poll keeps trying.
		e.log.Warn("initial page fetch failed", zap.Error(err))
	}
	e.log.Info("engine started",
		zap.String("url", e.pageURL),
		zap.String("domain", e.domain))
	return nil
}

// Detached reports whether the engine constructed without a usable bridge.
func (e *Engine) Detached() bool { return e.detached }

// Domain returns the browsing domain sessions are keyed by.
func (e *Engine) Domain() string { return e.domain }

// applySnapshot extracts a fresh snapshot. Each trigger takes a generation;
// a result only lands when no newer trigger started meanwhile, so late
// passes never overwrite fresher context.
func (e *Engine) applySnapshot(doc *dom.Document, reason watch.Reason) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.gen++
	g := e.gen
	ex := e.extractor
	e.mu.Unlock()

	pc := ex.Extract(doc)

	e.mu.Lock()
	defer e.mu.Unlock()
	if g != e.gen || e.disposed {
		e.log.Debug("discarding superseded extraction",
			zap.String("reason", string(reason)))
		return
	}
	e.page = &pc
	e.log.Debug("page context refreshed",
		zap.String("reason", string(reason)),
		zap.String("url", pc.URL),
		zap.Int("chars", len(pc.ExtractedText)))
}

// Page returns the latest extraction snapshot, if any.
func (e *Engine) Page() (extract.PageContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return extract.PageContext{}, false
	}
	return *e.page, true
}

// ActiveContext resolves what the next turn talks about: a held selection
// shadows the page snapshot.
func (e *Engine) ActiveContext() chat.TurnContext {
	if text, ok := e.tracker.Active(); ok {
		return chat.TurnContext{Kind: session.ContextSelection, Text: text}
	}
	e.mu.Lock()
	page := e.page
	e.mu.Unlock()
	if page == nil {
		return chat.TurnContext{Kind: session.ContextPage}
	}
	return chat.TurnContext{
		Kind: session.ContextPage,
		Text: page.ExtractedText,
		Page: page,
	}
}

// Select feeds a user text selection to the tracker.
func (e *Engine) Select(text string) {
	if e.detached {
		return
	}
	e.tracker.Observe(text)
}

// ClearSelection reverts the active context to the page snapshot.
func (e *Engine) ClearSelection() {
	if e.detached {
		return
	}
	e.tracker.Clear()
}

// Selection returns the held selection, if any.
func (e *Engine) Selection() (string, bool) {
	if e.detached {
		return "", false
	}
	return e.tracker.Active()
}

// Send runs one chat turn.
func (e *Engine) Send(ctx context.Context, text string) error {
	if e.detached {
		return nil
	}
	return e.chat.Send(ctx, text)
}

// Regenerate re-answers the last turn.
func (e *Engine) Regenerate(ctx context.Context) error {
	if e.detached {
		return nil
	}
	return e.chat.Regenerate(ctx)
}

// Sessions exposes the session store for listing, switching and export.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// NewSession persists the current session and starts a fresh one.
func (e *Engine) NewSession(ctx context.Context) (session.Session, error) {
	if e.detached {
		return session.Session{}, nil
	}
	return e.sessions.CreateNew(ctx, e.domain)
}

// SwitchSession persists the current session, loads the target and
// re-extracts the page so context matches the now-current conversation.
func (e *Engine) SwitchSession(ctx context.Context, sessionID string) (session.Session, error) {
	if e.detached {
		return session.Session{}, nil
	}
	sess, err := e.sessions.SwitchTo(ctx, e.domain, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	e.watcher.Refresh(ctx)
	return sess, nil
}

// Bookmark saves one message to the bookmarks list.
func (e *Engine) Bookmark(ctx context.Context, role, content string) error {
	if e.detached {
		return nil
	}
	return e.db.AddBookmark(ctx, e.domain, role, content)
}

// Sticky reports the domain's sticky-sidebar flag.
func (e *Engine) Sticky(ctx context.Context) (bool, error) {
	if e.detached {
		return false, nil
	}
	return e.db.Sticky(ctx, e.domain)
}

// SetSticky stores the domain's sticky-sidebar flag.
func (e *Engine) SetSticky(ctx context.Context, on bool) error {
	if e.detached {
		return nil
	}
	return e.db.SetSticky(ctx, e.domain, on)
}

// Visible reports sidebar visibility, toggled by the shell.
func (e *Engine) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// HandleControl processes an inbound shell message.
func (e *Engine) HandleControl(name string) {
	if e.detached {
		return
	}
	switch name {
	case ControlToggleSidebar:
		e.mu.Lock()
		e.visible = !e.visible
		e.mu.Unlock()
	case ControlSettingsChanged:
		e.applySettings(e.resolver.Resolve(context.Background()))
	default:
		e.log.Debug("ignoring unknown control message", zap.String("name", name))
	}
}

// OpenSettings asks the shell to show the settings UI.
func (e *Engine) OpenSettings() error {
	if e.detached || e.bridge == nil {
		return nil
	}
	return e.bridge.OpenSettings()
}

// applySettings rebuilds the provider client and extraction limits.
func (e *Engine) applySettings(s config.Settings) {
	limits := extract.DefaultLimits()
	if s.ContentLimit > 0 {
		limits.ContentLimit = s.ContentLimit
	}
	ex := extract.New(extract.Config{Limits: limits, SidebarID: e.sidebarID}, e.log)

	e.mu.Lock()
	e.client = clientFromSettings(s)
	e.extractor = ex
	e.mu.Unlock()
	e.log.Info("settings applied",
		zap.String("provider", s.Provider),
		zap.String("model", s.ActiveModel()))
}

// Complete routes to the test override or the current provider client, so a
// provider change applies without rebuilding the controller.
func (e *Engine) Complete(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
	if e.override != nil {
		return e.override.Complete(ctx, req)
	}
	return e.currentClient().Complete(ctx, req)
}

// Stream routes like Complete.
func (e *Engine) Stream(ctx context.Context, req llm.Request, onDelta func(string)) (string, *llm.Usage, error) {
	if e.override != nil {
		return e.override.Stream(ctx, req, onDelta)
	}
	return e.currentClient().Stream(ctx, req, onDelta)
}

// ListModels queries the active provider, doubling as a credential test.
func (e *Engine) ListModels(ctx context.Context) ([]string, error) {
	if e.detached {
		return nil, nil
	}
	return e.currentClient().ListModels(ctx)
}

func (e *Engine) currentClient() *llm.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// Dispose stops timers and listeners, cancels any in-flight send and flushes
// the active session. Safe to call more than once.
func (e *Engine) Dispose(ctx context.Context) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	detached := e.detached
	e.mu.Unlock()

	if detached {
		return
	}
	e.watcher.Dispose()
	e.chat.CancelInFlight()
	if err := e.sessions.Persist(ctx); err != nil {
		e.log.Error("failed to persist session on dispose", zap.Error(err))
	}
}

func clientFromSettings(s config.Settings) *llm.Client {
	return llm.NewClient(llm.Options{
		Provider: llm.Provider(s.Provider),
		APIKey:   s.ActiveKey(),
		Timeout:  s.RequestTimeout,
		Referer:  "https://github.com/pagechat/pagechat",
		AppName:  "pagechat",
	})
}
