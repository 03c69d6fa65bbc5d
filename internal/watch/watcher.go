package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pagechat/internal/dom"
)

// DocumentSource yields fresh snapshots of the watched page.
type DocumentSource interface {
	Fetch(ctx context.Context) (*dom.Document, error)
}

// Reason says why a snapshot was produced.
type Reason string

const (
	ReasonInitial  Reason = "initial"
	ReasonDelayed  Reason = "delayed"  // catch async-rendered content
	ReasonNavigate Reason = "navigate" // URL or title changed
	ReasonMutate   Reason = "mutate"   // content grew, debounced
	ReasonRefresh  Reason = "refresh"  // caller asked for a fresh pass
)

// Config tunes the watcher's timing.
type Config struct {
	PollInterval      time.Duration   // URL/title poll cadence
	Debounce          time.Duration   // quiet period before a mutate fires
	DelayedPasses     []time.Duration // extra extraction passes after start
	MutationThreshold int             // minimum character growth to count
}

// DefaultConfig mirrors the shipped timings: 2s poll, 2s debounce, delayed
// passes at +1.5s and +3s.
func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		Debounce:          2 * time.Second,
		DelayedPasses:     []time.Duration{1500 * time.Millisecond, 3 * time.Second},
		MutationThreshold: 50,
	}
}

// Watcher re-fetches the page on a schedule and reports snapshots worth
// re-extracting: the initial and delayed passes, detected navigation, and
// debounced content growth.
type Watcher struct {
	cfg    Config
	sched  Scheduler
	source DocumentSource
	onDoc  func(doc *dom.Document, reason Reason)
	log    *zap.Logger

	deb *Debouncer

	mu        sync.Mutex
	lastURL   string
	lastTitle string
	lastLen   int
	cancels   []CancelFunc
	started   bool
	disposed  bool
}

func NewWatcher(cfg Config, sched Scheduler, source DocumentSource, onDoc func(*dom.Document, Reason), log *zap.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		cfg:    cfg,
		sched:  sched,
		source: source,
		onDoc:  onDoc,
		log:    log,
		deb:    NewDebouncer(sched, cfg.Debounce),
	}
}

// Start performs the immediate pass synchronously, then arms the delayed
// passes and the navigation poll.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started || w.disposed {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	doc, err := w.source.Fetch(ctx)
	if err == nil {
		w.recordBaseline(doc)
		w.onDoc(doc, ReasonInitial)
	}

	// Arm the timers either way so a page that comes up later is caught by
	// the poll.
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, delay := range w.cfg.DelayedPasses {
		w.cancels = append(w.cancels, w.sched.After(delay, func() {
			w.pass(ctx, ReasonDelayed)
		}))
	}
	w.cancels = append(w.cancels, w.sched.Every(w.cfg.PollInterval, func() {
		w.poll(ctx)
	}))
	return err
}

// Refresh forces an immediate re-fetch and report, used when the caller
// switches conversations and wants context to match.
func (w *Watcher) Refresh(ctx context.Context) {
	w.mu.Lock()
	disposed := w.disposed
	w.mu.Unlock()
	if disposed {
		return
	}
	w.pass(ctx, ReasonRefresh)
}

// pass re-fetches unconditionally and reports the snapshot.
func (w *Watcher) pass(ctx context.Context, reason Reason) {
	doc, err := w.source.Fetch(ctx)
	if err != nil {
		w.log.Debug("watch pass failed", zap.String("reason", string(reason)), zap.Error(err))
		return
	}
	w.recordBaseline(doc)
	w.onDoc(doc, reason)
}

// poll compares the fresh snapshot against the recorded baseline. A changed
// URL or title is navigation and fires immediately; meaningful content
// growth is a mutation and fires after the quiet period.
func (w *Watcher) poll(ctx context.Context) {
	doc, err := w.source.Fetch(ctx)
	if err != nil {
		w.log.Debug("navigation poll failed", zap.Error(err))
		return
	}

	contentLen := bodyLength(doc)

	w.mu.Lock()
	navigated := doc.URL != w.lastURL || doc.Title != w.lastTitle
	mutated := !navigated && contentLen >= w.lastLen+w.cfg.MutationThreshold
	w.lastURL = doc.URL
	w.lastTitle = doc.Title
	w.lastLen = contentLen
	w.mu.Unlock()

	switch {
	case navigated:
		w.deb.Cancel()
		w.log.Debug("navigation detected", zap.String("url", doc.URL))
		w.onDoc(doc, ReasonNavigate)
	case mutated:
		// Re-fetch when the quiet period ends; the snapshot that showed
		// growth is stale by then.
		w.deb.Trigger(func() {
			w.pass(ctx, ReasonMutate)
		})
	}
}

func (w *Watcher) recordBaseline(doc *dom.Document) {
	contentLen := bodyLength(doc)
	w.mu.Lock()
	w.lastURL = doc.URL
	w.lastTitle = doc.Title
	w.lastLen = contentLen
	w.mu.Unlock()
}

// Dispose stops the poll, the delayed passes and any pending debounce.
func (w *Watcher) Dispose() {
	w.mu.Lock()
	w.disposed = true
	cancels := w.cancels
	w.cancels = nil
	w.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	w.deb.Cancel()
}

func bodyLength(doc *dom.Document) int {
	body := doc.Body()
	if body == nil {
		return 0
	}
	return len(dom.TextContent(body))
}
