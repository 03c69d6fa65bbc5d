// Package chat orchestrates a conversation turn: resolving the active
// context, assembling the request with rolling history, dispatching to the
// provider (streamed or batched) and recording the completed pair.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pagechat/internal/config"
	"pagechat/internal/extract"
	"pagechat/internal/llm"
	"pagechat/internal/session"
)

// Sends are single-flight; callers branch on these.
var (
	ErrSendInFlight = errors.New("a send is already in flight")
	ErrEmptyMessage = errors.New("message is empty")
)

// DefaultSystemPrompt grants quoting permission up front so the model does
// not decline to discuss page text the user chose to share.
const DefaultSystemPrompt = "You are a helpful assistant embedded alongside the page the user is reading. " +
	"The user has granted you permission to read and quote freely from the page content and any text they select. " +
	"Answer concisely and ground your answers in the provided context when it is relevant."

// TurnContext is the context resolved for one turn. For a page turn Text is
// the framed extraction and Page the snapshot to record; for a selection turn
// Text is the raw excerpt, which gets wrapped into the user content.
type TurnContext struct {
	Kind string // session.ContextPage or session.ContextSelection
	Text string
	Page *extract.PageContext
}

// Completer is the provider surface the controller needs; satisfied by
// *llm.Client and by test doubles.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, *llm.Usage, error)
	Stream(ctx context.Context, req llm.Request, onDelta func(string)) (string, *llm.Usage, error)
}

// Config wires a controller.
type Config struct {
	Client   Completer
	Sessions *session.Store

	// Settings is read per send so changes apply without rebuilding.
	Settings func(context.Context) config.Settings
	// Context resolves the active context for the turn.
	Context func() TurnContext
	// OnDelta receives streamed content fragments. Optional.
	OnDelta func(string)
	// Notify surfaces non-blocking notices to the user. Optional.
	Notify func(string)

	Logger *zap.Logger
}

// Controller runs sends one at a time against the active session.
type Controller struct {
	cfg Config
	log *zap.Logger

	mu           sync.Mutex
	sending      bool
	cancel       context.CancelFunc
	persistNoted bool
}

func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, log: cfg.Logger}
}

// Sending reports whether a send is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// CancelInFlight aborts the current send, if any. The aborted turn is not
// recorded.
func (c *Controller) CancelInFlight() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) begin(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending {
		return nil, ErrSendInFlight
	}
	c.sending = true
	sendCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return sendCtx, nil
}

func (c *Controller) end() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.sending = false
	c.mu.Unlock()
}

// Send runs one complete turn. Empty input and overlapping sends are
// rejected up front. Provider failures do not return an error: the turn is
// recorded with an assistant-role error message and the controller stays
// usable. A cancelled send records nothing.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	sendCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end()

	turn := c.cfg.Context()
	settings := c.cfg.Settings(sendCtx)

	content := text
	if turn.Kind == session.ContextSelection && turn.Text != "" {
		content = wrapSelection(turn.Text, text)
	}

	userMsg := session.Message{
		Role:        session.RoleUser,
		Content:     content,
		ContextType: turn.Kind,
		PageContext: turn.Page,
	}

	history := c.history(settings.HistoryWindow)
	assistant := c.dispatch(sendCtx, settings, turn, history, content)
	if sendCtx.Err() != nil {
		// Superseded or disposed mid-flight; drop the turn.
		return sendCtx.Err()
	}

	if err := c.cfg.Sessions.AppendPair(ctx, userMsg, assistant); err != nil {
		c.notePersistFailure(err)
	}
	return nil
}

// Regenerate drops the trailing assistant turn and re-runs the same user
// text against the context recorded on that turn.
func (c *Controller) Regenerate(ctx context.Context) error {
	sendCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end()

	userMsg, ok := c.cfg.Sessions.TrimLastAssistant()
	if !ok {
		return fmt.Errorf("nothing to regenerate")
	}

	settings := c.cfg.Settings(sendCtx)
	turn := TurnContext{Kind: userMsg.ContextType, Page: userMsg.PageContext}
	if turn.Kind == session.ContextPage && turn.Page != nil {
		turn.Text = turn.Page.ExtractedText
	}

	// History up to but not including the user turn being answered.
	history := c.history(settings.HistoryWindow)
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	assistant := c.dispatch(sendCtx, settings, turn, history, userMsg.Content)
	if sendCtx.Err() != nil {
		// Restore the pair invariant with the turn we trimmed? The send was
		// cancelled after the trim; record an error turn so the transcript
		// stays even.
		assistant = session.Message{
			Role:    session.RoleAssistant,
			Content: "Response cancelled.",
		}
	}

	if err := c.cfg.Sessions.AppendAssistant(ctx, assistant); err != nil {
		c.notePersistFailure(err)
	}
	if sendCtx.Err() != nil {
		return sendCtx.Err()
	}
	return nil
}

// dispatch performs the provider call and always returns an assistant
// message, carrying the error text on failure.
func (c *Controller) dispatch(ctx context.Context, settings config.Settings, turn TurnContext, history []llm.Message, userContent string) session.Message {
	req := llm.Request{
		Model:       settings.ActiveModel(),
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	}
	req.Messages = append(req.Messages, llm.Message{
		Role:    "system",
		Content: systemPrompt(settings.SystemPrompt, turn),
	})
	req.Messages = append(req.Messages, history...)
	req.Messages = append(req.Messages, llm.Message{Role: "user", Content: userContent})

	var (
		content string
		usage   *llm.Usage
		err     error
	)
	if settings.Stream {
		content, usage, err = c.cfg.Client.Stream(ctx, req, c.cfg.OnDelta)
	} else {
		content, usage, err = c.cfg.Client.Complete(ctx, req)
	}

	if err != nil {
		c.log.Warn("chat request failed",
			zap.String("model", req.Model), zap.Error(err))
		return session.Message{
			Role:    session.RoleAssistant,
			Content: errorTurn(err),
		}
	}

	msg := session.Message{Role: session.RoleAssistant, Content: content}
	if usage != nil {
		msg.TokenUsage = &session.TokenUsage{
			Prompt:     usage.PromptTokens,
			Completion: usage.CompletionTokens,
			Total:      usage.TotalTokens,
		}
	}
	return msg
}

// history maps the last window messages of the active session to wire turns.
func (c *Controller) history(window int) []llm.Message {
	msgs := c.cfg.Sessions.Current().Messages
	if window >= 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// notePersistFailure logs every failure but toasts only the first, so a
// broken store does not bury the conversation in notices.
func (c *Controller) notePersistFailure(err error) {
	c.log.Error("failed to persist session", zap.Error(err))
	c.mu.Lock()
	first := !c.persistNoted
	c.persistNoted = true
	c.mu.Unlock()
	if first && c.cfg.Notify != nil {
		c.cfg.Notify("Could not save this conversation; new messages may be lost on reload.")
	}
}

// systemPrompt attaches page context to the system instruction. Selection
// turns carry their excerpt in the user content instead.
func systemPrompt(custom string, turn TurnContext) string {
	base := custom
	if base == "" {
		base = DefaultSystemPrompt
	}
	if turn.Kind == session.ContextPage && turn.Text != "" {
		return base + "\n\n" + turn.Text
	}
	return base
}

func wrapSelection(excerpt, text string) string {
	return fmt.Sprintf("Regarding this selected text:\n\"%s\"\n\n%s", excerpt, text)
}

func errorTurn(err error) string {
	if errors.Is(err, llm.ErrNoAPIKey) {
		return "Sorry, I can't reach the model: no API key is configured. Open settings to add one."
	}
	return fmt.Sprintf("Sorry, I encountered an error: %v", err)
}
