// Package ui renders the terminal chat surface: markdown responses via
// glamour, styled session listings via lipgloss, and the streaming writer
// the chat controller feeds deltas into.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"pagechat/internal/session"
	"pagechat/internal/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	toastStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)
)

// Display owns terminal output for the chat REPL.
type Display struct {
	width    int
	renderer *glamour.TermRenderer

	spinnerActive bool
	spinnerDone   chan bool

	response strings.Builder
	started  time.Time
}

// NewDisplay builds a display for the configured theme ("auto", "dark",
// "light", or "plain" for no markdown rendering).
func NewDisplay(theme string) *Display {
	width := terminalWidth()

	var renderer *glamour.TermRenderer
	switch theme {
	case "plain":
		// leave renderer nil, raw text passes through
	case "dark":
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width-4))
	case "light":
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(width-4))
	default:
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4))
	}

	return &Display{
		width:       width,
		renderer:    renderer,
		spinnerDone: make(chan bool),
	}
}

// PrintWelcome shows the session banner.
func (d *Display) PrintWelcome(model, pageURL string) {
	fmt.Println(titleStyle.Render("pagechat"))
	fmt.Println(dimStyle.Render("Page:  " + pageURL))
	fmt.Println(dimStyle.Render("Model: " + model))
	fmt.Println(dimStyle.Render("Type a question, or /help for commands."))
	fmt.Println()
}

// PrintPrompt displays the user input prompt.
func (d *Display) PrintPrompt() {
	fmt.Print(activeStyle.Render("❯") + " ")
}

// PrintUserMessage echoes a recorded user turn.
func (d *Display) PrintUserMessage(content string, ts time.Time) {
	fmt.Println(dimStyle.Render("You · " + ts.Format("15:04:05")))
	fmt.Println(content)
	fmt.Println()
}

// StartAssistantResponse begins a streamed turn.
func (d *Display) StartAssistantResponse() {
	d.started = time.Now()
	d.response.Reset()
	fmt.Println(headerStyle.Render("Assistant · " + time.Now().Format("15:04:05")))
}

// WriteChunk streams one delta live; the full markdown render happens at the
// end of the turn.
func (d *Display) WriteChunk(text string) {
	d.response.WriteString(text)
	fmt.Print(text)
}

// EndAssistantResponse finishes a turn: when nothing streamed (batched mode)
// the full content renders here, otherwise the raw streamed text is followed
// by its markdown rendering. Metadata prints either way.
func (d *Display) EndAssistantResponse(content string, usage *session.TokenUsage) {
	if d.response.Len() == 0 {
		fmt.Println(d.markdown(content))
	} else {
		fmt.Println()
		if rendered := d.markdown(d.response.String()); rendered != d.response.String() {
			fmt.Println(rendered)
		}
	}
	meta := formatDuration(time.Since(d.started))
	if usage != nil {
		meta += fmt.Sprintf(" · %d tokens", usage.Total)
	}
	fmt.Println(dimStyle.Render(meta))
	fmt.Println()
}

// PrintAssistantMessage renders a complete (non-streamed) assistant turn.
func (d *Display) PrintAssistantMessage(content string, usage *session.TokenUsage) {
	fmt.Println(headerStyle.Render("Assistant · " + time.Now().Format("15:04:05")))
	fmt.Println(d.markdown(content))
	if usage != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d tokens", usage.Total)))
	}
	fmt.Println()
}

// PrintTranscript replays a session's messages, used after switching.
func (d *Display) PrintTranscript(msgs []session.Message) {
	for _, m := range msgs {
		if m.Role == session.RoleUser {
			d.PrintUserMessage(m.Content, m.Timestamp)
			continue
		}
		fmt.Println(headerStyle.Render("Assistant · " + m.Timestamp.Format("15:04:05")))
		fmt.Println(d.markdown(m.Content))
		fmt.Println()
	}
}

// PrintSessions renders a styled session listing, marking the active one.
func (d *Display) PrintSessions(sums []session.Summary, activeID string) {
	if len(sums) == 0 {
		fmt.Println(dimStyle.Render("No saved conversations."))
		return
	}
	fmt.Println(headerStyle.Render("Conversations"))
	for _, s := range sums {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%s  %s  %s · %d messages · %s",
			s.ID, title, s.Domain, s.MessageCount,
			s.LastUpdated.Format("2006-01-02 15:04"))
		if s.ID == activeID {
			fmt.Println(activeStyle.Render("* " + line))
		} else {
			fmt.Println("  " + dimStyle.Render(line))
		}
	}
}

// PrintBookmarks lists saved messages, newest first.
func (d *Display) PrintBookmarks(marks []store.Bookmark) {
	if len(marks) == 0 {
		fmt.Println(dimStyle.Render("No bookmarks."))
		return
	}
	fmt.Println(headerStyle.Render("Bookmarks"))
	for _, b := range marks {
		fmt.Println(dimStyle.Render(fmt.Sprintf("[%s] %s · %s",
			b.CreatedAt.Format("2006-01-02 15:04"), b.Role, b.Domain)))
		fmt.Println(b.Content)
		fmt.Println()
	}
}

// PrintModels lists model identifiers from the provider.
func (d *Display) PrintModels(models []string) {
	fmt.Println(headerStyle.Render("Available models"))
	for _, m := range models {
		fmt.Println("  " + m)
	}
}

// Toast surfaces a non-blocking notice without disturbing the transcript.
func (d *Display) Toast(msg string) {
	fmt.Println(toastStyle.Render(msg))
}

// PrintInfo displays an info message.
func (d *Display) PrintInfo(msg string) {
	fmt.Println(dimStyle.Render("ℹ " + msg))
}

// PrintWarning displays a warning message.
func (d *Display) PrintWarning(msg string) {
	fmt.Println(warnStyle.Render("⚠ " + msg))
}

// PrintError displays an error message.
func (d *Display) PrintError(err error) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %v", err)))
}

// PrintSuccess displays a success message.
func (d *Display) PrintSuccess(msg string) {
	fmt.Println(successStyle.Render("✓ " + msg))
}

// PrintGoodbye displays the exit message.
func (d *Display) PrintGoodbye() {
	fmt.Println(dimStyle.Render("Conversation saved. Bye."))
}

// ShowSpinner displays a spinner with a message until stopped.
func (d *Display) ShowSpinner(msg string) {
	if d.spinnerActive {
		d.StopSpinner()
	}
	d.spinnerActive = true
	d.spinnerDone = make(chan bool)

	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		for {
			select {
			case <-d.spinnerDone:
				fmt.Print("\r\033[2K")
				return
			default:
				fmt.Printf("\r%s %s", frames[i], dimStyle.Render(msg))
				i = (i + 1) % len(frames)
				time.Sleep(80 * time.Millisecond)
			}
		}
	}()
}

// StopSpinner stops the active spinner.
func (d *Display) StopSpinner() {
	if d.spinnerActive {
		d.spinnerActive = false
		d.spinnerDone <- true
		time.Sleep(10 * time.Millisecond)
	}
}

func (d *Display) markdown(content string) string {
	if d.renderer == nil {
		return content
	}
	rendered, err := d.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
