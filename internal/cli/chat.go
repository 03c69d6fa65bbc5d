package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pagechat/internal/app"
	"pagechat/internal/dom"
	"pagechat/internal/fetch"
	"pagechat/internal/ui"
	"pagechat/internal/watch"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat <url>",
		Short: "Open an interactive chat about a page",
		Args:  cobra.ExactArgs(1),
		Run:   runChat,
	}
	RootCmd.AddCommand(cmd)
}

// pageSource adapts the fetcher to the watcher for one fixed URL.
type pageSource struct {
	fetcher *fetch.Fetcher
	url     string
}

func (p pageSource) Fetch(ctx context.Context) (*dom.Document, error) {
	return p.fetcher.Fetch(ctx, p.url)
}

func runChat(cmd *cobra.Command, args []string) {
	pageURL := args[0]
	log := buildLogger()
	defer log.Sync()

	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	resolver, err := openResolver(db)
	if err != nil {
		exitErr("load settings", err)
	}
	ctx := cmd.Context()
	settings := resolver.Resolve(ctx)
	display := ui.NewDisplay(settings.Theme)

	fetcher := fetch.New(15*time.Second, 5*1024*1024, "pagechat/1.0")
	engine, err := app.New(app.Options{
		URL:       pageURL,
		DB:        db,
		Resolver:  resolver,
		Source:    pageSource{fetcher: fetcher, url: pageURL},
		Scheduler: watch.NewScheduler(),
		Watch:     watch.DefaultConfig(),
		Bridge: &app.FuncBridge{
			OpenSettingsFn: func() error {
				display.PrintInfo("Edit " + getConfigPath() + " or use `pagechat config set`.")
				return nil
			},
		},
		OnDelta: display.WriteChunk,
		Notify:  display.Toast,
		Logger:  log,
	})
	if err != nil {
		exitErr("start engine", err)
	}
	defer engine.Dispose(context.Background())

	display.ShowSpinner("Reading page")
	err = engine.Start(ctx)
	display.StopSpinner()
	if err != nil {
		exitErr("start engine", err)
	}

	display.PrintWelcome(settings.ActiveModel(), pageURL)
	if pc, ok := engine.Page(); ok {
		display.PrintInfo(fmt.Sprintf("Extracted %d characters from %q.",
			len(pc.ExtractedText), pc.Title))
	} else {
		display.PrintWarning("Could not read the page yet; retrying in the background.")
	}
	if msgs := engine.Sessions().Current().Messages; len(msgs) > 0 {
		display.PrintInfo(fmt.Sprintf("Resumed conversation with %d messages.", len(msgs)))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		display.PrintPrompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runReplCommand(ctx, engine, display, line); quit {
				break
			}
			continue
		}
		sendTurn(ctx, engine, display, func() error {
			return engine.Send(ctx, line)
		})
	}

	display.PrintGoodbye()
}

// sendTurn runs a send or regenerate and renders the resulting turn. In
// streaming mode deltas arrive through the engine's OnDelta hook; in batched
// mode the recorded assistant message renders at the end.
func sendTurn(ctx context.Context, engine *app.Engine, display *ui.Display, run func() error) {
	display.StartAssistantResponse()
	if err := run(); err != nil {
		display.PrintError(err)
		return
	}

	msgs := engine.Sessions().Current().Messages
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	display.EndAssistantResponse(last.Content, last.TokenUsage)
}

// runReplCommand handles slash commands; returns true to exit the loop.
func runReplCommand(ctx context.Context, engine *app.Engine, display *ui.Display, line string) bool {
	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]
	arg := ""
	if len(fields) > 1 {
		arg = strings.TrimSpace(fields[1])
	}

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		display.PrintInfo("Commands: /new /sessions /switch <id> /regen /select <text> /clearsel /context /bookmark /sticky /export /models /settings /exit")

	case "/new":
		if _, err := engine.NewSession(ctx); err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSuccess("Started a new conversation.")

	case "/sessions":
		sums, err := engine.Sessions().List(ctx, engine.Domain())
		if err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSessions(sums, engine.Sessions().Current().ID)

	case "/switch":
		if arg == "" {
			display.PrintWarning("Usage: /switch <session-id>")
			break
		}
		sess, err := engine.SwitchSession(ctx, arg)
		if err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSuccess("Switched to " + sess.ID)
		display.PrintTranscript(sess.Messages)

	case "/regen":
		sendTurn(ctx, engine, display, func() error {
			return engine.Regenerate(ctx)
		})

	case "/select":
		if arg == "" {
			display.PrintWarning("Usage: /select <text>")
			break
		}
		engine.Select(arg)
		display.PrintSuccess("Selection is now the active context.")

	case "/clearsel":
		engine.ClearSelection()
		display.PrintSuccess("Back to full-page context.")

	case "/context":
		if text, ok := engine.Selection(); ok {
			display.PrintInfo("Active context: selection: " + truncateLine(text, 120))
			break
		}
		if pc, ok := engine.Page(); ok {
			display.PrintInfo(fmt.Sprintf("Active context: page %q (%d characters)",
				pc.Title, len(pc.ExtractedText)))
			break
		}
		display.PrintWarning("No context captured yet.")

	case "/bookmark":
		msgs := engine.Sessions().Current().Messages
		if len(msgs) == 0 {
			display.PrintWarning("Nothing to bookmark yet.")
			break
		}
		last := msgs[len(msgs)-1]
		if err := engine.Bookmark(ctx, last.Role, last.Content); err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSuccess("Bookmarked the last message.")

	case "/sticky":
		on, err := engine.Sticky(ctx)
		if err != nil {
			display.PrintError(err)
			break
		}
		if err := engine.SetSticky(ctx, !on); err != nil {
			display.PrintError(err)
			break
		}
		if on {
			display.PrintSuccess("Sticky mode off for " + engine.Domain())
		} else {
			display.PrintSuccess("Sticky mode on for " + engine.Domain())
		}

	case "/export":
		report, err := engine.Sessions().Export(ctx)
		if err != nil {
			display.PrintError(err)
			break
		}
		fmt.Println(report)

	case "/models":
		display.ShowSpinner("Fetching models")
		models, err := engine.ListModels(ctx)
		display.StopSpinner()
		if err != nil {
			display.PrintError(err)
			break
		}
		display.PrintModels(models)

	case "/settings":
		if err := engine.OpenSettings(); err != nil {
			display.PrintError(err)
		}

	default:
		display.PrintWarning("Unknown command " + cmd + "; try /help")
	}
	return false
}

func truncateLine(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
