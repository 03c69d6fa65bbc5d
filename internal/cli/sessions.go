package cli

import (
	"github.com/spf13/cobra"

	"pagechat/internal/session"
	"pagechat/internal/ui"
)

func init() {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}

	listCmd := &cobra.Command{
		Use:   "list [domain]",
		Short: "List conversations, most recent first",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSessionsList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <domain> <session-id>",
		Short: "Delete one conversation",
		Args:  cobra.ExactArgs(2),
		Run:   runSessionsRm,
	}

	clearCmd := &cobra.Command{
		Use:   "clear [domain]",
		Short: "Delete all conversations, or all for one domain",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSessionsClear,
	}

	sessionsCmd.AddCommand(listCmd, rmCmd, clearCmd)
	RootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	}

	sessions := session.NewStore(db, buildLogger())
	sums, err := sessions.List(cmd.Context(), domain)
	if err != nil {
		exitErr("list sessions", err)
	}

	display := ui.NewDisplay("plain")
	display.PrintSessions(sums, "")
}

func runSessionsRm(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	sessions := session.NewStore(db, buildLogger())
	if err := sessions.Delete(cmd.Context(), args[0], args[1]); err != nil {
		exitErr("delete session", err)
	}
	ui.NewDisplay("plain").PrintSuccess("Deleted " + args[1])
}

func runSessionsClear(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	}

	sessions := session.NewStore(db, buildLogger())
	if err := sessions.DeleteAll(cmd.Context(), domain); err != nil {
		exitErr("clear sessions", err)
	}
	display := ui.NewDisplay("plain")
	if domain == "" {
		display.PrintSuccess("Deleted all conversations.")
	} else {
		display.PrintSuccess("Deleted all conversations for " + domain)
	}
}
