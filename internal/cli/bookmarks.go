package cli

import (
	"github.com/spf13/cobra"

	"pagechat/internal/ui"
)

func init() {
	cmd := &cobra.Command{
		Use:   "bookmarks [domain]",
		Short: "List bookmarked messages, newest first",
		Args:  cobra.MaximumNArgs(1),
		Run:   runBookmarks,
	}
	RootCmd.AddCommand(cmd)
}

func runBookmarks(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	}

	marks, err := db.ListBookmarks(cmd.Context(), domain)
	if err != nil {
		exitErr("list bookmarks", err)
	}
	ui.NewDisplay("plain").PrintBookmarks(marks)
}
