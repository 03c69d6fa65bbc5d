package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagechat/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export all conversations as a readable report",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}
	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	sessions := session.NewStore(db, buildLogger())
	report, err := sessions.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	if len(args) == 0 {
		fmt.Fprint(cmd.OutOrStdout(), report)
		return
	}
	if err := os.WriteFile(args[0], []byte(report), 0o644); err != nil {
		exitErr("write export file", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
}
