package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"pagechat/internal/llm"
	"pagechat/internal/ui"
)

func init() {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models from the configured provider (also verifies the API key)",
		Run:   runModels,
	}
	RootCmd.AddCommand(cmd)
}

func runModels(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	resolver, err := openResolver(db)
	if err != nil {
		exitErr("load settings", err)
	}
	settings := resolver.Resolve(cmd.Context())

	client := llm.NewClient(llm.Options{
		Provider: llm.Provider(settings.Provider),
		APIKey:   settings.ActiveKey(),
		Timeout:  settings.RequestTimeout,
	})

	display := ui.NewDisplay(settings.Theme)
	display.ShowSpinner("Fetching models")
	models, err := client.ListModels(cmd.Context())
	display.StopSpinner()
	if err != nil {
		exitErr("list models", err)
	}

	sort.Strings(models)
	display.PrintModels(models)
	display.PrintSuccess("API key works.")
}
