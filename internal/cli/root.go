// Package cli implements the pagechat commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pagechat/internal/config"
	"pagechat/internal/store"
)

var (
	dbPath  string
	cfgPath string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "pagechat",
	Short: "Chat with the page you are reading",
	Long: "pagechat extracts the readable content of a web page and lets you chat\n" +
		"about it with an OpenAI-compatible model, keeping per-domain conversation\n" +
		"history in a local SQLite database.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PAGECHAT_DB or ~/.pagechat/pagechat.db)")
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Settings file (default: ~/.pagechat/settings.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("PAGECHAT_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pagechat", "pagechat.db")
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pagechat", "settings.yaml")
}

func openDB() (*store.DB, error) {
	return store.Open(getDBPath())
}

// openResolver layers the persisted settings scope over the YAML file.
func openResolver(db *store.DB) (*config.Resolver, error) {
	base, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	return config.NewResolver(base, db), nil
}

// buildLogger is constructed once per command and injected everywhere.
func buildLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
