package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pagechat/internal/config"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print effective settings (API keys redacted)",
		Run:   runConfigShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: "Change one setting. Keys: provider, openai_key, openai_model,\n" +
			"openrouter_key, openrouter_model, max_tokens, temperature, stream,\n" +
			"content_limit, history_window, system_prompt, theme.",
		Args: cobra.ExactArgs(2),
		Run:  runConfigSet,
	}

	configCmd.AddCommand(showCmd, setCmd)
	RootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	resolver, err := openResolver(db)
	if err != nil {
		exitErr("load settings", err)
	}
	s := resolver.Resolve(cmd.Context())
	s.OpenAIKey = redact(s.OpenAIKey)
	s.OpenRouterKey = redact(s.OpenRouterKey)

	out, err := yaml.Marshal(s)
	if err != nil {
		exitErr("encode settings", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
}

func runConfigSet(cmd *cobra.Command, args []string) {
	key, value := args[0], args[1]

	db, err := openDB()
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	resolver, err := openResolver(db)
	if err != nil {
		exitErr("load settings", err)
	}
	s := resolver.Resolve(cmd.Context())

	if err := applySetting(&s, key, value); err != nil {
		exitErr("set "+key, err)
	}
	if err := resolver.Save(cmd.Context(), s); err != nil {
		exitErr("save settings", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
}

func applySetting(s *config.Settings, key, value string) error {
	switch key {
	case "provider":
		s.Provider = value
	case "openai_key":
		s.OpenAIKey = value
	case "openai_model":
		s.OpenAIModel = value
	case "openrouter_key":
		s.OpenRouterKey = value
	case "openrouter_model":
		s.OpenRouterModel = value
	case "system_prompt":
		s.SystemPrompt = value
	case "theme":
		s.Theme = value
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.MaxTokens = n
	case "content_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.ContentLimit = n
	case "history_window":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.HistoryWindow = n
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		s.Temperature = f
	case "stream":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		s.Stream = b
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
