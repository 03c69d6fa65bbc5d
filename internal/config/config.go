// Package config supplies user settings: provider choice, credentials,
// generation parameters and extraction limits. Defaults are overlaid by an
// optional YAML file, and the persisted settings scope wins over both.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"pagechat/internal/store"
)

// Settings holds every user-tunable knob.
type Settings struct {
	Provider string `yaml:"provider" json:"provider"` // "openai" or "openrouter"

	OpenAIKey   string `yaml:"openai_key" json:"openai_key"`
	OpenAIModel string `yaml:"openai_model" json:"openai_model"`

	OpenRouterKey   string `yaml:"openrouter_key" json:"openrouter_key"`
	OpenRouterModel string `yaml:"openrouter_model" json:"openrouter_model"`

	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	Stream      bool    `yaml:"stream" json:"stream"`

	ContentLimit  int `yaml:"content_limit" json:"content_limit"`
	HistoryWindow int `yaml:"history_window" json:"history_window"`

	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	Theme        string `yaml:"theme" json:"theme"`

	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// Default returns the shipped defaults.
func Default() Settings {
	return Settings{
		Provider:        "openai",
		OpenAIModel:     "gpt-4o-mini",
		OpenRouterModel: "openai/gpt-4o-mini",
		MaxTokens:       2000,
		Temperature:     0.7,
		Stream:          true,
		ContentLimit:    15000,
		HistoryWindow:   8,
		Theme:           "auto",
		RequestTimeout:  120 * time.Second,
	}
}

// Load overlays a YAML settings file onto the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("parse settings file: %w", err)
	}
	return s, nil
}

// Validate checks settings the engine cannot run with.
func (s Settings) Validate() error {
	if s.Provider != "openai" && s.Provider != "openrouter" {
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if s.ContentLimit < 100 {
		return fmt.Errorf("content_limit must be at least 100")
	}
	if s.HistoryWindow < 0 {
		return fmt.Errorf("history_window cannot be negative")
	}
	return nil
}

// ActiveKey returns the API key for the selected provider.
func (s Settings) ActiveKey() string {
	if s.Provider == "openrouter" {
		return s.OpenRouterKey
	}
	return s.OpenAIKey
}

// ActiveModel returns the model id for the selected provider.
func (s Settings) ActiveModel() string {
	if s.Provider == "openrouter" {
		return s.OpenRouterModel
	}
	return s.OpenAIModel
}

// Resolver layers the persisted settings scope over a base settings value
// and notifies subscribers when settings change.
type Resolver struct {
	db   *store.DB
	base Settings

	mu       sync.Mutex
	onChange []func(Settings)
}

// NewResolver builds a resolver over a base settings value. db may be nil
// for a purely static resolver.
func NewResolver(base Settings, db *store.DB) *Resolver {
	return &Resolver{db: db, base: base}
}

// Resolve returns current settings: the persisted blob when one exists and
// decodes, otherwise the base.
func (r *Resolver) Resolve(ctx context.Context) Settings {
	r.mu.Lock()
	base := r.base
	r.mu.Unlock()
	if r.db == nil {
		return base
	}
	data, err := r.db.GetSettings(ctx)
	if err != nil {
		return base
	}
	s := base
	if err := json.Unmarshal(data, &s); err != nil {
		return base
	}
	return s
}

// Save validates and persists settings, then signals the change.
func (r *Resolver) Save(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if r.db != nil {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		if err := r.db.PutSettings(ctx, data); err != nil {
			return err
		}
	} else {
		r.mu.Lock()
		r.base = s
		r.mu.Unlock()
	}

	r.mu.Lock()
	subs := append([]func(Settings){}, r.onChange...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
	return nil
}

// OnChange registers a settings-changed subscriber.
func (r *Resolver) OnChange(fn func(Settings)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}
