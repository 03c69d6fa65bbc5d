package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagechat/internal/store"
)

func TestDefaultValidates(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, "openai", s.Provider)
	assert.Equal(t, 2000, s.MaxTokens)
	assert.Equal(t, 15000, s.ContentLimit)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"provider: openrouter\nopenrouter_key: sk-test\nmax_tokens: 512\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", s.Provider)
	assert.Equal(t, "sk-test", s.OpenRouterKey)
	assert.Equal(t, 512, s.MaxTokens)
	// untouched fields keep their defaults
	assert.Equal(t, 0.7, s.Temperature)
	assert.Equal(t, "openai/gpt-4o-mini", s.OpenRouterModel)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown provider", func(s *Settings) { s.Provider = "anthropic" }},
		{"zero max tokens", func(s *Settings) { s.MaxTokens = 0 }},
		{"temperature too high", func(s *Settings) { s.Temperature = 3 }},
		{"content limit too small", func(s *Settings) { s.ContentLimit = 10 }},
		{"negative history window", func(s *Settings) { s.HistoryWindow = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestActiveKeyAndModelFollowProvider(t *testing.T) {
	s := Default()
	s.OpenAIKey = "sk-openai"
	s.OpenRouterKey = "sk-or"

	assert.Equal(t, "sk-openai", s.ActiveKey())
	assert.Equal(t, "gpt-4o-mini", s.ActiveModel())

	s.Provider = "openrouter"
	assert.Equal(t, "sk-or", s.ActiveKey())
	assert.Equal(t, "openai/gpt-4o-mini", s.ActiveModel())
}

func TestResolverPersistedWinsOverBase(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	r := NewResolver(Default(), db)
	assert.Equal(t, Default(), r.Resolve(ctx), "nothing persisted yet")

	saved := Default()
	saved.OpenAIKey = "sk-saved"
	saved.MaxTokens = 1024
	require.NoError(t, r.Save(ctx, saved))

	got := r.Resolve(ctx)
	assert.Equal(t, "sk-saved", got.OpenAIKey)
	assert.Equal(t, 1024, got.MaxTokens)
}

func TestResolverSaveRejectsInvalid(t *testing.T) {
	r := NewResolver(Default(), nil)
	bad := Default()
	bad.Provider = "nope"
	assert.Error(t, r.Save(context.Background(), bad))
}

func TestResolverNotifiesOnChange(t *testing.T) {
	r := NewResolver(Default(), nil)

	var seen []Settings
	r.OnChange(func(s Settings) { seen = append(seen, s) })

	next := Default()
	next.Stream = false
	require.NoError(t, r.Save(context.Background(), next))

	require.Len(t, seen, 1)
	assert.False(t, seen[0].Stream)
	assert.False(t, r.Resolve(context.Background()).Stream, "nil-db resolver serves saved value")
}
