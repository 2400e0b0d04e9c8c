package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, "weekly", reg.DefaultFrequency())
	assert.Len(t, reg.AllProducts(), 5)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Setenv("POSTDRAFT_AGENT", "")
	t.Setenv("POSTDRAFT_MODEL", "")
	t.Setenv("POSTDRAFT_CLAUDE_BIN", "")
	t.Setenv("POSTDRAFT_LOG_LEVEL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_ProductsReplaceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postdraft.yaml")
	data := `
organization: Acme
frequencies:
  daily: 1
  monthly: 30
default_frequency: daily
products:
  - name: Core
    repositories:
      - org/core-repo
agent:
  model: opus
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Acme", cfg.Organization)
	assert.Equal(t, map[string]int{"daily": 1, "monthly": 30}, cfg.Frequencies)
	require.Len(t, cfg.Products, 1)
	assert.Equal(t, "Core", cfg.Products[0].Name)

	// Unset sections keep their defaults.
	assert.Equal(t, "opus", cfg.Agent.Model)
	assert.Equal(t, BackendClaudeCLI, cfg.Agent.Backend)
	assert.Equal(t, 280, cfg.Posts.MaxChars)
	assert.Equal(t, "github", cfg.Gateway.ServerName)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products: [unterminated"), 0644))

	_, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "postdraft.yaml")
	cfg := DefaultConfig()
	cfg.Organization = "Saved"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved", loaded.Organization)
	assert.Equal(t, cfg.Products, loaded.Products)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POSTDRAFT_AGENT", "gemini")
	t.Setenv("POSTDRAFT_MODEL", "gemini-2.5-pro")
	t.Setenv("POSTDRAFT_CLAUDE_BIN", "/opt/claude")
	t.Setenv("POSTDRAFT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, BackendGemini, cfg.Agent.Backend)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent.Model)
	assert.Equal(t, "/opt/claude", cfg.Agent.ClaudeBinary)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty organization", func(c *Config) { c.Organization = " " }, "organization"},
		{"zero max chars", func(c *Config) { c.Posts.MaxChars = 0 }, "posts.max_chars"},
		{"zero thread posts", func(c *Config) { c.Posts.MaxThreadPosts = 0 }, "posts.max_thread_posts"},
		{"bad backend", func(c *Config) { c.Agent.Backend = "gpt" }, "agent.backend"},
		{"zero turns", func(c *Config) { c.Agent.MaxTurns = 0 }, "agent.max_turns"},
		{"no gateway command", func(c *Config) { c.Gateway.Command = "" }, "gateway.command"},
		{"no allowed tools", func(c *Config) { c.Gateway.AllowedTools = nil }, "gateway.allowed_tools"},
		{"bad tool pattern", func(c *Config) { c.Gateway.AllowedTools = []string{"list_["} }, "gateway.allowed_tools"},
		{"server name with separator", func(c *Config) { c.Gateway.ServerName = "git__hub" }, "gateway.server_name"},
		{"unknown default frequency", func(c *Config) { c.DefaultFrequency = "hourly" }, "default_frequency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestResolveCredentials(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	t.Run("both present", func(t *testing.T) {
		cfg := DefaultConfig()
		creds, err := cfg.ResolveCredentials(env(map[string]string{
			"GITHUB_TOKEN":      "ghp_secret",
			"ANTHROPIC_API_KEY": "sk-ant",
		}))
		require.NoError(t, err)
		assert.Equal(t, "ghp_secret", creds.GitHubToken)
		assert.Equal(t, "sk-ant", creds.AgentKey)
		assert.NotContains(t, creds.String(), "ghp_secret")
		assert.NotContains(t, creds.String(), "sk-ant")
	})

	t.Run("missing github token", func(t *testing.T) {
		cfg := DefaultConfig()
		_, err := cfg.ResolveCredentials(env(map[string]string{"ANTHROPIC_API_KEY": "sk-ant"}))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	})

	t.Run("missing agent key", func(t *testing.T) {
		cfg := DefaultConfig()
		_, err := cfg.ResolveCredentials(env(map[string]string{"GITHUB_TOKEN": "ghp"}))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	})

	t.Run("gemini falls back to GOOGLE_API_KEY", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.Backend = BackendGemini
		creds, err := cfg.ResolveCredentials(env(map[string]string{
			"GITHUB_TOKEN":   "ghp",
			"GOOGLE_API_KEY": "g-key",
		}))
		require.NoError(t, err)
		assert.Equal(t, "g-key", creds.AgentKey)
	})

	t.Run("whitespace-only token is missing", func(t *testing.T) {
		cfg := DefaultConfig()
		_, err := cfg.ResolveCredentials(env(map[string]string{
			"GITHUB_TOKEN":      "   ",
			"ANTHROPIC_API_KEY": "sk-ant",
		}))
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "configuration error"))
	})
}
