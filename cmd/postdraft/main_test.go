package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postdraft/internal/config"
	"postdraft/internal/drafting"
	"postdraft/internal/output"
	"postdraft/internal/perception"
	"postdraft/internal/types"
)

const coreConfig = `organization: OpenGradient
default_frequency: weekly
frequencies:
  daily: 1
  weekly: 7
products:
  - name: Core
    repositories:
      - OpenGradient/core
`

type stubAgent struct {
	frags    []types.Fragment
	finalErr error
	queries  []perception.Query
}

func (s *stubAgent) Name() string { return "stub" }

func (s *stubAgent) Query(ctx context.Context, q perception.Query) perception.Stream {
	s.queries = append(s.queries, q)
	return perception.FromFragments(s.finalErr, s.frags...)
}

type harness struct {
	app      *app
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	agent    *stubAgent
	launches int
	env      map[string]string
	agentCfg config.AgentConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{"POSTDRAFT_AGENT", "POSTDRAFT_MODEL", "POSTDRAFT_CLAUDE_BIN", "POSTDRAFT_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	h := &harness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		agent:  &stubAgent{frags: []types.Fragment{types.TextFragment("Core: shipped feature X.")}},
		env: map[string]string{
			"GITHUB_TOKEN":      "ghp_test",
			"ANTHROPIC_API_KEY": "sk-ant-test",
		},
	}
	h.app = newApp(h.stdout, h.stderr)
	h.app.getenv = func(k string) string { return h.env[k] }
	h.app.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	h.app.newAgent = func(cfg config.AgentConfig, apiKey string, logger *zap.Logger) (perception.Agent, error) {
		h.launches++
		h.agentCfg = cfg
		return h.agent, nil
	}
	return h
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postdraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDraft_EndToEnd(t *testing.T) {
	h := newHarness(t)
	cfgPath := writeConfig(t, coreConfig)

	code := h.app.execute([]string{"--config", cfgPath, "--frequency", "daily"})

	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Equal(t, "Core: shipped feature X.\n", h.stdout.String())
	assert.Equal(t, 1, h.launches)

	require.Len(t, h.agent.queries, 1)
	q := h.agent.queries[0]
	assert.Contains(t, q.User, "OpenGradient/core")
	assert.Contains(t, q.User, "2026-10-18")
	require.NotNil(t, q.Gateway)
	assert.Equal(t, "ghp_test", q.Gateway.Credential.Reveal())
	assert.NotContains(t, q.User, "ghp_test")
	assert.NotContains(t, q.System, "ghp_test")
	assert.NotContains(t, h.stderr.String(), "ghp_test")
	assert.NotContains(t, h.stderr.String(), "sk-ant-test")
}

func TestDraft_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantMsg string
	}{
		{"github token", "GITHUB_TOKEN", "GITHUB_TOKEN"},
		{"agent key", "ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			delete(h.env, tt.unset)

			code := h.app.execute([]string{"--frequency", "daily"})

			assert.Equal(t, exitConfig, code)
			assert.Equal(t, 0, h.launches, "no agent is launched without credentials")
			assert.Empty(t, h.stdout.String())
			assert.Contains(t, h.stderr.String(), "Error:")
			assert.Contains(t, h.stderr.String(), tt.wantMsg)
			assert.Contains(t, h.stderr.String(), "hint: Export GITHUB_TOKEN")
		})
	}
}

func TestDraft_FlagOverrides(t *testing.T) {
	h := newHarness(t)
	h.env["GEMINI_API_KEY"] = "gem-test"

	code := h.app.execute([]string{"--agent", "gemini", "--model", "gemini-2.5-pro", "--max-turns", "4", "--lookback-days", "3"})

	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Equal(t, config.BackendGemini, h.agentCfg.Backend)
	assert.Equal(t, "gemini-2.5-pro", h.agentCfg.Model)
	assert.Equal(t, 4, h.agentCfg.MaxTurns)
	assert.Contains(t, h.agent.queries[0].User, "lookback: 3 days")
}

func TestDraft_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown frequency", []string{"--frequency", "hourly"}},
		{"negative lookback", []string{"--lookback-days", "-2"}},
		{"unknown agent", []string{"--agent", "gpt"}},
		{"missing config file", []string{"--config", "/nonexistent/postdraft.yaml"}},
		{"bad flag", []string{"--no-such-flag"}},
		{"bad log format", []string{"--log-format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code := h.app.execute(tt.args)
			assert.Equal(t, exitConfig, code, h.stderr.String())
			assert.Equal(t, 0, h.launches)
		})
	}
}

func TestDraft_AgentFailure(t *testing.T) {
	h := newHarness(t)
	h.agent.frags = []types.Fragment{types.TextFragment("Core: ")}
	h.agent.finalErr = errors.New("stream broke")
	outPath := filepath.Join(t.TempDir(), "posts.txt")

	code := h.app.execute([]string{"--output", outPath})

	assert.Equal(t, exitDrafting, code)
	assert.Contains(t, h.stderr.String(), "stream broke")
	assert.Empty(t, h.stdout.String())
	_, err := os.Stat(outPath)
	assert.True(t, os.IsNotExist(err), "sink is never invoked on failure")
}

func TestDraft_AgentConstructionFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"client build error", errors.New("genai: failed to build client"), exitDrafting},
		{"invalid backend", &config.ConfigError{Field: "agent.backend", Msg: "invalid backend"}, exitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.app.newAgent = func(cfg config.AgentConfig, apiKey string, logger *zap.Logger) (perception.Agent, error) {
				return nil, tt.err
			}

			code := h.app.execute([]string{})

			assert.Equal(t, tt.want, code, h.stderr.String())
			assert.Empty(t, h.stdout.String())
			assert.Contains(t, h.stderr.String(), "Error:")
		})
	}
}

func TestDraft_WritesFile(t *testing.T) {
	h := newHarness(t)
	outPath := filepath.Join(t.TempDir(), "posts.txt")

	code := h.app.execute([]string{"-o", outPath})

	require.Equal(t, exitOK, code, h.stderr.String())
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "Core: shipped feature X.", string(data), "file output carries the draft text verbatim")
	assert.Empty(t, h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Draft written to")
}

func TestDraft_UnwritableOutput(t *testing.T) {
	h := newHarness(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	code := h.app.execute([]string{"--output", filepath.Join(blocker, "posts.txt")})

	assert.Equal(t, exitWrite, code)
}

func TestDraft_DryRun(t *testing.T) {
	h := newHarness(t)
	h.env = map[string]string{}

	code := h.app.execute([]string{"--dry-run", "--frequency", "daily"})

	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Equal(t, 0, h.launches)
	out := h.stdout.String()
	assert.Contains(t, out, "=== SYSTEM PROMPT ===")
	assert.Contains(t, out, "=== USER PROMPT ===")
	assert.Contains(t, out, "lookback: 1 day")
}

func TestProductsCmd(t *testing.T) {
	h := newHarness(t)
	cfgPath := writeConfig(t, coreConfig)

	code := h.app.execute([]string{"products", "--config", cfgPath})

	require.Equal(t, exitOK, code, h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "Core")
	assert.Contains(t, out, "  OpenGradient/core")
	assert.Contains(t, out, "daily")
	assert.Contains(t, out, "7 days")
	assert.Contains(t, out, "(default)")
}

func TestInitConfigCmd(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "conf", "postdraft.yaml")

	require.Equal(t, exitOK, h.app.execute([]string{"init-config", path}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Products, cfg.Products)

	assert.Equal(t, exitConfig, h.app.execute([]string{"init-config", path}), "refuses to overwrite")
	assert.Equal(t, exitOK, h.app.execute([]string{"init-config", "--force", path}))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&config.ConfigError{Field: "x", Msg: "y"}, exitConfig},
		{&drafting.DraftingError{Stage: drafting.StageStream, Cause: errors.New("z")}, exitDrafting},
		{&output.WriteError{Op: "write", Err: errors.New("z")}, exitWrite},
		{errors.New("other"), exitOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err))
	}
}
