package config

import "strings"

// Agent backends.
const (
	BackendClaudeCLI = "claude-cli"
	BackendGemini    = "gemini"
)

// ValidBackends lists all supported agent backends.
var ValidBackends = []string{BackendClaudeCLI, BackendGemini}

// AgentConfig configures the generative agent that drafts the posts.
//
// The claude-cli backend runs the Claude Code CLI as a subprocess and lets it
// host the tool gateway. The gemini backend calls the Gemini API directly and
// drives the gateway in-process.
type AgentConfig struct {
	// Backend: "claude-cli" (default) or "gemini"
	Backend string `yaml:"backend"`

	// Model alias or name; empty picks the backend default
	// ("sonnet" for claude-cli, "gemini-2.5-flash" for gemini)
	Model string `yaml:"model"`

	// MaxTurns bounds agentic turns, tool calls included
	MaxTurns int `yaml:"max_turns"`

	// ClaudeBinary is the claude executable name or path
	ClaudeBinary string `yaml:"claude_binary"`
}

// DefaultAgentConfig returns the default agent settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Backend:      BackendClaudeCLI,
		MaxTurns:     25,
		ClaudeBinary: "claude",
	}
}

// Validate checks the backend name and turn limit.
func (a *AgentConfig) Validate() error {
	valid := false
	for _, b := range ValidBackends {
		if a.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return configErrorf("agent.backend", "invalid backend %q (valid: %s)", a.Backend, strings.Join(ValidBackends, ", "))
	}
	if a.MaxTurns <= 0 {
		return configErrorf("agent.max_turns", "must be positive, got %d", a.MaxTurns)
	}
	return nil
}

// CredentialEnv returns the environment variables, in priority order, that
// may hold the agent's API credential.
func (a *AgentConfig) CredentialEnv() []string {
	switch a.Backend {
	case BackendGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return []string{"ANTHROPIC_API_KEY"}
	}
}

// ResolveCredential returns the first non-empty agent credential.
func (a *AgentConfig) ResolveCredential(getenv func(string) string) (string, error) {
	names := a.CredentialEnv()
	for _, name := range names {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", configErrorf("agent", "%s is required for the %s backend", strings.Join(names, " or "), a.Backend)
}
