package config

import (
	"path"
	"strings"
)

// GatewayConfig declares the repository-inspection tool provider the agent
// may reach. The provider is the GitHub MCP server; it is launched by the
// agent runtime, never by postdraft's configuration code.
type GatewayConfig struct {
	// ServerName is the MCP server key; tool names are qualified as
	// mcp__<server_name>__<tool>
	ServerName string `yaml:"server_name"`

	// Command and Args start the provider speaking MCP over stdio
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// CredentialEnv is where postdraft reads the GitHub token from
	CredentialEnv string `yaml:"credential_env"`

	// TokenEnv is the variable the provider process expects the token in
	TokenEnv string `yaml:"token_env"`

	// AllowedTools are glob patterns of provider operations the agent may call
	AllowedTools []string `yaml:"allowed_tools"`
}

// DefaultGatewayConfig returns the GitHub MCP server launched through docker,
// restricted to listing pull requests and releases.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ServerName: "github",
		Command:    "docker",
		Args: []string{
			"run", "-i", "--rm",
			"-e", "GITHUB_PERSONAL_ACCESS_TOKEN",
			"-e", "GITHUB_READ_ONLY=1",
			"ghcr.io/github/github-mcp-server",
			"stdio",
		},
		CredentialEnv: "GITHUB_TOKEN",
		TokenEnv:      "GITHUB_PERSONAL_ACCESS_TOKEN",
		AllowedTools: []string{
			"list_pull_requests",
			"list_releases",
		},
	}
}

// Validate checks the gateway declaration is complete and its allowlist
// patterns are well formed.
func (g *GatewayConfig) Validate() error {
	if strings.TrimSpace(g.ServerName) == "" {
		return configErrorf("gateway.server_name", "must not be empty")
	}
	if strings.Contains(g.ServerName, "__") {
		return configErrorf("gateway.server_name", "%q must not contain \"__\"", g.ServerName)
	}
	if strings.TrimSpace(g.Command) == "" {
		return configErrorf("gateway.command", "must not be empty")
	}
	if g.CredentialEnv == "" {
		return configErrorf("gateway.credential_env", "must not be empty")
	}
	if g.TokenEnv == "" {
		return configErrorf("gateway.token_env", "must not be empty")
	}
	if len(g.AllowedTools) == 0 {
		return configErrorf("gateway.allowed_tools", "at least one tool pattern is required")
	}
	for _, pattern := range g.AllowedTools {
		if strings.TrimSpace(pattern) == "" {
			return configErrorf("gateway.allowed_tools", "empty pattern")
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return &ConfigError{Field: "gateway.allowed_tools", Msg: "bad pattern " + pattern, Err: err}
		}
	}
	return nil
}
