// Package mcp declares the repository-inspection tool gateway the drafting
// agent may use, and provides a scoped stdio session for agents that drive
// the gateway in-process.
package mcp

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"postdraft/internal/config"
)

// Secret holds a credential. It formats as a redaction marker everywhere
// except Reveal, so it can sit inside structs that get logged.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalJSON never emits the secret value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Reveal returns the raw credential. Only process launch code should call it.
func (s Secret) Reveal() string {
	return string(s)
}

// GatewaySpec is the declaration of the tool provider connection the agent
// is permitted to use: how to launch it, with which credential, and which
// of its operations may be invoked.
type GatewaySpec struct {
	ServerName    string
	Command       string
	Args          []string
	CredentialEnv string
	TokenEnv      string
	Credential    Secret
	AllowedTools  []string
}

// BuildGatewayDeclaration assembles the gateway declaration from config and
// the resolved repository token. A missing token is a configuration error.
func BuildGatewayDeclaration(cfg config.GatewayConfig, token string) (*GatewaySpec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &config.ConfigError{
			Field: "gateway",
			Msg:   cfg.CredentialEnv + " is required to reach the repository tool provider",
		}
	}

	args := make([]string, len(cfg.Args))
	copy(args, cfg.Args)
	allowed := make([]string, len(cfg.AllowedTools))
	copy(allowed, cfg.AllowedTools)

	return &GatewaySpec{
		ServerName:    cfg.ServerName,
		Command:       cfg.Command,
		Args:          args,
		CredentialEnv: cfg.CredentialEnv,
		TokenEnv:      cfg.TokenEnv,
		Credential:    Secret(token),
		AllowedTools:  allowed,
	}, nil
}

// qualifiedPrefix is how MCP-hosting agents namespace server tools.
func (g *GatewaySpec) qualifiedPrefix() string {
	return "mcp__" + g.ServerName + "__"
}

// Allows reports whether the agent may invoke the named operation. Both
// bare names ("list_releases") and server-qualified names
// ("mcp__github__list_releases") are accepted; anything from another server
// is rejected.
func (g *GatewaySpec) Allows(tool string) bool {
	name := tool
	if strings.HasPrefix(tool, "mcp__") {
		if !strings.HasPrefix(tool, g.qualifiedPrefix()) {
			return false
		}
		name = strings.TrimPrefix(tool, g.qualifiedPrefix())
	}
	if name == "" {
		return false
	}
	for _, pattern := range g.AllowedTools {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// QualifiedToolNames returns the allowlist in mcp__<server>__<tool> form.
func (g *GatewaySpec) QualifiedToolNames() []string {
	names := make([]string, len(g.AllowedTools))
	for i, pattern := range g.AllowedTools {
		names[i] = g.qualifiedPrefix() + pattern
	}
	return names
}

// serverConfig is one entry of an MCP config file's mcpServers map.
type serverConfig struct {
	Type    string            `json:"type"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// mcpConfig is the mcpServers document understood by MCP-hosting agents.
type mcpConfig struct {
	MCPServers map[string]serverConfig `json:"mcpServers"`
}

// MCPConfigJSON renders the declaration as an mcpServers document. The token
// is referenced through ${CredentialEnv} and expanded by the host, so the
// secret never appears in the document or on a command line.
func (g *GatewaySpec) MCPConfigJSON() ([]byte, error) {
	doc := mcpConfig{
		MCPServers: map[string]serverConfig{
			g.ServerName: {
				Type:    "stdio",
				Command: g.Command,
				Args:    g.Args,
				Env: map[string]string{
					g.TokenEnv: "${" + g.CredentialEnv + "}",
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MCP config: %w", err)
	}
	return data, nil
}

// PassthroughEnv is the environment an MCP host needs so the ${...}
// reference in MCPConfigJSON resolves.
func (g *GatewaySpec) PassthroughEnv() []string {
	return []string{g.CredentialEnv + "=" + g.Credential.Reveal()}
}

// LaunchEnv is the extra environment for spawning the provider directly.
func (g *GatewaySpec) LaunchEnv() []string {
	return []string{g.TokenEnv + "=" + g.Credential.Reveal()}
}

// String describes the gateway without its credential.
func (g *GatewaySpec) String() string {
	return fmt.Sprintf("%s (%s %s) allow=[%s]", g.ServerName, g.Command,
		strings.Join(g.Args, " "), strings.Join(g.AllowedTools, ", "))
}
