package config

import "strings"

// Credentials are the two secrets a drafting run needs. They are read from
// the environment only and never written to config files or prompts.
type Credentials struct {
	GitHubToken string
	AgentKey    string
}

// ResolveCredentials reads the GitHub token and the agent credential. Both
// must be present; the error names the variables to set.
func (c *Config) ResolveCredentials(getenv func(string) string) (*Credentials, error) {
	token := strings.TrimSpace(getenv(c.Gateway.CredentialEnv))
	if token == "" {
		return nil, configErrorf("gateway", "%s is required to reach the repository tool provider", c.Gateway.CredentialEnv)
	}

	key, err := c.Agent.ResolveCredential(getenv)
	if err != nil {
		return nil, err
	}

	return &Credentials{GitHubToken: token, AgentKey: key}, nil
}

// String keeps the secrets out of logs and error messages.
func (c Credentials) String() string {
	return "Credentials{GitHubToken:[REDACTED] AgentKey:[REDACTED]}"
}
