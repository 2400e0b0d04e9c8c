package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all postdraft configuration.
type Config struct {
	// Organization whose activity is being posted about
	Organization string `yaml:"organization"`

	// Product registry
	DefaultFrequency string          `yaml:"default_frequency"`
	Frequencies      map[string]int  `yaml:"frequencies"`
	Products         []ProductConfig `yaml:"products"`

	// Post shape limits handed to the agent
	Posts PostsConfig `yaml:"posts"`

	// Agent backend
	Agent AgentConfig `yaml:"agent"`

	// Repository-inspection tool gateway
	Gateway GatewayConfig `yaml:"gateway"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ProductConfig is one product and its owner/name repository slugs.
type ProductConfig struct {
	Name         string   `yaml:"name"`
	Repositories []string `yaml:"repositories"`
}

// PostsConfig bounds the shape of drafted posts.
type PostsConfig struct {
	MaxChars       int `yaml:"max_chars"`
	MaxThreadPosts int `yaml:"max_thread_posts"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Organization:     "OpenGradient",
		DefaultFrequency: "weekly",
		Frequencies: map[string]int{
			"daily":  1,
			"weekly": 7,
		},
		Products: []ProductConfig{
			{Name: "OpenGradient Blockchain", Repositories: []string{
				"OpenGradient/og-evm",
			}},
			{Name: "OpenGradient SDK", Repositories: []string{
				"OpenGradient/OpenGradient-SDK",
			}},
			{Name: "OpenGradient Verifiable Inference", Repositories: []string{
				"OpenGradient/x402",
				"OpenGradient/tee-gateway",
				"OpenGradient/llm-server",
				"OpenGradient/inference-facilitator",
			}},
			{Name: "OpenGradient MemSync", Repositories: []string{
				"OpenGradient/memsync",
				"OpenGradient/mem-chat-api",
			}},
			{Name: "BitQuant", Repositories: []string{
				"OpenGradient/bitquant",
				"OpenGradient/bitquant-app",
			}},
		},

		Posts: PostsConfig{
			MaxChars:       280,
			MaxThreadPosts: 3,
		},

		Agent:   DefaultAgentConfig(),
		Gateway: DefaultGatewayConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file layered over the defaults.
// An empty path returns the defaults. Environment overrides are applied
// in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &ConfigError{Field: "config", Msg: fmt.Sprintf("config file %s not found", path), Err: err}
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		// A user file that names products replaces the default product list
		// wholesale rather than merging into it.
		var probe struct {
			Products    []ProductConfig `yaml:"products"`
			Frequencies map[string]int  `yaml:"frequencies"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, &ConfigError{Field: "config", Msg: "failed to parse " + filepath.Base(path), Err: err}
		}
		if probe.Products != nil {
			cfg.Products = nil
		}
		if probe.Frequencies != nil {
			cfg.Frequencies = nil
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: "config", Msg: "failed to parse " + filepath.Base(path), Err: err}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if backend := os.Getenv("POSTDRAFT_AGENT"); backend != "" {
		c.Agent.Backend = backend
	}
	if model := os.Getenv("POSTDRAFT_MODEL"); model != "" {
		c.Agent.Model = model
	}
	if bin := os.Getenv("POSTDRAFT_CLAUDE_BIN"); bin != "" {
		c.Agent.ClaudeBinary = bin
	}
	if level := os.Getenv("POSTDRAFT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Registry builds the immutable product registry from this configuration.
func (c *Config) Registry() (*Registry, error) {
	return NewRegistry(c.Products, c.Frequencies, c.DefaultFrequency)
}

// Validate validates the configuration. Credentials are checked separately
// by ResolveCredentials since they come from the environment.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Organization) == "" {
		return configErrorf("organization", "must not be empty")
	}
	if c.Posts.MaxChars <= 0 {
		return configErrorf("posts.max_chars", "must be positive, got %d", c.Posts.MaxChars)
	}
	if c.Posts.MaxThreadPosts <= 0 {
		return configErrorf("posts.max_thread_posts", "must be positive, got %d", c.Posts.MaxThreadPosts)
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}
