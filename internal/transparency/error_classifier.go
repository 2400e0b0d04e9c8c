// Package transparency turns run failures into guidance an operator can act
// on: a category, a one-line summary and concrete next steps.
package transparency

import (
	"context"
	"errors"
	"strings"

	"postdraft/internal/config"
	"postdraft/internal/output"
	"postdraft/internal/perception"
)

// ErrorCategory classifies errors for user guidance.
type ErrorCategory int

const (
	// ErrorCategoryConfig indicates a configuration or flag issue.
	ErrorCategoryConfig ErrorCategory = iota

	// ErrorCategoryCredentials indicates a missing token or API key.
	ErrorCategoryCredentials

	// ErrorCategoryAPI indicates an agent provider error.
	ErrorCategoryAPI

	// ErrorCategoryToolProvider indicates the GitHub tool gateway failed.
	ErrorCategoryToolProvider

	// ErrorCategoryFilesystem indicates the draft could not be written.
	ErrorCategoryFilesystem

	// ErrorCategoryCanceled indicates the run was interrupted.
	ErrorCategoryCanceled

	// ErrorCategoryUnknown is the fallback for unclassified errors.
	ErrorCategoryUnknown
)

// String returns the category name.
func (c ErrorCategory) String() string {
	names := []string{
		"config",
		"credentials",
		"api",
		"tool_provider",
		"filesystem",
		"canceled",
		"unknown",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// ClassifiedError wraps an error with classification and remediation.
type ClassifiedError struct {
	Original    error
	Category    ErrorCategory
	Summary     string
	Remediation []string
}

// Error returns the original message.
func (ce *ClassifiedError) Error() string {
	return ce.Original.Error()
}

// Unwrap returns the original error for errors.Is/As compatibility.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// ClassifyError analyzes an error and returns a classified version. Typed
// errors decide the category; the message is only consulted for failures
// reported as text by the agent or its subprocesses.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{
		Original: err,
		Category: ErrorCategoryUnknown,
		Summary:  "An unexpected error occurred",
	}

	var (
		cfgErr   *config.ConfigError
		rateErr  *perception.RateLimitError
		writeErr *output.WriteError
	)
	errStr := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.Canceled):
		classified.Category = ErrorCategoryCanceled
		classified.Summary = "The run was interrupted before the draft was complete"

	case errors.Is(err, context.DeadlineExceeded):
		classified.Category = ErrorCategoryCanceled
		classified.Summary = "The run timed out"
		classified.Remediation = []string{
			"Reduce --lookback-days or the number of configured products",
		}

	case errors.As(err, &cfgErr) && (cfgErr.Field == "gateway" || cfgErr.Field == "agent") &&
		strings.Contains(cfgErr.Msg, "required"):
		classified.Category = ErrorCategoryCredentials
		classified.Summary = "A required credential is not set"
		classified.Remediation = []string{
			"Export GITHUB_TOKEN with a token that can read the configured repositories",
			"Export ANTHROPIC_API_KEY for --agent claude-cli, or GEMINI_API_KEY for --agent gemini",
		}

	case errors.As(err, &cfgErr):
		classified.Category = ErrorCategoryConfig
		classified.Summary = "Configuration issue detected"
		classified.Remediation = []string{
			"Run `postdraft products` to see the known frequencies and products",
			"Run `postdraft init-config` to write an editable config file",
		}

	case errors.As(err, &rateErr):
		classified.Category = ErrorCategoryAPI
		classified.Summary = "The agent provider rate limited this run"
		classified.Remediation = []string{
			"Wait a few minutes and rerun",
			"Try the other backend with --agent",
		}

	case errors.As(err, &writeErr):
		classified.Category = ErrorCategoryFilesystem
		classified.Summary = "The draft could not be written"
		classified.Remediation = []string{
			"Check the --output directory exists and is writable",
			"Omit --output to print the draft to stdout",
		}

	case containsAny(errStr, "tool provider", "mcp"):
		classified.Category = ErrorCategoryToolProvider
		classified.Summary = "The GitHub tool gateway could not be reached"
		classified.Remediation = []string{
			"Check docker is running and can pull ghcr.io/github/github-mcp-server",
			"Verify GITHUB_TOKEN is valid",
		}

	case containsAny(errStr, "executable file not found", "failed to start claude"):
		classified.Category = ErrorCategoryAPI
		classified.Summary = "The agent CLI could not be started"
		classified.Remediation = []string{
			"Install the claude CLI or point POSTDRAFT_CLAUDE_BIN at it",
			"Or use --agent gemini",
		}

	case containsAny(errStr, "api key", "unauthorized", "401", "403", "authentication"):
		classified.Category = ErrorCategoryAPI
		classified.Summary = "The agent provider rejected the credential"
		classified.Remediation = []string{
			"Check the agent API key is valid and has quota",
		}
	}

	return classified
}

// containsAny returns true if s contains any of the patterns.
func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
