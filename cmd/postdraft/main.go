// Command postdraft drafts social-media posts about an organization's recent
// GitHub activity. The draft is printed to stdout (or written to --output);
// everything else goes to stderr.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"postdraft/internal/config"
	"postdraft/internal/drafting"
	"postdraft/internal/output"
	"postdraft/internal/perception"
)

// Exit codes.
const (
	exitOK       = 0
	exitOther    = 1
	exitConfig   = 2
	exitDrafting = 3
	exitWrite    = 4
)

// app carries the process boundary so tests can replace it.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	getenv   func(string) string
	now      func() time.Time
	newAgent func(cfg config.AgentConfig, apiKey string, logger *zap.Logger) (perception.Agent, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		getenv:   os.Getenv,
		now:      time.Now,
		newAgent: perception.NewAgent,
	}
}

func main() {
	os.Exit(newApp(os.Stdout, os.Stderr).execute(os.Args[1:]))
}

// execute runs the CLI and maps the outcome to an exit code. SIGINT and
// SIGTERM cancel the run, which tears down the agent before exiting.
func (a *app) execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		newStyles(a.stderr).printError(a.stderr, err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var (
		draftErr *drafting.DraftingError
		writeErr *output.WriteError
		cfgErr   *config.ConfigError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &draftErr):
		return exitDrafting
	case errors.As(err, &writeErr):
		return exitWrite
	case errors.As(err, &cfgErr):
		return exitConfig
	default:
		return exitOther
	}
}
