package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"postdraft/internal/config"
	"postdraft/internal/drafting"
	"postdraft/internal/logging"
	"postdraft/internal/mcp"
	"postdraft/internal/output"
	"postdraft/internal/prompt"
	"postdraft/internal/types"
	"postdraft/internal/usage"
)

// options are the root command's flags.
type options struct {
	frequency    string
	lookbackDays int
	outputPath   string
	configPath   string
	agent        string
	model        string
	maxTurns     int
	dryRun       bool
	verbose      bool
	logFormat    string
}

func (a *app) newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "postdraft",
		Short: "Draft social posts from recent GitHub activity",
		Long: `postdraft asks a generative agent to review merged pull requests and
releases across the configured products and draft short posts about them.

The agent reaches GitHub only through a read-only tool gateway limited to
listing pull requests and releases. The draft is printed to stdout, or
written atomically to --output.

Environment:
  GITHUB_TOKEN                    token for the GitHub tool gateway
  ANTHROPIC_API_KEY               credential for --agent claude-cli
  GEMINI_API_KEY, GOOGLE_API_KEY  credential for --agent gemini`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDraft(cmd.Context(), opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config (default: built-in registry)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&opts.logFormat, "log-format", "", "log encoding: console or json")

	f := cmd.Flags()
	f.StringVar(&opts.frequency, "frequency", "", "lookback window label, e.g. daily or weekly (default from config)")
	f.IntVar(&opts.lookbackDays, "lookback-days", 0, "explicit lookback in days; overrides --frequency when > 0")
	f.StringVarP(&opts.outputPath, "output", "o", "", "write the draft to this file instead of stdout")
	f.StringVar(&opts.agent, "agent", "", "agent backend: claude-cli or gemini")
	f.StringVar(&opts.model, "model", "", "model name passed to the agent backend")
	f.IntVar(&opts.maxTurns, "max-turns", 0, "maximum agent turns (default from config)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the prompts instead of querying the agent")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &config.ConfigError{Field: "flags", Msg: err.Error()}
	})

	cmd.AddCommand(a.newProductsCmd(opts))
	cmd.AddCommand(a.newInitConfigCmd())
	return cmd
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then environment overrides, then flags.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.agent != "" {
		cfg.Agent.Backend = opts.agent
	}
	if opts.model != "" {
		cfg.Agent.Model = opts.model
	}
	if opts.maxTurns != 0 {
		cfg.Agent.MaxTurns = opts.maxTurns
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) newLogger(cfg *config.Config, opts *options) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: opts.verbose,
		Output:  a.stderr,
	})
	if err != nil {
		return nil, &config.ConfigError{Field: "logging", Msg: err.Error()}
	}
	return logger, nil
}

func (a *app) runDraft(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	boot := logging.For(logger, logging.CategoryBoot)

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	window, err := registry.LookupWindow(opts.frequency, opts.lookbackDays)
	if err != nil {
		return err
	}
	req := types.DraftRequest{
		Window:   window,
		Products: registry.AllProducts(),
		Now:      a.now(),
	}

	builder := prompt.NewBuilder(
		prompt.WithOrganization(cfg.Organization),
		prompt.WithPostLimits(cfg.Posts.MaxChars, cfg.Posts.MaxThreadPosts),
	)

	st := newStyles(a.stderr)
	if opts.dryRun {
		return a.printPrompts(builder, req)
	}

	creds, err := cfg.ResolveCredentials(a.getenv)
	if err != nil {
		return err
	}
	gateway, err := mcp.BuildGatewayDeclaration(cfg.Gateway, creds.GitHubToken)
	if err != nil {
		return err
	}
	boot.Info("Configuration resolved",
		zap.String("agent", cfg.Agent.Backend),
		zap.String("frequency", window.Frequency),
		zap.Int("days", window.Days),
		zap.Int("products", len(req.Products)),
		zap.Stringer("gateway", gateway))

	agent, err := a.newAgent(cfg.Agent, creds.AgentKey, logging.For(logger, logging.CategoryAPI))
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return &drafting.DraftingError{Stage: drafting.StageConnect, Cause: fmt.Errorf("failed to create agent: %w", err)}
	}

	st.printStatus(a.stderr, "Drafting %s posts (%s) for %d products with %s...",
		window.Frequency, pluralDays(window.Days), len(req.Products), agent.Name())

	tracker := usage.NewTracker()
	ctx = usage.NewContext(ctx, tracker)

	orch := drafting.New(agent, builder, logging.For(logger, logging.CategoryDrafting))
	result, err := orch.Draft(ctx, req, gateway)
	if err != nil {
		return err
	}
	if stats := tracker.Stats(); stats.Queries > 0 {
		logging.For(logger, logging.CategoryAPI).Info("Agent usage",
			zap.Int("turns", stats.Turns),
			zap.Int64("input_tokens", stats.Total.Input),
			zap.Int64("output_tokens", stats.Total.Output),
			zap.Float64("cost_usd", stats.Total.Cost))
		st.printStatus(a.stderr, "%s", usageSummary(stats))
	}

	sink := output.ForDestination(opts.outputPath, a.stdout)
	if err := sink.Write(result); err != nil {
		return err
	}
	logging.For(logger, logging.CategoryOutput).Info("Draft delivered",
		zap.String("destination", destination(opts.outputPath)),
		zap.Int("chars", len(result.Text)))

	if opts.outputPath != "" {
		st.printSuccess(a.stderr, "Draft written to %s", opts.outputPath)
	}
	return nil
}

func (a *app) printPrompts(builder *prompt.Builder, req types.DraftRequest) error {
	prompts, err := builder.Build(req)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("=== SYSTEM PROMPT ===\n")
	sb.WriteString(prompts.System)
	sb.WriteString("\n\n=== USER PROMPT ===\n")
	sb.WriteString(prompts.User)
	sb.WriteString("\n")
	_, err = fmt.Fprint(a.stdout, sb.String())
	return err
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func usageSummary(stats usage.Stats) string {
	line := fmt.Sprintf("Agent used %d turns, %d input / %d output tokens",
		stats.Turns, stats.Total.Input, stats.Total.Output)
	if stats.Total.Cost > 0 {
		line += fmt.Sprintf(", ~$%.4f", stats.Total.Cost)
	}
	return line
}

func destination(path string) string {
	if path == "" {
		return "stdout"
	}
	return path
}
