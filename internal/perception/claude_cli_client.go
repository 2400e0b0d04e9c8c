package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postdraft/internal/config"
	"postdraft/internal/mcp"
	"postdraft/internal/types"
	"postdraft/internal/usage"
)

const (
	defaultClaudeModel = "sonnet"
	maxStreamLineBytes = 16 * 1024 * 1024
	claudeWaitDelay    = 5 * time.Second
)

// builtinTools are Claude Code's own tools. Drafting only needs the gateway,
// so every one of them is disallowed.
var builtinTools = []string{
	"Bash", "BashOutput", "KillShell", "Edit", "MultiEdit", "Write", "Read",
	"Glob", "Grep", "NotebookEdit", "WebFetch", "WebSearch", "Task", "TodoWrite",
}

// errConsumerStopped signals that the range loop broke out early. It is
// never yielded.
var errConsumerStopped = errors.New("consumer stopped")

// ClaudeCLIAgent implements Agent using the Claude Code CLI subprocess.
// It executes `claude -p --output-format stream-json` with the tool gateway
// passed as an MCP config and restricted through --allowedTools. The CLI
// launches and owns the gateway process; killing the CLI tears it down.
type ClaudeCLIAgent struct {
	binary       string
	model        string
	maxTurns     int
	apiKey       string
	logger       *zap.Logger
	newSessionID func() string
}

// NewClaudeCLIAgent creates a new Claude Code CLI agent.
// Zero config values fall back to defaults (binary "claude", model "sonnet").
func NewClaudeCLIAgent(cfg config.AgentConfig, apiKey string, logger *zap.Logger) *ClaudeCLIAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ClaudeCLIAgent{
		binary:       "claude",
		model:        defaultClaudeModel,
		maxTurns:     config.DefaultAgentConfig().MaxTurns,
		apiKey:       apiKey,
		logger:       logger,
		newSessionID: func() string { return uuid.NewString() },
	}
	if cfg.ClaudeBinary != "" {
		a.binary = cfg.ClaudeBinary
	}
	if cfg.Model != "" {
		a.model = cfg.Model
	}
	if cfg.MaxTurns > 0 {
		a.maxTurns = cfg.MaxTurns
	}
	return a
}

// Name returns the backend name.
func (a *ClaudeCLIAgent) Name() string {
	return config.BackendClaudeCLI
}

// GetModel returns the current model.
func (a *ClaudeCLIAgent) GetModel() string {
	return a.model
}

// Query starts the CLI when the returned stream is ranged over.
func (a *ClaudeCLIAgent) Query(ctx context.Context, q Query) Stream {
	return OnceStream(func(yield func(types.Fragment, error) bool) {
		if err := a.run(ctx, q, yield); err != nil && !errors.Is(err, errConsumerStopped) {
			yield(types.Fragment{}, err)
		}
	})
}

// buildArgs assembles the CLI arguments. The user prompt goes over stdin.
func (a *ClaudeCLIAgent) buildArgs(q Query, sessionID string) ([]string, error) {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--model", a.model,
		"--max-turns", strconv.Itoa(a.maxTurns),
		"--session-id", sessionID,
		"--disallowedTools", strings.Join(builtinTools, ","),
	}
	if strings.TrimSpace(q.System) != "" {
		args = append(args, "--system-prompt", q.System)
	}
	if q.Gateway != nil {
		mcpJSON, err := q.Gateway.MCPConfigJSON()
		if err != nil {
			return nil, err
		}
		args = append(args,
			"--mcp-config", string(mcpJSON),
			"--strict-mcp-config",
			"--allowedTools", strings.Join(q.Gateway.QualifiedToolNames(), ","),
		)
	}
	return args, nil
}

func (a *ClaudeCLIAgent) environ(q Query) []string {
	env := os.Environ()
	if a.apiKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+a.apiKey)
	}
	if q.Gateway != nil {
		env = append(env, q.Gateway.PassthroughEnv()...)
	}
	return env
}

// run executes one CLI invocation, yielding fragments as NDJSON events
// arrive. Every return path kills and reaps the subprocess.
func (a *ClaudeCLIAgent) run(parent context.Context, q Query, yield func(types.Fragment, error) bool) error {
	sessionID := a.newSessionID()
	args, err := a.buildArgs(q, sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Stdin = strings.NewReader(q.User)
	cmd.Env = a.environ(q)
	// SIGTERM lets the CLI stop the gateway server it launched; WaitDelay
	// escalates to SIGKILL if it does not exit.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = claudeWaitDelay

	var stderr lockedBuffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start claude CLI: %w", err)
	}
	a.logger.Debug("claude CLI started",
		zap.String("session_id", sessionID),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("model", a.model))

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan []byte)
	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			buf := make([]byte, len(line))
			copy(buf, line)
			select {
			case lines <- buf:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	reaped := false
	defer func() {
		if reaped {
			return
		}
		cancel()
		_ = cmd.Wait()
		_ = g.Wait()
		a.logger.Debug("claude CLI torn down", zap.String("session_id", sessionID))
	}()

	conv := newEventConverter(q.Gateway, a.logger)
	conv.tracker = usage.FromContext(parent)
	conv.model = a.model
	for line := range lines {
		frags, err := conv.convert(line)
		if err != nil {
			return err
		}
		for _, f := range frags {
			if !yield(f, nil) {
				return errConsumerStopped
			}
		}
	}

	reaped = true
	readErr := g.Wait()
	waitErr := cmd.Wait()

	if ctxErr := parent.Err(); ctxErr != nil {
		return fmt.Errorf("claude CLI execution canceled: %w", ctxErr)
	}
	if waitErr != nil {
		stderrStr := stderr.String()
		if isRateLimitError(stderrStr) {
			return &RateLimitError{
				Provider:    "claude-cli",
				RawResponse: truncateString(stderrStr, 500),
			}
		}
		return fmt.Errorf("claude CLI execution failed: %w (stderr: %s)", waitErr, truncateString(stderrStr, 500))
	}
	if readErr != nil {
		return fmt.Errorf("error reading claude CLI stream: %w", readErr)
	}
	if !conv.sawResult {
		return errors.New("claude CLI stream ended without a result event")
	}
	return nil
}

// lockedBuffer collects stderr written by exec's copy goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// cliEvent is one line of `claude --output-format stream-json`.
type cliEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`

	// system/init
	MCPServers []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"mcp_servers"`

	// assistant / user
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`

	// result
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMs   int64   `json:"duration_ms"`
	Usage        *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type cliContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
}

func (e *cliEvent) blocks() []cliContentBlock {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return nil
	}
	var blocks []cliContentBlock
	if err := json.Unmarshal(e.Message.Content, &blocks); err != nil {
		// Plain-string content carries no blocks we care about.
		return nil
	}
	return blocks
}

// eventConverter turns CLI events into fragments and tracks stream state.
type eventConverter struct {
	gateway     *mcp.GatewaySpec
	logger      *zap.Logger
	tracker     *usage.Tracker
	model       string
	textEmitted bool
	sawResult   bool
}

func newEventConverter(gateway *mcp.GatewaySpec, logger *zap.Logger) *eventConverter {
	return &eventConverter{gateway: gateway, logger: logger}
}

func (c *eventConverter) convert(line []byte) ([]types.Fragment, error) {
	var ev cliEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		c.logger.Warn("Skipping malformed stream line",
			zap.Error(err), zap.String("line", truncateString(string(line), 200)))
		return nil, nil
	}

	switch ev.Type {
	case "system":
		if ev.Subtype == "init" {
			if err := c.checkGateway(&ev); err != nil {
				return nil, err
			}
		}
		return []types.Fragment{{Kind: types.FragmentStatus, Text: ev.Subtype}}, nil

	case "assistant":
		var frags []types.Fragment
		for _, b := range ev.blocks() {
			switch b.Type {
			case "text":
				if b.Text == "" {
					continue
				}
				if c.textEmitted {
					frags = append(frags, types.TextFragment("\n"))
				}
				frags = append(frags, types.TextFragment(b.Text))
				c.textEmitted = true
			case "tool_use":
				allowed := c.gateway != nil && c.gateway.Allows(b.Name)
				if !allowed {
					c.logger.Warn("Agent requested a tool outside the gateway allowlist", zap.String("tool", b.Name))
				}
				frags = append(frags, types.Fragment{Kind: types.FragmentToolCall, Tool: b.Name, IsError: !allowed})
			}
		}
		return frags, nil

	case "user":
		var frags []types.Fragment
		for _, b := range ev.blocks() {
			if b.Type == "tool_result" {
				frags = append(frags, types.Fragment{Kind: types.FragmentToolResult, Tool: b.ToolUseID, IsError: b.IsError})
			}
		}
		return frags, nil

	case "result":
		c.sawResult = true
		c.logger.Info("Agent finished",
			zap.String("subtype", ev.Subtype),
			zap.Int("turns", ev.NumTurns),
			zap.Float64("cost_usd", ev.TotalCostUSD),
			zap.Int64("duration_ms", ev.DurationMs))
		c.track(&ev)
		if ev.IsError || strings.HasPrefix(ev.Subtype, "error") {
			if isRateLimitError(ev.Result) {
				return nil, &RateLimitError{Provider: "claude-cli", RawResponse: truncateString(ev.Result, 500)}
			}
			detail := ev.Result
			if detail == "" {
				detail = ev.Subtype
			}
			return nil, fmt.Errorf("agent error after %d turns: %s", ev.NumTurns, truncateString(detail, 500))
		}
		return []types.Fragment{{Kind: types.FragmentResult}}, nil

	default:
		return []types.Fragment{{Kind: types.FragmentKind(ev.Type)}}, nil
	}
}

func (c *eventConverter) track(ev *cliEvent) {
	e := usage.Event{
		Provider: config.BackendClaudeCLI,
		Model:    c.model,
		CostUSD:  ev.TotalCostUSD,
		Turns:    ev.NumTurns,
	}
	if ev.Usage != nil {
		e.InputTokens = ev.Usage.InputTokens
		e.OutputTokens = ev.Usage.OutputTokens
	}
	c.tracker.Track(e)
}

// checkGateway fails the query when the CLI could not bring the tool
// provider up; drafting without it would mean fabricating activity.
func (c *eventConverter) checkGateway(ev *cliEvent) error {
	if c.gateway == nil {
		return nil
	}
	for _, s := range ev.MCPServers {
		if s.Name != c.gateway.ServerName {
			continue
		}
		switch s.Status {
		case "connected":
			return nil
		case "failed":
			return fmt.Errorf("tool provider %s unreachable (status %s)", s.Name, s.Status)
		default:
			c.logger.Warn("Tool provider not yet connected", zap.String("server", s.Name), zap.String("status", s.Status))
			return nil
		}
	}
	return fmt.Errorf("tool provider %s was not loaded by the agent", c.gateway.ServerName)
}
