// Package drafting runs one drafting query end to end: it builds the
// prompts, submits them to the agent with the tool gateway declared, and
// accumulates the streamed text into a single draft.
package drafting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"postdraft/internal/mcp"
	"postdraft/internal/perception"
	"postdraft/internal/prompt"
	"postdraft/internal/types"
)

// State is where the orchestrator is in a drafting run.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stages reported in DraftingError.
const (
	StagePrompt  = "prompt"
	StageConnect = "connect"
	StageStream  = "stream"
)

// ErrBusy is returned when Draft is called while another draft is running.
var ErrBusy = errors.New("a draft is already in progress")

// DraftingError reports a failed drafting run. No partial draft accompanies it.
type DraftingError struct {
	Stage string
	Cause error
}

func (e *DraftingError) Error() string {
	return fmt.Sprintf("drafting failed during %s: %v", e.Stage, e.Cause)
}

func (e *DraftingError) Unwrap() error {
	return e.Cause
}

// Orchestrator drives a single agent query per Draft call.
type Orchestrator struct {
	agent   perception.Agent
	prompts *prompt.Builder
	logger  *zap.Logger

	running atomic.Bool
	mu      sync.RWMutex
	state   State
}

// New creates an orchestrator for agent. A nil builder uses the defaults.
func New(agent perception.Agent, prompts *prompt.Builder, logger *zap.Logger) *Orchestrator {
	if prompts == nil {
		prompts = prompt.NewBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{agent: agent, prompts: prompts, logger: logger}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		o.logger.Debug("Drafting state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (o *Orchestrator) fail(stage string, cause error) (*types.DraftResult, error) {
	o.setState(StateFailed)
	o.logger.Error("Drafting failed", zap.String("stage", stage), zap.Error(cause))
	return nil, &DraftingError{Stage: stage, Cause: cause}
}

// Draft submits one query for req and returns the accumulated draft text.
// Fragments are appended in arrival order; anything other than text is
// logged and dropped. Any error, an agent-reported failure or cancellation
// yields a *DraftingError and no result.
func (o *Orchestrator) Draft(ctx context.Context, req types.DraftRequest, gateway *mcp.GatewaySpec) (*types.DraftResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.running.Store(false)

	o.setState(StateIdle)

	prompts, err := o.prompts.Build(req)
	if err != nil {
		return o.fail(StagePrompt, err)
	}

	o.setState(StateConnecting)
	o.logger.Info("Submitting drafting query",
		zap.String("agent", o.agent.Name()),
		zap.String("frequency", req.Window.Frequency),
		zap.Int("days", req.Window.Days),
		zap.Int("products", len(req.Products)))

	q := perception.Query{System: prompts.System, User: prompts.User, Gateway: gateway}

	var (
		sb        strings.Builder
		fragments int
		toolCalls int
	)
	for frag, err := range o.agent.Query(ctx, q) {
		if err != nil {
			if o.State() == StateConnecting {
				return o.fail(StageConnect, err)
			}
			return o.fail(StageStream, err)
		}
		if o.State() == StateConnecting {
			o.setState(StateStreaming)
		}
		fragments++

		switch frag.Kind {
		case types.FragmentText:
			sb.WriteString(frag.Text)
		case types.FragmentToolCall:
			toolCalls++
			if frag.IsError {
				o.logger.Warn("Agent called a tool outside the gateway", zap.String("tool", frag.Tool))
			} else {
				o.logger.Debug("Agent called tool", zap.String("tool", frag.Tool))
			}
		case types.FragmentToolResult:
			o.logger.Debug("Tool returned", zap.String("tool", frag.Tool), zap.Bool("is_error", frag.IsError))
		case types.FragmentStatus:
			o.logger.Debug("Agent status", zap.String("status", frag.Text))
		case types.FragmentResult:
			if frag.IsError {
				msg := frag.Text
				if msg == "" {
					msg = "agent reported failure"
				}
				return o.fail(StageStream, errors.New(msg))
			}
		default:
			o.logger.Debug("Ignoring fragment", zap.String("kind", string(frag.Kind)))
		}

		if err := ctx.Err(); err != nil {
			return o.fail(StageStream, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return o.fail(StageStream, err)
	}

	o.setState(StateComplete)
	result := &types.DraftResult{Text: sb.String()}
	o.logger.Info("Draft complete",
		zap.Int("fragments", fragments),
		zap.Int("tool_calls", toolCalls),
		zap.Int("chars", len(result.Text)))
	return result, nil
}
