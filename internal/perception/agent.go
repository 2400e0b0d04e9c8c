// Package perception talks to the generative agents that draft posts.
// Every backend exposes the same shape: one query in, a lazy, finite,
// non-restartable sequence of fragments out.
package perception

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"postdraft/internal/config"
	"postdraft/internal/mcp"
	"postdraft/internal/types"
)

// ErrStreamConsumed is yielded when a stream is ranged over a second time.
var ErrStreamConsumed = errors.New("agent stream already consumed")

// Query is one request to an agent.
type Query struct {
	System  string
	User    string
	Gateway *mcp.GatewaySpec
}

// Stream is the agent's response. Ranging over it drives the query; a
// non-nil error is always the last element. Breaking out early tears down
// whatever the backend acquired for the query.
type Stream = iter.Seq2[types.Fragment, error]

// Agent is a generative agent that can answer a query using the tool
// gateway declared in it.
type Agent interface {
	Name() string
	Query(ctx context.Context, q Query) Stream
}

// OnceStream wraps seq so it can only be consumed once.
func OnceStream(seq Stream) Stream {
	var used atomic.Bool
	return func(yield func(types.Fragment, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(types.Fragment{}, ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}

// FromFragments returns a stream that yields frags in order and, if
// finalErr is non-nil, ends with it.
func FromFragments(finalErr error, frags ...types.Fragment) Stream {
	return OnceStream(func(yield func(types.Fragment, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		if finalErr != nil {
			yield(types.Fragment{}, finalErr)
		}
	})
}

// NewAgent builds the configured backend. apiKey is the agent credential
// already resolved from the environment.
func NewAgent(cfg config.AgentConfig, apiKey string, logger *zap.Logger) (Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendClaudeCLI, "":
		return NewClaudeCLIAgent(cfg, apiKey, logger), nil
	case config.BackendGemini:
		agent, err := NewGeminiAgent(context.Background(), cfg, apiKey, logger)
		if err != nil {
			return nil, err
		}
		return agent, nil
	default:
		return nil, &config.ConfigError{
			Field: "agent.backend",
			Msg:   fmt.Sprintf("invalid backend %q (valid: %s)", cfg.Backend, strings.Join(config.ValidBackends, ", ")),
		}
	}
}
