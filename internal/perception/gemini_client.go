package perception

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"postdraft/internal/config"
	"postdraft/internal/mcp"
	"postdraft/internal/types"
	"postdraft/internal/usage"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentStreamer is the part of *genai.Models the agent drives.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// toolSession is the part of *mcp.Session the agent drives.
type toolSession interface {
	Tools() []mcp.Tool
	Call(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}

type sessionOpener func(ctx context.Context, spec *mcp.GatewaySpec, logger *zap.Logger) (toolSession, error)

func openMCPSession(ctx context.Context, spec *mcp.GatewaySpec, logger *zap.Logger) (toolSession, error) {
	s, err := mcp.Open(ctx, spec, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GeminiAgent implements Agent on the Gemini API. Unlike the CLI backend it
// runs the tool loop itself: the gateway's provider is launched in-process
// for the duration of one query and every function call is checked against
// the allowlist before it reaches the provider.
type GeminiAgent struct {
	models      contentStreamer
	model       string
	maxTurns    int
	logger      *zap.Logger
	openSession sessionOpener
}

// NewGeminiAgent creates a new Gemini agent.
func NewGeminiAgent(ctx context.Context, cfg config.AgentConfig, apiKey string, logger *zap.Logger) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiAgent(client.Models, cfg, logger), nil
}

func newGeminiAgent(models contentStreamer, cfg config.AgentConfig, logger *zap.Logger) *GeminiAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &GeminiAgent{
		models:      models,
		model:       defaultGeminiModel,
		maxTurns:    config.DefaultAgentConfig().MaxTurns,
		logger:      logger,
		openSession: openMCPSession,
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
func (a *GeminiAgent) Name() string {
	return config.BackendGemini
}

// GetModel returns the current model.
func (a *GeminiAgent) GetModel() string {
	return a.model
}

// Query runs the tool loop when the returned stream is ranged over.
func (a *GeminiAgent) Query(ctx context.Context, q Query) Stream {
	return OnceStream(func(yield func(types.Fragment, error) bool) {
		if err := a.run(ctx, q, yield); err != nil && !errors.Is(err, errConsumerStopped) {
			yield(types.Fragment{}, err)
		}
	})
}

func (a *GeminiAgent) run(ctx context.Context, q Query, yield func(types.Fragment, error) bool) error {
	var session toolSession
	if q.Gateway != nil {
		s, err := a.openSession(ctx, q.Gateway, a.logger)
		if err != nil {
			return fmt.Errorf("tool provider unreachable: %w", err)
		}
		defer s.Close()
		session = s
	}
	if !yield(types.Fragment{Kind: types.FragmentStatus, Text: "init"}, nil) {
		return errConsumerStopped
	}

	cfg := &genai.GenerateContentConfig{}
	if q.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(q.System)}}
	}
	if session != nil {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(session.Tools())}}
	}

	history := []*genai.Content{genai.NewContentFromText(q.User, genai.RoleUser)}
	textEmitted := false

	acct := usage.Event{Provider: config.BackendGemini, Model: a.model}
	defer func() { usage.FromContext(ctx).Track(acct) }()

	for turn := 1; turn <= a.maxTurns; turn++ {
		var modelParts []*genai.Part
		var calls []*genai.FunctionCall
		var turnUsage *genai.GenerateContentResponseUsageMetadata
		turnHasText := false
		acct.Turns = turn

		for resp, err := range a.models.GenerateContentStream(ctx, a.model, history, cfg) {
			if err != nil {
				return a.streamError(ctx, err)
			}
			if resp == nil {
				continue
			}
			if m := resp.UsageMetadata; m != nil {
				turnUsage = m
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, p := range resp.Candidates[0].Content.Parts {
				switch {
				case p == nil || p.Thought:
				case p.FunctionCall != nil:
					calls = append(calls, p.FunctionCall)
					modelParts = append(modelParts, p)
					allowed := session != nil && q.Gateway.Allows(p.FunctionCall.Name)
					if !yield(types.Fragment{Kind: types.FragmentToolCall, Tool: p.FunctionCall.Name, IsError: !allowed}, nil) {
						return errConsumerStopped
					}
				case p.Text != "":
					modelParts = append(modelParts, p)
					if textEmitted && !turnHasText {
						if !yield(types.TextFragment("\n"), nil) {
							return errConsumerStopped
						}
					}
					if !yield(types.TextFragment(p.Text), nil) {
						return errConsumerStopped
					}
					textEmitted = true
					turnHasText = true
				}
			}
		}

		if turnUsage != nil {
			acct.InputTokens += int(turnUsage.PromptTokenCount)
			acct.OutputTokens += int(turnUsage.CandidatesTokenCount)
		}

		if len(calls) == 0 {
			a.logger.Info("Agent finished", zap.Int("turns", turn))
			if !yield(types.Fragment{Kind: types.FragmentResult}, nil) {
				return errConsumerStopped
			}
			return nil
		}

		history = append(history, genai.NewContentFromParts(modelParts, genai.RoleModel))
		responses := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			part, failed := a.callTool(ctx, session, call)
			if ctx.Err() != nil {
				return fmt.Errorf("gemini execution canceled: %w", ctx.Err())
			}
			responses = append(responses, part)
			if !yield(types.Fragment{Kind: types.FragmentToolResult, Tool: call.Name, IsError: failed}, nil) {
				return errConsumerStopped
			}
		}
		history = append(history, genai.NewContentFromParts(responses, genai.RoleUser))
	}

	return fmt.Errorf("agent error after %d turns: maximum turns reached", a.maxTurns)
}

// callTool executes one function call. Failures are reported back to the
// model as an error response rather than aborting the query.
func (a *GeminiAgent) callTool(ctx context.Context, session toolSession, call *genai.FunctionCall) (*genai.Part, bool) {
	var (
		out string
		err error
	)
	if session == nil {
		err = fmt.Errorf("%w: %s", mcp.ErrToolNotAllowed, call.Name)
	} else {
		out, err = session.Call(ctx, call.Name, call.Args)
	}

	response := map[string]any{"output": out}
	if err != nil {
		if errors.Is(err, mcp.ErrToolNotAllowed) {
			a.logger.Warn("Agent requested a tool outside the gateway allowlist", zap.String("tool", call.Name))
		} else {
			a.logger.Debug("Tool call failed", zap.String("tool", call.Name), zap.Error(err))
		}
		response = map[string]any{"error": err.Error()}
	}

	part := genai.NewPartFromFunctionResponse(call.Name, response)
	part.FunctionResponse.ID = call.ID
	return part, err != nil
}

func (a *GeminiAgent) streamError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("gemini execution canceled: %w", ctx.Err())
	}
	if isRateLimitError(err.Error()) {
		return &RateLimitError{Provider: "gemini", RawResponse: truncateString(err.Error(), 500)}
	}
	return fmt.Errorf("gemini stream failed: %w", err)
}

func functionDeclarations(tools []mcp.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return decls
}
