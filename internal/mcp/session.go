package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ErrToolNotAllowed is returned when a tool outside the gateway allowlist is
// requested.
var ErrToolNotAllowed = errors.New("tool not allowed by gateway")

// Tool is an allowlisted operation exposed by the provider.
type Tool struct {
	Name        string
	Description string
	// InputSchema is the tool's JSON schema as a generic document.
	InputSchema map[string]interface{}
}

// mcpClient is the subset of the mcp-go client a Session uses.
type mcpClient interface {
	Initialize(ctx context.Context, req mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error)
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Session is a live connection to the tool provider, scoped to one agent
// query. Open acquires it; Close releases it and must be deferred by the
// caller so the provider process never outlives the query.
type Session struct {
	spec   *GatewaySpec
	client mcpClient
	tools  []Tool
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open launches the provider over stdio, performs the MCP handshake and
// keeps only the tools the gateway allows.
func Open(ctx context.Context, spec *GatewaySpec, logger *zap.Logger) (*Session, error) {
	if spec == nil {
		return nil, errors.New("no gateway declared")
	}
	client, err := mcpclient.NewStdioMCPClient(spec.Command, spec.LaunchEnv(), spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to launch tool provider %s: %w", spec.ServerName, err)
	}
	return openWithClient(ctx, spec, client, logger)
}

func openWithClient(ctx context.Context, spec *GatewaySpec, client mcpClient, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{spec: spec, client: client, logger: logger}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "postdraft", Version: "1.0.0"}
	info, err := client.Initialize(ctx, initReq)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("tool provider %s handshake failed: %w", spec.ServerName, err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to list tools from %s: %w", spec.ServerName, err)
	}

	for _, t := range listed.Tools {
		if !spec.Allows(t.Name) {
			continue
		}
		schema, err := schemaDocument(t.InputSchema)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("tool %s has an unusable schema: %w", t.Name, err)
		}
		s.tools = append(s.tools, Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	if len(s.tools) == 0 {
		_ = s.Close()
		return nil, fmt.Errorf("tool provider %s exposes none of the allowed tools [%s]",
			spec.ServerName, strings.Join(spec.AllowedTools, ", "))
	}

	logger.Info("Tool gateway connected",
		zap.String("server", spec.ServerName),
		zap.String("provider", info.ServerInfo.Name),
		zap.String("provider_version", info.ServerInfo.Version),
		zap.Int("offered", len(listed.Tools)),
		zap.Int("allowed", len(s.tools)))

	return s, nil
}

// Tools returns the allowlisted tools the provider offers.
func (s *Session) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Call invokes an allowlisted tool and returns its text content. A result
// flagged as an error by the provider is returned as an error.
func (s *Session) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if !s.spec.Allows(name) {
		return "", fmt.Errorf("%w: %s", ErrToolNotAllowed, name)
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	s.logger.Debug("Calling tool", zap.String("tool", name))
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", name, truncate(text, 300))
	}
	return text, nil
}

// Close shuts the provider down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		s.logger.Debug("Tool gateway closed", zap.String("server", s.spec.ServerName))
	})
	return s.closeErr
}

func contentText(content []mcpgo.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			sb.WriteString(v.Text)
		case *mcpgo.TextContent:
			sb.WriteString(v.Text)
		}
	}
	return sb.String()
}

func schemaDocument(schema mcpgo.ToolInputSchema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
