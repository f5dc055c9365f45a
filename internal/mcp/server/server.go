// Package server exposes [tools.Tool] values over the Model Context Protocol
// using the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
//
// Usage:
//
//	s := server.New(toolset.Tools())
//	if err := s.Run(ctx); err != nil { ... } // serves on stdin/stdout
//
// Tool failures are reported to the client as results with IsError set, not
// as protocol errors, so the calling model can read and react to them.
package server

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/tradein/internal/mcp/tools"
	"github.com/MrWong99/tradein/internal/observe"
)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// Server is an MCP server backed by a fixed tool catalogue.
type Server struct {
	sdk     *mcpsdk.Server
	tools   map[string]tools.Tool
	metrics *observe.Metrics
	version string
}

// New registers ts with a new MCP server.
func New(ts []tools.Tool, opts ...Option) *Server {
	s := &Server{
		tools:   make(map[string]tools.Tool, len(ts)),
		version: "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "tradein", Version: s.version}, nil)
	for _, t := range ts {
		s.tools[t.Definition.Name] = t
		s.sdk.AddTool(&mcpsdk.Tool{
			Name:        t.Definition.Name,
			Description: t.Definition.Description,
			InputSchema: t.Definition.Parameters,
		}, s.handler(t.Definition.Name))
	}
	return s
}

func (s *Server) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args string
		if req.Params != nil {
			args = string(req.Params.Arguments)
		}
		out, err := s.Call(ctx, name, args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

// Call runs the named tool directly, applying its declared timeout and
// recording metrics.
func (s *Server) Call(ctx context.Context, name, args string) (string, error) {
	t, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("mcp server: unknown tool %q", name)
	}

	ctx, span := observe.StartSpan(ctx, "tool."+name)
	defer span.End()
	if t.DeclaredMax > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.DeclaredMax)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	out, err := t.Handler(ctx, args)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		observe.Logger(ctx).Warn("tool call failed", "tool", name, "err", err)
	} else {
		observe.Logger(ctx).Debug("tool call", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	}
	s.metrics.RecordToolCall(ctx, name, status)
	return out, err
}

// Connect serves one session over transport and returns immediately.
func (s *Server) Connect(ctx context.Context, transport mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	ss, err := s.sdk.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp server: connect: %w", err)
	}
	return ss, nil
}

// Run serves on stdin/stdout until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.sdk.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
