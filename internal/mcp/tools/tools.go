// Package tools defines the shared [Tool] type used by the trade-in tool
// packages. Each sub-package exports a constructor that returns a slice of
// [Tool] values ready for registration with the MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is the model-facing schema of a tool.
type Definition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does and when to call it.
	Description string

	// Parameters is the JSON Schema describing the tool's input object.
	Parameters map[string]any

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool
}

// Tool represents a tool ready for registration.
type Tool struct {
	Definition Definition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use.
	Handler func(ctx context.Context, args string) (string, error)

	// DeclaredMax is the declared p99 upper-bound latency in milliseconds.
	// The server uses it as a hard timeout. Zero means no timeout.
	DeclaredMax int64
}

// Decode unmarshals JSON tool arguments into v. Empty args decode as an empty
// object.
func Decode(tool, args string, v any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("%s: failed to parse arguments: %w", tool, err)
	}
	return nil
}

// Encode marshals a tool result.
func Encode(tool string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode result: %w", tool, err)
	}
	return string(b), nil
}

// Find returns the tool named name.
func Find(ts []Tool, name string) (Tool, bool) {
	for _, t := range ts {
		if t.Definition.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
