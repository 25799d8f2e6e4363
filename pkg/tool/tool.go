// Package tool implements an agent's tool manager: a registry of callable
// capabilities with JSON Schema argument validation. Invocation failures are
// returned as *ExecutionError values; no error or panic from a tool handler
// crosses the manager boundary.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes a tool. Args have already been validated against the
// tool's schema. Side effects (network, code execution) belong to the
// handler, not the manager.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool is one callable capability.
type Tool struct {
	Name        string
	Description string
	// Schema is a JSON Schema object describing the arguments.
	Schema  json.RawMessage
	Handler Handler
}

// Descriptor is the advertisable part of a tool (name + argument schema),
// e.g. for handing to an LLM provider.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

// Result is a successful invocation outcome.
type Result struct {
	Tool   string
	Output any
}

// JSON renders the output for feeding back into a model conversation.
func (r *Result) JSON() string {
	raw, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(raw)
}

// ExecutionError reports a failed invocation: unknown tool, schema mismatch,
// or handler failure. It is a recoverable result for the caller, not a fault.
type ExecutionError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Args provides typed access to validated tool arguments.
type Args map[string]any

// String returns a string argument, or "" when absent.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer argument, tolerating JSON's float64 decoding.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// Float returns a float argument.
func (a Args) Float(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean argument.
func (a Args) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}
