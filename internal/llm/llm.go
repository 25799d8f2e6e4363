// Package llm defines the reasoning-engine boundary: a Provider interface,
// request/response types, and an error taxonomy that lets callers distinguish
// timeouts, rate limits and content-policy rejections.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Provider is the interface consumed by agent brains. Implementations wrap a
// concrete upstream (OpenAI, a mock, or a decorated provider).
type Provider interface {
	// Complete generates a completion for the given request. Failures are
	// reported as *ProviderError so callers can branch on Kind.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the provider, e.g. "openai" or "mock".
	Name() string
}

// ChatMessage is one turn of conversation context sent upstream.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
	// Name carries the tool name for role "tool" messages.
	Name string `json:"name,omitempty"`
}

// ToolSpec describes a callable tool advertised to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a completion request.
type Request struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []ToolSpec    `json:"tools,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage is token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the result of a completion call. When ToolCalls is non-empty
// the model asked for tool executions instead of (or before) answering.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        Usage      `json:"usage"`
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrTimeout       ErrorKind = "timeout"
	ErrRateLimit     ErrorKind = "rate_limit"
	ErrContentPolicy ErrorKind = "content_policy"
	ErrTransport     ErrorKind = "transport"
	ErrUpstream      ErrorKind = "upstream"
)

// ProviderError wraps an upstream failure with a Kind callers can branch on.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a retry with backoff can plausibly succeed.
// Content-policy rejections are deterministic and never retried.
func (e *ProviderError) Retryable() bool {
	return e.Kind != ErrContentPolicy
}

// AsProviderError extracts a *ProviderError from err, if present.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}
