package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "Echo back a string",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"],
			"additionalProperties": false
		}`),
		Handler: func(ctx context.Context, args Args) (any, error) {
			return args.String("text"), nil
		},
	}
}

func TestRegisterAndList(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(echoTool()))
	require.NoError(t, m.Register(KeywordDensity()))

	descriptors := m.List()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "echo", descriptors[0].Name)
	assert.NotEmpty(t, descriptors[0].Schema)

	assert.Error(t, m.Register(echoTool()), "duplicate registration")
}

func TestInvokeValidatesArguments(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(echoTool()))
	ctx := context.Background()

	res, err := m.Invoke(ctx, "echo", Args{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)

	_, err = m.Invoke(ctx, "echo", Args{"text": 42})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)

	_, err = m.Invoke(ctx, "echo", Args{})
	require.ErrorAs(t, err, &execErr)
}

func TestInvokeUnknownTool(t *testing.T) {
	m := NewManager()
	_, err := m.Invoke(context.Background(), "no_such_tool", Args{})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "no_such_tool", execErr.Tool)
}

func TestInvokeRecoversHandlerPanic(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(Tool{
		Name:        "explode",
		Description: "always panics",
		Handler: func(ctx context.Context, args Args) (any, error) {
			panic("kaboom")
		},
	}))

	_, err := m.Invoke(context.Background(), "explode", Args{})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "panicked")
}

func TestInvokeWrapsHandlerErrors(t *testing.T) {
	sentinel := errors.New("backend unreachable")
	m := NewManager()
	require.NoError(t, m.Register(Tool{
		Name:    "flaky",
		Handler: func(ctx context.Context, args Args) (any, error) { return nil, sentinel },
	}))

	_, err := m.Invoke(context.Background(), "flaky", Args{})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, sentinel)
}

func TestInvokeRawDecodesLLMArguments(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(echoTool()))
	ctx := context.Background()

	res, err := m.InvokeRaw(ctx, "echo", json.RawMessage(`{"text": "from the model"}`))
	require.NoError(t, err)
	assert.Equal(t, "from the model", res.Output)

	_, err = m.InvokeRaw(ctx, "echo", json.RawMessage(`{not json`))
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestBuiltinKeywordDensity(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(KeywordDensity()))

	res, err := m.Invoke(context.Background(), "keyword_density", Args{
		"text":     "espresso beans make great espresso",
		"keywords": []any{"espresso", "latte"},
	})
	require.NoError(t, err)

	out := res.Output.(map[string]any)
	density := out["density"].(map[string]float64)
	assert.InDelta(t, 40.0, density["espresso"], 0.001)
	assert.Zero(t, density["latte"])
}

func TestBuiltinReadability(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(ReadabilityScore()))

	res, err := m.Invoke(context.Background(), "readability_score", Args{
		"text": "The cat sat. The dog ran.",
	})
	require.NoError(t, err)
	out := res.Output.(map[string]any)
	assert.Equal(t, 2, out["sentences"])
	assert.Greater(t, out["score"].(float64), 90.0)
}
