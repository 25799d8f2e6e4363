package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/seoflow-ai/seoflow/pkg/observability"
)

// Manager holds one agent's callable capabilities. It is safe for concurrent
// use, though each agent's brain serializes its own invocations.
type Manager struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewManager creates an empty tool manager.
func NewManager() *Manager {
	return &Manager{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema. Registering a
// duplicate name or an invalid schema is an error.
func (m *Manager) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	schemaSrc := t.Schema
	if len(schemaSrc) == 0 {
		schemaSrc = json.RawMessage(`{"type": "object"}`)
	}
	schema, err := jsonschema.NewCompiler().Compile([]byte(schemaSrc))
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	t.Schema = schemaSrc
	m.tools[t.Name] = t
	m.schemas[t.Name] = schema
	m.order = append(m.order, t.Name)
	return nil
}

// List returns descriptors for all registered tools in registration order.
func (m *Manager) List() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.order))
	for _, name := range m.order {
		t := m.tools[name]
		out = append(out, Descriptor{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return out
}

// Names returns the registered tool names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	sort.Strings(names)
	return names
}

// Invoke validates args against the tool's schema and runs its handler.
// Every failure mode, including a panicking handler, comes back as a
// *ExecutionError.
func (m *Manager) Invoke(ctx context.Context, name string, args Args) (result *Result, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.RecordToolInvocation(name, status, time.Since(start))
	}()

	m.mu.RLock()
	t, ok := m.tools[name]
	schema := m.schemas[name]
	m.mu.RUnlock()

	if !ok {
		return nil, &ExecutionError{Tool: name, Reason: "unknown tool"}
	}

	if args == nil {
		args = Args{}
	}
	if vr := schema.Validate(map[string]any(args)); !vr.IsValid() {
		return nil, &ExecutionError{Tool: name, Reason: fmt.Sprintf("arguments do not match schema: %s", vr.Error())}
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExecutionError{Tool: name, Reason: fmt.Sprintf("handler panicked: %v", r)}
		}
	}()

	output, herr := t.Handler(ctx, args)
	if herr != nil {
		return nil, &ExecutionError{Tool: name, Reason: "handler failed", Err: herr}
	}
	return &Result{Tool: name, Output: output}, nil
}

// InvokeRaw decodes JSON arguments (as produced by an LLM tool call) and
// invokes the tool. Malformed JSON is an *ExecutionError like any other
// argument problem.
func (m *Manager) InvokeRaw(ctx context.Context, name string, rawArgs json.RawMessage) (*Result, error) {
	args := Args{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, &ExecutionError{Tool: name, Reason: "arguments are not valid JSON", Err: err}
		}
	}
	return m.Invoke(ctx, name, args)
}
