package proto

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// TaskAssignmentPayload instructs an agent to work on a task.
type TaskAssignmentPayload struct {
	TaskID      string         `json:"task_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// StatusUpdatePayload reports a task status transition. Detail is required
// when Status is FAILED.
type StatusUpdatePayload struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// DataRequestPayload asks another agent for information needed by a task.
type DataRequestPayload struct {
	Query        string `json:"query"`
	SourceTaskID string `json:"source_task_id"`
}

// DataResponsePayload answers a DataRequestPayload.
type DataResponsePayload struct {
	RequestID    string `json:"request_id"`
	SourceTaskID string `json:"source_task_id"`
	Content      string `json:"content"`
}

// TaskCancellationPayload signals cooperative cancellation of a task.
type TaskCancellationPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

// ErrorReportPayload notifies a sender that one of its messages could not be
// handled, e.g. a routing failure.
type ErrorReportPayload struct {
	Code         string `json:"code"`
	Detail       string `json:"detail"`
	RefMessageID string `json:"ref_message_id,omitempty"`
}

// schemaSources holds the JSON Schema for each message type. Schemas are
// compiled once, lazily, on first validation.
var schemaSources = map[Type]string{
	TypeTaskAssignment: `{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "minLength": 1},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"inputs": {"type": "object"}
		},
		"required": ["task_id", "title", "description"],
		"additionalProperties": false
	}`,
	TypeStatusUpdate: `{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "minLength": 1},
			"status": {"type": "string", "enum": ["PENDING", "ASSIGNED", "IN_PROGRESS", "COMPLETED", "FAILED"]},
			"detail": {"type": "string"}
		},
		"required": ["task_id", "status"],
		"additionalProperties": false
	}`,
	TypeDataRequest: `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"source_task_id": {"type": "string", "minLength": 1}
		},
		"required": ["query", "source_task_id"],
		"additionalProperties": false
	}`,
	TypeDataResponse: `{
		"type": "object",
		"properties": {
			"request_id": {"type": "string", "minLength": 1},
			"source_task_id": {"type": "string", "minLength": 1},
			"content": {"type": "string"}
		},
		"required": ["request_id", "source_task_id", "content"],
		"additionalProperties": false
	}`,
	TypeTaskCancellation: `{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "minLength": 1},
			"reason": {"type": "string"}
		},
		"required": ["task_id"],
		"additionalProperties": false
	}`,
	TypeErrorReport: `{
		"type": "object",
		"properties": {
			"code": {"type": "string", "minLength": 1},
			"detail": {"type": "string", "minLength": 1},
			"ref_message_id": {"type": "string"}
		},
		"required": ["code", "detail"],
		"additionalProperties": false
	}`,
}

var (
	schemaMu       sync.RWMutex
	compiledSchema = make(map[Type]*jsonschema.Schema)
)

func schemaFor(typ Type) (*jsonschema.Schema, error) {
	schemaMu.RLock()
	s, ok := compiledSchema[typ]
	schemaMu.RUnlock()
	if ok {
		return s, nil
	}

	src, ok := schemaSources[typ]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", typ)
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := compiledSchema[typ]; ok {
		return s, nil
	}
	s, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", typ, err)
	}
	compiledSchema[typ] = s
	return s, nil
}

// validatePayload checks raw JSON against the schema registered for typ.
func validatePayload(typ Type, raw json.RawMessage) error {
	schema, err := schemaFor(typ)
	if err != nil {
		return &ValidationError{Type: typ, Reason: err.Error()}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Type: typ, Reason: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}
	if result := schema.Validate(v); !result.IsValid() {
		return &ValidationError{Type: typ, Reason: fmt.Sprintf("%s", result.Error())}
	}
	return nil
}
