package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoflow-ai/seoflow/internal/llm"
	"github.com/seoflow-ai/seoflow/internal/logging"
	"github.com/seoflow-ai/seoflow/pkg/memory"
	"github.com/seoflow-ai/seoflow/pkg/tool"
	"github.com/seoflow-ai/seoflow/proto"
)

func fastBrainConfig() BrainConfig {
	return BrainConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		CallTimeout: time.Second,
	}
}

func newTestAgent(t *testing.T, role proto.Role, provider llm.Provider, tools *tool.Manager) *Agent {
	t.Helper()
	brain := NewBrain(provider, fastBrainConfig(), logging.Discard())
	mem := memory.New("test-agent", memory.Config{}, memory.WithLogger(logging.Discard()))
	a, err := New(Config{
		Name:         "test-agent",
		Role:         role,
		Model:        "test-model",
		SystemPrompt: "You are a test agent.",
	}, brain, mem, tools, logging.Discard())
	require.NoError(t, err)
	return a
}

func assignment(t *testing.T, sender, recipient, taskID, title string) *proto.Message {
	t.Helper()
	msg, err := proto.Build(sender, recipient, proto.TypeTaskAssignment, proto.TaskAssignmentPayload{
		TaskID:      taskID,
		Title:       title,
		Description: "description of " + title,
	})
	require.NoError(t, err)
	return msg
}

func statusUpdates(t *testing.T, msgs []*proto.Message) []proto.StatusUpdatePayload {
	t.Helper()
	var out []proto.StatusUpdatePayload
	for _, m := range msgs {
		if m.Header.Type == proto.TypeStatusUpdate {
			var p proto.StatusUpdatePayload
			require.NoError(t, m.DecodePayload(&p))
			out = append(out, p)
		}
	}
	return out
}

func TestNewRejectsUnknownRole(t *testing.T) {
	brain := NewBrain(llm.NewMockProvider(), fastBrainConfig(), logging.Discard())
	_, err := New(Config{Name: "x", Role: proto.Role("WIZARD")}, brain, nil, nil, logging.Discard())
	assert.Error(t, err)
}

func TestEnqueueFailsWhenInboxFull(t *testing.T) {
	brain := NewBrain(llm.NewMockProvider(), fastBrainConfig(), logging.Discard())
	a, err := New(Config{
		Name:          "tiny",
		Role:          proto.RoleSEOResearcher,
		InboxCapacity: 1,
	}, brain, nil, nil, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, a.Enqueue(assignment(t, "coord", a.ID(), "t1", "first")))
	assert.Error(t, a.Enqueue(assignment(t, "coord", a.ID(), "t2", "second")))
	assert.Equal(t, 1, a.InboxDepth())
}

func TestInboxIsFIFO(t *testing.T) {
	provider := llm.NewMockProvider(
		llm.MockReply("result-A"),
		llm.MockReply("result-B"),
		llm.MockReply("result-C"),
	)
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)
	ctx := context.Background()

	a.Enqueue(assignment(t, "coord", a.ID(), "task-A", "A"))
	a.Enqueue(assignment(t, "coord", a.ID(), "task-B", "B"))
	a.Enqueue(assignment(t, "coord", a.ID(), "task-C", "C"))
	assert.Equal(t, 3, a.InboxDepth())

	for i := 0; i < 3; i++ {
		require.True(t, a.ProcessNext(ctx))
	}
	require.False(t, a.ProcessNext(ctx), "inbox drained")

	var completedOrder []string
	for _, p := range statusUpdates(t, a.DrainOutbox()) {
		if p.Status == proto.TaskCompleted {
			completedOrder = append(completedOrder, p.TaskID)
		}
	}
	assert.Equal(t, []string{"task-A", "task-B", "task-C"}, completedOrder)
}

func TestProcessNextStatusTransitions(t *testing.T) {
	a := newTestAgent(t, proto.RoleSEOResearcher, llm.NewMockProvider(llm.MockReply("done")), nil)
	assert.Equal(t, StatusIdle, a.Status())

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "work"))
	require.True(t, a.ProcessNext(context.Background()))
	assert.Equal(t, StatusIdle, a.Status())
}

func TestRequestCarriesSamplingSettings(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("done"))
	cfg := fastBrainConfig()
	cfg.MaxTokens = 512
	cfg.Temperature = 0.2
	brain := NewBrain(provider, cfg, logging.Discard())
	a, err := New(Config{
		Name:         "tuned",
		Role:         proto.RoleSEOResearcher,
		Model:        "test-model",
		SystemPrompt: "test",
	}, brain, nil, nil, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, a.Enqueue(assignment(t, "coord", a.ID(), "t1", "work")))
	require.True(t, a.ProcessNext(context.Background()))

	req := provider.LastRequest()
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.2, req.Temperature, 0.001)
}

func TestUnknownToolDoesNotStallAgent(t *testing.T) {
	toolCallResp := &llm.Response{ToolCalls: []llm.ToolCall{{
		ID: "c1", Name: "nonexistent_tool", Arguments: json.RawMessage(`{}`),
	}}}
	provider := llm.NewMockProvider(
		llm.MockTurn{Response: toolCallResp},
		llm.MockReply("recovered without the tool"),
	)
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, tool.NewManager())
	before := a.Status()

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "needs a tool"))
	require.True(t, a.ProcessNext(context.Background()))

	assert.Equal(t, before, a.Status(), "status unchanged by tool failure")
	updates := statusUpdates(t, a.DrainOutbox())
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, proto.TaskCompleted, last.Status)
	assert.Equal(t, "recovered without the tool", last.Detail)
}

func TestToolCallFeedsResultBackIntoLoop(t *testing.T) {
	tools := tool.NewManager()
	require.NoError(t, tools.Register(tool.Tool{
		Name:        "lookup",
		Description: "test lookup",
		Schema:      json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`),
		Handler: func(ctx context.Context, args tool.Args) (any, error) {
			return map[string]any{"answer": "42"}, nil
		},
	}))

	provider := llm.NewMockProvider(
		llm.MockTurn{Response: &llm.Response{ToolCalls: []llm.ToolCall{{
			ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{"q":"meaning"}`),
		}}}},
		llm.MockReply("the answer is 42"),
	)
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, tools)

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "find the answer"))
	require.True(t, a.ProcessNext(context.Background()))

	updates := statusUpdates(t, a.DrainOutbox())
	last := updates[len(updates)-1]
	assert.Equal(t, proto.TaskCompleted, last.Status)

	found := false
	for _, m := range provider.LastRequest().Messages {
		if m.Role == "tool" {
			assert.Contains(t, m.Content, "42")
			found = true
		}
	}
	assert.True(t, found, "tool result should appear in the follow-up context")
}

func TestExhaustedRetriesEmitSingleFailure(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockFailure(llm.ErrUpstream, errors.New("boom")))
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "doomed"))
	require.True(t, a.ProcessNext(context.Background()))

	assert.Equal(t, 3, provider.Calls(), "default retry policy is 3 attempts")

	var failures []proto.StatusUpdatePayload
	for _, p := range statusUpdates(t, a.DrainOutbox()) {
		if p.Status == proto.TaskFailed {
			failures = append(failures, p)
		}
	}
	require.Len(t, failures, 1, "exactly one FAILED status update")
	assert.NotEmpty(t, failures[0].Detail)
	assert.Equal(t, StatusIdle, a.Status(), "a failed task is a completed brain run")
}

func TestContentPolicyFailureIsNotRetried(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockFailure(llm.ErrContentPolicy, errors.New("refused")))
	a := newTestAgent(t, proto.RoleContentCreator, provider, nil)

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "blocked"))
	require.True(t, a.ProcessNext(context.Background()))

	assert.Equal(t, 1, provider.Calls())
	updates := statusUpdates(t, a.DrainOutbox())
	assert.Equal(t, proto.TaskFailed, updates[len(updates)-1].Status)
}

func TestCancellationObservedAtLoopBoundary(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("should never be used"))
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "long job"))

	cancelMsg, err := proto.Build("coord", a.ID(), proto.TypeTaskCancellation, proto.TaskCancellationPayload{
		TaskID: "t1", Reason: "superseded",
	})
	require.NoError(t, err)
	// The cancellation flag flips at enqueue time even though the
	// assignment is ahead of it in the FIFO.
	a.Enqueue(cancelMsg)

	require.True(t, a.ProcessNext(context.Background()))
	updates := statusUpdates(t, a.DrainOutbox())
	last := updates[len(updates)-1]
	assert.Equal(t, proto.TaskFailed, last.Status)
	assert.Contains(t, last.Detail, "cancelled")
	assert.Equal(t, 0, provider.Calls())
}

func TestCancellationDoesNotStickToReassignedTask(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("finished on the second dispatch"))
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "first dispatch"))
	cancelMsg, err := proto.Build("coord", a.ID(), proto.TypeTaskCancellation, proto.TaskCancellationPayload{
		TaskID: "t1", Reason: "plan changed",
	})
	require.NoError(t, err)
	a.Enqueue(cancelMsg)

	require.True(t, a.ProcessNext(context.Background()), "assignment observes the cancellation")
	require.True(t, a.ProcessNext(context.Background()), "cancellation message drains")
	assert.Equal(t, 0, provider.Calls())

	updates := statusUpdates(t, a.DrainOutbox())
	assert.Equal(t, proto.TaskFailed, updates[len(updates)-1].Status)

	// A re-dispatch of the same task id after the cancellation was
	// consumed must run normally.
	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "second dispatch"))
	require.True(t, a.ProcessNext(context.Background()))
	assert.Equal(t, 1, provider.Calls())

	updates = statusUpdates(t, a.DrainOutbox())
	assert.Equal(t, proto.TaskCompleted, updates[len(updates)-1].Status)
}

func TestDataRequestProducesDataResponse(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("the top keyword is espresso"))
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)

	req, err := proto.Build("creator-1", a.ID(), proto.TypeDataRequest, proto.DataRequestPayload{
		Query:        "what is the top keyword?",
		SourceTaskID: "t9",
	})
	require.NoError(t, err)
	a.Enqueue(req)
	require.True(t, a.ProcessNext(context.Background()))

	out := a.DrainOutbox()
	require.Len(t, out, 1)
	assert.Equal(t, proto.TypeDataResponse, out[0].Header.Type)
	assert.Equal(t, "creator-1", out[0].Header.RecipientID)

	var p proto.DataResponsePayload
	require.NoError(t, out[0].DecodePayload(&p))
	assert.Equal(t, req.Header.MessageID, p.RequestID)
	assert.Equal(t, "the top keyword is espresso", p.Content)
}

func TestCoordinatorDecomposesGoal(t *testing.T) {
	plan := `[
		{"title": "Keyword research", "description": "find keywords", "role": "SEO_RESEARCHER"},
		{"title": "Write launch post", "description": "draft the post", "role": "CONTENT_CREATOR"}
	]`
	provider := llm.NewMockProvider(llm.MockReply("```json\n" + plan + "\n```"))
	a := newTestAgent(t, proto.RoleCoordinator, provider, nil)

	a.Enqueue(assignment(t, "router", a.ID(), "goal-1", "launch campaign"))
	require.True(t, a.ProcessNext(context.Background()))

	out := a.DrainOutbox()
	var assignments []*proto.Message
	for _, m := range out {
		if m.Header.Type == proto.TypeTaskAssignment {
			assignments = append(assignments, m)
		}
	}
	require.Len(t, assignments, 2)
	assert.Equal(t, "TYPE:SEO_RESEARCHER", assignments[0].Header.RecipientID)
	assert.Equal(t, "TYPE:CONTENT_CREATOR", assignments[1].Header.RecipientID)
}

func TestCoordinatorRejectsUnparseablePlan(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("sorry, I can't produce JSON today"))
	a := newTestAgent(t, proto.RoleCoordinator, provider, nil)

	a.Enqueue(assignment(t, "router", a.ID(), "goal-1", "launch campaign"))
	require.True(t, a.ProcessNext(context.Background()))

	updates := statusUpdates(t, a.DrainOutbox())
	require.Len(t, updates, 1)
	assert.Equal(t, proto.TaskFailed, updates[0].Status)
	assert.NotEmpty(t, updates[0].Detail)
}

func TestReasoningIterationBound(t *testing.T) {
	// A model that asks for the same tool forever must hit the iteration
	// bound and fail rather than loop.
	loop := llm.MockTurn{Response: &llm.Response{ToolCalls: []llm.ToolCall{{
		ID: "c", Name: "missing", Arguments: json.RawMessage(`{}`),
	}}}}
	provider := llm.NewMockProvider(loop)
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, tool.NewManager())

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "spin"))
	require.True(t, a.ProcessNext(context.Background()))

	updates := statusUpdates(t, a.DrainOutbox())
	last := updates[len(updates)-1]
	assert.Equal(t, proto.TaskFailed, last.Status)
	assert.Contains(t, last.Detail, "iterations")
}

type recordingSender struct {
	msgs chan *proto.Message
}

func (s *recordingSender) Route(msg *proto.Message) error {
	s.msgs <- msg
	return nil
}

func TestRunDeliversOutboxToSender(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockReply("done"))
	a := newTestAgent(t, proto.RoleSEOResearcher, provider, nil)
	sender := &recordingSender{msgs: make(chan *proto.Message, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx, sender) }()

	a.Enqueue(assignment(t, "coord", a.ID(), "t1", "work"))

	var seen []proto.Type
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case m := <-sender.msgs:
			seen = append(seen, m.Header.Type)
		case <-timeout:
			t.Fatalf("timed out waiting for outbound messages, saw %v", seen)
		}
	}
	assert.Equal(t, []proto.Type{proto.TypeStatusUpdate, proto.TypeStatusUpdate}, seen)
}

func TestAvailableToolsListsRegistered(t *testing.T) {
	tools := tool.NewManager()
	for _, bt := range tool.Builtins() {
		require.NoError(t, tools.Register(bt))
	}
	a := newTestAgent(t, proto.RoleSEOResearcher, llm.NewMockProvider(), tools)
	names := a.AvailableTools()
	assert.Contains(t, names, "serp_lookup")
	assert.Contains(t, names, "keyword_density")
	assert.Len(t, names, 3)
}
