package agent

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/seoflow-ai/seoflow/internal/llm"
	"github.com/seoflow-ai/seoflow/internal/logging"
	"github.com/seoflow-ai/seoflow/pkg/observability"
	"github.com/seoflow-ai/seoflow/proto"
)

// BrainConfig tunes the reasoning loop.
type BrainConfig struct {
	// MaxIterations bounds reasoning steps per task (default 5).
	MaxIterations int `yaml:"max_iterations"`
	// MaxAttempts bounds retries per LLM call (default 3).
	MaxAttempts int `yaml:"max_attempts"`
	// CallTimeout is the per-LLM-call deadline (default 60s).
	CallTimeout time.Duration `yaml:"call_timeout"`
	// BackoffBase is the first retry delay (default 1s).
	BackoffBase time.Duration `yaml:"backoff_base"`
	// BackoffMax caps the retry delay (default 16s).
	BackoffMax time.Duration `yaml:"backoff_max"`
	// ContextBudget is the short-term memory token budget per call
	// (default 3000).
	ContextBudget int `yaml:"context_budget"`
	// RetrieveK is how many long-term fragments to pull per task (default 3).
	RetrieveK int `yaml:"retrieve_k"`
	// MaxTokens caps the completion length per LLM call; zero leaves the
	// provider default in place.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is the sampling temperature for every LLM call.
	Temperature float64 `yaml:"temperature"`
}

func (c *BrainConfig) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 16 * time.Second
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 3000
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = 3
	}
}

// Brain is the reasoning component: it decides whether to respond directly,
// call a tool, or emit messages to other agents. One brain belongs to
// exactly one agent.
type Brain struct {
	provider llm.Provider
	cfg      BrainConfig
	logger   *slog.Logger

	// set by Agent.New via bind
	owner *Agent

	cancelMu  sync.Mutex
	cancelled map[string]bool
}

// NewBrain creates a brain using the given provider.
func NewBrain(provider llm.Provider, cfg BrainConfig, logger *slog.Logger) *Brain {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Brain{
		provider:  provider,
		cfg:       cfg,
		logger:    logging.Component(logger, "brain"),
		cancelled: make(map[string]bool),
	}
}

func (b *Brain) bind(a *Agent) {
	b.owner = a
	b.logger = b.logger.With("agent", a.name)
}

func (b *Brain) markCancelled(taskID string) {
	b.cancelMu.Lock()
	defer b.cancelMu.Unlock()
	b.cancelled[taskID] = true
}

// takeCancelled reports whether taskID was cancelled and consumes the flag,
// so a later re-dispatch of the same task id starts clean.
func (b *Brain) takeCancelled(taskID string) bool {
	b.cancelMu.Lock()
	defer b.cancelMu.Unlock()
	if !b.cancelled[taskID] {
		return false
	}
	delete(b.cancelled, taskID)
	return true
}

func (b *Brain) clearCancelled(taskID string) {
	b.cancelMu.Lock()
	defer b.cancelMu.Unlock()
	delete(b.cancelled, taskID)
}

// Process handles one inbound message and returns zero or more outbound
// messages. Recoverable problems (tool failures, store outages, exhausted
// LLM retries) are expressed as outbound status messages; the returned error
// is reserved for the brain itself being broken.
func (b *Brain) Process(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	ctx, span := observability.StartSpan(ctx, "brain.process",
		attribute.String("agent", b.owner.name),
		attribute.String("message.type", string(msg.Header.Type)),
	)
	defer span.End()

	switch msg.Header.Type {
	case proto.TypeTaskAssignment:
		var p proto.TaskAssignmentPayload
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode task assignment: %w", err)
		}
		if b.owner.role == proto.RoleCoordinator {
			return b.decompose(ctx, msg, p)
		}
		return b.work(ctx, msg, p)

	case proto.TypeDataRequest:
		var p proto.DataRequestPayload
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode data request: %w", err)
		}
		return b.answer(ctx, msg, p)

	case proto.TypeTaskCancellation:
		var p proto.TaskCancellationPayload
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode cancellation: %w", err)
		}
		// The flag was raised when the message entered the inbox. By the
		// time the message itself is dequeued, every assignment queued
		// before it has already observed the flag, so drop the entry
		// instead of letting the map grow.
		b.clearCancelled(p.TaskID)
		return nil, nil

	case proto.TypeDataResponse:
		var p proto.DataResponsePayload
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode data response: %w", err)
		}
		b.remember("assistant", fmt.Sprintf("Received data for task %s: %s", p.SourceTaskID, p.Content))
		return nil, nil

	case proto.TypeStatusUpdate, proto.TypeErrorReport:
		// Informational; keep in conversation context.
		b.remember("system", fmt.Sprintf("%s from %s: %s", msg.Header.Type, msg.Header.SenderID, string(msg.Payload)))
		return nil, nil

	default:
		return nil, fmt.Errorf("unhandled message type %s", msg.Header.Type)
	}
}

// work runs the bounded reasoning loop for a task assignment:
// RECEIVED -> REASONING -> {TOOL_CALL -> REASONING}* -> RESPONDED | FAILED.
func (b *Brain) work(ctx context.Context, msg *proto.Message, task proto.TaskAssignmentPayload) ([]*proto.Message, error) {
	started, err := proto.Build(b.owner.id, msg.Header.SenderID, proto.TypeStatusUpdate, proto.StatusUpdatePayload{
		TaskID: task.TaskID,
		Status: proto.TaskInProgress,
	})
	if err != nil {
		return nil, err
	}
	out := []*proto.Message{started}

	b.remember("user", fmt.Sprintf("Task %s: %s\n%s", task.TaskID, task.Title, task.Description))

	prefix := b.contextPrefix(ctx, task.Title+" "+task.Description)
	req := llm.Request{
		Model:       b.owner.model,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
		Tools:       b.toolSpecs(),
	}

	for iteration := 0; iteration < b.cfg.MaxIterations; iteration++ {
		if b.takeCancelled(task.TaskID) {
			return append(out, b.failure(msg.Header.SenderID, task.TaskID, "task cancelled")), nil
		}

		// Re-truncate context before every call so the window never
		// overflows; the newest turn is never the one dropped.
		req.Messages = b.window(prefix)

		resp, err := b.completeWithRetry(ctx, req)
		if err != nil {
			detail := fmt.Sprintf("llm call failed after %d attempts: %v", b.cfg.MaxAttempts, err)
			return append(out, b.failure(msg.Header.SenderID, task.TaskID, detail)), nil
		}

		if len(resp.ToolCalls) == 0 {
			b.remember("assistant", resp.Content)
			done, err := proto.Build(b.owner.id, msg.Header.SenderID, proto.TypeStatusUpdate, proto.StatusUpdatePayload{
				TaskID: task.TaskID,
				Status: proto.TaskCompleted,
				Detail: resp.Content,
			})
			if err != nil {
				return nil, err
			}
			return append(out, done), nil
		}

		for _, call := range resp.ToolCalls {
			result, terr := b.owner.tools.InvokeRaw(ctx, call.Name, call.Arguments)
			if terr != nil {
				// Recoverable: the model sees the failure and may try
				// something else on the next iteration.
				b.logger.Warn("tool invocation failed", "tool", call.Name, "error", terr)
				b.remember("tool", fmt.Sprintf("%s failed: %v", call.Name, terr))
				continue
			}
			b.remember("tool", fmt.Sprintf("%s returned: %s", call.Name, result.JSON()))
		}
	}

	return append(out, b.failure(msg.Header.SenderID, task.TaskID,
		fmt.Sprintf("no conclusion after %d reasoning iterations", b.cfg.MaxIterations))), nil
}

// answer serves a DATA_REQUEST with a single reasoning pass over memory.
func (b *Brain) answer(ctx context.Context, msg *proto.Message, req proto.DataRequestPayload) ([]*proto.Message, error) {
	b.remember("user", fmt.Sprintf("Data request from %s: %s", msg.Header.SenderID, req.Query))

	llmReq := b.baseRequest(ctx, req.Query)
	resp, err := b.completeWithRetry(ctx, llmReq)
	if err != nil {
		report, berr := proto.Build(b.owner.id, msg.Header.SenderID, proto.TypeErrorReport, proto.ErrorReportPayload{
			Code:         "DATA_REQUEST_FAILED",
			Detail:       err.Error(),
			RefMessageID: msg.Header.MessageID,
		})
		if berr != nil {
			return nil, berr
		}
		return []*proto.Message{report}, nil
	}

	b.remember("assistant", resp.Content)
	response, err := proto.Build(b.owner.id, msg.Header.SenderID, proto.TypeDataResponse, proto.DataResponsePayload{
		RequestID:    msg.Header.MessageID,
		SourceTaskID: req.SourceTaskID,
		Content:      resp.Content,
	})
	if err != nil {
		return nil, err
	}
	return []*proto.Message{response}, nil
}

// subtaskPlan is the structured decomposition expected from a coordinator's
// LLM call.
type subtaskPlan struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Role        proto.Role `json:"role"`
}

// decompose turns a goal into subtasks and emits TASK_ASSIGNMENT broadcasts
// per role.
func (b *Brain) decompose(ctx context.Context, msg *proto.Message, goal proto.TaskAssignmentPayload) ([]*proto.Message, error) {
	prompt := fmt.Sprintf(
		"Decompose the goal %q into subtasks. Respond with a JSON array of objects "+
			"with fields title, description and role, where role is one of "+
			"SEO_RESEARCHER, CONTENT_CREATOR, ANALYST, PUBLISHER.\nGoal details: %s",
		goal.Title, goal.Description)
	b.remember("user", prompt)

	resp, err := b.completeWithRetry(ctx, b.baseRequest(ctx, prompt))
	if err != nil {
		return []*proto.Message{b.failure(msg.Header.SenderID, goal.TaskID,
			fmt.Sprintf("goal decomposition failed: %v", err))}, nil
	}

	var plans []subtaskPlan
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Content)), &plans); err != nil {
		return []*proto.Message{b.failure(msg.Header.SenderID, goal.TaskID,
			fmt.Sprintf("unparseable decomposition: %v", err))}, nil
	}
	if len(plans) == 0 {
		return []*proto.Message{b.failure(msg.Header.SenderID, goal.TaskID, "decomposition produced no subtasks")}, nil
	}

	var out []*proto.Message
	for _, plan := range plans {
		if !plan.Role.Valid() || plan.Role == proto.RoleCoordinator {
			b.logger.Warn("skipping subtask with invalid role", "role", plan.Role, "title", plan.Title)
			continue
		}
		subtask := proto.NewTask(plan.Title, plan.Description, map[string]any{"goal_task_id": goal.TaskID})
		subtask.ParentID = goal.TaskID
		assignment, err := proto.Build(b.owner.id, proto.RoleRecipient(plan.Role), proto.TypeTaskAssignment, proto.TaskAssignmentPayload{
			TaskID:      subtask.ID,
			Title:       subtask.Title,
			Description: subtask.Description,
			Inputs:      subtask.Inputs,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, assignment)
	}
	if len(out) == 0 {
		return []*proto.Message{b.failure(msg.Header.SenderID, goal.TaskID, "decomposition produced no valid subtasks")}, nil
	}

	progress, err := proto.Build(b.owner.id, msg.Header.SenderID, proto.TypeStatusUpdate, proto.StatusUpdatePayload{
		TaskID: goal.TaskID,
		Status: proto.TaskInProgress,
		Detail: fmt.Sprintf("decomposed into %d subtasks", len(out)),
	})
	if err != nil {
		return nil, err
	}
	return append(out, progress), nil
}

// completeWithRetry wraps one logical LLM call with a timeout and bounded
// exponential backoff. Non-retryable provider errors fail immediately.
func (b *Brain) completeWithRetry(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		resp, err := b.provider.Complete(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		pe, ok := llm.AsProviderError(err)
		if ok && !pe.Retryable() {
			return nil, err
		}
		if attempt == b.cfg.MaxAttempts {
			break
		}
		if ok {
			observability.RecordLLMRetry(b.provider.Name(), string(pe.Kind))
		}

		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(b.backoff(attempt)):
		}
	}
	return nil, lastErr
}

// backoff returns the delay before the next attempt: exponential from
// BackoffBase, capped at BackoffMax, with ±30% jitter.
func (b *Brain) backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 31 {
		shift = 31
	}
	delay := b.cfg.BackoffBase << uint(shift)
	if delay > b.cfg.BackoffMax || delay <= 0 {
		delay = b.cfg.BackoffMax
	}
	jitter := time.Duration(float64(delay) * 0.3 * (randFloat()*2 - 1))
	return delay + jitter
}

func randFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}

// contextPrefix builds the fixed head of the conversation window: system
// prompt plus long-term fragments retrieved for the query. A failing
// long-term backend yields no fragments and the brain proceeds on
// short-term memory alone.
func (b *Brain) contextPrefix(ctx context.Context, query string) []llm.ChatMessage {
	prefix := []llm.ChatMessage{{Role: "system", Content: b.owner.systemPrompt}}
	if b.owner.memory == nil {
		// Without a memory buffer the query itself is the whole context.
		return append(prefix, llm.ChatMessage{Role: "user", Content: query})
	}
	for _, frag := range b.owner.memory.Retrieve(ctx, query, b.cfg.RetrieveK) {
		prefix = append(prefix, llm.ChatMessage{
			Role:    "system",
			Content: "Relevant context: " + frag.Text,
		})
	}
	return prefix
}

// window appends the token-bounded short-term tail to the prefix.
// Truncation drops oldest turns first; the newest turn always survives.
func (b *Brain) window(prefix []llm.ChatMessage) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, len(prefix))
	copy(messages, prefix)
	if b.owner.memory != nil {
		for _, turn := range b.owner.memory.RecentTurns(b.cfg.ContextBudget) {
			messages = append(messages, llm.ChatMessage{Role: turnRole(turn.Role), Content: turn.Content})
		}
	}
	return messages
}

// baseRequest assembles a one-shot reasoning request for the query.
func (b *Brain) baseRequest(ctx context.Context, query string) llm.Request {
	return llm.Request{
		Messages:    b.window(b.contextPrefix(ctx, query)),
		Model:       b.owner.model,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	}
}

func (b *Brain) toolSpecs() []llm.ToolSpec {
	if b.owner.tools == nil {
		return nil
	}
	descriptors := b.owner.tools.List()
	if len(descriptors) == 0 {
		return nil
	}
	specs := make([]llm.ToolSpec, 0, len(descriptors))
	for _, d := range descriptors {
		specs = append(specs, llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return specs
}

// failure builds the terminal STATUS_UPDATE(FAILED) for a task. Detail is
// always non-empty.
func (b *Brain) failure(recipient, taskID, detail string) *proto.Message {
	if detail == "" {
		detail = "unspecified failure"
	}
	msg, err := proto.Build(b.owner.id, recipient, proto.TypeStatusUpdate, proto.StatusUpdatePayload{
		TaskID: taskID,
		Status: proto.TaskFailed,
		Detail: detail,
	})
	if err != nil {
		// Payload is built from validated parts; this cannot happen.
		b.logger.Error("failed to build failure status", "task", taskID, "error", err)
		return nil
	}
	return msg
}

func (b *Brain) remember(role, content string) {
	if b.owner.memory != nil {
		b.owner.memory.AppendTurn(role, content)
	}
}

// turnRole maps memory roles onto provider chat roles.
func turnRole(role string) string {
	switch role {
	case "system", "user", "assistant", "tool":
		return role
	default:
		return "user"
	}
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeFences removes markdown fences when the model wraps JSON output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
