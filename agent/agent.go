package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/seoflow-ai/seoflow/internal/logging"
	"github.com/seoflow-ai/seoflow/pkg/memory"
	"github.com/seoflow-ai/seoflow/pkg/observability"
	"github.com/seoflow-ai/seoflow/pkg/tool"
	"github.com/seoflow-ai/seoflow/proto"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusBusy    Status = "BUSY"
	StatusError   Status = "ERROR"
	StatusOffline Status = "OFFLINE"
)

// Config describes one agent to be built.
type Config struct {
	// ID is optional; a fresh one is generated when empty.
	ID           string
	Name         string
	Role         proto.Role
	Capabilities []string
	Model        string
	SystemPrompt string
	// InboxCapacity bounds the inbox; zero means the default.
	InboxCapacity int
}

const defaultInboxCapacity = 256

// Sender delivers an agent's outbound messages. The workforce router
// implements it.
type Sender interface {
	Route(msg *proto.Message) error
}

// Agent is the container composing a Brain, Memory and Tool Manager under
// one identity. Inbox and outbox are owned exclusively by the agent; the
// router only calls Enqueue and collects from the outbox via Run.
type Agent struct {
	id           string
	name         string
	role         proto.Role
	capabilities []string
	model        string
	systemPrompt string

	brain  *Brain
	memory *memory.Memory
	tools  *tool.Manager
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	inbox    []*proto.Message
	inboxCap int
	outbox   []*proto.Message
	wake     chan struct{}
}

// New builds an agent around the given brain dependencies.
func New(cfg Config, brain *Brain, mem *memory.Memory, tools *tool.Manager, logger *slog.Logger) (*Agent, error) {
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("unknown agent role %q", cfg.Role)
	}
	if brain == nil {
		return nil, fmt.Errorf("agent %s: brain is required", cfg.Name)
	}
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	if logger == nil {
		logger = logging.Default()
	}
	inboxCap := cfg.InboxCapacity
	if inboxCap <= 0 {
		inboxCap = defaultInboxCapacity
	}

	a := &Agent{
		id:           id,
		name:         cfg.Name,
		role:         cfg.Role,
		capabilities: cfg.Capabilities,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		brain:        brain,
		memory:       mem,
		tools:        tools,
		logger:       logging.Component(logger, "agent").With("agent", cfg.Name, "agent_id", id),
		status:       StatusIdle,
		inboxCap:     inboxCap,
		wake:         make(chan struct{}, 1),
	}
	brain.bind(a)
	return a, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent role.
func (a *Agent) Role() proto.Role { return a.role }

// Capabilities returns the capability set.
func (a *Agent) Capabilities() []string { return a.capabilities }

// AvailableTools returns the names of the agent's registered tools.
func (a *Agent) AvailableTools() []string {
	if a.tools == nil {
		return nil
	}
	return a.tools.Names()
}

// Status returns the current lifecycle state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus overrides the lifecycle state. Used by the router when delivery
// to this agent fails (OFFLINE); otherwise status transitions are driven by
// the agent's own processing loop.
func (a *Agent) SetStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Enqueue appends a message to the FIFO inbox. Never blocks the caller; it
// fails only when the inbox is at capacity. Task cancellations additionally
// flip the brain's cancellation flag immediately, so a task already being
// worked on observes it at the next loop-iteration boundary.
func (a *Agent) Enqueue(msg *proto.Message) error {
	if msg == nil {
		return nil
	}
	if msg.Header.Type == proto.TypeTaskCancellation {
		var p proto.TaskCancellationPayload
		if err := msg.DecodePayload(&p); err == nil {
			a.brain.markCancelled(p.TaskID)
		}
	}

	a.mu.Lock()
	if len(a.inbox) >= a.inboxCap {
		a.mu.Unlock()
		return fmt.Errorf("agent %s: inbox full (%d messages)", a.name, a.inboxCap)
	}
	a.inbox = append(a.inbox, msg)
	depth := len(a.inbox)
	a.mu.Unlock()
	observability.SetAgentInboxDepth(a.name, depth)

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// InboxDepth returns the number of queued messages.
func (a *Agent) InboxDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inbox)
}

// dequeue pops the oldest inbox message, or nil when the inbox is empty.
func (a *Agent) dequeue() *proto.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.inbox) == 0 {
		return nil
	}
	msg := a.inbox[0]
	a.inbox = a.inbox[1:]
	observability.SetAgentInboxDepth(a.name, len(a.inbox))
	return msg
}

// ProcessNext processes the oldest inbox message through the brain and moves
// the resulting outbound messages to the outbox. Returns false when the
// inbox was empty. The agent is BUSY for the duration and returns to IDLE on
// success, or ERROR when the brain itself could not complete.
func (a *Agent) ProcessNext(ctx context.Context) bool {
	msg := a.dequeue()
	if msg == nil {
		return false
	}

	a.SetStatus(StatusBusy)
	outbound, err := a.brain.Process(ctx, msg)

	a.mu.Lock()
	for _, out := range outbound {
		if out != nil {
			a.outbox = append(a.outbox, out)
		}
	}
	if err != nil {
		a.status = StatusError
	} else {
		a.status = StatusIdle
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("brain could not complete", "message", msg.Header.MessageID, "error", err)
	}
	return true
}

// DrainOutbox removes and returns all outbound messages.
func (a *Agent) DrainOutbox() []*proto.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.outbox
	a.outbox = nil
	return out
}

// Run is the agent's processing loop: one logical task per agent. It blocks
// until ctx is canceled, processing inbox messages in FIFO order and handing
// outbound messages to the sender.
func (a *Agent) Run(ctx context.Context, sender Sender) error {
	a.logger.Info("agent loop started", "role", a.role)
	defer a.logger.Info("agent loop stopped")

	for {
		for a.ProcessNext(ctx) {
			for _, out := range a.DrainOutbox() {
				if err := sender.Route(out); err != nil {
					// Routing errors are reported back to this agent by the
					// router itself; nothing more to do here.
					a.logger.Warn("outbound message not routable",
						"message", out.Header.MessageID, "error", err)
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.wake:
		}
	}
}
