package workforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/seoflow-ai/seoflow/agent"
	"github.com/seoflow-ai/seoflow/internal/logging"
	"github.com/seoflow-ai/seoflow/proto"
)

// Config tunes the workforce.
type Config struct {
	// StallTimeout is how long a task may sit IN_PROGRESS without an update
	// before the watchdog fails it (default 5m).
	StallTimeout time.Duration `yaml:"stall_timeout"`
	// WatchdogSchedule is a cron spec for the stall scan (default "@every 1m").
	WatchdogSchedule string `yaml:"watchdog_schedule"`
}

func (c *Config) applyDefaults() {
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Minute
	}
	if c.WatchdogSchedule == "" {
		c.WatchdogSchedule = "@every 1m"
	}
}

// AgentInfo is the read-only registry view exposed to callers.
type AgentInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Role         proto.Role   `json:"role"`
	Status       agent.Status `json:"status"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Tools        []string     `json:"tools,omitempty"`
}

// Workforce is the router and registry for one group of agents. The registry
// is shared mutable state read by concurrently running agent loops; all
// access goes through the workforce's lock, and broadcast resolution always
// works on a copied snapshot.
type Workforce struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string // registration order, used for deterministic startup

	tasks *taskTracker

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	cron    *cron.Cron
}

// New creates an empty workforce.
func New(cfg Config, logger *slog.Logger) *Workforce {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	logger = logging.Component(logger, "workforce")
	return &Workforce{
		cfg:    cfg,
		logger: logger,
		agents: make(map[string]*agent.Agent),
		tasks:  newTaskTracker(logger),
	}
}

// Register adds an agent to the registry. Registration order is preserved
// for startup.
func (w *Workforce) Register(a *agent.Agent) error {
	if a == nil {
		return errors.New("nil agent")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.agents[a.ID()]; exists {
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	w.agents[a.ID()] = a
	w.order = append(w.order, a.ID())
	w.logger.Info("agent registered", "agent", a.Name(), "agent_id", a.ID(), "role", a.Role())
	return nil
}

// Deregister removes an agent. Messages already in its inbox are lost;
// in-flight broadcasts resolved before the removal may still be delivered.
func (w *Workforce) Deregister(agentID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, exists := w.agents[agentID]
	if !exists {
		return fmt.Errorf("agent %s not found", agentID)
	}
	delete(w.agents, agentID)
	for i, id := range w.order {
		if id == agentID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.logger.Info("agent deregistered", "agent", a.Name(), "agent_id", agentID)
	return nil
}

// Get returns a registered agent by id.
func (w *Workforce) Get(agentID string) (*agent.Agent, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agents[agentID]
	return a, ok
}

// ListAgents returns registry descriptors in registration order.
func (w *Workforce) ListAgents() []AgentInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	infos := make([]AgentInfo, 0, len(w.order))
	for _, id := range w.order {
		a := w.agents[id]
		infos = append(infos, AgentInfo{
			ID:           a.ID(),
			Name:         a.Name(),
			Role:         a.Role(),
			Status:       a.Status(),
			Capabilities: a.Capabilities(),
			Tools:        a.AvailableTools(),
		})
	}
	return infos
}

// byRole returns a snapshot of agents with the given role, in registration
// order.
func (w *Workforce) byRole(role proto.Role) []*agent.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*agent.Agent
	for _, id := range w.order {
		if a := w.agents[id]; a.Role() == role {
			out = append(out, a)
		}
	}
	return out
}

// snapshot returns a copy of all registered agents in registration order.
func (w *Workforce) snapshot() []*agent.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*agent.Agent, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.agents[id])
	}
	return out
}

// coordinator returns the first registered COORDINATOR agent.
func (w *Workforce) coordinator() (*agent.Agent, error) {
	agents := w.byRole(proto.RoleCoordinator)
	if len(agents) == 0 {
		return nil, errors.New("no coordinator registered")
	}
	return agents[0], nil
}

// Start launches every registered agent's processing loop and the stall
// watchdog. Agents start in registration order.
func (w *Workforce) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return errors.New("workforce already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, a := range w.snapshot() {
		a := a
		group.Go(func() error {
			err := a.Run(groupCtx, w)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.cfg.WatchdogSchedule, w.failStalledTasks); err != nil {
		cancel()
		return fmt.Errorf("watchdog schedule %q: %w", w.cfg.WatchdogSchedule, err)
	}
	w.cron.Start()

	w.running = true
	w.cancel = cancel
	w.group = group
	w.logger.Info("workforce started", "agents", len(w.order))
	return nil
}

// Stop cancels all agent loops and waits for them to exit, bounded by ctx.
func (w *Workforce) Stop(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if !w.running {
		return errors.New("workforce not started")
	}
	w.running = false
	w.cancel()

	cronDone := w.cron.Stop()

	done := make(chan error, 1)
	go func() { done <- w.group.Wait() }()
	select {
	case err := <-done:
		<-cronDone.Done()
		w.logger.Info("workforce stopped")
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// failStalledTasks fails every IN_PROGRESS task that has gone quiet past the
// stall timeout. A task never sits IN_PROGRESS forever without a liveness
// signal.
func (w *Workforce) failStalledTasks() {
	stalled := w.tasks.failStalled(w.cfg.StallTimeout)
	for _, t := range stalled {
		w.logger.Warn("task stalled, marked failed",
			"task", t.ID, "agent", t.AssignedAgentID, "idle", w.cfg.StallTimeout)
	}
}
