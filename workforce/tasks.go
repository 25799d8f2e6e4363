package workforce

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seoflow-ai/seoflow/agent"
	"github.com/seoflow-ai/seoflow/pkg/observability"
	"github.com/seoflow-ai/seoflow/proto"
)

// taskTracker is the router's view of the task tree. Tasks are created when
// TASK_ASSIGNMENT messages pass through Route and mutated only by
// STATUS_UPDATE messages; transitions are monotonic.
type taskTracker struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*proto.Task
}

func newTaskTracker(logger *slog.Logger) *taskTracker {
	return &taskTracker{
		logger: logger,
		tasks:  make(map[string]*proto.Task),
	}
}

// track registers a task the tracker has not seen yet.
func (t *taskTracker) track(task *proto.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.tasks[task.ID]; !exists {
		t.tasks[task.ID] = task
	}
	t.publishGauges()
}

// observe updates the tracker from one routed message.
func (t *taskTracker) observe(msg *proto.Message, targets []*agent.Agent) {
	switch msg.Header.Type {
	case proto.TypeTaskAssignment:
		var p proto.TaskAssignmentPayload
		if err := msg.DecodePayload(&p); err != nil {
			return
		}
		t.observeAssignment(p, targets)

	case proto.TypeStatusUpdate:
		var p proto.StatusUpdatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return
		}
		t.observeStatus(msg.Header.SenderID, p)
	}
}

func (t *taskTracker) observeAssignment(p proto.TaskAssignmentPayload, targets []*agent.Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, exists := t.tasks[p.TaskID]
	if !exists {
		task = &proto.Task{
			ID:          p.TaskID,
			Title:       p.Title,
			Description: p.Description,
			Inputs:      p.Inputs,
			Status:      proto.TaskPending,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if parent, ok := p.Inputs["goal_task_id"].(string); ok {
			task.ParentID = parent
		}
		t.tasks[task.ID] = task
	}
	if len(targets) == 1 {
		task.AssignedAgentID = targets[0].ID()
	}
	if err := task.Transition(proto.TaskAssigned, task.Detail); err != nil {
		// Reassignment of an already-running task; keep the current state.
		t.logger.Debug("assignment ignored", "task", task.ID, "error", err)
	}
	t.publishGauges()
}

func (t *taskTracker) observeStatus(senderID string, p proto.StatusUpdatePayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, exists := t.tasks[p.TaskID]
	if !exists {
		t.logger.Warn("status update for unknown task", "task", p.TaskID, "status", p.Status)
		return
	}
	if task.AssignedAgentID == "" {
		task.AssignedAgentID = senderID
	}
	if err := task.Transition(p.Status, p.Detail); err != nil {
		t.logger.Warn("status transition rejected", "task", task.ID, "error", err)
		return
	}
	if task.Status.Terminal() && task.ParentID != "" {
		t.closeParent(task.ParentID)
	}
	t.publishGauges()
}

// closeParent rolls a finished subtask up into its parent: once every child
// of parentID is terminal, the parent closes too, COMPLETED when all
// children completed and FAILED otherwise. Callers hold t.mu.
func (t *taskTracker) closeParent(parentID string) {
	parent, ok := t.tasks[parentID]
	if !ok || parent.Status.Terminal() {
		return
	}
	var total, failed int
	for _, task := range t.tasks {
		if task.ParentID != parentID {
			continue
		}
		if !task.Status.Terminal() {
			return
		}
		total++
		if task.Status == proto.TaskFailed {
			failed++
		}
	}
	if total == 0 {
		return
	}

	status := proto.TaskCompleted
	detail := fmt.Sprintf("all %d subtasks completed", total)
	if failed > 0 {
		status = proto.TaskFailed
		detail = fmt.Sprintf("%d of %d subtasks failed", failed, total)
	}
	if err := parent.Transition(status, detail); err != nil {
		t.logger.Warn("parent rollup rejected", "task", parentID, "error", err)
		return
	}
	t.logger.Info("parent task closed", "task", parentID, "status", status, "subtasks", total)
	if parent.ParentID != "" {
		t.closeParent(parent.ParentID)
	}
}

// get returns a copy of the task.
func (t *taskTracker) get(taskID string) (*proto.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// children returns copies of all tasks whose parent is taskID, oldest first.
func (t *taskTracker) children(taskID string) []*proto.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*proto.Task
	for _, task := range t.tasks {
		if task.ParentID == taskID {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// failStalled fails every IN_PROGRESS task idle longer than timeout and
// returns copies of the tasks it failed.
func (t *taskTracker) failStalled(timeout time.Duration) []*proto.Task {
	cutoff := time.Now().UTC().Add(-timeout)
	t.mu.Lock()
	defer t.mu.Unlock()

	// A task whose children are still running is not stalled: progress is
	// reported against the children, and the rollup closes it for us.
	liveChildren := make(map[string]bool)
	for _, task := range t.tasks {
		if task.ParentID != "" && !task.Status.Terminal() {
			liveChildren[task.ParentID] = true
		}
	}

	var failed []*proto.Task
	for _, task := range t.tasks {
		if task.Status != proto.TaskInProgress || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		if liveChildren[task.ID] {
			continue
		}
		detail := fmt.Sprintf("no status update for %s, task presumed dead", timeout)
		if err := task.Transition(proto.TaskFailed, detail); err != nil {
			continue
		}
		failed = append(failed, task.Clone())
		if task.ParentID != "" {
			t.closeParent(task.ParentID)
		}
	}
	if len(failed) > 0 {
		t.publishGauges()
	}
	return failed
}

// publishGauges exports per-status task counts. Callers hold t.mu.
func (t *taskTracker) publishGauges() {
	counts := make(map[proto.TaskStatus]int)
	for _, task := range t.tasks {
		counts[task.Status]++
	}
	for _, status := range []proto.TaskStatus{
		proto.TaskPending, proto.TaskAssigned, proto.TaskInProgress, proto.TaskCompleted, proto.TaskFailed,
	} {
		observability.SetTasksByStatus(string(status), counts[status])
	}
}

// SubmitGoal creates the root task for a campaign goal and assigns it to the
// coordinator. The returned id is the root of the task tree; subtasks created
// by decomposition carry it as their parent.
func (w *Workforce) SubmitGoal(ctx context.Context, title, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	coord, err := w.coordinator()
	if err != nil {
		return "", err
	}

	root := proto.NewTask(title, description, nil)
	w.tasks.track(root)

	msg, err := proto.Build(RouterID, coord.ID(), proto.TypeTaskAssignment, proto.TaskAssignmentPayload{
		TaskID:      root.ID,
		Title:       root.Title,
		Description: root.Description,
		Inputs:      root.Inputs,
	})
	if err != nil {
		return "", err
	}
	if err := w.Route(msg); err != nil {
		return "", err
	}
	w.logger.Info("goal submitted", "task", root.ID, "title", title, "coordinator", coord.Name())
	return root.ID, nil
}

// GetStatus returns a copy of the tracked task.
func (w *Workforce) GetStatus(taskID string) (*proto.Task, error) {
	task, ok := w.tasks.get(taskID)
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// Subtasks returns the direct children of a task, ordered by creation.
func (w *Workforce) Subtasks(taskID string) []*proto.Task {
	return w.tasks.children(taskID)
}
