package proto

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskAssigned   TaskStatus = "ASSIGNED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// rank orders statuses for the monotonicity guard. COMPLETED and FAILED are
// both terminal.
var statusRank = map[TaskStatus]int{
	TaskPending:    0,
	TaskAssigned:   1,
	TaskInProgress: 2,
	TaskCompleted:  3,
	TaskFailed:     3,
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether moving from s to next is a forward
// transition. A task never regresses absent an explicit retry, which resets
// the task through Retry rather than a plain status write.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// Task is a unit of work produced by goal decomposition and tracked by the
// workforce router. Status mutations go through the router only.
type Task struct {
	ID              string         `json:"task_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	Status          TaskStatus     `json:"status"`
	AssignedAgentID string         `json:"assigned_agent_id,omitempty"`
	RetryCount      int            `json:"retry_count"`
	ParentID        string         `json:"parent_id,omitempty"`
	Detail          string         `json:"detail,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewTask creates a PENDING task with a fresh id.
func NewTask(title, description string, inputs map[string]any) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          NewTaskID(),
		Title:       title,
		Description: description,
		Inputs:      inputs,
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTaskID returns a ULID, so task ids sort by creation time.
func NewTaskID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Transition applies a forward status change, rejecting regressions.
func (t *Task) Transition(next TaskStatus, detail string) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("task %s: illegal transition %s -> %s", t.ID, t.Status, next)
	}
	t.Status = next
	t.Detail = detail
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Retry resets a failed task to PENDING and bumps the retry counter. This is
// the only sanctioned status regression.
func (t *Task) Retry() error {
	if t.Status != TaskFailed {
		return fmt.Errorf("task %s: retry from %s not allowed", t.ID, t.Status)
	}
	t.Status = TaskPending
	t.Detail = ""
	t.RetryCount++
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy of the task, safe to hand to callers while the
// router keeps mutating the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.Inputs != nil {
		c.Inputs = make(map[string]any, len(t.Inputs))
		for k, v := range t.Inputs {
			c.Inputs[k] = v
		}
	}
	return &c
}
