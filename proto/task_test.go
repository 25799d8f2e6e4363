package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitionsAreMonotonic(t *testing.T) {
	task := NewTask("draft outline", "outline the launch post", nil)
	require.Equal(t, TaskPending, task.Status)

	require.NoError(t, task.Transition(TaskAssigned, ""))
	require.NoError(t, task.Transition(TaskInProgress, ""))
	require.NoError(t, task.Transition(TaskCompleted, ""))

	// Terminal states never regress.
	assert.Error(t, task.Transition(TaskInProgress, ""))
	assert.Error(t, task.Transition(TaskPending, ""))
	assert.Error(t, task.Transition(TaskFailed, ""))
}

func TestTaskSkipAheadAllowed(t *testing.T) {
	task := NewTask("t", "d", nil)
	// A task may fail before ever being assigned.
	require.NoError(t, task.Transition(TaskFailed, "no matching agents"))
	assert.Equal(t, "no matching agents", task.Detail)
}

func TestTaskRetryIsTheOnlyRegression(t *testing.T) {
	task := NewTask("t", "d", nil)
	require.NoError(t, task.Transition(TaskAssigned, ""))

	assert.Error(t, task.Retry(), "retry only valid from FAILED")

	require.NoError(t, task.Transition(TaskFailed, "boom"))
	require.NoError(t, task.Retry())
	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Empty(t, task.Detail)
}

func TestNewTaskIDsAreSortableAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	var prev string
	for i := 0; i < 1000; i++ {
		id := NewTaskID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
		require.Len(t, id, 26)
		_ = prev
		prev = id
	}
}

func TestTaskCloneIsIndependent(t *testing.T) {
	task := NewTask("t", "d", map[string]any{"k": "v"})
	clone := task.Clone()
	clone.Inputs["k"] = "changed"
	clone.Status = TaskCompleted

	assert.Equal(t, "v", task.Inputs["k"])
	assert.Equal(t, TaskPending, task.Status)
}
