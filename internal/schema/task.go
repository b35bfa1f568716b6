package schema

import (
	"fmt"
	"time"
)

// TaskStatus is one state in the task lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether s allows no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// taskTransitions encodes the forward-only state machine:
// pending → in_progress ⇄ blocked, with done and cancelled reachable from
// any non-terminal state.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskDone, TaskCancelled},
	TaskInProgress: {TaskBlocked, TaskDone, TaskCancelled},
	TaskBlocked:    {TaskInProgress, TaskDone, TaskCancelled},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveTask is a user-tracked task that spans sessions and channels.
// Tasks are never deleted; they only move forward to a terminal status.
type ActiveTask struct {
	TaskID         string     `json:"taskId"`
	UserID         string     `json:"userId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         TaskStatus `json:"status"`
	CreatedChannel Channel    `json:"createdChannel,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	DueAt          *time.Time `json:"dueAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func (t *ActiveTask) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task: missing taskId")
	}
	if t.UserID == "" {
		return fmt.Errorf("task: missing userId")
	}
	if t.Title == "" {
		return fmt.Errorf("task: missing title")
	}
	switch t.Status {
	case TaskPending, TaskInProgress, TaskBlocked, TaskDone, TaskCancelled:
	default:
		return fmt.Errorf("task: unknown status %q", t.Status)
	}
	// completedAt is set exactly when the task reached a terminal state.
	if t.Status.Terminal() != (t.CompletedAt != nil) {
		return fmt.Errorf("task: completedAt inconsistent with status %q", t.Status)
	}
	return nil
}
