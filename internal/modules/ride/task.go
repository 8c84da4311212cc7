// README: Per-task state machine for multi-stop errand rides.
package ride

import (
	"fmt"
	"time"

	"glide/internal/types"
)

// TaskState values are strictly ordered; a task only ever moves forward.
type TaskState string

const (
	TaskPending       TaskState = "pending"
	TaskActivated     TaskState = "activated"
	TaskDriverOnWay   TaskState = "driver_on_way"
	TaskDriverArrived TaskState = "driver_arrived"
	TaskStarted       TaskState = "started"
	TaskCompleted     TaskState = "completed"
)

var taskStateOrder = map[TaskState]int{
	TaskPending:       0,
	TaskActivated:     1,
	TaskDriverOnWay:   2,
	TaskDriverArrived: 3,
	TaskStarted:       4,
	TaskCompleted:     5,
}

// ParseTaskState rejects unrecognized state strings instead of coercing them
// to pending; a silent downgrade could mask data corruption.
func ParseTaskState(s string) (TaskState, error) {
	if _, ok := taskStateOrder[TaskState(s)]; !ok {
		return "", fmt.Errorf("%w: unknown task state %q", ErrValidation, s)
	}
	return TaskState(s), nil
}

// nextTaskState returns the successor state, or an error at the end of the
// chain.
func nextTaskState(s TaskState) (TaskState, error) {
	switch s {
	case TaskPending:
		return TaskActivated, nil
	case TaskActivated:
		return TaskDriverOnWay, nil
	case TaskDriverOnWay:
		return TaskDriverArrived, nil
	case TaskDriverArrived:
		return TaskStarted, nil
	case TaskStarted:
		return TaskCompleted, nil
	}
	return "", fmt.Errorf("%w: task already completed", ErrInvalidTransition)
}

// TaskHistoryEntry records one committed task transition; the history log is
// append-only and never rewritten.
type TaskHistoryEntry struct {
	Action string    `json:"action"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// Task is one stop within an errands ride, addressed by stable id rather
// than array position.
type Task struct {
	ID              types.ID           `json:"id"`
	Ord             int                `json:"order"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Pickup          types.Location     `json:"pickup"`
	Dropoff         types.Location     `json:"dropoff"`
	State           TaskState          `json:"state"`
	Cost            *types.Money       `json:"cost,omitempty"`
	DurationMinutes float64            `json:"durationMinutes,omitempty"`
	DistanceKm      float64            `json:"distanceKm,omitempty"`
	History         []TaskHistoryEntry `json:"history"`
}

func (t *Task) record(action string, actor Actor, at time.Time) {
	who := actor.Type
	if actor.ID != nil {
		who = fmt.Sprintf("%s:%s", actor.Type, *actor.ID)
	}
	t.History = append(t.History, TaskHistoryEntry{Action: action, Actor: who, At: at})
}

// AdvanceTask moves the addressed task one state forward. Only the active
// task may transition; retrying an already-applied advance is a no-op. The
// returned bool reports whether anything changed.
func (r *Ride) AdvanceTask(taskID types.ID, expectedFrom TaskState, actor Actor) (*Task, bool, error) {
	t := r.FindTask(taskID)
	if t == nil {
		return nil, false, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	target, err := nextTaskState(expectedFrom)
	if err != nil {
		return t, false, err
	}
	// at-least-once delivery: the same advance applied twice is a no-op
	if t.State == target {
		return t, false, nil
	}
	if r.Status != StatusAssigned && r.Status != StatusInProgress {
		return t, false, fmt.Errorf("%w: ride %s is %s", ErrPreconditionFailed, r.ID, r.Status)
	}
	active := r.ActiveTask()
	if active == nil || active.ID != t.ID {
		return t, false, fmt.Errorf("%w: task %s is not the active task", ErrOutOfOrder, taskID)
	}
	if t.State != expectedFrom {
		if taskStateOrder[t.State] > taskStateOrder[expectedFrom] {
			return t, false, fmt.Errorf("%w: task %s is already %s", ErrInvalidTransition, taskID, t.State)
		}
		return t, false, fmt.Errorf("%w: task %s is %s, expected %s", ErrPreconditionFailed, taskID, t.State, expectedFrom)
	}

	now := time.Now()
	t.State = target
	t.record(string(target), actor, now)

	// task progress drives ride-level progress
	switch target {
	case TaskStarted:
		if _, err := r.applyTransition(StatusInProgress, actor); err != nil {
			return t, false, err
		}
	case TaskCompleted:
		if next := r.ActiveTask(); next != nil {
			if next.State == TaskPending {
				next.State = TaskActivated
				next.record(string(TaskActivated), SystemActor(), now)
			}
		} else {
			if _, err := r.applyTransition(StatusCompleted, actor); err != nil {
				return t, false, err
			}
			if err := r.finalizeCost(); err != nil {
				return t, false, err
			}
		}
	}
	return t, true, nil
}
