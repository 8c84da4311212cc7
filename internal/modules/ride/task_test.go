// README: Task state machine tests: monotonic order, single active task,
// idempotent retries, ride-level side effects.
package ride

import (
	"errors"
	"testing"
	"time"

	"glide/internal/types"
)

func newErrandRide(taskCount int) *Ride {
	r := newTestRide(ServiceErrands)
	for i := 0; i < taskCount; i++ {
		r.Tasks = append(r.Tasks, Task{
			ID:    types.NewID(),
			Ord:   i,
			Title: "stop",
			State: TaskPending,
		})
	}
	b := newTestBid(r.ID, 3000)
	if err := r.AddBid(b); err != nil {
		panic(err)
	}
	if _, err := r.AcceptBid(b.ID); err != nil {
		panic(err)
	}
	return r
}

func advance(t *testing.T, r *Ride, task types.ID, from TaskState) {
	t.Helper()
	if _, _, err := r.AdvanceTask(task, from, SystemActor()); err != nil {
		t.Fatalf("advance from %s: %v", from, err)
	}
}

func TestAcceptActivatesFirstTask(t *testing.T) {
	r := newErrandRide(2)
	if r.Tasks[0].State != TaskActivated {
		t.Fatalf("first task = %s, want activated", r.Tasks[0].State)
	}
	if r.Tasks[1].State != TaskPending {
		t.Fatalf("second task = %s, want pending", r.Tasks[1].State)
	}
}

func TestTaskChainDrivesRide(t *testing.T) {
	r := newErrandRide(2)
	first, second := r.Tasks[0].ID, r.Tasks[1].ID

	advance(t, r, first, TaskActivated)
	advance(t, r, first, TaskDriverOnWay)
	if r.Status != StatusAssigned {
		t.Fatalf("before first start, ride = %s", r.Status)
	}
	advance(t, r, first, TaskDriverArrived) // arrived signal starts the stop
	if r.Status != StatusInProgress {
		t.Fatalf("after first task starts, ride = %s", r.Status)
	}
	advance(t, r, first, TaskStarted)
	if r.FindTask(first).State != TaskCompleted {
		t.Fatal("first task must complete")
	}
	if r.FindTask(second).State != TaskActivated {
		t.Fatal("completing a task must activate the next one")
	}

	advance(t, r, second, TaskActivated)
	advance(t, r, second, TaskDriverOnWay)
	advance(t, r, second, TaskDriverArrived)
	advance(t, r, second, TaskStarted)
	if r.Status != StatusCompleted {
		t.Fatalf("after last task completes, ride = %s", r.Status)
	}
	if r.FinalCost == nil || r.FinalCost.Amount != 3000 {
		t.Fatalf("FinalCost = %+v", r.FinalCost)
	}
	var sum int64
	for _, task := range r.Tasks {
		if task.Cost == nil {
			t.Fatal("every task must carry a cost share after completion")
		}
		sum += task.Cost.Amount
	}
	if sum != 3000 {
		t.Fatalf("task shares sum to %d, want 3000", sum)
	}
}

func TestOnlyActiveTaskMayAdvance(t *testing.T) {
	r := newErrandRide(2)
	second := r.Tasks[1].ID
	if _, _, err := r.AdvanceTask(second, TaskPending, SystemActor()); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("advancing inactive task = %v, want ErrOutOfOrder", err)
	}
}

func TestAdvanceIdempotentRetry(t *testing.T) {
	r := newErrandRide(1)
	task := r.Tasks[0].ID
	advance(t, r, task, TaskActivated)
	// same signal delivered twice
	_, changed, err := r.AdvanceTask(task, TaskActivated, SystemActor())
	if err != nil || changed {
		t.Fatalf("retry: changed=%v err=%v", changed, err)
	}
	if len(r.Tasks[0].History) != 2 { // activation + driver_on_way
		t.Fatalf("retry must not append history, got %d entries", len(r.Tasks[0].History))
	}
}

func TestAdvanceSkippingStateRejected(t *testing.T) {
	r := newErrandRide(1)
	task := r.Tasks[0].ID
	// driver claims arrival while the task is still merely activated
	if _, _, err := r.AdvanceTask(task, TaskDriverArrived, SystemActor()); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("skipping ahead = %v, want ErrPreconditionFailed", err)
	}
}

func TestAdvanceStaleSignalRejected(t *testing.T) {
	r := newErrandRide(1)
	task := r.Tasks[0].ID
	advance(t, r, task, TaskActivated)
	advance(t, r, task, TaskDriverOnWay)
	// a delayed duplicate of the first signal arrives after the second applied
	if _, _, err := r.AdvanceTask(task, TaskActivated, SystemActor()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stale signal = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceNeedsLiveRide(t *testing.T) {
	r := newTestRide(ServiceErrands)
	r.Tasks = []Task{{ID: types.NewID(), Title: "stop", State: TaskPending}}
	if _, _, err := r.AdvanceTask(r.Tasks[0].ID, TaskPending, SystemActor()); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("advance on pending ride = %v, want ErrPreconditionFailed", err)
	}
}

func TestParseTaskStateRejectsUnknown(t *testing.T) {
	if _, err := ParseTaskState("teleported"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseTaskState(teleported) = %v, want ErrValidation", err)
	}
}

func TestTaskHistoryAppendOnly(t *testing.T) {
	r := newErrandRide(1)
	task := r.Tasks[0].ID
	before := time.Now()
	advance(t, r, task, TaskActivated)
	h := r.Tasks[0].History
	if len(h) != 2 {
		t.Fatalf("history = %d entries, want 2", len(h))
	}
	last := h[len(h)-1]
	if last.Action != string(TaskDriverOnWay) {
		t.Fatalf("last action = %s", last.Action)
	}
	if last.At.Before(before) {
		t.Fatal("history timestamps must be set at transition time")
	}
}

func TestCompleteRideBlockedByOpenTasks(t *testing.T) {
	r := newErrandRide(1)
	advance(t, r, r.Tasks[0].ID, TaskActivated)
	advance(t, r, r.Tasks[0].ID, TaskDriverOnWay)
	advance(t, r, r.Tasks[0].ID, TaskDriverArrived)
	// ride now in_progress but the task is started, not completed
	if _, err := r.Complete(SystemActor()); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("complete with open task = %v, want ErrPreconditionFailed", err)
	}
}
