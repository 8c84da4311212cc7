// README: State-machine table tests for the ride lifecycle.
package ride

import (
	"errors"
	"testing"
	"time"

	"glide/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPending, StatusOffered, true},
		{StatusPending, StatusAssigned, true},
		{StatusOffered, StatusAssigned, true},
		{StatusAssigned, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		// cancel from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusOffered, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		// complaint path: only after the ride is underway
		{StatusInProgress, StatusDisputed, true},
		{StatusInProgress, StatusFlagged, true},
		{StatusCompleted, StatusDisputed, true},
		{StatusCompleted, StatusFlagged, true},
		{StatusPending, StatusDisputed, false},
		{StatusAssigned, StatusFlagged, false},
		// no skipping forward
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusOffered, StatusCompleted, false},
		{StatusAssigned, StatusCompleted, false},
		// no going back
		{StatusAssigned, StatusPending, false},
		{StatusInProgress, StatusAssigned, false},
		{StatusCompleted, StatusInProgress, false},
		// terminal states stay terminal
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAssigned, false},
		{StatusDisputed, StatusInProgress, false},
		{StatusFlagged, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseServiceType(t *testing.T) {
	for _, s := range []string{"taxi", "courier", "school_run", "errands", "bulk"} {
		if _, err := ParseServiceType(s); err != nil {
			t.Errorf("ParseServiceType(%q) = %v", s, err)
		}
	}
	if _, err := ParseServiceType("helicopter"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseServiceType(helicopter) = %v, want ErrValidation", err)
	}
}

func newTestRide(st ServiceType) *Ride {
	now := time.Now()
	return &Ride{
		ID:            types.NewID(),
		ServiceType:   st,
		Status:        StatusPending,
		PassengerID:   types.NewID(),
		EstimatedCost: types.Money{Amount: 1500, Currency: "USD"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newTestBid(rideID types.ID, cents int64) Bid {
	now := time.Now()
	return Bid{
		ID:        types.NewID(),
		RideID:    rideID,
		DriverID:  types.NewID(),
		Amount:    types.Money{Amount: cents, Currency: "USD"},
		Status:    BidPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestApplyTransitionIdempotent(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	changed, err := r.applyTransition(StatusPending, SystemActor())
	if err != nil || changed {
		t.Fatalf("re-applying current status: changed=%v err=%v", changed, err)
	}
	if r.StatusVersion != 0 || len(r.pendingEvents) != 0 {
		t.Fatalf("no-op must not bump version or log events")
	}
}

func TestTransitionAppendsEvent(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	if _, err := r.applyTransition(StatusOffered, SystemActor()); err != nil {
		t.Fatal(err)
	}
	if r.StatusVersion != 1 {
		t.Fatalf("StatusVersion = %d, want 1", r.StatusVersion)
	}
	evts := r.TakeEvents()
	if len(evts) != 1 || evts[0].FromStatus != StatusPending || evts[0].ToStatus != StatusOffered {
		t.Fatalf("unexpected events %+v", evts)
	}
	if got := r.TakeEvents(); len(got) != 0 {
		t.Fatal("TakeEvents must drain")
	}
}

func TestAcceptBidSingleWinner(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b1 := newTestBid(r.ID, 2000)
	b2 := newTestBid(r.ID, 1800)
	if err := r.AddBid(b1); err != nil {
		t.Fatal(err)
	}
	if err := r.AddBid(b2); err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusOffered {
		t.Fatalf("first bid should flip ride to offered, got %s", r.Status)
	}

	if _, err := r.AcceptBid(b1.ID); err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusAssigned {
		t.Fatalf("status = %s, want assigned", r.Status)
	}
	if r.DriverID == nil || *r.DriverID != b1.DriverID {
		t.Fatal("winner's driver must be assigned")
	}
	if r.FindBid(b2.ID).Status != BidRejected {
		t.Fatal("losing pending bid must be rejected")
	}

	// second accept of a different bid loses
	if _, err := r.AcceptBid(b2.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("accepting a second bid = %v, want ErrConflict", err)
	}
	// retry of the winning accept is a no-op
	changed, err := r.AcceptBid(b1.ID)
	if err != nil || changed {
		t.Fatalf("winning retry: changed=%v err=%v", changed, err)
	}
}

func TestAddBidRules(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b := newTestBid(r.ID, 2000)
	if err := r.AddBid(b); err != nil {
		t.Fatal(err)
	}
	dup := newTestBid(r.ID, 2500)
	dup.DriverID = b.DriverID
	if err := r.AddBid(dup); !errors.Is(err, ErrValidation) {
		t.Fatalf("second pending bid by same driver = %v, want ErrValidation", err)
	}

	if _, err := r.AcceptBid(b.ID); err != nil {
		t.Fatal(err)
	}
	late := newTestBid(r.ID, 1700)
	if err := r.AddBid(late); !errors.Is(err, ErrValidation) {
		t.Fatalf("bid on assigned ride = %v, want ErrValidation", err)
	}
}

func TestWithdrawAndDecline(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b := newTestBid(r.ID, 2000)
	if err := r.AddBid(b); err != nil {
		t.Fatal(err)
	}

	if _, err := r.DeclineBid(b.ID, "too expensive"); err != nil {
		t.Fatal(err)
	}
	got := r.FindBid(b.ID)
	if got.Status != BidRejected || got.DeclineReason == nil || *got.DeclineReason != "too expensive" {
		t.Fatalf("declined bid = %+v", got)
	}
	// decline retry is a no-op, withdraw of a rejected bid is not
	if changed, err := r.DeclineBid(b.ID, ""); err != nil || changed {
		t.Fatalf("decline retry: changed=%v err=%v", changed, err)
	}
	if _, err := r.WithdrawBid(b.ID); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("withdraw rejected bid = %v, want ErrPreconditionFailed", err)
	}

	b2 := newTestBid(r.ID, 1900)
	if err := r.AddBid(b2); err != nil {
		t.Fatal(err)
	}
	if _, err := r.WithdrawBid(b2.ID); err != nil {
		t.Fatal(err)
	}
	if r.FindBid(b2.ID).Status != BidWithdrawn {
		t.Fatal("withdrawn bid must keep withdrawn status")
	}
}

func TestCancelWithdrawsPendingBids(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b := newTestBid(r.ID, 2000)
	if err := r.AddBid(b); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Cancel("changed my mind", PassengerActor(r.PassengerID)); err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusCancelled {
		t.Fatalf("status = %s", r.Status)
	}
	if r.CancelReason == nil || *r.CancelReason != "changed my mind" {
		t.Fatal("cancel reason must be recorded")
	}
	if r.FindBid(b.ID).Status != BidWithdrawn {
		t.Fatal("pending bids must be withdrawn on cancel")
	}
}

func TestCancelAfterAssignKeepsDriver(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b := newTestBid(r.ID, 2000)
	if err := r.AddBid(b); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AcceptBid(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Cancel("", OperatorActor(types.NewID())); err != nil {
		t.Fatal(err)
	}
	if r.DriverID == nil {
		t.Fatal("driver assignment is part of the audit trail and must survive cancel")
	}
}

func TestFinalizeCostPrefersAcceptedBid(t *testing.T) {
	r := newTestRide(ServiceTaxi)
	b := newTestBid(r.ID, 1800)
	if err := r.AddBid(b); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AcceptBid(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(DriverActor(b.DriverID)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Complete(DriverActor(b.DriverID)); err != nil {
		t.Fatal(err)
	}
	if r.FinalCost == nil || r.FinalCost.Amount != 1800 {
		t.Fatalf("FinalCost = %+v, want accepted bid amount 1800", r.FinalCost)
	}
	// complete retry stays a no-op and does not recompute
	if changed, err := r.Complete(SystemActor()); err != nil || changed {
		t.Fatalf("complete retry: changed=%v err=%v", changed, err)
	}
}
