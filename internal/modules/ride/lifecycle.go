// README: Aggregate transition entry points; all ride/bid/task mutations pass through here.
package ride

import (
	"errors"
	"fmt"
	"time"

	"glide/internal/modules/pricing"
	"glide/internal/types"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("ride already assigned")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrOutOfOrder         = errors.New("task out of order")
	ErrNotFound           = errors.New("not found")
)

// applyTransition moves the ride to the target status. Re-applying the
// current status is a no-op so at-least-once delivery from external signal
// sources never turns into an error; a genuinely disallowed transition is
// rejected, not ignored.
func (r *Ride) applyTransition(to Status, actor Actor) (bool, error) {
	if r.Status == to {
		return false, nil
	}
	if !CanTransition(r.Status, to) {
		return false, fmt.Errorf("%w: cannot go from %s to %s", ErrPreconditionFailed, r.Status, to)
	}
	from := r.Status
	r.Status = to
	r.StatusVersion++
	r.UpdatedAt = time.Now()
	r.pendingEvents = append(r.pendingEvents, Event{
		RideID:     r.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		CreatedAt:  r.UpdatedAt,
	})
	return true, nil
}

// Start records the driver's arrival/start signal.
func (r *Ride) Start(actor Actor) (bool, error) {
	return r.applyTransition(StatusInProgress, actor)
}

// Complete finishes the ride. An errands ride with unfinished tasks cannot
// be completed.
func (r *Ride) Complete(actor Actor) (bool, error) {
	if r.Status == StatusCompleted {
		return false, nil
	}
	if r.ServiceType == ServiceErrands && r.ActiveTask() != nil {
		return false, fmt.Errorf("%w: ride %s has unfinished tasks", ErrPreconditionFailed, r.ID)
	}
	changed, err := r.applyTransition(StatusCompleted, actor)
	if err != nil || !changed {
		return changed, err
	}
	return true, r.finalizeCost()
}

// Cancel aborts a non-terminal ride and withdraws any still-pending bids.
func (r *Ride) Cancel(reason string, actor Actor) (bool, error) {
	if r.Status == StatusCancelled {
		return false, nil
	}
	changed, err := r.applyTransition(StatusCancelled, actor)
	if err != nil || !changed {
		return changed, err
	}
	if reason != "" {
		r.CancelReason = &reason
	}
	now := time.Now()
	for i := range r.Bids {
		if r.Bids[i].Status == BidPending {
			r.Bids[i].Status = BidWithdrawn
			r.Bids[i].UpdatedAt = now
		}
	}
	return true, nil
}

// Dispute and Flag open the conflict/complaint path.
func (r *Ride) Dispute(actor Actor) (bool, error) { return r.applyTransition(StatusDisputed, actor) }
func (r *Ride) Flag(actor Actor) (bool, error)    { return r.applyTransition(StatusFlagged, actor) }

// AddBid appends a driver's offer. The first bid flips a pending ride to the
// offered view state.
func (r *Ride) AddBid(b Bid) error {
	if !acceptingOffers(r.Status) {
		return fmt.Errorf("%w: ride %s is not accepting offers", ErrValidation, r.ID)
	}
	if r.PendingBidByDriver(b.DriverID) != nil {
		return fmt.Errorf("%w: driver %s already has a pending bid", ErrValidation, b.DriverID)
	}
	r.Bids = append(r.Bids, b)
	if r.Status == StatusPending {
		if _, err := r.applyTransition(StatusOffered, SystemActor()); err != nil {
			return err
		}
	}
	return nil
}

// AcceptBid is the single-winner hot path: it checks that no bid has been
// accepted yet and, in the same aggregate mutation, accepts the winner,
// rejects the pending siblings and assigns the ride. A concurrent loser
// observes the accepted bid and gets ErrConflict.
func (r *Ride) AcceptBid(bidID types.ID) (bool, error) {
	b := r.FindBid(bidID)
	if b == nil {
		return false, fmt.Errorf("%w: bid %s", ErrNotFound, bidID)
	}
	// idempotent retry of an already-won acceptance
	if b.Status == BidAccepted && r.DriverID != nil && *r.DriverID == b.DriverID {
		return false, nil
	}
	if accepted := r.AcceptedBid(); accepted != nil {
		return false, fmt.Errorf("%w: bid %s already accepted", ErrConflict, accepted.ID)
	}
	if !acceptingOffers(r.Status) {
		return false, fmt.Errorf("%w: ride %s is %s", ErrPreconditionFailed, r.ID, r.Status)
	}
	if b.Status != BidPending {
		return false, fmt.Errorf("%w: bid %s is %s", ErrPreconditionFailed, b.ID, b.Status)
	}

	now := time.Now()
	b.Status = BidAccepted
	b.UpdatedAt = now
	for i := range r.Bids {
		if r.Bids[i].ID != b.ID && r.Bids[i].Status == BidPending {
			r.Bids[i].Status = BidRejected
			r.Bids[i].UpdatedAt = now
		}
	}
	if _, err := r.applyTransition(StatusAssigned, DriverActor(b.DriverID)); err != nil {
		return false, err
	}
	d := b.DriverID
	r.DriverID = &d
	if r.ServiceType == ServiceErrands && len(r.Tasks) > 0 && r.Tasks[0].State == TaskPending {
		r.Tasks[0].State = TaskActivated
		r.Tasks[0].record(string(TaskActivated), SystemActor(), now)
	}
	return true, nil
}

// WithdrawBid retracts a driver's own pending bid. Withdrawal is a state,
// not a deletion.
func (r *Ride) WithdrawBid(bidID types.ID) (bool, error) {
	b := r.FindBid(bidID)
	if b == nil {
		return false, fmt.Errorf("%w: bid %s", ErrNotFound, bidID)
	}
	if b.Status == BidWithdrawn {
		return false, nil
	}
	if b.Status != BidPending {
		return false, fmt.Errorf("%w: bid %s is %s", ErrPreconditionFailed, b.ID, b.Status)
	}
	b.Status = BidWithdrawn
	b.UpdatedAt = time.Now()
	return true, nil
}

// DeclineBid rejects a pending bid, keeping the reason for audit.
func (r *Ride) DeclineBid(bidID types.ID, reason string) (bool, error) {
	b := r.FindBid(bidID)
	if b == nil {
		return false, fmt.Errorf("%w: bid %s", ErrNotFound, bidID)
	}
	if b.Status == BidRejected {
		return false, nil
	}
	if b.Status != BidPending {
		return false, fmt.Errorf("%w: bid %s is %s", ErrPreconditionFailed, b.ID, b.Status)
	}
	b.Status = BidRejected
	if reason != "" {
		b.DeclineReason = &reason
	}
	b.UpdatedAt = time.Now()
	return true, nil
}

// finalizeCost fixes final_cost once, preferring the accepted bid amount
// over the estimate, and allocates per-task costs for errand rides.
func (r *Ride) finalizeCost() error {
	if r.FinalCost != nil {
		return nil
	}
	total := r.EstimatedCost
	if b := r.AcceptedBid(); b != nil {
		total = b.Amount
	}
	if len(r.Tasks) > 0 {
		shares, err := pricing.Distribute(total, len(r.Tasks))
		if err != nil {
			return err
		}
		for i := range r.Tasks {
			c := shares[i]
			r.Tasks[i].Cost = &c
		}
	}
	r.FinalCost = &total
	return nil
}
