// README: Bid coordination on top of the ride aggregate. Submission
// validates the amount; acceptance resolves races through the store's
// per-ride mutation lock, so exactly one bid ever wins.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"glide/internal/modules/propagation"
	"glide/internal/modules/ride"
	"glide/internal/observability"
	"glide/internal/types"
)

const (
	minBidCents int64 = 100    // $1.00
	maxBidCents int64 = 999999 // $9,999.99
)

var ErrBadAmount = errors.New("bid amount out of range")

// Publisher pushes committed bid changes to subscribers.
type Publisher interface {
	Publish(e propagation.Event)
}

type SubmitRequest struct {
	RideID   types.ID
	DriverID types.ID
	Amount   float64
	Currency string
}

type Service struct {
	rides     ride.Store
	publisher Publisher
	logger    *slog.Logger
}

func NewService(rides ride.Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{rides: rides, publisher: publisher, logger: logger}
}

// Submit records a driver's offer on a pending ride.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*ride.Bid, error) {
	if req.DriverID == "" {
		return nil, fmt.Errorf("%w: driver_id is required", ride.ErrValidation)
	}
	amount, err := types.MoneyFromFloat(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ride.ErrValidation, err)
	}
	if amount.Amount < minBidCents || amount.Amount > maxBidCents {
		return nil, fmt.Errorf("%w: %s is outside [$1.00, $9,999.99]", ErrBadAmount, amount)
	}

	now := time.Now()
	bid := ride.Bid{
		ID:        types.NewID(),
		RideID:    req.RideID,
		DriverID:  req.DriverID,
		Amount:    amount,
		Status:    ride.BidPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var before beforeState
	r, err := s.rides.Mutate(ctx, string(req.RideID), func(r *ride.Ride) error {
		before = snapshot(r)
		return r.AddBid(bid)
	})
	if err != nil {
		return nil, err
	}
	observability.BidsSubmitted.Inc()
	s.publishDiff(r, before)
	s.logger.Info("bid submitted",
		slog.String("ride_id", string(req.RideID)),
		slog.String("bid_id", string(bid.ID)),
		slog.Int64("amount_cents", amount.Amount))
	return r.FindBid(bid.ID), nil
}

// Accept picks the winning bid. Losers of a concurrent accept observe
// ride.ErrConflict; retrying the winner is a no-op.
//
// One accept moves the ride to assigned, the winner to accepted and every
// pending sibling to rejected, so the publish diff emits an event for each:
// losing drivers and the passenger's ride view both hear the outcome.
func (s *Service) Accept(ctx context.Context, rideID, bidID types.ID) (*ride.Ride, error) {
	var changed bool
	var before beforeState
	r, err := s.rides.Mutate(ctx, string(rideID), func(r *ride.Ride) error {
		before = snapshot(r)
		c, err := r.AcceptBid(bidID)
		changed = c
		return err
	})
	if err != nil {
		if errors.Is(err, ride.ErrConflict) {
			observability.BidAcceptConflicts.Inc()
		}
		return nil, err
	}
	if changed {
		observability.RideTransitions.WithLabelValues(string(r.Status)).Inc()
		s.publishDiff(r, before)
		s.logger.Info("bid accepted",
			slog.String("ride_id", string(rideID)),
			slog.String("bid_id", string(bidID)))
	}
	return r, nil
}

// Withdraw retracts the driver's own pending bid.
func (s *Service) Withdraw(ctx context.Context, rideID, bidID types.ID) (*ride.Bid, error) {
	return s.bidMutation(ctx, rideID, bidID, "bid withdrawn", func(r *ride.Ride) (bool, error) {
		return r.WithdrawBid(bidID)
	})
}

// Decline rejects a pending bid on the passenger's behalf.
func (s *Service) Decline(ctx context.Context, rideID, bidID types.ID, reason string) (*ride.Bid, error) {
	return s.bidMutation(ctx, rideID, bidID, "bid declined", func(r *ride.Ride) (bool, error) {
		return r.DeclineBid(bidID, reason)
	})
}

// List returns all bids on a ride, accepted and withdrawn included.
func (s *Service) List(ctx context.Context, rideID types.ID) ([]ride.Bid, error) {
	r, err := s.rides.Get(ctx, string(rideID))
	if err != nil {
		return nil, err
	}
	return r.Bids, nil
}

func (s *Service) bidMutation(ctx context.Context, rideID, bidID types.ID, msg string, fn func(*ride.Ride) (bool, error)) (*ride.Bid, error) {
	var changed bool
	var before beforeState
	r, err := s.rides.Mutate(ctx, string(rideID), func(r *ride.Ride) error {
		before = snapshot(r)
		c, err := fn(r)
		changed = c
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publishDiff(r, before)
		s.logger.Info(msg,
			slog.String("ride_id", string(rideID)),
			slog.String("bid_id", string(bidID)))
	}
	return r.FindBid(bidID), nil
}

// beforeState is the pre-mutation view used to decide which change events a
// committed bid mutation produced.
type beforeState struct {
	status ride.Status
	bids   map[types.ID]ride.BidStatus
}

func snapshot(r *ride.Ride) beforeState {
	return beforeState{status: r.Status, bids: r.BidStatuses()}
}

// publishDiff emits the ride-level event when the mutation moved the ride
// status, plus one event per bid that was created or changed status in the
// same unit of work.
func (s *Service) publishDiff(r *ride.Ride, before beforeState) {
	if s.publisher == nil {
		return
	}
	if r.Status != before.status {
		s.publisher.Publish(ride.ChangeEvent(r, propagation.KindUpdated))
	}
	for i := range r.Bids {
		b := &r.Bids[i]
		prev, existed := before.bids[b.ID]
		switch {
		case !existed:
			s.publisher.Publish(ride.BidChangeEvent(r, b, propagation.KindCreated))
		case prev != b.Status:
			s.publisher.Publish(ride.BidChangeEvent(r, b, propagation.KindUpdated))
		}
	}
}
