// README: Application service for the ride lifecycle. Commands load the
// aggregate through the store, apply one transition and publish the change.
package ride

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"glide/internal/geo"
	"glide/internal/modules/pricing"
	"glide/internal/modules/propagation"
	"glide/internal/observability"
	"glide/internal/types"
)

// Publisher pushes committed aggregate changes to subscribers.
type Publisher interface {
	Publish(e propagation.Event)
}

// Estimator quotes a fare for a ride request.
type Estimator interface {
	Estimate(ctx context.Context, req pricing.FareRequest) (pricing.FareBreakdown, error)
}

// TaskInput is one requested errand stop.
type TaskInput struct {
	Title       string
	Description string
	Pickup      types.Location
	Dropoff     types.Location
}

// CreateRequest carries everything needed to open a ride.
type CreateRequest struct {
	ServiceType    string
	PassengerID    types.ID
	Pickup         types.Location
	Dropoff        types.Location
	Tasks          []TaskInput
	IsSeries       bool
	ScheduledDates []time.Time
	RoundTrip      bool
	PackageSize    string
	VehicleClass   string
}

type Service struct {
	store     Store
	estimator Estimator
	router    geo.Router
	publisher Publisher
	logger    *slog.Logger
}

func NewService(store Store, estimator Estimator, router geo.Router, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		estimator: estimator,
		router:    router,
		publisher: publisher,
		logger:    logger,
	}
}

// Create validates the request, quotes the fare and persists the new ride in
// pending.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Ride, error) {
	st, err := ParseServiceType(req.ServiceType)
	if err != nil {
		return nil, err
	}
	if req.PassengerID == "" {
		return nil, fmt.Errorf("%w: passenger_id is required", ErrValidation)
	}
	if err := validateServiceFields(st, req); err != nil {
		return nil, err
	}

	now := time.Now()
	r := &Ride{
		ID:             types.NewID(),
		ServiceType:    st,
		Status:         StatusPending,
		PassengerID:    req.PassengerID,
		Pickup:         req.Pickup,
		Dropoff:        req.Dropoff,
		IsSeries:       req.IsSeries,
		ScheduledDates: append([]time.Time(nil), req.ScheduledDates...),
		RoundTrip:      req.RoundTrip,
		PackageSize:    req.PackageSize,
		VehicleClass:   req.VehicleClass,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, in := range req.Tasks {
		t := Task{
			ID:          types.NewID(),
			Ord:         i,
			Title:       in.Title,
			Description: in.Description,
			Pickup:      in.Pickup,
			Dropoff:     in.Dropoff,
			State:       TaskPending,
		}
		if est, rerr := s.router.Route(ctx, in.Pickup, in.Dropoff); rerr == nil {
			t.DistanceKm = est.DistanceKm
			t.DurationMinutes = est.DurationMin
		}
		r.Tasks = append(r.Tasks, t)
	}

	fare, err := s.quote(ctx, r)
	if err != nil {
		return nil, err
	}
	// estimated_cost is always the per-occurrence fare; a scheduled series
	// additionally carries the whole-series total.
	r.EstimatedCost = fare.PerOccurrence
	if r.IsSeries {
		total := fare.Total
		r.SeriesTotal = &total
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	observability.RidesCreated.WithLabelValues(string(st)).Inc()
	s.publishChange(r, propagation.KindCreated)
	s.logger.Info("ride created",
		slog.String("ride_id", string(r.ID)),
		slog.String("service_type", string(st)),
		slog.Int64("estimated_cents", r.EstimatedCost.Amount))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByPassenger(ctx context.Context, passengerID string) ([]*Ride, error) {
	return s.store.ListByPassenger(ctx, passengerID)
}

func (s *Service) History(ctx context.Context, id string) ([]Event, error) {
	return s.store.Events(ctx, id)
}

// Start, Complete, Cancel, Dispute and Flag each apply one ride-level
// transition under the store's per-aggregate lock.

func (s *Service) Start(ctx context.Context, id string, actor Actor) (*Ride, error) {
	return s.transition(ctx, id, "start", func(r *Ride) (bool, error) { return r.Start(actor) })
}

func (s *Service) Complete(ctx context.Context, id string, actor Actor) (*Ride, error) {
	return s.transition(ctx, id, "complete", func(r *Ride) (bool, error) { return r.Complete(actor) })
}

func (s *Service) Cancel(ctx context.Context, id, reason string, actor Actor) (*Ride, error) {
	return s.transition(ctx, id, "cancel", func(r *Ride) (bool, error) { return r.Cancel(reason, actor) })
}

func (s *Service) Dispute(ctx context.Context, id string, actor Actor) (*Ride, error) {
	return s.transition(ctx, id, "dispute", func(r *Ride) (bool, error) { return r.Dispute(actor) })
}

func (s *Service) Flag(ctx context.Context, id string, actor Actor) (*Ride, error) {
	return s.transition(ctx, id, "flag", func(r *Ride) (bool, error) { return r.Flag(actor) })
}

// AdvanceTask moves one errand task forward by a single step.
func (s *Service) AdvanceTask(ctx context.Context, rideID string, taskID types.ID, fromState string, actor Actor) (*Ride, error) {
	from, err := ParseTaskState(fromState)
	if err != nil {
		return nil, err
	}
	var changed bool
	r, err := s.store.Mutate(ctx, rideID, func(r *Ride) error {
		_, c, err := r.AdvanceTask(taskID, from, actor)
		changed = c
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		observability.RideTransitions.WithLabelValues(string(r.Status)).Inc()
		s.publishChange(r, propagation.KindUpdated)
		s.logger.Info("task advanced",
			slog.String("ride_id", rideID),
			slog.String("task_id", string(taskID)),
			slog.String("ride_status", string(r.Status)))
	}
	return r, nil
}

func (s *Service) transition(ctx context.Context, id, name string, fn func(*Ride) (bool, error)) (*Ride, error) {
	var changed bool
	var bidsBefore map[types.ID]BidStatus
	r, err := s.store.Mutate(ctx, id, func(r *Ride) error {
		bidsBefore = r.BidStatuses()
		c, err := fn(r)
		changed = c
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		observability.RideTransitions.WithLabelValues(string(r.Status)).Inc()
		s.publishChange(r, propagation.KindUpdated)
		s.publishBidChanges(r, bidsBefore)
		s.logger.Info("ride transition",
			slog.String("ride_id", id),
			slog.String("command", name),
			slog.String("status", string(r.Status)))
	}
	return r, nil
}

// publishChange emits the full post-commit snapshot with routing metadata so
// subscribers can filter without decoding the payload.
func (s *Service) publishChange(r *Ride, kind propagation.EventKind) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ChangeEvent(r, kind))
}

// publishBidChanges emits one event per bid whose status moved inside the
// committed mutation, e.g. pending bids withdrawn by a cancellation. Every
// affected driver hears about their own bid, not just the ride.
func (s *Service) publishBidChanges(r *Ride, before map[types.ID]BidStatus) {
	if s.publisher == nil {
		return
	}
	for i := range r.Bids {
		b := &r.Bids[i]
		prev, existed := before[b.ID]
		switch {
		case !existed:
			s.publisher.Publish(BidChangeEvent(r, b, propagation.KindCreated))
		case prev != b.Status:
			s.publisher.Publish(BidChangeEvent(r, b, propagation.KindUpdated))
		}
	}
}

// ChangeEvent builds the ride-level change event for a committed mutation.
func ChangeEvent(r *Ride, kind propagation.EventKind) propagation.Event {
	meta := map[string]string{
		"passenger_id": string(r.PassengerID),
		"status":       string(r.Status),
		"service_type": string(r.ServiceType),
	}
	if r.DriverID != nil {
		meta["driver_id"] = string(*r.DriverID)
	}
	return propagation.Event{
		Entity:   "ride",
		EntityID: r.ID,
		Kind:     kind,
		Meta:     meta,
		Snapshot: r.Clone(),
		At:       time.Now(),
	}
}

// BidChangeEvent builds the change event for one bid on r.
func BidChangeEvent(r *Ride, b *Bid, kind propagation.EventKind) propagation.Event {
	return propagation.Event{
		Entity:   "bid",
		EntityID: b.ID,
		Kind:     kind,
		Meta: map[string]string{
			"ride_id":      string(r.ID),
			"driver_id":    string(b.DriverID),
			"passenger_id": string(r.PassengerID),
			"status":       string(b.Status),
		},
		Snapshot: *b,
		At:       time.Now(),
	}
}

func (s *Service) quote(ctx context.Context, r *Ride) (pricing.FareBreakdown, error) {
	req := pricing.FareRequest{
		ServiceType:  string(r.ServiceType),
		PackageSize:  r.PackageSize,
		VehicleClass: r.VehicleClass,
		RoundTrip:    r.RoundTrip,
		Occurrences:  1,
	}
	if r.IsSeries {
		req.Occurrences = len(r.ScheduledDates)
	}
	if r.ServiceType == ServiceErrands {
		for _, t := range r.Tasks {
			req.TaskDistancesKm = append(req.TaskDistancesKm, t.DistanceKm)
		}
	} else if est, err := s.router.Route(ctx, r.Pickup, r.Dropoff); err == nil {
		req.DistanceKm = est.DistanceKm
	} else {
		s.logger.Warn("route estimate unavailable, quoting minimum distance",
			slog.String("ride_id", string(r.ID)), slog.String("error", err.Error()))
	}
	return s.estimator.Estimate(ctx, req)
}

func validateServiceFields(st ServiceType, req CreateRequest) error {
	switch st {
	case ServiceErrands:
		if len(req.Tasks) == 0 {
			return fmt.Errorf("%w: errands rides need at least one task", ErrValidation)
		}
		for i, t := range req.Tasks {
			if t.Title == "" {
				return fmt.Errorf("%w: task %d is missing a title", ErrValidation, i)
			}
		}
	case ServiceSchoolRun:
		if req.IsSeries && len(req.ScheduledDates) == 0 {
			return fmt.Errorf("%w: a scheduled series needs at least one date", ErrValidation)
		}
	}
	if !st.allowsSeries() && req.IsSeries {
		return fmt.Errorf("%w: %s rides cannot be scheduled as a series", ErrValidation, st)
	}
	return nil
}

func (s ServiceType) allowsSeries() bool {
	return s == ServiceSchoolRun
}
