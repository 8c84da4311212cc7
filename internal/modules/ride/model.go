// README: Ride aggregate, status definitions and transition table.
package ride

import (
	"fmt"
	"time"

	"glide/internal/types"
)

type ServiceType string

const (
	ServiceTaxi      ServiceType = "taxi"
	ServiceCourier   ServiceType = "courier"
	ServiceSchoolRun ServiceType = "school_run"
	ServiceErrands   ServiceType = "errands"
	ServiceBulk      ServiceType = "bulk"
)

func ParseServiceType(s string) (ServiceType, error) {
	switch ServiceType(s) {
	case ServiceTaxi, ServiceCourier, ServiceSchoolRun, ServiceErrands, ServiceBulk:
		return ServiceType(s), nil
	}
	return "", fmt.Errorf("%w: unknown service type %q", ErrValidation, s)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusOffered    Status = "offered"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDisputed   Status = "disputed"
	StatusFlagged    Status = "flagged"
)

// AllowedTransitions represents the ride state flow as code. offered is a
// view state: a pending ride with at least one bid.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusOffered, StatusAssigned, StatusCancelled},
	StatusOffered:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusDisputed, StatusFlagged},
	StatusCompleted:  {StatusDisputed, StatusFlagged},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// acceptingOffers reports whether bids may still be submitted or accepted.
func acceptingOffers(s Status) bool {
	return s == StatusPending || s == StatusOffered
}

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// Bid is a driver's proposed price for a pending ride. Bids belong to the
// ride aggregate: they are created and mutated only inside a ride mutation.
type Bid struct {
	ID            types.ID    `json:"id"`
	RideID        types.ID    `json:"ride_id"`
	DriverID      types.ID    `json:"driver_id"`
	Amount        types.Money `json:"amount"`
	Status        BidStatus   `json:"status"`
	DeclineReason *string     `json:"decline_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Actor identifies who drove a transition, for the audit trail.
type Actor struct {
	Type string
	ID   *types.ID
}

func SystemActor() Actor               { return Actor{Type: "system"} }
func DriverActor(id types.ID) Actor    { return Actor{Type: "driver", ID: &id} }
func PassengerActor(id types.ID) Actor { return Actor{Type: "passenger", ID: &id} }
func OperatorActor(id types.ID) Actor  { return Actor{Type: "operator", ID: &id} }

// Event is one committed ride status transition, kept as an append-only log.
type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ride is the aggregate root: the unit of persistence, consistency and
// mutual exclusion. Tasks and bids are owned child collections; nothing
// outside this package mutates their fields directly.
type Ride struct {
	ID             types.ID       `json:"id"`
	ServiceType    ServiceType    `json:"service_type"`
	Status         Status         `json:"status"`
	StatusVersion  int            `json:"status_version"`
	PassengerID    types.ID       `json:"passenger_id"`
	DriverID       *types.ID      `json:"driver_id,omitempty"`
	Pickup         types.Location `json:"pickup"`
	Dropoff        types.Location `json:"dropoff"`
	Tasks          []Task         `json:"errand_tasks,omitempty"`
	Bids           []Bid          `json:"bids,omitempty"`
	EstimatedCost  types.Money    `json:"estimated_cost"`
	SeriesTotal    *types.Money   `json:"series_total,omitempty"`
	FinalCost      *types.Money   `json:"final_cost,omitempty"`
	IsSeries       bool           `json:"is_series"`
	ScheduledDates []time.Time    `json:"scheduled_dates,omitempty"`
	RoundTrip      bool           `json:"round_trip"`
	PackageSize    string         `json:"package_size,omitempty"`
	VehicleClass   string         `json:"vehicle_class,omitempty"`
	CancelReason   *string        `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	pendingEvents []Event
}

func (r *Ride) FindBid(id types.ID) *Bid {
	for i := range r.Bids {
		if r.Bids[i].ID == id {
			return &r.Bids[i]
		}
	}
	return nil
}

func (r *Ride) AcceptedBid() *Bid {
	for i := range r.Bids {
		if r.Bids[i].Status == BidAccepted {
			return &r.Bids[i]
		}
	}
	return nil
}

func (r *Ride) PendingBidByDriver(driverID types.ID) *Bid {
	for i := range r.Bids {
		if r.Bids[i].DriverID == driverID && r.Bids[i].Status == BidPending {
			return &r.Bids[i]
		}
	}
	return nil
}

// BidStatuses snapshots bid statuses keyed by id. Callers take it before a
// mutation and diff it afterwards to find every bid that moved.
func (r *Ride) BidStatuses() map[types.ID]BidStatus {
	m := make(map[types.ID]BidStatus, len(r.Bids))
	for i := range r.Bids {
		m[r.Bids[i].ID] = r.Bids[i].Status
	}
	return m
}

func (r *Ride) FindTask(id types.ID) *Task {
	for i := range r.Tasks {
		if r.Tasks[i].ID == id {
			return &r.Tasks[i]
		}
	}
	return nil
}

// ActiveTask is the first task in declared order not yet completed; the only
// task eligible for a transition.
func (r *Ride) ActiveTask() *Task {
	for i := range r.Tasks {
		if r.Tasks[i].State != TaskCompleted {
			return &r.Tasks[i]
		}
	}
	return nil
}

// TakeEvents hands pending transition events to the store for persistence and
// clears them. Called exactly once per committed mutation.
func (r *Ride) TakeEvents() []Event {
	evts := r.pendingEvents
	r.pendingEvents = nil
	return evts
}

// Clone deep-copies the aggregate so in-memory storage never leaks shared
// mutable state to callers.
func (r *Ride) Clone() *Ride {
	cp := *r
	cp.Tasks = make([]Task, len(r.Tasks))
	for i, t := range r.Tasks {
		cp.Tasks[i] = t
		cp.Tasks[i].History = append([]TaskHistoryEntry(nil), t.History...)
	}
	cp.Bids = append([]Bid(nil), r.Bids...)
	cp.ScheduledDates = append([]time.Time(nil), r.ScheduledDates...)
	if r.DriverID != nil {
		d := *r.DriverID
		cp.DriverID = &d
	}
	if r.SeriesTotal != nil {
		st := *r.SeriesTotal
		cp.SeriesTotal = &st
	}
	if r.FinalCost != nil {
		f := *r.FinalCost
		cp.FinalCost = &f
	}
	if r.CancelReason != nil {
		c := *r.CancelReason
		cp.CancelReason = &c
	}
	cp.pendingEvents = nil
	return &cp
}
