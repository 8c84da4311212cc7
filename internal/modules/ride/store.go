// README: Storage contract for the ride aggregate.
package ride

import "context"

// Store persists ride aggregates. Mutate runs fn against the current
// aggregate under per-ride mutual exclusion and commits the result together
// with any transition events the mutation produced; if fn returns an error
// nothing is written. This is what makes accept-bid races safe: two
// concurrent mutations of the same ride are serialized, and the loser sees
// the winner's committed state.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id string) (*Ride, error)
	Mutate(ctx context.Context, id string, fn func(*Ride) error) (*Ride, error)
	ListByPassenger(ctx context.Context, passengerID string) ([]*Ride, error)
	Events(ctx context.Context, id string) ([]Event, error)
}
