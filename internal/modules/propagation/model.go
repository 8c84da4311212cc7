// README: Change event contract delivered to live subscribers.
package propagation

import (
	"time"

	"glide/internal/types"
)

type EventKind string

const (
	KindCreated EventKind = "created"
	KindUpdated EventKind = "updated"
	KindDeleted EventKind = "deleted"
)

// Event describes one committed mutation. Delivery is at-least-once and
// ordered only per entity id; consumers re-fetch authoritative state or merge
// idempotently.
type Event struct {
	Entity   string            `json:"entity"`
	EntityID types.ID          `json:"entity_id"`
	Kind     EventKind         `json:"kind"`
	Meta     map[string]string `json:"meta,omitempty"`
	Snapshot any               `json:"snapshot,omitempty"`
	At       time.Time         `json:"at"`
}

// Filter selects events for a subscriber. Zero-value fields match anything.
type Filter struct {
	Entity string
	Kind   EventKind
	Match  func(Event) bool
}

func (f Filter) matches(e Event) bool {
	if f.Entity != "" && f.Entity != e.Entity {
		return false
	}
	if f.Kind != "" && f.Kind != e.Kind {
		return false
	}
	if f.Match != nil && !f.Match(e) {
		return false
	}
	return true
}

// MetaEquals builds a predicate matching one metadata field, e.g.
// MetaEquals("driver_id", x) for "rides where driver_id = x".
func MetaEquals(key, value string) func(Event) bool {
	return func(e Event) bool { return e.Meta[key] == value }
}

// ChannelStatus is the connectivity flag surfaced to subscribers. Transport
// trouble is reported here, never as an entity-level error.
type ChannelStatus string

const (
	StatusConnected    ChannelStatus = "connected"
	StatusReconnecting ChannelStatus = "reconnecting"
	StatusStale        ChannelStatus = "stale"
)

type StatusFunc func(ChannelStatus)
