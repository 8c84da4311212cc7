// README: Shared identifier and geographic primitives.
package types

import "github.com/google/uuid"

// ID is an opaque entity identifier.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID { return ID(uuid.NewString()) }

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is an address with an optional resolved coordinate.
type Location struct {
	Address string `json:"address"`
	Point   *Point `json:"point,omitempty"`
}
