// README: Routing collaborator; Google Maps lookups with straight-line fallback.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"

	"glide/internal/types"
)

// Estimate is the distance/duration pair consumed by fare computation.
type Estimate struct {
	DistanceKm  float64
	DurationMin float64
}

// Router resolves a route between two locations.
type Router interface {
	Route(ctx context.Context, origin, destination types.Location) (Estimate, error)
}

var ErrNoRoute = errors.New("no route between locations")

// assumed average city speed used when only straight-line distance is known
const fallbackSpeedKmh = 30.0

// GoogleRouter queries the Google Maps Directions API and falls back to a
// haversine estimate from raw coordinates when the API is unreachable. Fare
// computation therefore never fails on a routing outage.
type GoogleRouter struct {
	client *maps.Client
	logger *slog.Logger
}

func NewGoogleRouter(apiKey string, logger *slog.Logger) (*GoogleRouter, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleRouter{client: client, logger: logger}, nil
}

func (g *GoogleRouter) Route(ctx context.Context, origin, destination types.Location) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin.Address,
		Destination: destination.Address,
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err == nil && len(routes) > 0 && len(routes[0].Legs) > 0 {
		leg := routes[0].Legs[0]
		return Estimate{
			DistanceKm:  float64(leg.Distance.Meters) / 1000,
			DurationMin: leg.Duration.Minutes(),
		}, nil
	}
	if err != nil {
		g.logger.Warn("maps lookup failed, using straight-line fallback", "error", err)
	}
	return StraightLine(origin, destination)
}

// StraightLine estimates a route from raw coordinates only. It is both the
// outage fallback for GoogleRouter and the Router used when no API key is
// configured.
func StraightLine(origin, destination types.Location) (Estimate, error) {
	if origin.Point == nil || destination.Point == nil {
		return Estimate{}, ErrNoRoute
	}
	km := HaversineKm(*origin.Point, *destination.Point)
	return Estimate{DistanceKm: km, DurationMin: km / fallbackSpeedKmh * 60}, nil
}

// StraightLineRouter satisfies Router without any external service.
type StraightLineRouter struct{}

func (StraightLineRouter) Route(_ context.Context, origin, destination types.Location) (Estimate, error) {
	return StraightLine(origin, destination)
}
