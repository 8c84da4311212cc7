package geo

import (
	"context"
	"math"
	"testing"

	"glide/internal/types"
)

func TestHaversineZeroDistance(t *testing.T) {
	p := types.Point{Lat: 25.033, Lng: 121.565}
	if d := HaversineKm(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Taipei Main Station to Taipei 101 is roughly 4 km.
	a := types.Point{Lat: 25.0478, Lng: 121.5170}
	b := types.Point{Lat: 25.0339, Lng: 121.5645}
	d := HaversineKm(a, b)
	if d < 3.5 || d > 5.5 {
		t.Fatalf("expected ~4km, got %f", d)
	}
}

func TestStraightLineRouterNeedsCoordinates(t *testing.T) {
	r := StraightLineRouter{}
	_, err := r.Route(context.Background(), types.Location{Address: "somewhere"}, types.Location{Address: "elsewhere"})
	if err != ErrNoRoute {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestStraightLineDuration(t *testing.T) {
	a := types.Location{Point: &types.Point{Lat: 0, Lng: 0}}
	b := types.Location{Point: &types.Point{Lat: 0, Lng: 0.27}} // ~30 km along the equator
	est, err := StraightLine(a, b)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	// 30 km at the assumed 30 km/h city speed is about an hour
	if math.Abs(est.DurationMin-60) > 5 {
		t.Fatalf("expected ~60 min, got %f", est.DurationMin)
	}
}
