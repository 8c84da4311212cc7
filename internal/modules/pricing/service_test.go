package pricing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func testService(store ConfigStore) *Service {
	return NewService(store, slog.Default(), "USD", time.Second)
}

func TestEstimateTaxiDefaults(t *testing.T) {
	// pricing collaborator unreachable -> built-in defaults still price the ride:
	// $2.00 + 0.5 * (5 - 3) = $3.00
	svc := testService(StaticStore{Err: errors.New("collaborator timeout")})
	bd, err := svc.Estimate(context.Background(), FareRequest{ServiceType: ServiceTaxi, DistanceKm: 5})
	if err != nil {
		t.Fatalf("estimate must not fail on config outage: %v", err)
	}
	if !bd.UsedDefaults {
		t.Fatal("expected defaults to be used")
	}
	if bd.Total.Amount != 300 {
		t.Fatalf("total = %d cents, want 300", bd.Total.Amount)
	}
}

func TestEstimateBelowMinDistance(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{ServiceType: ServiceTaxi, DistanceKm: 1})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if bd.Total.Amount != 200 {
		t.Fatalf("short trip should cost the minimum fare, got %d", bd.Total.Amount)
	}
}

func TestEstimateCourierSizeMultiplier(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{
		ServiceType: ServiceCourier,
		DistanceKm:  5,
		PackageSize: "large",
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// (200 + 100) * 1.5
	if bd.Total.Amount != 450 {
		t.Fatalf("total = %d, want 450", bd.Total.Amount)
	}
}

func TestEstimateSchoolRunRoundTrip(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{
		ServiceType: ServiceSchoolRun,
		DistanceKm:  5,
		RoundTrip:   true,
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if bd.Total.Amount != 600 {
		t.Fatalf("round trip should double the fare, got %d", bd.Total.Amount)
	}
}

func TestEstimateBulkVehicleBase(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{
		ServiceType:  ServiceBulk,
		DistanceKm:   5,
		VehicleClass: "van",
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// 1200 base + 100 distance
	if bd.Total.Amount != 1300 {
		t.Fatalf("total = %d, want 1300", bd.Total.Amount)
	}
}

func TestEstimateErrandsPerTask(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{
		ServiceType:     ServiceErrands,
		TaskDistancesKm: []float64{1, 4, 5},
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// 200 + (200+50) + (200+100)
	if bd.Total.Amount != 750 {
		t.Fatalf("total = %d, want 750", bd.Total.Amount)
	}
}

func TestEstimateSeriesOccurrences(t *testing.T) {
	svc := testService(nil)
	bd, err := svc.Estimate(context.Background(), FareRequest{
		ServiceType: ServiceTaxi,
		DistanceKm:  5,
		Occurrences: 4,
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if bd.PerOccurrence.Amount != 300 || bd.Total.Amount != 1200 {
		t.Fatalf("per=%d total=%d, want 300/1200", bd.PerOccurrence.Amount, bd.Total.Amount)
	}
}

func TestEstimateCustomConfigWins(t *testing.T) {
	svc := testService(StaticStore{Cfg: Config{
		MinFareCents:    500,
		MinDistanceKm:   1,
		PricePerKmCents: 100,
	}})
	bd, err := svc.Estimate(context.Background(), FareRequest{ServiceType: ServiceTaxi, DistanceKm: 3})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if bd.UsedDefaults {
		t.Fatal("store config should be used")
	}
	if bd.Total.Amount != 700 {
		t.Fatalf("total = %d, want 700", bd.Total.Amount)
	}
}

func TestEstimateRejectsUnknownServiceType(t *testing.T) {
	svc := testService(nil)
	if _, err := svc.Estimate(context.Background(), FareRequest{ServiceType: "jetski", DistanceKm: 1}); err == nil {
		t.Fatal("expected error for unknown service type")
	}
}
