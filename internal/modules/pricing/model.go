// README: Pricing configuration and fare computation contracts.
package pricing

import (
	"errors"

	"glide/internal/types"
)

// Service types priced by the fare table. They mirror the ride module's
// service types; pricing takes plain strings so it stays dependency-free.
const (
	ServiceTaxi      = "taxi"
	ServiceCourier   = "courier"
	ServiceSchoolRun = "school_run"
	ServiceErrands   = "errands"
	ServiceBulk      = "bulk"
)

var (
	ErrBadRequest = errors.New("invalid fare request")
	// ErrConfigUnavailable is logged, never returned from fare computation.
	ErrConfigUnavailable = errors.New("pricing configuration unavailable")
)

// Config is the tunable fare model, loaded from the pricing-configuration
// collaborator. Monetary fields are in cents.
type Config struct {
	MinFareCents    int64              `json:"min_fare_cents"`
	MinDistanceKm   float64            `json:"min_distance_km"`
	PricePerKmCents int64              `json:"price_per_km_cents"`
	VehiclePrices   map[string]int64   `json:"vehicle_prices"`
	SizeMultipliers map[string]float64 `json:"size_multipliers"`
}

// DefaultConfig is the built-in fallback: $2.00 minimum, $0.50/km beyond 3 km.
// Any fare computation must succeed on these even when the collaborator is
// unreachable.
func DefaultConfig() Config {
	return Config{
		MinFareCents:    200,
		MinDistanceKm:   3,
		PricePerKmCents: 50,
		VehiclePrices: map[string]int64{
			"standard": 200,
			"van":      1200,
			"truck":    2500,
		},
		SizeMultipliers: map[string]float64{
			"small":  1,
			"medium": 1.25,
			"large":  1.5,
		},
	}
}

// FareRequest parameterizes one fare computation. Occurrences > 1 asks for a
// recurring-series total; TaskDistancesKm prices an errands ride per task.
type FareRequest struct {
	ServiceType     string    `json:"service_type"`
	DistanceKm      float64   `json:"distance_km"`
	RoundTrip       bool      `json:"round_trip"`
	PackageSize     string    `json:"package_size"`
	VehicleClass    string    `json:"vehicle_class"`
	Occurrences     int       `json:"occurrences"`
	TaskDistancesKm []float64 `json:"task_distances_km"`
}

type FareBreakdown struct {
	BaseFare       types.Money `json:"base_fare"`
	DistanceCharge types.Money `json:"distance_charge"`
	Multiplier     float64     `json:"multiplier"`
	PerOccurrence  types.Money `json:"per_occurrence"`
	Occurrences    int         `json:"occurrences"`
	Total          types.Money `json:"total"`
	UsedDefaults   bool        `json:"used_defaults"`
}

// TaskCost pairs a task with its allocated cost for reconciliation audits.
type TaskCost struct {
	TaskID types.ID
	Cost   *types.Money
}

type DefectKind string

const (
	DefectMissingCost   DefectKind = "missing_cost"
	DefectNegativeCost  DefectKind = "negative_cost"
	DefectTotalMismatch DefectKind = "total_mismatch"
)

// Defect is a structured reconciliation finding for operator review; defects
// are reported, never silently corrected.
type Defect struct {
	TaskID types.ID   `json:"task_id,omitempty"`
	Kind   DefectKind `json:"kind"`
	Detail string     `json:"detail"`
}
