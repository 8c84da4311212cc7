// README: Pricing service; fare table over a shared two-part distance model.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"glide/internal/observability"
	"glide/internal/types"
)

type Service struct {
	store         ConfigStore
	logger        *slog.Logger
	currency      string
	lookupTimeout time.Duration
}

// NewService builds the pricing service. store may be nil, in which case all
// fares are computed from built-in defaults.
func NewService(store ConfigStore, logger *slog.Logger, currency string, lookupTimeout time.Duration) *Service {
	if currency == "" {
		currency = types.DefaultCurrency
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &Service{store: store, logger: logger, currency: currency, lookupTimeout: lookupTimeout}
}

// Estimate computes a deterministic fare breakdown for the request. The
// config lookup is bounded by the lookup timeout; on any failure the built-in
// defaults are used and the outage is logged, never surfaced as an error.
func (s *Service) Estimate(ctx context.Context, req FareRequest) (FareBreakdown, error) {
	if req.DistanceKm < 0 {
		return FareBreakdown{}, fmt.Errorf("%w: negative distance", ErrBadRequest)
	}
	cfg, usedDefaults := s.loadConfig(ctx)

	var bd FareBreakdown
	var err error
	switch req.ServiceType {
	case ServiceTaxi:
		bd = twoPartFare(cfg, req.DistanceKm, cfg.MinFareCents)
	case ServiceCourier:
		bd = twoPartFare(cfg, req.DistanceKm, cfg.MinFareCents)
		bd = applyMultiplier(bd, sizeMultiplier(cfg, req.PackageSize))
	case ServiceSchoolRun:
		bd = twoPartFare(cfg, req.DistanceKm, cfg.MinFareCents)
		if req.RoundTrip {
			bd = applyMultiplier(bd, 2)
		}
	case ServiceBulk:
		bd = twoPartFare(cfg, req.DistanceKm, vehicleBase(cfg, req.VehicleClass))
	case ServiceErrands:
		bd, err = errandsFare(cfg, req)
		if err != nil {
			return FareBreakdown{}, err
		}
	default:
		return FareBreakdown{}, fmt.Errorf("%w: unknown service type %q", ErrBadRequest, req.ServiceType)
	}

	occurrences := req.Occurrences
	if occurrences < 1 {
		occurrences = 1
	}
	bd.Occurrences = occurrences
	bd.PerOccurrence = types.Cents(bd.PerOccurrence.Amount, s.currency)
	bd.BaseFare.Currency = s.currency
	bd.DistanceCharge.Currency = s.currency
	bd.Total = bd.PerOccurrence.MulN(int64(occurrences))
	bd.UsedDefaults = usedDefaults
	return bd, nil
}

func (s *Service) loadConfig(ctx context.Context) (Config, bool) {
	if s.store == nil {
		return DefaultConfig(), true
	}
	lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	cfg, err := s.store.GetConfig(lctx)
	if err != nil {
		observability.PricingFallbacks.Inc()
		s.logger.Warn("pricing config unavailable, using defaults", "error", err)
		return DefaultConfig(), true
	}
	return cfg, false
}

// twoPartFare is the shared model: a flat minimum plus a per-kilometre rate
// beyond the minimum-distance threshold.
func twoPartFare(cfg Config, distanceKm float64, baseCents int64) FareBreakdown {
	var distCents int64
	if extra := distanceKm - cfg.MinDistanceKm; extra > 0 {
		distCents = int64(math.Round(extra * float64(cfg.PricePerKmCents)))
	}
	return FareBreakdown{
		BaseFare:       types.Cents(baseCents, ""),
		DistanceCharge: types.Cents(distCents, ""),
		Multiplier:     1,
		PerOccurrence:  types.Cents(baseCents+distCents, ""),
	}
}

func applyMultiplier(bd FareBreakdown, m float64) FareBreakdown {
	if m <= 0 {
		m = 1
	}
	bd.Multiplier = bd.Multiplier * m
	bd.PerOccurrence = types.Cents(int64(math.Round(float64(bd.PerOccurrence.Amount)*m)), "")
	return bd
}

func errandsFare(cfg Config, req FareRequest) (FareBreakdown, error) {
	if len(req.TaskDistancesKm) == 0 {
		return twoPartFare(cfg, req.DistanceKm, cfg.MinFareCents), nil
	}
	total := FareBreakdown{Multiplier: 1}
	for _, d := range req.TaskDistancesKm {
		if d < 0 {
			return FareBreakdown{}, fmt.Errorf("%w: negative task distance", ErrBadRequest)
		}
		leg := twoPartFare(cfg, d, cfg.MinFareCents)
		total.BaseFare = total.BaseFare.Add(leg.BaseFare)
		total.DistanceCharge = total.DistanceCharge.Add(leg.DistanceCharge)
		total.PerOccurrence = total.PerOccurrence.Add(leg.PerOccurrence)
	}
	return total, nil
}

func sizeMultiplier(cfg Config, size string) float64 {
	if m, ok := cfg.SizeMultipliers[size]; ok {
		return m
	}
	return 1
}

func vehicleBase(cfg Config, class string) int64 {
	if p, ok := cfg.VehiclePrices[class]; ok {
		return p
	}
	return cfg.MinFareCents
}
