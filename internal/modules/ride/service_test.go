// README: Service-level tests over the in-memory store.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"glide/internal/geo"
	"glide/internal/modules/pricing"
	"glide/internal/modules/propagation"
	"glide/internal/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []propagation.Event
}

func (p *recordingPublisher) Publish(e propagation.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []propagation.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]propagation.Event(nil), p.events...)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *recordingPublisher) {
	t.Helper()
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	estimator := pricing.NewService(pricing.StaticStore{Cfg: pricing.DefaultConfig()}, logger, "USD", 0)
	svc := NewService(store, estimator, geo.StraightLineRouter{}, pub, logger)
	return svc, store, pub
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func pt(lat, lng float64) types.Location {
	return types.Location{Point: &types.Point{Lat: lat, Lng: lng}}
}

func TestCreateTaxiRide(t *testing.T) {
	svc, _, pub := newTestService(t)
	r, err := svc.Create(context.Background(), CreateRequest{
		ServiceType: "taxi",
		PassengerID: types.NewID(),
		Pickup:      pt(25.0330, 121.5654),
		Dropoff:     pt(25.0478, 121.5170),
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}
	if r.EstimatedCost.Amount <= 0 {
		t.Fatalf("estimated cost = %d", r.EstimatedCost.Amount)
	}
	evts := pub.all()
	if len(evts) != 1 || evts[0].Kind != propagation.KindCreated || evts[0].EntityID != r.ID {
		t.Fatalf("published events = %+v", evts)
	}
	if evts[0].Meta["passenger_id"] != string(r.PassengerID) {
		t.Fatal("change events must carry passenger routing metadata")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"unknown service", CreateRequest{ServiceType: "submarine", PassengerID: "p1"}},
		{"missing passenger", CreateRequest{ServiceType: "taxi"}},
		{"errands without tasks", CreateRequest{ServiceType: "errands", PassengerID: "p1"}},
		{"untitled task", CreateRequest{ServiceType: "errands", PassengerID: "p1",
			Tasks: []TaskInput{{Title: ""}}}},
		{"series taxi", CreateRequest{ServiceType: "taxi", PassengerID: "p1", IsSeries: true}},
		{"series without dates", CreateRequest{ServiceType: "school_run", PassengerID: "p1", IsSeries: true}},
	}
	for _, c := range cases {
		if _, err := svc.Create(ctx, c.req); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", c.name, err)
		}
	}
}

func TestCreateErrandsRideQuotesPerTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	r, err := svc.Create(context.Background(), CreateRequest{
		ServiceType: "errands",
		PassengerID: types.NewID(),
		Tasks: []TaskInput{
			{Title: "pharmacy", Pickup: pt(25.0330, 121.5654), Dropoff: pt(25.0478, 121.5170)},
			{Title: "dry cleaning", Pickup: pt(25.0478, 121.5170), Dropoff: pt(25.0330, 121.5654)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Tasks) != 2 {
		t.Fatalf("tasks = %d", len(r.Tasks))
	}
	for i, task := range r.Tasks {
		if task.Ord != i {
			t.Fatalf("task %d has ord %d", i, task.Ord)
		}
		if task.State != TaskPending {
			t.Fatalf("task %d state = %s", i, task.State)
		}
		if task.DistanceKm <= 0 {
			t.Fatalf("task %d should carry a routed distance", i)
		}
	}
	// per-task minimum fare twice over
	if r.EstimatedCost.Amount < 400 {
		t.Fatalf("estimated = %d, want at least two minimum fares", r.EstimatedCost.Amount)
	}
}

func TestCreateSeriesRideQuotesPerOccurrence(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	dates := []time.Time{
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
	}
	single, err := svc.Create(ctx, CreateRequest{
		ServiceType: "school_run",
		PassengerID: types.NewID(),
		Pickup:      pt(25.0330, 121.5654),
		Dropoff:     pt(25.0478, 121.5170),
	})
	if err != nil {
		t.Fatal(err)
	}
	series, err := svc.Create(ctx, CreateRequest{
		ServiceType:    "school_run",
		PassengerID:    types.NewID(),
		Pickup:         pt(25.0330, 121.5654),
		Dropoff:        pt(25.0478, 121.5170),
		IsSeries:       true,
		ScheduledDates: dates,
	})
	if err != nil {
		t.Fatal(err)
	}

	// the per-occurrence estimate does not grow with the number of dates
	if series.EstimatedCost.Amount != single.EstimatedCost.Amount {
		t.Fatalf("series estimate = %d, single = %d", series.EstimatedCost.Amount, single.EstimatedCost.Amount)
	}
	if series.SeriesTotal == nil || series.SeriesTotal.Amount != 3*series.EstimatedCost.Amount {
		t.Fatalf("series total = %+v, want 3x the per-occurrence estimate", series.SeriesTotal)
	}
	if single.SeriesTotal != nil {
		t.Fatalf("single ride carries a series total: %+v", single.SeriesTotal)
	}
}

func TestCancelPublishesBidWithdrawals(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, CreateRequest{
		ServiceType: "taxi",
		PassengerID: types.NewID(),
		Pickup:      pt(25.0330, 121.5654),
		Dropoff:     pt(25.0478, 121.5170),
	})
	if err != nil {
		t.Fatal(err)
	}
	bid := Bid{ID: types.NewID(), RideID: r.ID, DriverID: types.NewID(),
		Amount: types.Money{Amount: 2000, Currency: "USD"}, Status: BidPending}
	if _, err := store.Mutate(ctx, string(r.ID), func(r *Ride) error { return r.AddBid(bid) }); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Cancel(ctx, string(r.ID), "plans changed", PassengerActor(r.PassengerID)); err != nil {
		t.Fatal(err)
	}

	var sawWithdrawn bool
	for _, e := range pub.all() {
		if e.Entity == "bid" && e.EntityID == bid.ID && e.Meta["status"] == string(BidWithdrawn) {
			sawWithdrawn = true
		}
	}
	if !sawWithdrawn {
		t.Fatal("cancelling must publish a change event for each withdrawn bid")
	}
}

func TestRideLifecycleThroughStore(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, CreateRequest{
		ServiceType: "taxi",
		PassengerID: types.NewID(),
		Pickup:      pt(25.0330, 121.5654),
		Dropoff:     pt(25.0478, 121.5170),
	})
	if err != nil {
		t.Fatal(err)
	}

	driver := types.NewID()
	bid := Bid{ID: types.NewID(), RideID: r.ID, DriverID: driver,
		Amount: types.Money{Amount: 2500, Currency: "USD"}, Status: BidPending}
	if _, err := store.Mutate(ctx, string(r.ID), func(r *Ride) error { return r.AddBid(bid) }); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Mutate(ctx, string(r.ID), func(r *Ride) error {
		_, err := r.AcceptBid(bid.ID)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Start(ctx, string(r.ID), DriverActor(driver)); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Complete(ctx, string(r.ID), DriverActor(driver))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.FinalCost == nil || got.FinalCost.Amount != 2500 {
		t.Fatalf("final cost = %+v, want accepted bid amount", got.FinalCost)
	}

	evts, err := svc.History(ctx, string(r.ID))
	if err != nil {
		t.Fatal(err)
	}
	// pending → offered → assigned → in_progress → completed
	if len(evts) != 4 {
		t.Fatalf("event log has %d entries, want 4: %+v", len(evts), evts)
	}
	last := evts[len(evts)-1]
	if last.ToStatus != StatusCompleted || last.ActorType != "driver" {
		t.Fatalf("last event = %+v", last)
	}

	for _, e := range pub.all() {
		if e.Entity != "ride" {
			t.Fatalf("unexpected entity %q", e.Entity)
		}
	}
}

func TestTransitionRejectedLeavesStoreUntouched(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, CreateRequest{
		ServiceType: "taxi",
		PassengerID: types.NewID(),
		Pickup:      pt(25.0330, 121.5654),
		Dropoff:     pt(25.0478, 121.5170),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, string(r.ID), SystemActor()); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("complete pending ride = %v, want ErrPreconditionFailed", err)
	}
	got, err := store.Get(ctx, string(r.ID))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending || got.StatusVersion != 0 {
		t.Fatalf("failed mutation must not persist: %+v", got)
	}
}

func TestGetUnknownRide(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	r := newTestRide(ServiceTaxi)
	if err := store.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, string(r.ID))
	if err != nil {
		t.Fatal(err)
	}
	got.Status = StatusCancelled
	again, err := store.Get(ctx, string(r.ID))
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != StatusPending {
		t.Fatal("mutating a returned aggregate must not leak into the store")
	}
}
