// README: Postgres-backed Store. Mutations run in a transaction holding a
// row lock on the ride, so each aggregate mutates under mutual exclusion.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"glide/internal/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const rideColumns = `id, service_type, status, status_version, passenger_id, driver_id,
	pickup, dropoff, estimated_cost_cents, currency, series_total_cents, final_cost_cents,
	is_series, scheduled_dates, round_trip, package_size, vehicle_class,
	cancel_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, r *Ride) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create ride: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertRide(ctx, tx, r); err != nil {
		return err
	}
	for i := range r.Tasks {
		if err := insertTask(ctx, tx, r.ID, &r.Tasks[i]); err != nil {
			return err
		}
	}
	if err := insertEvents(ctx, tx, r.TakeEvents()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Ride, error) {
	return loadRide(ctx, s.pool, id, false)
}

func (s *PostgresStore) Mutate(ctx context.Context, id string, fn func(*Ride) error) (*Ride, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin mutate ride: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := loadRide(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	if err := saveRide(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := insertEvents(ctx, tx, r.TakeEvents()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit mutate ride: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByPassenger(ctx context.Context, passengerID string) ([]*Ride, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM rides WHERE passenger_id = $1 ORDER BY created_at DESC`, passengerID)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	out := make([]*Ride, 0, len(ids))
	for _, id := range ids {
		r, err := loadRide(ctx, s.pool, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) Events(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		 FROM ride_events WHERE ride_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query ride events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ride event: %w", err)
		}
		if actorID != nil {
			v := types.ID(*actorID)
			e.ActorID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func loadRide(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, id string, forUpdate bool) (*Ride, error) {
	sql := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		r             Ride
		pickupJSON    []byte
		dropoffJSON   []byte
		estCents      int64
		currency      string
		seriesCents   *int64
		finalCents    *int64
		scheduledJSON []byte
		driverID      *string
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&r.ID, &r.ServiceType, &r.Status, &r.StatusVersion, &r.PassengerID, &driverID,
		&pickupJSON, &dropoffJSON, &estCents, &currency, &seriesCents, &finalCents,
		&r.IsSeries, &scheduledJSON, &r.RoundTrip, &r.PackageSize, &r.VehicleClass,
		&r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ride %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load ride %s: %w", id, err)
	}

	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	if err := json.Unmarshal(pickupJSON, &r.Pickup); err != nil {
		return nil, fmt.Errorf("decode pickup for ride %s: %w", id, err)
	}
	if err := json.Unmarshal(dropoffJSON, &r.Dropoff); err != nil {
		return nil, fmt.Errorf("decode dropoff for ride %s: %w", id, err)
	}
	if len(scheduledJSON) > 0 {
		if err := json.Unmarshal(scheduledJSON, &r.ScheduledDates); err != nil {
			return nil, fmt.Errorf("decode schedule for ride %s: %w", id, err)
		}
	}
	r.EstimatedCost = types.Money{Amount: estCents, Currency: currency}
	if seriesCents != nil {
		st := types.Money{Amount: *seriesCents, Currency: currency}
		r.SeriesTotal = &st
	}
	if finalCents != nil {
		f := types.Money{Amount: *finalCents, Currency: currency}
		r.FinalCost = &f
	}

	if r.Tasks, err = loadTasks(ctx, q, id, currency); err != nil {
		return nil, err
	}
	if r.Bids, err = loadBids(ctx, q, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func loadTasks(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, rideID, currency string) ([]Task, error) {
	rows, err := q.Query(ctx,
		`SELECT id, ord, title, description, pickup, dropoff, state, cost_cents,
		        duration_minutes, distance_km, history
		 FROM ride_tasks WHERE ride_id = $1 ORDER BY ord`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query tasks for ride %s: %w", rideID, err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t           Task
			pickupJSON  []byte
			dropoffJSON []byte
			costCents   *int64
			historyJSON []byte
		)
		if err := rows.Scan(&t.ID, &t.Ord, &t.Title, &t.Description, &pickupJSON, &dropoffJSON,
			&t.State, &costCents, &t.DurationMinutes, &t.DistanceKm, &historyJSON); err != nil {
			return nil, fmt.Errorf("scan task for ride %s: %w", rideID, err)
		}
		if err := json.Unmarshal(pickupJSON, &t.Pickup); err != nil {
			return nil, fmt.Errorf("decode task pickup: %w", err)
		}
		if err := json.Unmarshal(dropoffJSON, &t.Dropoff); err != nil {
			return nil, fmt.Errorf("decode task dropoff: %w", err)
		}
		if len(historyJSON) > 0 {
			if err := json.Unmarshal(historyJSON, &t.History); err != nil {
				return nil, fmt.Errorf("decode task history: %w", err)
			}
		}
		if costCents != nil {
			c := types.Money{Amount: *costCents, Currency: currency}
			t.Cost = &c
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func loadBids(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, rideID string) ([]Bid, error) {
	rows, err := q.Query(ctx,
		`SELECT id, ride_id, driver_id, amount_cents, currency, status, decline_reason,
		        created_at, updated_at
		 FROM bids WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query bids for ride %s: %w", rideID, err)
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		var (
			b        Bid
			cents    int64
			currency string
		)
		if err := rows.Scan(&b.ID, &b.RideID, &b.DriverID, &cents, &currency, &b.Status,
			&b.DeclineReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bid for ride %s: %w", rideID, err)
		}
		b.Amount = types.Money{Amount: cents, Currency: currency}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func insertRide(ctx context.Context, tx pgx.Tx, r *Ride) error {
	pickup, dropoff, scheduled, err := encodeRideJSON(r)
	if err != nil {
		return err
	}
	var seriesCents, finalCents *int64
	if r.SeriesTotal != nil {
		seriesCents = &r.SeriesTotal.Amount
	}
	if r.FinalCost != nil {
		finalCents = &r.FinalCost.Amount
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO rides (`+rideColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		r.ID, r.ServiceType, r.Status, r.StatusVersion, r.PassengerID, r.DriverID,
		pickup, dropoff, r.EstimatedCost.Amount, r.EstimatedCost.Currency, seriesCents, finalCents,
		r.IsSeries, scheduled, r.RoundTrip, r.PackageSize, r.VehicleClass,
		r.CancelReason, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.ID, err)
	}
	return nil
}

func saveRide(ctx context.Context, tx pgx.Tx, r *Ride) error {
	pickup, dropoff, scheduled, err := encodeRideJSON(r)
	if err != nil {
		return err
	}
	var seriesCents, finalCents *int64
	if r.SeriesTotal != nil {
		seriesCents = &r.SeriesTotal.Amount
	}
	if r.FinalCost != nil {
		finalCents = &r.FinalCost.Amount
	}
	_, err = tx.Exec(ctx,
		`UPDATE rides SET service_type=$2, status=$3, status_version=$4, driver_id=$5,
		        pickup=$6, dropoff=$7, estimated_cost_cents=$8, series_total_cents=$9,
		        final_cost_cents=$10, is_series=$11, scheduled_dates=$12, round_trip=$13,
		        package_size=$14, vehicle_class=$15, cancel_reason=$16, updated_at=$17
		 WHERE id=$1`,
		r.ID, r.ServiceType, r.Status, r.StatusVersion, r.DriverID,
		pickup, dropoff, r.EstimatedCost.Amount, seriesCents, finalCents,
		r.IsSeries, scheduled, r.RoundTrip, r.PackageSize,
		r.VehicleClass, r.CancelReason, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update ride %s: %w", r.ID, err)
	}

	for i := range r.Tasks {
		if err := upsertTask(ctx, tx, r.ID, &r.Tasks[i]); err != nil {
			return err
		}
	}
	for i := range r.Bids {
		if err := upsertBid(ctx, tx, &r.Bids[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertTask(ctx context.Context, tx pgx.Tx, rideID types.ID, t *Task) error {
	return upsertTask(ctx, tx, rideID, t)
}

func upsertTask(ctx context.Context, tx pgx.Tx, rideID types.ID, t *Task) error {
	pickup, err := json.Marshal(t.Pickup)
	if err != nil {
		return fmt.Errorf("encode task pickup: %w", err)
	}
	dropoff, err := json.Marshal(t.Dropoff)
	if err != nil {
		return fmt.Errorf("encode task dropoff: %w", err)
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("encode task history: %w", err)
	}
	var costCents *int64
	if t.Cost != nil {
		costCents = &t.Cost.Amount
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO ride_tasks (id, ride_id, ord, title, description, pickup, dropoff,
		        state, cost_cents, duration_minutes, distance_km, history)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (id) DO UPDATE SET state=EXCLUDED.state, cost_cents=EXCLUDED.cost_cents,
		        history=EXCLUDED.history`,
		t.ID, rideID, t.Ord, t.Title, t.Description, pickup, dropoff,
		t.State, costCents, t.DurationMinutes, t.DistanceKm, history)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

func upsertBid(ctx context.Context, tx pgx.Tx, b *Bid) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO bids (id, ride_id, driver_id, amount_cents, currency, status,
		        decline_reason, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status,
		        decline_reason=EXCLUDED.decline_reason, updated_at=EXCLUDED.updated_at`,
		b.ID, b.RideID, b.DriverID, b.Amount.Amount, b.Amount.Currency, b.Status,
		b.DeclineReason, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert bid %s: %w", b.ID, err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, evts []Event) error {
	for _, e := range evts {
		_, err := tx.Exec(ctx,
			`INSERT INTO ride_events (ride_id, from_status, to_status, actor_type, actor_id, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			e.RideID, e.FromStatus, e.ToStatus, e.ActorType, e.ActorID, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert ride event: %w", err)
		}
	}
	return nil
}

func encodeRideJSON(r *Ride) (pickup, dropoff, scheduled []byte, err error) {
	if pickup, err = json.Marshal(r.Pickup); err != nil {
		return nil, nil, nil, fmt.Errorf("encode pickup: %w", err)
	}
	if dropoff, err = json.Marshal(r.Dropoff); err != nil {
		return nil, nil, nil, fmt.Errorf("encode dropoff: %w", err)
	}
	if scheduled, err = json.Marshal(r.ScheduledDates); err != nil {
		return nil, nil, nil, fmt.Errorf("encode schedule: %w", err)
	}
	return pickup, dropoff, scheduled, nil
}
