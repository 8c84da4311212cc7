// README: Pricing configuration store; Postgres-backed with a Redis cache.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ConfigStore is the pricing-configuration collaborator interface. Absence or
// failure is tolerated by the service via built-in defaults.
type ConfigStore interface {
	GetConfig(ctx context.Context) (Config, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetConfig(ctx context.Context) (Config, error) {
	row := s.db.QueryRow(ctx, `SELECT doc FROM pricing_config WHERE key = 'default'`)
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrConfigUnavailable
		}
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

const cacheKey = "pricing:config"

// CachedStore caches the inner store's config in Redis. A cache outage just
// falls through to the inner store.
type CachedStore struct {
	inner  ConfigStore
	client *redis.Client
	ttl    time.Duration
}

func NewCachedStore(inner ConfigStore, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func (s *CachedStore) GetConfig(ctx context.Context) (Config, error) {
	if raw, err := s.client.Get(ctx, cacheKey).Bytes(); err == nil {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err == nil {
			return cfg, nil
		}
	}
	cfg, err := s.inner.GetConfig(ctx)
	if err != nil {
		return Config{}, err
	}
	if raw, err := json.Marshal(cfg); err == nil {
		_ = s.client.Set(ctx, cacheKey, raw, s.ttl).Err()
	}
	return cfg, nil
}

// StaticStore serves a fixed config; used in tests and single-node setups.
type StaticStore struct {
	Cfg Config
	Err error
}

func (s StaticStore) GetConfig(context.Context) (Config, error) {
	if s.Err != nil {
		return Config{}, s.Err
	}
	return s.Cfg, nil
}
