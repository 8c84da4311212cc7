// README: Redis pub/sub relay bridging change events across instances.
package propagation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// relayEnvelope wraps an event with the origin instance so a relay never
// re-delivers its own publications.
type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay publishes committed events to a Redis channel and injects events
// published by other instances into the local hub. Subscribe failures are
// retried with bounded backoff and surfaced only as connectivity logging.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
	hub      *Hub
	logger   *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		hub:      hub,
		logger:   logger,
	}
}

// Record implements Sink for locally committed events.
func (r *RedisRelay) Record(e Event) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instance, Event: e})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run consumes the relay channel until ctx is cancelled, resubscribing with
// bounded backoff on transport errors.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		sub := r.client.Subscribe(ctx, r.channel)
		err := r.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("relay subscription lost, backing off", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, sub *redis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("invalid relay payload", "error", err)
				continue
			}
			if env.Origin == r.instance {
				continue
			}
			r.hub.Inject(env.Event)
		}
	}
}
