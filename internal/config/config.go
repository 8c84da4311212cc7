// README: Config loader with env defaults for HTTP, DB, Redis, Kafka, maps and propagation settings.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type PropagationConfig struct {
	BufferSize       int
	LivenessInterval time.Duration
	QuietAfter       time.Duration
}

type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		Channel  string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Pricing struct {
		LookupTimeout time.Duration
		Currency      string
	}
	Propagation PropagationConfig
	LogLevel    string
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("GLIDE_HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = envOrDefaultDuration("GLIDE_HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	cfg.DB.DSN = os.Getenv("GLIDE_DB_DSN")
	cfg.Redis.Addr = os.Getenv("GLIDE_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("GLIDE_REDIS_PASSWORD")
	cfg.Redis.Channel = envOrDefault("GLIDE_REDIS_CHANNEL", "glide:changes")
	if v := os.Getenv("GLIDE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
	cfg.Kafka.Topic = envOrDefault("GLIDE_KAFKA_TOPIC", "ride-change-events")
	cfg.Maps.APIKey = os.Getenv("GLIDE_MAPS_API_KEY")
	cfg.Pricing.LookupTimeout = envOrDefaultDuration("GLIDE_PRICING_LOOKUP_TIMEOUT", 2*time.Second)
	cfg.Pricing.Currency = envOrDefault("GLIDE_CURRENCY", "USD")
	cfg.Propagation.BufferSize = envOrDefaultInt("GLIDE_PROPAGATION_BUFFER", 64)
	cfg.Propagation.LivenessInterval = envOrDefaultDuration("GLIDE_LIVENESS_INTERVAL", 30*time.Second)
	cfg.Propagation.QuietAfter = envOrDefaultDuration("GLIDE_LIVENESS_QUIET_AFTER", 2*time.Minute)
	cfg.LogLevel = envOrDefault("GLIDE_LOG_LEVEL", "info")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s := strings.TrimSpace(r); s != "" {
			out = append(out, s)
		}
	}
	return out
}
