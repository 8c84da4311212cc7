// README: Entry point; loads config, wires services, starts the HTTP server
// and background monitors. Missing infrastructure degrades instead of
// failing: no database means the in-memory store, no Redis means no
// cross-instance relay, no Kafka means no journal.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"glide/internal/config"
	"glide/internal/geo"
	httptransport "glide/internal/http"
	"glide/internal/infra"
	"glide/internal/logging"
	"glide/internal/modules/bidding"
	"glide/internal/modules/pricing"
	"glide/internal/modules/propagation"
	"glide/internal/modules/ride"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := propagation.NewHub(cfg.Propagation.BufferSize, logger)
	go hub.RunLivenessMonitor(ctx, cfg.Propagation.LivenessInterval, cfg.Propagation.QuietAfter)

	var rideStore ride.Store
	var pricingStore pricing.ConfigStore = pricing.StaticStore{Cfg: pricing.DefaultConfig()}
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Error("database unavailable", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		rideStore = ride.NewPostgresStore(pool)
		pricingStore = pricing.NewPostgresStore(pool)
	} else {
		logger.Warn("no GLIDE_DB_DSN set, using in-memory storage")
		rideStore = ride.NewMemoryStore()
	}

	if cfg.Redis.Addr != "" {
		redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
		pricingStore = pricing.NewCachedStore(pricingStore, redisClient, 5*time.Minute)
		relay := propagation.NewRedisRelay(redisClient, cfg.Redis.Channel, hub, logger)
		hub.AddSink(relay)
		go relay.Run(ctx)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		journal := propagation.NewKafkaJournal(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer journal.Close()
		hub.AddSink(journal)
	}

	var router geo.Router = geo.StraightLineRouter{}
	if cfg.Maps.APIKey != "" {
		gr, err := geo.NewGoogleRouter(cfg.Maps.APIKey, logger)
		if err != nil {
			logger.Error("maps client init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		router = gr
	} else {
		logger.Warn("no GLIDE_MAPS_API_KEY set, using straight-line estimates")
	}

	pricingSvc := pricing.NewService(pricingStore, logger, cfg.Pricing.Currency, cfg.Pricing.LookupTimeout)
	rideSvc := ride.NewService(rideStore, pricingSvc, router, hub, logger)
	bidSvc := bidding.NewService(rideStore, hub, logger)

	handler := httptransport.NewRouter(httptransport.ServerDeps{
		Rides:   rideSvc,
		Bids:    bidSvc,
		Pricing: pricingSvc,
		Hub:     hub,
		Logger:  logger,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, handler, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}
}
