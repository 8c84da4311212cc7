// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glide/internal/http/handlers"
	"glide/internal/http/middleware"
	"glide/internal/modules/bidding"
	"glide/internal/modules/pricing"
	"glide/internal/modules/propagation"
	"glide/internal/modules/ride"
)

type ServerDeps struct {
	Rides   *ride.Service
	Bids    *bidding.Service
	Pricing *pricing.Service
	Hub     *propagation.Hub
	Logger  *slog.Logger
}

func NewRouter(deps ServerDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger), middleware.Metrics())

	rideHandler := handlers.NewRideHandler(deps.Rides)
	bidHandler := handlers.NewBidHandler(deps.Bids)
	fareHandler := handlers.NewFareHandler(deps.Pricing)
	streamHandler := handlers.NewStreamHandler(deps.Hub, deps.Logger)

	api := r.Group("/api")
	{
		api.POST("/rides", rideHandler.Create)
		api.GET("/rides", rideHandler.ListByPassenger)
		api.GET("/rides/:id", rideHandler.Get)
		api.GET("/rides/:id/events", rideHandler.History)
		api.POST("/rides/:id/start", rideHandler.Start)
		api.POST("/rides/:id/complete", rideHandler.Complete)
		api.POST("/rides/:id/cancel", rideHandler.Cancel)
		api.POST("/rides/:id/dispute", rideHandler.Dispute)
		api.POST("/rides/:id/flag", rideHandler.Flag)
		api.POST("/rides/:id/tasks/:taskId/advance", rideHandler.AdvanceTask)

		api.POST("/rides/:id/bids", bidHandler.Submit)
		api.GET("/rides/:id/bids", bidHandler.List)
		api.POST("/rides/:id/bids/:bidId/accept", bidHandler.Accept)
		api.POST("/rides/:id/bids/:bidId/decline", bidHandler.Decline)
		api.POST("/rides/:id/bids/:bidId/withdraw", bidHandler.Withdraw)

		api.POST("/fares/estimate", fareHandler.Estimate)
		api.POST("/fares/distribute", fareHandler.Distribute)
	}

	r.GET("/ws/changes", streamHandler.Stream)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
