// README: Ride lifecycle handlers: create, read, transitions, task progress.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"glide/internal/modules/ride"
	"glide/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type locationReq struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (l locationReq) toLocation() types.Location {
	loc := types.Location{Address: l.Address}
	if l.Lat != nil && l.Lng != nil {
		loc.Point = &types.Point{Lat: *l.Lat, Lng: *l.Lng}
	}
	return loc
}

type taskReq struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Pickup      locationReq `json:"pickup"`
	Dropoff     locationReq `json:"dropoff"`
}

type createRideReq struct {
	ServiceType    string      `json:"service_type"`
	PassengerID    string      `json:"passenger_id"`
	Pickup         locationReq `json:"pickup"`
	Dropoff        locationReq `json:"dropoff"`
	Tasks          []taskReq   `json:"tasks"`
	IsSeries       bool        `json:"is_series"`
	ScheduledDates []string    `json:"scheduled_dates"`
	RoundTrip      bool        `json:"round_trip"`
	PackageSize    string      `json:"package_size"`
	VehicleClass   string      `json:"vehicle_class"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var dates []time.Time
	for _, s := range req.ScheduledDates {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(c, http.StatusBadRequest, "scheduled_dates must be YYYY-MM-DD")
			return
		}
		dates = append(dates, d)
	}
	cr := ride.CreateRequest{
		ServiceType:    req.ServiceType,
		PassengerID:    types.ID(req.PassengerID),
		Pickup:         req.Pickup.toLocation(),
		Dropoff:        req.Dropoff.toLocation(),
		IsSeries:       req.IsSeries,
		ScheduledDates: dates,
		RoundTrip:      req.RoundTrip,
		PackageSize:    req.PackageSize,
		VehicleClass:   req.VehicleClass,
	}
	for _, t := range req.Tasks {
		cr.Tasks = append(cr.Tasks, ride.TaskInput{
			Title:       t.Title,
			Description: t.Description,
			Pickup:      t.Pickup.toLocation(),
			Dropoff:     t.Dropoff.toLocation(),
		})
	}
	r, err := h.rides.Create(c.Request.Context(), cr)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RideHandler) ListByPassenger(c *gin.Context) {
	passengerID := c.Query("passenger_id")
	if passengerID == "" {
		writeError(c, http.StatusBadRequest, "passenger_id is required")
		return
	}
	rides, err := h.rides.ListByPassenger(c.Request.Context(), passengerID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides})
}

func (h *RideHandler) History(c *gin.Context) {
	evts, err := h.rides.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

type transitionReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

func (r transitionReq) actor() ride.Actor {
	id := types.ID(r.ActorID)
	switch r.ActorType {
	case "driver":
		return ride.DriverActor(id)
	case "passenger":
		return ride.PassengerActor(id)
	case "operator":
		return ride.OperatorActor(id)
	}
	return ride.SystemActor()
}

func (h *RideHandler) Start(c *gin.Context) {
	h.transition(c, h.rides.Start)
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.transition(c, h.rides.Complete)
}

func (h *RideHandler) Dispute(c *gin.Context) {
	h.transition(c, h.rides.Dispute)
}

func (h *RideHandler) Flag(c *gin.Context) {
	h.transition(c, h.rides.Flag)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req transitionReq
	_ = c.ShouldBindJSON(&req)
	r, err := h.rides.Cancel(c.Request.Context(), c.Param("id"), req.Reason, req.actor())
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type advanceTaskReq struct {
	FromState string `json:"from_state"`
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
}

func (h *RideHandler) AdvanceTask(c *gin.Context) {
	var req advanceTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	actor := transitionReq{ActorType: req.ActorType, ActorID: req.ActorID}.actor()
	r, err := h.rides.AdvanceTask(c.Request.Context(), c.Param("id"), types.ID(c.Param("taskId")), req.FromState, actor)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RideHandler) transition(c *gin.Context, fn func(ctx context.Context, id string, actor ride.Actor) (*ride.Ride, error)) {
	var req transitionReq
	_ = c.ShouldBindJSON(&req)
	r, err := fn(c.Request.Context(), c.Param("id"), req.actor())
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
