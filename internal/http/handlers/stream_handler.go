// README: WebSocket change stream. Each connection gets a hub subscription
// scoped by role; reconnects resume through the hub's resync handshake.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"glide/internal/modules/propagation"
	"glide/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type StreamHandler struct {
	hub      *propagation.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewStreamHandler(hub *propagation.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// streamFrame is the wire envelope: either a change event or a channel
// status update, never both.
type streamFrame struct {
	Type   string                    `json:"type"`
	Event  *propagation.Event        `json:"event,omitempty"`
	Status propagation.ChannelStatus `json:"status,omitempty"`
}

// filtersFromQuery builds the subscription scope. A driver sees rides they
// can act on plus their own bids; a passenger sees their rides and incoming
// bids; an unscoped connection (operators, dashboards) sees everything.
func filtersFromQuery(c *gin.Context) []propagation.Filter {
	if driverID := c.Query("driver_id"); driverID != "" {
		return []propagation.Filter{
			{Entity: "ride", Match: propagation.MetaEquals("driver_id", driverID)},
			{Entity: "ride", Match: propagation.MetaEquals("status", "pending")},
			{Entity: "ride", Match: propagation.MetaEquals("status", "offered")},
			{Entity: "bid", Match: propagation.MetaEquals("driver_id", driverID)},
		}
	}
	if passengerID := c.Query("passenger_id"); passengerID != "" {
		return []propagation.Filter{
			{Entity: "ride", Match: propagation.MetaEquals("passenger_id", passengerID)},
			{Entity: "bid", Match: propagation.MetaEquals("passenger_id", passengerID)},
		}
	}
	if rideID := c.Query("ride_id"); rideID != "" {
		return []propagation.Filter{
			{Entity: "ride", Match: func(e propagation.Event) bool { return e.EntityID == types.ID(rideID) }},
			{Entity: "bid", Match: propagation.MetaEquals("ride_id", rideID)},
		}
	}
	return []propagation.Filter{{}}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// a stable client id lets a reconnecting client resume its subscription
	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = string(types.NewID())
	}

	statusCh := make(chan propagation.ChannelStatus, 8)
	filters := filtersFromQuery(c)
	sub := h.hub.Subscribe(clientID, filters, func(s propagation.ChannelStatus) {
		select {
		case statusCh <- s:
		default:
		}
	})
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// clients send "resync" on visibility change or suspected staleness;
			// the whole filter set is re-established atomically
			if string(msg) == "resync" {
				h.hub.Resync(clientID, filters)
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamFrame{Type: "event", Event: &e}); err != nil {
				return
			}
		case s := <-statusCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamFrame{Type: "status", Status: s}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
