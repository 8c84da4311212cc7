// README: Fare quoting and cost distribution handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glide/internal/modules/pricing"
	"glide/internal/types"
)

type FareHandler struct {
	pricing *pricing.Service
}

func NewFareHandler(svc *pricing.Service) *FareHandler {
	return &FareHandler{pricing: svc}
}

func (h *FareHandler) Estimate(c *gin.Context) {
	var req pricing.FareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	fare, err := h.pricing.Estimate(c.Request.Context(), req)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, fare)
}

type distributeReq struct {
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
	Shares     int    `json:"shares"`
}

func (h *FareHandler) Distribute(c *gin.Context) {
	var req distributeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	shares, err := pricing.Distribute(types.Money{Amount: req.TotalCents, Currency: currency}, req.Shares)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares": shares})
}
