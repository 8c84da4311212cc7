// README: Bid handlers: submit, list, accept, decline, withdraw.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glide/internal/modules/bidding"
	"glide/internal/types"
)

type BidHandler struct {
	bids *bidding.Service
}

func NewBidHandler(svc *bidding.Service) *BidHandler {
	return &BidHandler{bids: svc}
}

type submitBidReq struct {
	DriverID string  `json:"driver_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (h *BidHandler) Submit(c *gin.Context) {
	var req submitBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.bids.Submit(c.Request.Context(), bidding.SubmitRequest{
		RideID:   types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BidHandler) List(c *gin.Context) {
	bids, err := h.bids.List(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

func (h *BidHandler) Accept(c *gin.Context) {
	r, err := h.bids.Accept(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("bidId")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type declineBidReq struct {
	Reason string `json:"reason"`
}

func (h *BidHandler) Decline(c *gin.Context) {
	var req declineBidReq
	_ = c.ShouldBindJSON(&req)
	b, err := h.bids.Decline(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("bidId")), req.Reason)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) Withdraw(c *gin.Context) {
	b, err := h.bids.Withdraw(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("bidId")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
