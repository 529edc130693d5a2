// README: Order handlers: read, manual status updates and nearby-driver offers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"flashfood/internal/modules/matching"
	"flashfood/internal/modules/order"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

type OrderService interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	UpdateStatus(ctx context.Context, cmd order.UpdateStatusCommand) (*order.Order, error)
}

type OfferService interface {
	OfferOrder(ctx context.Context, orderID types.ID) (*matching.OfferResult, error)
}

type OrderHandler struct {
	order    OrderService
	matching OfferService
}

func NewOrderHandler(orderSvc OrderService, matchingSvc OfferService) *OrderHandler {
	return &OrderHandler{order: orderSvc, matching: matchingSvc}
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "order": o})
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus is the restaurant/agent path for statuses outside the delivery stages.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if !requireRole(c, realtime.KindRestaurant, realtime.KindCustomerCare) {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	o, err := h.order.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID: types.ID(id),
		Status:  order.Status(req.Status),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "Order status updated", "order": o})
}

// Offer sends the order to nearby drivers.
func (h *OrderHandler) Offer(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if !requireRole(c, realtime.KindRestaurant, realtime.KindCustomerCare) {
		return
	}
	res, err := h.matching.OfferOrder(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "Order offered to nearby drivers", "offer": res})
}
