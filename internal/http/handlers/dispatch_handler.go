// README: Driver dispatch handlers: claim an order, advance a stage, tip a driver.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"flashfood/internal/http/middleware"
	"flashfood/internal/modules/dispatch"
	"flashfood/internal/modules/order"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

// Dispatcher is the slice of dispatch.Service the transports call.
type Dispatcher interface {
	ClaimOrder(ctx context.Context, cmd dispatch.ClaimCommand) (*dispatch.ClaimResult, error)
	AdvanceStage(ctx context.Context, cmd dispatch.AdvanceCommand) (*dispatch.AdvanceResult, error)
	AddTip(ctx context.Context, cmd dispatch.TipCommand) (*order.Order, error)
}

type DispatchHandler struct {
	dispatch Dispatcher
}

func NewDispatchHandler(svc Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatch: svc}
}

// Claim assigns the order to the calling driver.
func (h *DispatchHandler) Claim(c *gin.Context) {
	driverID, orderID := c.Param("driver_id"), c.Param("order_id")
	if !isValidID(driverID) || !isValidID(orderID) {
		writeError(c, http.StatusBadRequest, "invalid driver or order id")
		return
	}
	if !requireRole(c, realtime.KindDriver) || !requireSelf(c, driverID) {
		return
	}
	res, err := h.dispatch.ClaimOrder(c.Request.Context(), dispatch.ClaimCommand{
		DriverID: types.ID(driverID),
		OrderID:  types.ID(orderID),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, claimResponse(res))
}

func claimResponse(res *dispatch.ClaimResult) gin.H {
	msg := "Order accepted"
	if res.AlreadyAssigned {
		msg = "Order already assigned to this driver"
	}
	return gin.H{"success": true, "message": msg, "order": res.Order, "aggregate": res.Aggregate}
}

type advanceReq struct {
	OrderID *string `json:"order_id"`
}

// Advance moves the driver's progress one stage forward.
func (h *DispatchHandler) Advance(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid progress id")
		return
	}
	if !requireRole(c, realtime.KindDriver) {
		return
	}
	var req advanceReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	cmd := dispatch.AdvanceCommand{DriverID: types.ID(middleware.CallerUID(c)), AggregateID: types.ID(id)}
	if req.OrderID != nil {
		if !isValidID(*req.OrderID) {
			writeError(c, http.StatusBadRequest, "invalid order id")
			return
		}
		cmd.OrderID = types.IDPtr(types.ID(*req.OrderID))
	}
	res, err := h.dispatch.AdvanceStage(c.Request.Context(), cmd)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, advanceResponse(res))
}

func advanceResponse(res *dispatch.AdvanceResult) gin.H {
	return gin.H{
		"success":   true,
		"message":   "Stage updated to " + res.Transition.Entered.String(),
		"aggregate": res.Aggregate,
		"orders":    res.Orders,
	}
}

type tipReq struct {
	Amount *int64 `json:"amount"`
}

// Tip credits the order's driver.
func (h *DispatchHandler) Tip(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if !requireRole(c, realtime.KindCustomer, realtime.KindCustomerCare) {
		return
	}
	var req tipReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		writeError(c, http.StatusBadRequest, "amount is required")
		return
	}
	o, err := h.dispatch.AddTip(c.Request.Context(), dispatch.TipCommand{OrderID: types.ID(id), Amount: *req.Amount})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "Tip added", "order": o})
}
