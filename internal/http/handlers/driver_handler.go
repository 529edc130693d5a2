// README: Driver handlers for location updates and statistics.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"flashfood/internal/http/middleware"
	"flashfood/internal/modules/location"
	"flashfood/internal/modules/stats"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

type LocationUpdater interface {
	UpdateDriverLocation(ctx context.Context, u location.Update) error
}

type StatsRecomputer interface {
	Recompute(ctx context.Context, driverID types.ID, period stats.Period) error
}

type DriverHandler struct {
	location LocationUpdater
	stats    StatsRecomputer
}

func NewDriverHandler(locationSvc LocationUpdater, statsSvc StatsRecomputer) *DriverHandler {
	return &DriverHandler{location: locationSvc, stats: statsSvc}
}

type locationReq struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Available *bool    `json:"available"`
}

// UpdateLocation is allowed only for the authenticated driver's own id.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id := c.Param("driver_id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if !requireRole(c, realtime.KindDriver) || !requireSelf(c, id) {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	err := h.location.UpdateDriverLocation(c.Request.Context(), location.Update{
		DriverID:  types.ID(id),
		Point:     types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Available: req.Available,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "Location updated"})
}

// RecomputeStats rebuilds the driver's record for ?period= (daily by default).
func (h *DriverHandler) RecomputeStats(c *gin.Context) {
	id := c.Param("driver_id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if !requireRole(c, realtime.KindDriver, realtime.KindCustomerCare) {
		return
	}
	if kind, _ := realtime.ParseKind(middleware.CallerRole(c)); kind == realtime.KindDriver && !requireSelf(c, id) {
		return
	}
	period := stats.Period(c.DefaultQuery("period", string(stats.PeriodDaily)))
	if err := h.stats.Recompute(c.Request.Context(), types.ID(id), period); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "Stats recomputed", "period": period})
}
