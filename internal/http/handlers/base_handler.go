// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"flashfood/internal/http/middleware"
	"flashfood/internal/modules/dispatch"
	"flashfood/internal/modules/location"
	"flashfood/internal/modules/matching"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/stats"
	"flashfood/internal/realtime"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// isValidID accepts the ids this service issues: letters, digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Success: false, Message: msg})
}

// errorStatus maps domain errors to a status and a public message. Anything
// unclassified is reported as "internal error".
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrBadRequest),
		errors.Is(err, matching.ErrNoRestaurantLocation),
		errors.Is(err, location.ErrInvalidPoint),
		errors.Is(err, stats.ErrBadPeriod):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, matching.ErrAlreadyAssigned),
		errors.Is(err, matching.ErrNotOfferable):
		return http.StatusConflict, err.Error()
	}
	switch dispatch.KindOf(err) {
	case dispatch.KindValidation:
		return http.StatusBadRequest, err.Error()
	case dispatch.KindNotFound:
		return http.StatusNotFound, err.Error()
	case dispatch.KindConflict:
		return http.StatusConflict, err.Error()
	case dispatch.KindForbidden:
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeDispatchError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, msg)
}

// requireRole aborts with 403 unless the caller has one of kinds.
func requireRole(c *gin.Context, kinds ...realtime.PartyKind) bool {
	kind, ok := realtime.ParseKind(middleware.CallerRole(c))
	if ok {
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
	}
	writeError(c, http.StatusForbidden, "forbidden: role not allowed")
	return false
}

// requireSelf aborts with 403 unless the caller is id.
func requireSelf(c *gin.Context, id string) bool {
	if middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return false
	}
	return true
}
