// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stationq/internal/http/middleware"
	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
	"stationq/internal/modules/station"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts ids of up to 64 letters, digits, '-', '_' and '.'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' || c == '.' {
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
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrBadRequest),
		errors.Is(err, dispatch.ErrInvalidCoordinate),
		errors.Is(err, dispatch.ErrInvalidStatus),
		errors.Is(err, location.ErrBadRadius):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrStationNotFound), errors.Is(err, station.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// authorizeAgent lets a driver act only on its own id. Other authenticated
// roles, and every caller when auth is disabled, pass.
func authorizeAgent(c *gin.Context, agentID string) bool {
	if !middleware.Authenticated(c) {
		return true
	}
	switch middleware.CallerRole(c) {
	case middleware.RoleDispatcher:
		return true
	case middleware.RoleDriver:
		if middleware.CallerUID(c) == agentID {
			return true
		}
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return false
	}
	writeError(c, http.StatusForbidden, "forbidden: driver or dispatcher role required")
	return false
}
