// README: Agent handlers: position reports, removal, placement and nearby agents.
package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stationq/internal/http/middleware"
	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

const agentIDPrefix = "driver-"

type AgentHandler struct {
	dispatch *dispatch.Service
	location *location.Service
}

func NewAgentHandler(dispatchSvc *dispatch.Service, locationSvc *location.Service) *AgentHandler {
	return &AgentHandler{dispatch: dispatchSvc, location: locationSvc}
}

type reportRequest struct {
	AgentID string   `json:"agent_id"`
	Lat     *float64 `json:"lat" binding:"required"`
	Lng     *float64 `json:"lng" binding:"required"`
	Status  string   `json:"status"`
}

// ReportLocation handles POST /api/agents/location. A missing agent_id is
// filled from the caller's uid, or generated.
func (h *AgentHandler) ReportLocation(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	if req.AgentID == "" {
		if middleware.Authenticated(c) && middleware.CallerRole(c) == middleware.RoleDriver {
			req.AgentID = middleware.CallerUID(c)
		} else {
			req.AgentID = agentIDPrefix + uuid.NewString()
		}
	}
	if !isValidID(req.AgentID) {
		writeError(c, http.StatusBadRequest, "invalid agent_id")
		return
	}
	if !authorizeAgent(c, req.AgentID) {
		return
	}

	res, err := h.dispatch.ReportPosition(c.Request.Context(), dispatch.ReportCommand{
		AgentID:  types.ID(req.AgentID),
		Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Status:   req.Status,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *AgentHandler) Remove(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid agent id")
		return
	}
	if !authorizeAgent(c, id) {
		return
	}
	removed, err := h.dispatch.RemoveAgent(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"agent_id": id, "removed": removed})
}

type placementResponse struct {
	AgentID       types.ID           `json:"agent_id"`
	Placement     registry.Placement `json:"placement"`
	QueuePosition int                `json:"queue_position,omitempty"`
}

func (h *AgentHandler) Placement(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid agent id")
		return
	}
	p, err := h.dispatch.PlacementOf(types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	resp := placementResponse{AgentID: types.ID(id), Placement: p}
	resp.QueuePosition, _ = h.dispatch.QueuePosition(types.ID(id))
	writeJSON(c, http.StatusOK, resp)
}

// Nearby handles GET /api/agents/nearby?lat=&lng=&radius_m=.
func (h *AgentHandler) Nearby(c *gin.Context) {
	center, ok := queryPoint(c)
	if !ok {
		return
	}
	radius := 5000.0
	if v := c.Query("radius_m"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_m")
			return
		}
		radius = r
	}
	agents, err := h.location.Nearby(c.Request.Context(), center, radius)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if agents == nil {
		agents = []location.NearbyAgent{}
	}
	writeJSON(c, http.StatusOK, gin.H{"agents": agents})
}

func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng query parameters are required")
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}
