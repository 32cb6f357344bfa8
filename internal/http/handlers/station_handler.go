// README: Station handlers: catalog, queue snapshot, stats, pop and nearest lookup.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
	"stationq/internal/modules/queue"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

// fallbackNearbyRadius is how far to look for agents when the point is
// outside every station catchment.
const fallbackNearbyRadius = 5000.0

type StationHandler struct {
	dispatch *dispatch.Service
	location *location.Service
}

func NewStationHandler(dispatchSvc *dispatch.Service, locationSvc *location.Service) *StationHandler {
	return &StationHandler{dispatch: dispatchSvc, location: locationSvc}
}

func (h *StationHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"stations": h.dispatch.Stations()})
}

func (h *StationHandler) Get(c *gin.Context) {
	st, err := h.dispatch.Station(types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

type queueEntryResponse struct {
	Position int    `json:"position"`
	AgentID  string `json:"agent_id"`
	// EnqueuedAt is RFC 3339 with nanoseconds.
	EnqueuedAt string `json:"enqueued_at"`
}

func (h *StationHandler) Queue(c *gin.Context) {
	id := types.ID(c.Param("id"))
	entries, err := h.dispatch.Snapshot(id)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"station_id": id, "queue": toQueueEntries(entries)})
}

func toQueueEntries(entries []queue.Entry) []queueEntryResponse {
	out := make([]queueEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = queueEntryResponse{
			Position:   i + 1,
			AgentID:    string(e.AgentID),
			EnqueuedAt: e.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

func (h *StationHandler) Stats(c *gin.Context) {
	st, err := h.dispatch.QueueStats(types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// Pop handles POST /api/stations/:id/pop. An empty queue answers 204.
func (h *StationHandler) Pop(c *gin.Context) {
	id := types.ID(c.Param("id"))
	agentID, ok, err := h.dispatch.PopNext(c.Request.Context(), id)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"station_id": id, "agent_id": agentID})
}

type pointRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type nearestResponse struct {
	Station        *station.Station       `json:"station"`
	DistanceMeters float64                `json:"distance_m,omitempty"`
	WithinRadius   bool                   `json:"within_radius"`
	Queue          []queueEntryResponse   `json:"queue,omitempty"`
	NearbyAgents   []location.NearbyAgent `json:"nearby_agents,omitempty"`
}

// Nearest handles POST /api/stations/nearest. Inside a catchment it returns
// that station with its queue. Anywhere else it returns the agents within
// fallbackNearbyRadius, along with the closest station when one exists.
func (h *StationHandler) Nearest(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
	m, found, err := h.dispatch.NearbyStation(p)
	if err != nil {
		writeDispatchError(c, err)
		return
	}

	var resp nearestResponse
	if found {
		st := m.Station
		resp.Station = &st
		resp.DistanceMeters = m.DistanceMeters
		resp.WithinRadius = m.DistanceMeters <= st.RadiusMeters
	}
	if resp.WithinRadius {
		entries, err := h.dispatch.Snapshot(resp.Station.ID)
		if err != nil {
			writeDispatchError(c, err)
			return
		}
		resp.Queue = toQueueEntries(entries)
		writeJSON(c, http.StatusOK, resp)
		return
	}
	if resp.NearbyAgents, err = h.location.Nearby(c.Request.Context(), p, fallbackNearbyRadius); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}
