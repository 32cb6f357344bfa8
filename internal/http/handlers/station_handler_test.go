// README: Station handler tests: catalog, queue views, pop semantics and nearest lookup.
package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationq/internal/modules/queue"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

func TestStationList_AndGet(t *testing.T) {
	env := newTestEnv(t, ameerpet, mgbs)
	r := buildTestRouter(env, nil)

	w := doRequest(r, http.MethodGet, "/api/stations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Stations []station.Station `json:"stations"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Stations, 2)

	w = doRequest(r, http.MethodGet, "/api/stations/MGBS", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st station.Station
	decode(t, w, &st)
	assert.Equal(t, mgbs, st)

	w = doRequest(r, http.MethodGet, "/api/stations/Nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStationQueue_FIFOOrder(t *testing.T) {
	env := newTestEnv(t, ameerpet, mgbs)
	r := buildTestRouter(env, nil)

	for _, id := range []string{"d1", "d2", "d3"} {
		w := doRequest(r, http.MethodPost, "/api/agents/location", report(id, ameerpet.Location), "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/stations/Ameerpet/queue", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		StationID string `json:"station_id"`
		Queue     []struct {
			Position   int    `json:"position"`
			AgentID    string `json:"agent_id"`
			EnqueuedAt string `json:"enqueued_at"`
		} `json:"queue"`
	}
	decode(t, w, &body)
	require.Len(t, body.Queue, 3)
	for i, want := range []string{"d1", "d2", "d3"} {
		assert.Equal(t, i+1, body.Queue[i].Position)
		assert.Equal(t, want, body.Queue[i].AgentID)
		assert.NotEmpty(t, body.Queue[i].EnqueuedAt)
	}

	w = doRequest(r, http.MethodGet, "/api/stations/MGBS/queue", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Empty(t, body.Queue)

	w = doRequest(r, http.MethodGet, "/api/stations/Nowhere/queue", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStationStats(t *testing.T) {
	env := newTestEnv(t, ameerpet)
	r := buildTestRouter(env, nil)

	doRequest(r, http.MethodPost, "/api/agents/location", report("d1", ameerpet.Location), "")
	doRequest(r, http.MethodPost, "/api/agents/location", report("d2", ameerpet.Location), "")

	w := doRequest(r, http.MethodGet, "/api/stations/Ameerpet/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st queue.Stats
	decode(t, w, &st)
	assert.Equal(t, 2, st.Size)
}

func TestStationPop(t *testing.T) {
	env := newTestEnv(t, ameerpet)
	r := buildTestRouter(env, nil)

	doRequest(r, http.MethodPost, "/api/agents/location", report("d1", ameerpet.Location), "")
	doRequest(r, http.MethodPost, "/api/agents/location", report("d2", ameerpet.Location), "")

	var body struct {
		AgentID types.ID `json:"agent_id"`
	}
	for _, want := range []types.ID{"d1", "d2"} {
		w := doRequest(r, http.MethodPost, "/api/stations/Ameerpet/pop", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &body)
		assert.Equal(t, want, body.AgentID)
	}

	w := doRequest(r, http.MethodPost, "/api/stations/Ameerpet/pop", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(r, http.MethodPost, "/api/stations/Nowhere/pop", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	p, err := env.dispatch.PlacementOf("d1")
	require.NoError(t, err)
	assert.False(t, p.IsQueued())
}

func TestStationPop_RequiresDispatcherRole(t *testing.T) {
	env := newTestEnv(t, ameerpet)

	driver := buildTestRouter(env, makeVerifier("d1", "driver"))
	w := doRequest(driver, http.MethodPost, "/api/stations/Ameerpet/pop", nil, "Bearer tok")
	assert.Equal(t, http.StatusForbidden, w.Code)

	dispatcher := buildTestRouter(env, makeVerifier("ops", "dispatcher"))
	w = doRequest(dispatcher, http.MethodPost, "/api/stations/Ameerpet/pop", nil, "Bearer tok")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type nearestBody struct {
	Station      *station.Station `json:"station"`
	Distance     float64          `json:"distance_m"`
	WithinRadius bool             `json:"within_radius"`
	Queue        []struct {
		Position int    `json:"position"`
		AgentID  string `json:"agent_id"`
	} `json:"queue"`
	NearbyAgents []struct {
		AgentID string `json:"agent_id"`
	} `json:"nearby_agents"`
}

func TestStationNearest(t *testing.T) {
	env := newTestEnv(t, ameerpet, mgbs)
	r := buildTestRouter(env, nil)

	w := doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.3006, "lng": 78.3993}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body nearestBody
	decode(t, w, &body)
	require.NotNil(t, body.Station)
	assert.Equal(t, types.ID("Ameerpet"), body.Station.ID)
	assert.True(t, body.WithinRadius)
	assert.Less(t, body.Distance, 50.0)

	// Closer to MGBS but far outside its catchment.
	w = doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.40, "lng": 78.50}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = nearestBody{}
	decode(t, w, &body)
	require.NotNil(t, body.Station)
	assert.Equal(t, types.ID("MGBS"), body.Station.ID)
	assert.False(t, body.WithinRadius)

	w = doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.3}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStationNearest_EmptyCatalogFallsBackToAgents(t *testing.T) {
	env := newTestEnv(t)
	r := buildTestRouter(env, nil)

	doRequest(r, http.MethodPost, "/api/agents/location", report("d1", types.Point{Lat: 17.301, Lng: 78.40}), "")

	w := doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.30, "lng": 78.40}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body nearestBody
	decode(t, w, &body)
	assert.Nil(t, body.Station)
	require.Len(t, body.NearbyAgents, 1)
	assert.Equal(t, "d1", body.NearbyAgents[0].AgentID)
}

func TestStationNearest_InsideCatchmentIncludesQueue(t *testing.T) {
	env := newTestEnv(t, ameerpet, mgbs)
	r := buildTestRouter(env, nil)

	doRequest(r, http.MethodPost, "/api/agents/location", report("d1", ameerpet.Location), "")
	doRequest(r, http.MethodPost, "/api/agents/location", report("d2", types.Point{Lat: 17.3007, Lng: 78.3994}), "")

	w := doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.3006, "lng": 78.3993}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body nearestBody
	decode(t, w, &body)
	require.NotNil(t, body.Station)
	assert.Equal(t, types.ID("Ameerpet"), body.Station.ID)
	assert.True(t, body.WithinRadius)
	require.Len(t, body.Queue, 2)
	assert.Equal(t, "d1", body.Queue[0].AgentID)
	assert.Equal(t, 1, body.Queue[0].Position)
	assert.Equal(t, "d2", body.Queue[1].AgentID)
	assert.Empty(t, body.NearbyAgents)
}

func TestStationNearest_OutsideCatchmentListsNearbyAgents(t *testing.T) {
	env := newTestEnv(t, ameerpet, mgbs)
	r := buildTestRouter(env, nil)

	doRequest(r, http.MethodPost, "/api/agents/location", report("d7", types.Point{Lat: 17.51, Lng: 78.60}), "")
	doRequest(r, http.MethodPost, "/api/agents/location", report("queued", mgbs.Location), "")

	w := doRequest(r, http.MethodPost, "/api/stations/nearest", map[string]float64{"lat": 17.50, "lng": 78.60}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body nearestBody
	decode(t, w, &body)
	require.NotNil(t, body.Station)
	assert.Equal(t, types.ID("MGBS"), body.Station.ID)
	assert.False(t, body.WithinRadius)
	assert.Empty(t, body.Queue)
	require.Len(t, body.NearbyAgents, 1)
	assert.Equal(t, "d7", body.NearbyAgents[0].AgentID)
}
