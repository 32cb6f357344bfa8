// README: Shared fixtures for handler tests: real services over an in-memory GEO store.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stationq/internal/events"
	"stationq/internal/http/handlers"
	httpmiddleware "stationq/internal/http/middleware"
	"stationq/internal/infra"
	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

var (
	ameerpet = station.Station{
		ID:           "Ameerpet",
		Name:         "Ameerpet",
		Location:     types.Point{Lat: 17.3005372696588, Lng: 78.39926408384103},
		RadiusMeters: 500,
	}
	mgbs = station.Station{
		ID:           "MGBS",
		Name:         "Mahatma Gandhi Bus Station",
		Location:     types.Point{Lat: 17.3784, Lng: 78.4846},
		RadiusMeters: 500,
	}
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

type testEnv struct {
	dispatch *dispatch.Service
	location *location.Service
}

// newTestEnv wires the dispatch core straight into the location service so
// nearby queries see reported agents without a fan-out goroutine.
func newTestEnv(t *testing.T, stations ...station.Station) testEnv {
	t.Helper()
	dir, err := station.NewDirectory(stations)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	loc := location.NewService(location.NewMemoryStore(), zerolog.Nop())
	pub := events.PublisherFunc(func(ev events.Event) {
		_ = loc.Handle(context.Background(), ev)
	})
	return testEnv{
		dispatch: dispatch.NewService(dir, dispatch.WithPublisher(pub)),
		location: loc,
	}
}

// buildTestRouter mounts the agent and station handlers. A nil verifier
// leaves auth disabled.
func buildTestRouter(env testEnv, verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	if verifier != nil {
		api.Use(httpmiddleware.Auth(verifier))
	}
	ah := handlers.NewAgentHandler(env.dispatch, env.location)
	api.POST("/agents/location", ah.ReportLocation)
	api.GET("/agents/nearby", ah.Nearby)
	api.DELETE("/agents/:id", ah.Remove)
	api.GET("/agents/:id/placement", ah.Placement)

	sh := handlers.NewStationHandler(env.dispatch, env.location)
	api.GET("/stations", sh.List)
	api.POST("/stations/nearest", sh.Nearest)
	api.GET("/stations/:id", sh.Get)
	api.GET("/stations/:id/queue", sh.Queue)
	api.GET("/stations/:id/stats", sh.Stats)
	api.POST("/stations/:id/pop", httpmiddleware.RequireRole(httpmiddleware.RoleDispatcher), sh.Pop)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func report(id string, p types.Point) map[string]interface{} {
	return map[string]interface{}{"agent_id": id, "lat": p.Lat, "lng": p.Lng}
}
