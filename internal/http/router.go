// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stationq/internal/eventbus"
	"stationq/internal/events"
	"stationq/internal/http/handlers"
	"stationq/internal/http/middleware"
	"stationq/internal/infra"
	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
)

type RouterDeps struct {
	Dispatch *dispatch.Service
	Location *location.Service
	Events   *eventbus.TypedBus[events.Event]
	// Verifier enables Firebase auth on /api when set.
	Verifier infra.TokenVerifier
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger

	// AllowedOrigins are the browser origins allowed on /api/events besides
	// the serving host.
	AllowedOrigins []string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if deps.Verifier != nil {
		api.Use(middleware.Auth(deps.Verifier))
	}

	agentHandler := handlers.NewAgentHandler(deps.Dispatch, deps.Location)
	api.POST("/agents/location", agentHandler.ReportLocation)
	api.GET("/agents/nearby", agentHandler.Nearby)
	api.DELETE("/agents/:id", agentHandler.Remove)
	api.GET("/agents/:id/placement", agentHandler.Placement)

	stationHandler := handlers.NewStationHandler(deps.Dispatch, deps.Location)
	api.GET("/stations", stationHandler.List)
	api.POST("/stations/nearest", stationHandler.Nearest)
	api.GET("/stations/:id", stationHandler.Get)
	api.GET("/stations/:id/queue", stationHandler.Queue)
	api.GET("/stations/:id/stats", stationHandler.Stats)
	api.POST("/stations/:id/pop", middleware.RequireRole(middleware.RoleDispatcher), stationHandler.Pop)

	if deps.Events != nil {
		eventsHandler := handlers.NewEventsHandler(deps.Events, deps.Log, deps.AllowedOrigins...)
		api.GET("/events", eventsHandler.Stream)
	}
	return r
}
