// README: WebSocket stream of dispatch events.
package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stationq/internal/eventbus"
	"stationq/internal/events"
	"stationq/internal/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 128
)

type EventsHandler struct {
	bus      *eventbus.TypedBus[events.Event]
	log      zerolog.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// NewEventsHandler accepts handshakes from the serving host and from
// allowedOrigins. A "*" entry allows any origin.
func NewEventsHandler(bus *eventbus.TypedBus[events.Event], log zerolog.Logger, allowedOrigins ...string) *EventsHandler {
	h := &EventsHandler{bus: bus, log: log, origins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin lets clients without an Origin header through; those are not
// browsers and carry their own credentials.
func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// Stream handles GET /api/events. Optional station_id and agent_id query
// parameters narrow the stream.
func (h *EventsHandler) Stream(c *gin.Context) {
	stationID := types.ID(c.Query("station_id"))
	agentID := types.ID(c.Query("agent_id"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(wsBuffer)
	defer h.bus.Unsubscribe(sub)

	// The read loop only handles control frames; it ends when the client goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !matches(ev, stationID, agentID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func matches(ev events.Event, stationID, agentID types.ID) bool {
	if agentID != "" && ev.AgentID != agentID {
		return false
	}
	if stationID == "" {
		return true
	}
	return ev.StationID == stationID ||
		(ev.Previous.IsQueued() && ev.Previous.StationID == stationID)
}
