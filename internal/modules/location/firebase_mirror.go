// README: Firebase RTDB mirror of agent placements for mobile clients.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"stationq/internal/events"
	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

// DefaultRTDBNode is the node mobile clients listen on.
const DefaultRTDBNode = "driver_locations"

// rtdbAgentEntry mirrors a single agent entry stored under the agents node.
type rtdbAgentEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Placement string  `json:"placement"`
	StationID string  `json:"station_id,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// FirebaseMirror writes the latest placement of every agent to Firebase RTDB
// so clients can listen to /driver_locations/{id} directly.
type FirebaseMirror struct {
	dbClient *db.Client
	node     string
}

func NewFirebaseMirror(dbClient *db.Client, node string) *FirebaseMirror {
	if node == "" {
		node = DefaultRTDBNode
	}
	return &FirebaseMirror{dbClient: dbClient, node: node}
}

func (m *FirebaseMirror) Name() string { return "firebase-rtdb" }

func (m *FirebaseMirror) Handle(ctx context.Context, ev events.Event) error {
	ref := m.dbClient.NewRef(m.path(ev.AgentID))
	switch ev.Type {
	case events.TypePlacementChanged, events.TypeLocationUpdated:
		if err := ref.Set(ctx, toRTDBEntry(ev)); err != nil {
			return fmt.Errorf("writing %s: %w", m.path(ev.AgentID), err)
		}
	case events.TypeAgentRemoved:
		if err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("deleting %s: %w", m.path(ev.AgentID), err)
		}
	}
	return nil
}

func (m *FirebaseMirror) path(id types.ID) string {
	return m.node + "/" + string(id)
}

func toRTDBEntry(ev events.Event) rtdbAgentEntry {
	e := rtdbAgentEntry{
		Lat:       ev.Position.Lat,
		Lng:       ev.Position.Lng,
		Status:    string(ev.Status),
		Placement: string(ev.Current.Kind),
		Timestamp: ev.At.UnixMilli(),
	}
	if ev.Current.Kind == registry.PlacementQueued {
		e.StationID = string(ev.Current.StationID)
	}
	return e
}
