// Package events defines the immutable values the dispatch core emits and the
// contracts of the collaborators that deliver them.
package events

import (
	"context"
	"time"

	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

type Type string

const (
	TypePlacementChanged Type = "placement_changed"
	TypeLocationUpdated  Type = "location_updated"
	TypeAgentRemoved     Type = "agent_removed"
)

// Reason explains why a placement changed.
type Reason string

const (
	ReasonReport         Reason = "report"
	ReasonDispatched     Reason = "dispatched"
	ReasonRemoved        Reason = "removed"
	ReasonStationRemoved Reason = "station_removed"
)

// Event is a single notification. Seq is assigned by the core and increases
// monotonically across all agents; for a given agent, events are published
// in Seq order.
type Event struct {
	Type      Type               `json:"type"`
	Seq       uint64             `json:"seq"`
	At        time.Time          `json:"at"`
	AgentID   types.ID           `json:"agent_id"`
	Previous  registry.Placement `json:"previous"`
	Current   registry.Placement `json:"current"`
	StationID types.ID           `json:"station_id,omitempty"`
	Position  types.Point        `json:"position"`
	Status    registry.Status    `json:"status,omitempty"`
	Reason    Reason             `json:"reason,omitempty"`
}

// Publisher accepts events from the core. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
