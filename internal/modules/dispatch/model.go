// README: Dispatch placement states, commands and errors.
package dispatch

import (
	"errors"
	"time"

	"stationq/internal/modules/location"
	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrStationNotFound   = errors.New("station not found")
	ErrInvalidTransition = errors.New("invalid placement transition")
	ErrInvalidStatus     = registry.ErrInvalidStatus
	ErrInvalidCoordinate = location.ErrInvalidCoordinate
)

// AllowedTransitions represents the placement state flow as code. Queued to
// Queued covers both staying at a station and crossing to another one.
var AllowedTransitions = map[registry.PlacementKind][]registry.PlacementKind{
	registry.PlacementUnknown: {registry.PlacementRoaming, registry.PlacementQueued},
	registry.PlacementRoaming: {registry.PlacementRoaming, registry.PlacementQueued},
	registry.PlacementQueued:  {registry.PlacementRoaming, registry.PlacementQueued},
}

func CanTransition(from, to registry.PlacementKind) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, k := range next {
		if k == to {
			return true
		}
	}
	return false
}

// ReportCommand is one position report. An empty Status keeps the agent's
// previous status.
type ReportCommand struct {
	AgentID  types.ID
	Position types.Point
	Status   string
}

// Result describes the agent after a report.
type Result struct {
	Agent    registry.Agent     `json:"agent"`
	Previous registry.Placement `json:"previous"`
	Current  registry.Placement `json:"current"`
	Changed  bool               `json:"changed"`
	// QueuePosition is 1-based; zero while roaming.
	QueuePosition  int     `json:"queue_position,omitempty"`
	DistanceMeters float64 `json:"distance_m,omitempty"`
}

// State is the persisted core state used to rebuild queues at startup.
type State struct {
	Agents  []registry.Agent
	LastSeq uint64
}

const (
	defaultEventBuffer = 1024
	defaultSinkTimeout = 5 * time.Second
)
