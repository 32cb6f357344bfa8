// README: Agent records and placements owned by the registry.
package registry

import (
	"errors"
	"fmt"
	"time"

	"stationq/internal/types"
)

type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusBusy   Status = "busy"
)

var ErrInvalidStatus = errors.New("invalid agent status")

// ParseStatus accepts the three reported statuses. An empty string is not a
// status; callers decide what a missing status means.
func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusIdle, StatusActive, StatusBusy:
		return Status(v), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

type PlacementKind string

const (
	PlacementUnknown PlacementKind = "unknown"
	PlacementRoaming PlacementKind = "roaming"
	PlacementQueued  PlacementKind = "queued"
)

// Placement records where an agent currently is. StationID, EnqueuedAt and
// Seq are only set for queued placements.
type Placement struct {
	Kind       PlacementKind `json:"kind"`
	StationID  types.ID      `json:"station_id,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at,omitempty"`
	Seq        uint64        `json:"seq,omitempty"`
}

func Unknown() Placement { return Placement{Kind: PlacementUnknown} }

func Roaming() Placement { return Placement{Kind: PlacementRoaming} }

func Queued(stationID types.ID, enqueuedAt time.Time, seq uint64) Placement {
	return Placement{Kind: PlacementQueued, StationID: stationID, EnqueuedAt: enqueuedAt, Seq: seq}
}

func (p Placement) IsQueued() bool { return p.Kind == PlacementQueued }

// SameAs compares kind and station only. Two queued placements at the same
// station are the same placement even if the entry timestamps differ.
func (p Placement) SameAs(o Placement) bool {
	if p.Kind != o.Kind {
		return false
	}
	return p.Kind != PlacementQueued || p.StationID == o.StationID
}

func (p Placement) String() string {
	if p.IsQueued() {
		return fmt.Sprintf("queued(%s)", p.StationID)
	}
	return string(p.Kind)
}

type Agent struct {
	ID          types.ID    `json:"id"`
	Location    types.Point `json:"location"`
	Status      Status      `json:"status"`
	LastUpdated time.Time   `json:"last_updated"`
	Placement   Placement   `json:"placement"`
}
