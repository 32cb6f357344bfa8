// README: Agent position records mirrored outside the dispatch core.
package location

import (
	"stationq/internal/types"
)

// NearbyAgent is an agent found around a query point.
type NearbyAgent struct {
	AgentID        types.ID    `json:"agent_id"`
	Position       types.Point `json:"position"`
	DistanceMeters float64     `json:"distance_m"`
}
