// README: Location service mirrors agent positions into a GEO store and answers nearby-agent queries.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"stationq/internal/events"
	"stationq/internal/types"
)

var ErrBadRadius = errors.New("radius must be a positive finite number")

// GeoStore is the position index behind the service.
type GeoStore interface {
	SetGeo(ctx context.Context, id types.ID, pos types.Point) error
	RemoveGeo(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, center types.Point, radiusMeters float64) ([]NearbyAgent, error)
}

type Service struct {
	store GeoStore
	log   zerolog.Logger
}

func NewService(store GeoStore, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Name() string { return "redis-geo" }

// Handle keeps the GEO index in step with the dispatch core. Agents stay
// indexed while roaming; only removal drops them.
func (s *Service) Handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypePlacementChanged, events.TypeLocationUpdated:
		return s.store.SetGeo(ctx, ev.AgentID, ev.Position)
	case events.TypeAgentRemoved:
		return s.store.RemoveGeo(ctx, ev.AgentID)
	}
	return nil
}

// Nearby lists agents within radiusMeters of center, closest first.
func (s *Service) Nearby(ctx context.Context, center types.Point, radiusMeters float64) ([]NearbyAgent, error) {
	if err := ValidatePoint(center); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return nil, ErrBadRadius
	}
	found, err := s.store.Nearby(ctx, center, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("querying nearby agents: %w", err)
	}

	result := found[:0]
	for _, a := range found {
		if ValidatePoint(a.Position) != nil {
			s.log.Warn().Str("agent_id", string(a.AgentID)).Msg("skipping agent with invalid stored position")
			continue
		}
		a.DistanceMeters = haversineMeters(center.Lat, center.Lng, a.Position.Lat, a.Position.Lng)
		if a.DistanceMeters <= radiusMeters {
			result = append(result, a)
		}
	}
	sortByDistance(result, func(a NearbyAgent) float64 { return a.DistanceMeters })
	return result, nil
}
