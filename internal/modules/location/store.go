// README: Agent position store backed by Redis GEO.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"stationq/internal/types"
)

const agentGeoKey = "stationq:agents"

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, agentGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *Store) RemoveGeo(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, agentGeoKey, string(id)).Err()
}

// Nearby returns agents Redis considers within radiusMeters of center. The
// distances are recomputed by the service with the service-wide radius.
func (s *Store) Nearby(ctx context.Context, center types.Point, radiusMeters float64) ([]NearbyAgent, error) {
	results, err := s.redis.GeoSearchLocation(ctx, agentGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyAgent, len(results))
	for i, r := range results {
		out[i] = NearbyAgent{
			AgentID:        types.ID(r.Name),
			Position:       types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceMeters: r.Dist,
		}
	}
	return out, nil
}
