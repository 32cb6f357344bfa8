// README: In-process GEO store used when Redis is not configured.
package location

import (
	"context"
	"sync"

	"stationq/internal/types"
)

type MemoryStore struct {
	mu  sync.RWMutex
	pos map[types.ID]types.Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pos: make(map[types.ID]types.Point)}
}

func (m *MemoryStore) SetGeo(_ context.Context, id types.ID, p types.Point) error {
	if err := ValidatePoint(p); err != nil {
		return err
	}
	m.mu.Lock()
	m.pos[id] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RemoveGeo(_ context.Context, id types.ID) error {
	m.mu.Lock()
	delete(m.pos, id)
	m.mu.Unlock()
	return nil
}

// Nearby scans every stored position.
func (m *MemoryStore) Nearby(_ context.Context, center types.Point, radiusMeters float64) ([]NearbyAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []NearbyAgent
	for id, p := range m.pos {
		d := haversineMeters(center.Lat, center.Lng, p.Lat, p.Lng)
		if d <= radiusMeters {
			out = append(out, NearbyAgent{AgentID: id, Position: p, DistanceMeters: d})
		}
	}
	sortByDistance(out, func(a NearbyAgent) float64 { return a.DistanceMeters })
	return out, nil
}
