package location

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationq/internal/events"
	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

// memGeoStore is an in-memory GeoStore that returns every stored agent from
// Nearby, leaving distance filtering to the service.
type memGeoStore struct {
	mu  sync.Mutex
	pos map[types.ID]types.Point
}

func newMemGeoStore() *memGeoStore {
	return &memGeoStore{pos: make(map[types.ID]types.Point)}
}

func (m *memGeoStore) SetGeo(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[id] = p
	return nil
}

func (m *memGeoStore) RemoveGeo(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pos, id)
	return nil
}

func (m *memGeoStore) Nearby(_ context.Context, _ types.Point, _ float64) ([]NearbyAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []NearbyAgent
	for id, p := range m.pos {
		out = append(out, NearbyAgent{AgentID: id, Position: p, DistanceMeters: -1})
	}
	return out, nil
}

var ameerpet = types.Point{Lat: 17.3005372696588, Lng: 78.39926408384103}

func TestServiceHandle_MirrorsPositions(t *testing.T) {
	ctx := context.Background()
	store := newMemGeoStore()
	svc := NewService(store, zerolog.Nop())

	require.NoError(t, svc.Handle(ctx, events.Event{
		Type:     events.TypePlacementChanged,
		AgentID:  "d1",
		Current:  registry.Queued("ameerpet", time.Now(), 1),
		Position: types.Point{Lat: 17.3006, Lng: 78.3993},
	}))
	require.NoError(t, svc.Handle(ctx, events.Event{
		Type:     events.TypeLocationUpdated,
		AgentID:  "d1",
		Position: types.Point{Lat: 17.3007, Lng: 78.3994},
	}))
	assert.Equal(t, types.Point{Lat: 17.3007, Lng: 78.3994}, store.pos["d1"])

	require.NoError(t, svc.Handle(ctx, events.Event{Type: events.TypeAgentRemoved, AgentID: "d1"}))
	assert.NotContains(t, store.pos, types.ID("d1"))
}

func TestServiceNearby_FiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := newMemGeoStore()
	svc := NewService(store, zerolog.Nop())

	_ = store.SetGeo(ctx, "far", types.Point{Lat: 17.40, Lng: 78.40})
	_ = store.SetGeo(ctx, "mid", types.Point{Lat: 17.3030, Lng: 78.3993})
	_ = store.SetGeo(ctx, "near", types.Point{Lat: 17.3006, Lng: 78.3993})

	got, err := svc.Nearby(ctx, ameerpet, 1000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ID("near"), got[0].AgentID)
	assert.Equal(t, types.ID("mid"), got[1].AgentID)
	assert.Less(t, got[0].DistanceMeters, got[1].DistanceMeters)
	assert.LessOrEqual(t, got[1].DistanceMeters, 1000.0)
}

func TestServiceNearby_Validation(t *testing.T) {
	svc := NewService(newMemGeoStore(), zerolog.Nop())

	_, err := svc.Nearby(context.Background(), types.Point{Lat: 95}, 100)
	assert.True(t, errors.Is(err, ErrInvalidCoordinate))

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = svc.Nearby(context.Background(), ameerpet, r)
		assert.ErrorIs(t, err, ErrBadRadius, "radius %v", r)
	}
}
