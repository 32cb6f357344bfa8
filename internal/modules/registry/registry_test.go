package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationq/internal/types"
)

type removal struct {
	station types.ID
	agent   types.ID
}

type recordingQueues struct {
	mu       sync.Mutex
	removals []removal
}

func (q *recordingQueues) Remove(stationID, agentID types.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removals = append(q.removals, removal{stationID, agentID})
	return true
}

func TestRegistry_PlacementOfUnknownCreatesRoaming(t *testing.T) {
	r := New(nil)

	_, ok := r.Lookup("D1")
	require.False(t, ok)

	p := r.PlacementOf("D1")
	assert.Equal(t, PlacementRoaming, p.Kind)

	a, ok := r.Lookup("D1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, a.Status)
	assert.Equal(t, PlacementRoaming, a.Placement.Kind)
}

func TestRegistry_AcquireNewAgentStartsUnknown(t *testing.T) {
	r := New(nil)
	h := r.Acquire("D1")
	assert.True(t, h.Created())
	assert.Equal(t, PlacementUnknown, h.Placement().Kind)
	h.Release()

	h = r.Acquire("D1")
	assert.False(t, h.Created())
	h.Release()
}

func TestRegistry_SetPlacementLeavesOldQueue(t *testing.T) {
	qs := &recordingQueues{}
	r := New(qs)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	r.SetPlacement("D1", Queued("S1", at, 1))
	r.SetPlacement("D1", Queued("S1", at, 1))
	assert.Empty(t, qs.removals, "same station must not leave the queue")

	r.SetPlacement("D1", Queued("S2", at, 2))
	r.SetPlacement("D1", Roaming())

	assert.Equal(t, []removal{{"S1", "D1"}, {"S2", "D1"}}, qs.removals)
}

func TestRegistry_RemoveAgentIsIdempotent(t *testing.T) {
	qs := &recordingQueues{}
	r := New(qs)
	r.SetPlacement("D1", Queued("S1", time.Now(), 1))

	a, ok := r.RemoveAgent("D1")
	require.True(t, ok)
	assert.Equal(t, types.ID("D1"), a.ID)
	assert.Equal(t, []removal{{"S1", "D1"}}, qs.removals)

	_, ok = r.RemoveAgent("D1")
	assert.False(t, ok)
	_, ok = r.RemoveAgent("never-seen")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_UpdateAndList(t *testing.T) {
	r := New(nil)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, id := range []types.ID{"b", "a", "c"} {
		h := r.Acquire(id)
		h.Update(types.Point{Lat: 17.4, Lng: 78.4}, StatusActive, at)
		h.SetPlacement(Roaming())
		h.Release()
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, types.ID("a"), list[0].ID)
	assert.Equal(t, types.ID("c"), list[2].ID)
	assert.Equal(t, StatusActive, list[1].Status)
	assert.Equal(t, at, list[1].LastUpdated)
}

func TestRegistry_Load(t *testing.T) {
	r := New(nil)
	r.PlacementOf("old")
	r.Load([]Agent{{ID: "D1", Status: StatusBusy, Placement: Roaming()}})

	_, ok := r.Lookup("old")
	assert.False(t, ok)
	a, ok := r.Lookup("D1")
	require.True(t, ok)
	assert.Equal(t, StatusBusy, a.Status)
}

func TestRegistry_AcquireRetriesAfterConcurrentRemove(t *testing.T) {
	r := New(nil)
	const workers = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				id := types.ID(fmt.Sprintf("D%d", i%5))
				if (w+i)%4 == 0 {
					r.RemoveAgent(id)
					continue
				}
				h := r.Acquire(id)
				h.SetPlacement(Roaming())
				h.Release()
			}
		}(w)
	}
	wg.Wait()

	// Every surviving record is reachable through the map.
	for _, a := range r.List() {
		_, ok := r.Lookup(a.ID)
		assert.True(t, ok, a.ID)
	}
}
