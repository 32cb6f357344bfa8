package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationq/internal/types"
)

func TestSet_EnsureGetDrop(t *testing.T) {
	s := NewSet([]types.ID{"S2", "S1"}, nil)
	assert.Equal(t, []types.ID{"S1", "S2"}, s.IDs())

	_, ok := s.Get("S3")
	assert.False(t, ok)

	q3 := s.Ensure("S3")
	again := s.Ensure("S3")
	assert.Same(t, q3, again)

	q1, ok := s.Get("S1")
	require.True(t, ok)
	q1.Enqueue("A")
	assert.True(t, s.Remove("S1", "A"))
	assert.False(t, s.Remove("S9", "A"))

	dropped, ok := s.Drop("S3")
	require.True(t, ok)
	assert.Same(t, q3, dropped)
	assert.Equal(t, []types.ID{"S1", "S2"}, s.IDs())
}

func TestQueue_Stats(t *testing.T) {
	clock := newFakeClock()
	q := New("S1", clock.Now)

	assert.Equal(t, Stats{}, q.Stats(clock.Now()))

	// Waits at the end: 40s, 30s, 20s, 10s.
	for _, id := range []types.ID{"A", "B", "C", "D"} {
		q.Enqueue(id)
		clock.Advance(10 * time.Second)
	}
	st := q.Stats(clock.Now())

	assert.Equal(t, 4, st.Size)
	assert.InDelta(t, 40, st.OldestWaitSec, 1e-9)
	assert.InDelta(t, 25, st.MeanWaitSec, 1e-9)
	assert.InDelta(t, 20, st.P50WaitSec, 1e-9)
	assert.InDelta(t, 40, st.P90WaitSec, 1e-9)
}
