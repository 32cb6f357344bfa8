// README: Set of station queues keyed by station id.
package queue

import (
	"sort"
	"sync"

	"stationq/internal/types"
)

// Set owns one Queue per station. The map is guarded separately from the
// queues, so operations on different stations never contend.
type Set struct {
	now Clock

	mu     sync.RWMutex
	queues map[types.ID]*Queue
}

func NewSet(stationIDs []types.ID, now Clock) *Set {
	s := &Set{now: now, queues: make(map[types.ID]*Queue, len(stationIDs))}
	for _, id := range stationIDs {
		s.queues[id] = New(id, now)
	}
	return s
}

func (s *Set) Get(stationID types.ID) (*Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[stationID]
	return q, ok
}

// Ensure returns the queue for stationID, creating it if needed.
func (s *Set) Ensure(stationID types.ID) *Queue {
	if q, ok := s.Get(stationID); ok {
		return q
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[stationID]; ok {
		return q
	}
	q := New(stationID, s.now)
	s.queues[stationID] = q
	return q
}

// Drop detaches the queue of stationID and returns it.
func (s *Set) Drop(stationID types.ID) (*Queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[stationID]
	if ok {
		delete(s.queues, stationID)
	}
	return q, ok
}

// Remove takes agentID out of the queue of stationID.
func (s *Set) Remove(stationID, agentID types.ID) bool {
	q, ok := s.Get(stationID)
	if !ok {
		return false
	}
	return q.Remove(agentID)
}

func (s *Set) IDs() []types.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.ID, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
