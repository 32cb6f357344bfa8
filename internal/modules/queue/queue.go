// README: Per-station FIFO queue of waiting agents.
package queue

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"stationq/internal/types"
)

// Entry is one waiting agent. Entries of a queue are ordered by EnqueuedAt,
// then Seq.
type Entry struct {
	AgentID    types.ID  `json:"agent_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Seq        uint64    `json:"seq"`
}

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Queue is safe for concurrent use. Insertion always appends; the order of
// existing entries never changes.
type Queue struct {
	stationID types.ID
	now       Clock

	mu    sync.Mutex
	order *list.List
	index map[types.ID]*list.Element
	seq   uint64
	last  time.Time
}

func New(stationID types.ID, now Clock) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{
		stationID: stationID,
		now:       now,
		order:     list.New(),
		index:     make(map[types.ID]*list.Element),
	}
}

func (q *Queue) StationID() types.ID { return q.stationID }

// Enqueue appends agentID at the tail. An agent already in the queue is moved
// to the tail with a fresh timestamp.
func (q *Queue) Enqueue(agentID types.ID) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if el, ok := q.index[agentID]; ok {
		q.order.Remove(el)
		delete(q.index, agentID)
	}
	now := q.now()
	// Keep EnqueuedAt non-decreasing even if the wall clock steps back.
	if now.Before(q.last) {
		now = q.last
	}
	q.last = now
	q.seq++
	e := Entry{AgentID: agentID, EnqueuedAt: now, Seq: q.seq}
	q.index[agentID] = q.order.PushBack(e)
	return e
}

// DequeueFront removes and returns the longest-waiting entry.
func (q *Queue) DequeueFront() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el := q.order.Front()
	if el == nil {
		return Entry{}, false
	}
	e := q.order.Remove(el).(Entry)
	delete(q.index, e.AgentID)
	return e, true
}

// DequeueIfFront removes the front entry only if it belongs to agentID.
func (q *Queue) DequeueIfFront(agentID types.ID) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el := q.order.Front()
	if el == nil || el.Value.(Entry).AgentID != agentID {
		return Entry{}, false
	}
	e := q.order.Remove(el).(Entry)
	delete(q.index, e.AgentID)
	return e, true
}

func (q *Queue) Front() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el := q.order.Front()
	if el == nil {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// Remove deletes agentID wherever it is and reports whether it was present.
func (q *Queue) Remove(agentID types.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.index[agentID]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, agentID)
	return true
}

// Entry returns the entry of agentID if it is queued here.
func (q *Queue) Entry(agentID types.ID) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.index[agentID]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// Position is the 1-based position of agentID.
func (q *Queue) Position(agentID types.ID) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[agentID]; !ok {
		return 0, false
	}
	pos := 1
	for el := q.order.Front(); el != nil; el = el.Next() {
		if el.Value.(Entry).AgentID == agentID {
			return pos, true
		}
		pos++
	}
	return 0, false
}

// Snapshot returns the entries front to back.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry))
	}
	return out
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// Restore replaces the queue contents with persisted entries, ordered by
// EnqueuedAt then Seq. If an agent appears more than once, its latest entry
// wins.
func (q *Queue) Restore(entries []Entry) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EnqueuedAt.Equal(sorted[j].EnqueuedAt) {
			return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	q.order.Init()
	q.index = make(map[types.ID]*list.Element, len(sorted))
	for _, e := range sorted {
		if el, ok := q.index[e.AgentID]; ok {
			q.order.Remove(el)
		}
		q.index[e.AgentID] = q.order.PushBack(e)
		if e.Seq > q.seq {
			q.seq = e.Seq
		}
		if e.EnqueuedAt.After(q.last) {
			q.last = e.EnqueuedAt
		}
	}
}

// Drain empties the queue and returns what it held, front to back.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry))
	}
	q.order.Init()
	q.index = make(map[types.ID]*list.Element)
	return out
}
