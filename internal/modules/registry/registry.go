// README: In-memory agent registry with one lock per agent.
package registry

import (
	"sort"
	"sync"
	"time"

	"stationq/internal/types"
)

// Queues is the part of the station queues the registry needs to keep an
// agent in at most one queue.
type Queues interface {
	Remove(stationID, agentID types.ID) bool
}

type entry struct {
	mu      sync.Mutex
	agent   Agent
	removed bool
}

// Registry maps agent ids to records. The map lock is never held while
// waiting on an agent lock, and an agent lock is always taken before any
// station queue lock.
type Registry struct {
	queues Queues

	mu     sync.RWMutex
	agents map[types.ID]*entry
}

func New(queues Queues) *Registry {
	return &Registry{queues: queues, agents: make(map[types.ID]*entry)}
}

// Handle is an agent record locked for a compound update. Release must be
// called exactly once.
type Handle struct {
	r       *Registry
	e       *entry
	created bool
}

// Acquire locks the record of id, creating it with an unknown placement and
// idle status if it does not exist.
func (r *Registry) Acquire(id types.ID) *Handle {
	for {
		e, created := r.getOrCreate(id)
		e.mu.Lock()
		if e.removed {
			// Lost a race with a removal; the next lookup sees the live entry.
			e.mu.Unlock()
			continue
		}
		return &Handle{r: r, e: e, created: created}
	}
}

// AcquireExisting locks the record of id without creating it.
func (r *Registry) AcquireExisting(id types.ID) (*Handle, bool) {
	for {
		r.mu.RLock()
		e, ok := r.agents[id]
		r.mu.RUnlock()
		if !ok {
			return nil, false
		}
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		return &Handle{r: r, e: e}, true
	}
}

func (r *Registry) getOrCreate(id types.ID) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if ok {
		return e, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.agents[id]; ok {
		return e, false
	}
	e = &entry{agent: Agent{ID: id, Status: StatusIdle, Placement: Unknown()}}
	r.agents[id] = e
	return e, true
}

// Created reports whether this acquisition created the record.
func (h *Handle) Created() bool { return h.created }

func (h *Handle) Agent() Agent { return h.e.agent }

func (h *Handle) Placement() Placement { return h.e.agent.Placement }

// SetPlacement records p. When the agent leaves a station queue (to roaming
// or to another station) it is removed from that queue first.
func (h *Handle) SetPlacement(p Placement) {
	old := h.e.agent.Placement
	if old.IsQueued() && (!p.IsQueued() || p.StationID != old.StationID) && h.r.queues != nil {
		h.r.queues.Remove(old.StationID, h.e.agent.ID)
	}
	h.e.agent.Placement = p
}

// Update records a reported position and status.
func (h *Handle) Update(loc types.Point, status Status, at time.Time) {
	h.e.agent.Location = loc
	h.e.agent.Status = status
	h.e.agent.LastUpdated = at
}

// Remove deletes the record and takes the agent out of any queue. The handle
// must still be released.
func (h *Handle) Remove() Agent {
	a := h.e.agent
	if a.Placement.IsQueued() && h.r.queues != nil {
		h.r.queues.Remove(a.Placement.StationID, a.ID)
	}
	h.e.removed = true
	h.r.mu.Lock()
	if cur, ok := h.r.agents[a.ID]; ok && cur == h.e {
		delete(h.r.agents, a.ID)
	}
	h.r.mu.Unlock()
	return a
}

func (h *Handle) Release() { h.e.mu.Unlock() }

// PlacementOf returns the placement of id. Unknown ids are created and
// reported as roaming.
func (r *Registry) PlacementOf(id types.ID) Placement {
	h := r.Acquire(id)
	defer h.Release()
	if h.Placement().Kind == PlacementUnknown {
		h.SetPlacement(Roaming())
	}
	return h.Placement()
}

// SetPlacement records p for id, leaving the previous station queue when the
// station changes.
func (r *Registry) SetPlacement(id types.ID, p Placement) {
	h := r.Acquire(id)
	defer h.Release()
	h.SetPlacement(p)
}

// RemoveAgent deletes id and reports whether it existed. Removing an absent
// agent is a no-op.
func (r *Registry) RemoveAgent(id types.ID) (Agent, bool) {
	h, ok := r.AcquireExisting(id)
	if !ok {
		return Agent{}, false
	}
	defer h.Release()
	return h.Remove(), true
}

// Lookup returns a copy of the record without creating it.
func (r *Registry) Lookup(id types.ID) (Agent, bool) {
	h, ok := r.AcquireExisting(id)
	if !ok {
		return Agent{}, false
	}
	defer h.Release()
	return h.Agent(), true
}

// List returns a copy of every record, sorted by id.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Agent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.agent)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Load replaces every record with agents. It does not touch the queues.
func (r *Registry) Load(agents []Agent) {
	m := make(map[types.ID]*entry, len(agents))
	for _, a := range agents {
		m[a.ID] = &entry{agent: a}
	}
	r.mu.Lock()
	old := r.agents
	r.agents = m
	r.mu.Unlock()
	for _, e := range old {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}
