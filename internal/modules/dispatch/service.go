// README: Dispatch core: turns position reports into station queue placements.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stationq/internal/events"
	"stationq/internal/modules/location"
	"stationq/internal/modules/proximity"
	"stationq/internal/modules/queue"
	"stationq/internal/modules/registry"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIndexThreshold enables the resolver's spatial index at n stations.
func WithIndexThreshold(n int) Option {
	return func(s *Service) { s.indexThreshold = n }
}

// Service is the single owner of the station queues and the agent registry.
//
// Lock order: catalog (read side) -> agent -> station queue. Refreshing the
// station catalog takes the catalog lock exclusively, so no report or pop is
// in flight while queues are added or dropped.
type Service struct {
	dir      *station.Directory
	resolver *proximity.Resolver
	queues   *queue.Set
	registry *registry.Registry

	pub            events.Publisher
	metrics        *Metrics
	log            zerolog.Logger
	now            func() time.Time
	indexThreshold int

	catalogMu sync.RWMutex
	seq       atomic.Uint64
}

func NewService(dir *station.Directory, opts ...Option) *Service {
	s := &Service{
		dir: dir,
		pub: events.Discard,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = proximity.New(dir, proximity.WithIndexThreshold(s.indexThreshold))

	stations := dir.List()
	ids := make([]types.ID, len(stations))
	for i, st := range stations {
		ids[i] = st.ID
	}
	s.queues = queue.NewSet(ids, s.now)
	s.registry = registry.New(s.queues)
	return s
}

// ReportPosition applies one position report atomically with respect to the
// reporting agent.
func (s *Service) ReportPosition(ctx context.Context, cmd ReportCommand) (Result, error) {
	if cmd.AgentID == "" {
		return Result{}, fmt.Errorf("%w: agent id is required", ErrBadRequest)
	}
	if err := location.ValidatePoint(cmd.Position); err != nil {
		return Result{}, err
	}
	var status registry.Status
	if cmd.Status != "" {
		st, err := registry.ParseStatus(cmd.Status)
		if err != nil {
			return Result{}, err
		}
		status = st
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	match, inside, err := s.resolver.Resolve(cmd.Position)
	if err != nil {
		return Result{}, err
	}
	var q *queue.Queue
	if inside {
		q, inside = s.queues.Get(match.Station.ID)
	}

	h := s.registry.Acquire(cmd.AgentID)
	defer h.Release()

	prev := h.Placement()
	nextKind := registry.PlacementRoaming
	if inside {
		nextKind = registry.PlacementQueued
	}
	// Checked before any queue is touched so a rejected report changes nothing.
	if !CanTransition(prev.Kind, nextKind) {
		if h.Created() {
			h.Remove()
		}
		return Result{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, nextKind)
	}

	next := registry.Roaming()
	if inside {
		if prev.IsQueued() && prev.StationID == match.Station.ID {
			next = prev
		} else {
			if prev.IsQueued() {
				s.queues.Remove(prev.StationID, cmd.AgentID)
			}
			e := q.Enqueue(cmd.AgentID)
			next = registry.Queued(match.Station.ID, e.EnqueuedAt, e.Seq)
		}
	}
	h.SetPlacement(next)

	if status == "" {
		status = h.Agent().Status
	}
	now := s.now()
	h.Update(cmd.Position, status, now)

	changed := !prev.SameAs(next)
	ev := events.Event{
		Type:     events.TypeLocationUpdated,
		At:       now,
		AgentID:  cmd.AgentID,
		Previous: prev,
		Current:  next,
		Position: cmd.Position,
		Status:   status,
		Reason:   events.ReasonReport,
	}
	if changed {
		ev.Type = events.TypePlacementChanged
	}
	if next.IsQueued() {
		ev.StationID = next.StationID
	}
	s.publish(ev)

	res := Result{Agent: h.Agent(), Previous: prev, Current: next, Changed: changed}
	if inside {
		res.DistanceMeters = match.DistanceMeters
		res.QueuePosition, _ = q.Position(cmd.AgentID)
		s.metrics.depth(string(match.Station.ID), q.Size())
	}
	if changed && prev.IsQueued() {
		if old, ok := s.queues.Get(prev.StationID); ok {
			s.metrics.depth(string(prev.StationID), old.Size())
		}
	}
	s.metrics.report(string(next.Kind), changed)
	return res, nil
}

// PopNext dequeues the longest-waiting agent at stationID and marks it
// roaming. An empty queue is not an error.
func (s *Service) PopNext(ctx context.Context, stationID types.ID) (types.ID, bool, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	q, ok := s.queues.Get(stationID)
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		front, ok := q.Front()
		if !ok {
			s.metrics.pop(string(stationID), false)
			return "", false, nil
		}
		// The queue lock is released here; take the agent lock first and
		// only dequeue if the agent is still at the front.
		h, ok := s.registry.AcquireExisting(front.AgentID)
		if !ok {
			continue
		}
		if _, ok := q.DequeueIfFront(front.AgentID); !ok {
			h.Release()
			continue
		}
		prev := h.Placement()
		h.SetPlacement(registry.Roaming())
		a := h.Agent()
		s.publish(events.Event{
			Type:      events.TypePlacementChanged,
			At:        s.now(),
			AgentID:   a.ID,
			Previous:  prev,
			Current:   registry.Roaming(),
			StationID: stationID,
			Position:  a.Location,
			Status:    a.Status,
			Reason:    events.ReasonDispatched,
		})
		h.Release()

		s.metrics.pop(string(stationID), true)
		s.metrics.depth(string(stationID), q.Size())
		return a.ID, true, nil
	}
}

// RemoveAgent forgets the agent and takes it out of any queue. Removing an
// unknown agent succeeds and reports false.
func (s *Service) RemoveAgent(ctx context.Context, id types.ID) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: agent id is required", ErrBadRequest)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h, ok := s.registry.AcquireExisting(id)
	if !ok {
		return false, nil
	}
	defer h.Release()

	a := h.Remove()
	ev := events.Event{
		Type:     events.TypeAgentRemoved,
		At:       s.now(),
		AgentID:  id,
		Previous: a.Placement,
		Current:  registry.Unknown(),
		Position: a.Location,
		Status:   a.Status,
		Reason:   events.ReasonRemoved,
	}
	if a.Placement.IsQueued() {
		ev.StationID = a.Placement.StationID
		if q, ok := s.queues.Get(a.Placement.StationID); ok {
			s.metrics.depth(string(a.Placement.StationID), q.Size())
		}
	}
	s.publish(ev)
	return true, nil
}

// Snapshot lists the queue of stationID front to back.
func (s *Service) Snapshot(stationID types.ID) ([]queue.Entry, error) {
	q, ok := s.queues.Get(stationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	return q.Snapshot(), nil
}

func (s *Service) QueueStats(stationID types.ID) (queue.Stats, error) {
	q, ok := s.queues.Get(stationID)
	if !ok {
		return queue.Stats{}, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	return q.Stats(s.now()), nil
}

// PlacementOf returns the placement of id. An id the core has never seen is
// registered as roaming.
func (s *Service) PlacementOf(id types.ID) (registry.Placement, error) {
	if id == "" {
		return registry.Placement{}, fmt.Errorf("%w: agent id is required", ErrBadRequest)
	}
	return s.registry.PlacementOf(id), nil
}

// QueuePosition is the 1-based position of id in its station queue.
func (s *Service) QueuePosition(id types.ID) (int, bool) {
	h, ok := s.registry.AcquireExisting(id)
	if !ok {
		return 0, false
	}
	defer h.Release()
	p := h.Placement()
	if !p.IsQueued() {
		return 0, false
	}
	q, ok := s.queues.Get(p.StationID)
	if !ok {
		return 0, false
	}
	return q.Position(id)
}

func (s *Service) Agent(id types.ID) (registry.Agent, bool) {
	return s.registry.Lookup(id)
}

func (s *Service) Agents() []registry.Agent {
	return s.registry.List()
}

func (s *Service) Stations() []station.Station {
	return s.dir.List()
}

func (s *Service) Station(id types.ID) (station.Station, error) {
	st, err := s.dir.Get(id)
	if errors.Is(err, station.ErrNotFound) {
		return station.Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return st, err
}

// NearbyStation returns the closest station to p whether or not p is inside
// its catchment.
func (s *Service) NearbyStation(p types.Point) (proximity.Match, bool, error) {
	return s.resolver.Nearest(p)
}

// RefreshStations swaps the station catalog. Agents queued at a station that
// disappears become roaming.
func (s *Service) RefreshStations(ctx context.Context, stations []station.Station) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if err := s.dir.Replace(stations); err != nil {
		return err
	}
	keep := make(map[types.ID]bool, len(stations))
	for _, st := range stations {
		keep[st.ID] = true
		s.queues.Ensure(st.ID)
	}
	for _, id := range s.queues.IDs() {
		if keep[id] {
			continue
		}
		q, _ := s.queues.Drop(id)
		drained := q.Drain()
		for _, e := range drained {
			s.evict(e.AgentID, id)
		}
		s.metrics.forgetStation(string(id))
		s.log.Info().Str("station_id", string(id)).Int("evicted", len(drained)).Msg("station removed from catalog")
	}
	return nil
}

func (s *Service) evict(agentID, stationID types.ID) {
	h, ok := s.registry.AcquireExisting(agentID)
	if !ok {
		return
	}
	defer h.Release()
	prev := h.Placement()
	if !prev.IsQueued() || prev.StationID != stationID {
		return
	}
	h.SetPlacement(registry.Roaming())
	a := h.Agent()
	s.publish(events.Event{
		Type:      events.TypePlacementChanged,
		At:        s.now(),
		AgentID:   agentID,
		Previous:  prev,
		Current:   registry.Roaming(),
		StationID: stationID,
		Position:  a.Location,
		Status:    a.Status,
		Reason:    events.ReasonStationRemoved,
	})
}

// Restore rebuilds the registry and queues from persisted state. Queued
// agents whose station is no longer in the catalog are restored as roaming.
func (s *Service) Restore(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	agents := make([]registry.Agent, 0, len(state.Agents))
	byStation := make(map[types.ID][]queue.Entry)
	skipped := 0
	for _, a := range state.Agents {
		if a.ID == "" {
			continue
		}
		if a.Placement.IsQueued() {
			if _, ok := s.queues.Get(a.Placement.StationID); ok {
				byStation[a.Placement.StationID] = append(byStation[a.Placement.StationID], queue.Entry{
					AgentID:    a.ID,
					EnqueuedAt: a.Placement.EnqueuedAt,
					Seq:        a.Placement.Seq,
				})
			} else {
				a.Placement = registry.Roaming()
				skipped++
			}
		}
		if a.Placement.Kind == registry.PlacementUnknown {
			a.Placement = registry.Roaming()
		}
		agents = append(agents, a)
	}

	s.registry.Load(agents)
	for _, id := range s.queues.IDs() {
		q, _ := s.queues.Get(id)
		q.Restore(byStation[id])
		s.metrics.depth(string(id), q.Size())
	}
	for {
		cur := s.seq.Load()
		if state.LastSeq <= cur || s.seq.CompareAndSwap(cur, state.LastSeq) {
			break
		}
	}
	s.log.Info().Int("agents", len(agents)).Int("unknown_station", skipped).Msg("dispatch state restored")
	return nil
}

// publish stamps the event with the next sequence number. Callers hold the
// agent lock, so events of one agent leave in order.
func (s *Service) publish(ev events.Event) {
	ev.Seq = s.seq.Add(1)
	s.pub.Publish(ev)
}
