package dispatch

import (
	"sync"
	"testing"
	"time"

	"stationq/internal/events"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

var (
	ameerpet = station.Station{
		ID:           "Ameerpet",
		Name:         "Ameerpet",
		Location:     types.Point{Lat: 17.3005372696588, Lng: 78.39926408384103},
		RadiusMeters: 500,
	}
	mgbs = station.Station{
		ID:           "MGBS",
		Name:         "Mahatma Gandhi Bus Station",
		Location:     types.Point{Lat: 17.3784, Lng: 78.4846},
		RadiusMeters: 500,
	}
)

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.evs))
	copy(out, r.evs)
	return out
}

func (r *recorder) ofType(t events.Type) []events.Event {
	var out []events.Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.evs = nil
	r.mu.Unlock()
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestService(t *testing.T, stations ...station.Station) (*Service, *recorder) {
	t.Helper()
	if len(stations) == 0 {
		stations = []station.Station{ameerpet, mgbs}
	}
	dir, err := station.NewDirectory(stations)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	rec := &recorder{}
	clock := &stepClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	return NewService(dir, WithPublisher(rec), WithClock(clock.Now)), rec
}

func queueIDs(t *testing.T, s *Service, stationID types.ID) []types.ID {
	t.Helper()
	snap, err := s.Snapshot(stationID)
	if err != nil {
		t.Fatalf("snapshot %s: %v", stationID, err)
	}
	ids := make([]types.ID, len(snap))
	for i, e := range snap {
		ids[i] = e.AgentID
	}
	return ids
}
