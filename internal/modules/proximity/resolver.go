// README: Proximity resolver: picks the station whose catchment contains a position.
package proximity

import (
	"sync"

	"stationq/internal/modules/location"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

// Catalog is the station source the resolver reads from.
type Catalog interface {
	Snapshot() station.Snapshot
}

// Match is a resolved station and the distance to it.
type Match struct {
	Station        station.Station `json:"station"`
	DistanceMeters float64         `json:"distance_m"`
}

type Option func(*Resolver)

// WithIndexThreshold enables the spatial index once the catalog has at least
// n stations. Zero disables the index.
func WithIndexThreshold(n int) Option {
	return func(r *Resolver) { r.indexThreshold = n }
}

type Resolver struct {
	catalog        Catalog
	indexThreshold int

	mu    sync.Mutex
	index *stationIndex
}

func New(catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the station whose catchment contains p. When several do,
// the closest wins, and exact distance ties go to the smallest id.
func (r *Resolver) Resolve(p types.Point) (Match, bool, error) {
	if err := location.ValidatePoint(p); err != nil {
		return Match{}, false, err
	}
	snap := r.catalog.Snapshot()

	var best Match
	found := false
	for _, s := range r.candidates(snap, p) {
		d, err := location.DistanceMeters(p, s.Location)
		if err != nil {
			continue
		}
		if d > s.RadiusMeters {
			continue
		}
		if !found || closer(d, s.ID, best) {
			best = Match{Station: s, DistanceMeters: d}
			found = true
		}
	}
	return best, found, nil
}

// Nearest returns the closest station regardless of catchment radius.
func (r *Resolver) Nearest(p types.Point) (Match, bool, error) {
	if err := location.ValidatePoint(p); err != nil {
		return Match{}, false, err
	}
	var best Match
	found := false
	for _, s := range r.catalog.Snapshot().Stations {
		d, err := location.DistanceMeters(p, s.Location)
		if err != nil {
			continue
		}
		if !found || closer(d, s.ID, best) {
			best = Match{Station: s, DistanceMeters: d}
			found = true
		}
	}
	return best, found, nil
}

func closer(d float64, id types.ID, best Match) bool {
	if d != best.DistanceMeters {
		return d < best.DistanceMeters
	}
	return id < best.Station.ID
}

// candidates narrows the catalog through the index when it is enabled and
// usable for p; otherwise every station is a candidate.
func (r *Resolver) candidates(snap station.Snapshot, p types.Point) []station.Station {
	if r.indexThreshold <= 0 || len(snap.Stations) < r.indexThreshold {
		return snap.Stations
	}
	idx := r.indexFor(snap)
	if c, ok := idx.around(p, snap.MaxRadiusMeters); ok {
		return c
	}
	return snap.Stations
}

func (r *Resolver) indexFor(snap station.Snapshot) *stationIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil || r.index.version != snap.Version {
		r.index = buildIndex(snap)
	}
	return r.index
}
