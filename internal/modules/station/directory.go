// README: In-memory station directory; read-mostly snapshot swapped on refresh.
package station

import (
	"fmt"
	"sort"
	"sync"

	"stationq/internal/types"
)

// Directory holds the current station catalog. Readers get copies; writers
// replace the whole catalog at once.
type Directory struct {
	mu       sync.RWMutex
	byID     map[types.ID]Station
	ordered  []Station
	version  uint64
	maxRange float64
}

func NewDirectory(stations []Station) (*Directory, error) {
	d := &Directory{}
	if err := d.Replace(stations); err != nil {
		return nil, err
	}
	return d, nil
}

// Replace validates and installs a new catalog. On error the current catalog
// is kept.
func (d *Directory) Replace(stations []Station) error {
	byID := make(map[types.ID]Station, len(stations))
	maxRange := 0.0
	for _, s := range stations {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := byID[s.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidStation, s.ID)
		}
		byID[s.ID] = s
		if s.RadiusMeters > maxRange {
			maxRange = s.RadiusMeters
		}
	}
	ordered := make([]Station, 0, len(byID))
	for _, s := range byID {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	d.mu.Lock()
	d.byID = byID
	d.ordered = ordered
	d.maxRange = maxRange
	d.version++
	d.mu.Unlock()
	return nil
}

// Snapshot is a consistent view of the catalog at one version. Stations is
// shared and must not be modified.
type Snapshot struct {
	Version         uint64
	Stations        []Station
	MaxRadiusMeters float64
}

func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{Version: d.version, Stations: d.ordered, MaxRadiusMeters: d.maxRange}
}

// List returns a copy sorted by id.
func (d *Directory) List() []Station {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Station, len(d.ordered))
	copy(out, d.ordered)
	return out
}

func (d *Directory) Get(id types.ID) (Station, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ordered)
}

// Version changes every time Replace succeeds.
func (d *Directory) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// MaxRadiusMeters is the largest catchment radius in the catalog.
func (d *Directory) MaxRadiusMeters() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxRange
}
