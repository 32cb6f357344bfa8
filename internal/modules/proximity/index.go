// README: Quadtree pre-filter over station locations for large catalogs.
package proximity

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"

	"stationq/internal/modules/location"
	"stationq/internal/modules/station"
	"stationq/internal/types"
)

// orb computes bounds with its own, larger Earth radius, which makes them
// slightly smaller than ours. boundPadding more than covers the difference.
const boundPadding = 1.01

var worldBound = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

type stationPointer struct {
	st station.Station
}

func (s stationPointer) Point() orb.Point {
	return orb.Point{s.st.Location.Lng, s.st.Location.Lat}
}

type stationIndex struct {
	version uint64
	tree    *quadtree.Quadtree
}

func buildIndex(snap station.Snapshot) *stationIndex {
	tree := quadtree.New(worldBound)
	for _, s := range snap.Stations {
		// Directory validation guarantees the point is inside worldBound.
		_ = tree.Add(stationPointer{st: s})
	}
	return &stationIndex{version: snap.Version, tree: tree}
}

// around returns every station within maxRadius of p, possibly with extras.
// ok is false when the search box would wrap a pole or the antimeridian.
func (i *stationIndex) around(p types.Point, maxRadius float64) ([]station.Station, bool) {
	dist := maxRadius*boundPadding + 1
	if dist/location.EarthRadiusMeters >= math.Pi/4 {
		return nil, false
	}
	b := geo.NewBoundAroundPoint(orb.Point{p.Lng, p.Lat}, dist)
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	if b.Min[0] > b.Max[0] || b.Min[1] < -90 || b.Max[1] > 90 || b.Min[0] < -180 || b.Max[0] > 180 {
		return nil, false
	}

	found := i.tree.InBound(nil, b)
	out := make([]station.Station, 0, len(found))
	for _, f := range found {
		out = append(out, f.(stationPointer).st)
	}
	return out, true
}
