package routing

import (
	"cmp"
	"slices"

	"github.com/tidwall/rtree"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// vertexRef locates a vertex inside a store: route index, then the vertex's
// ordinal in that route's traversal order.
type vertexRef struct {
	route   int
	ordinal int
	point   geo.Point
}

// NearbyRoute is a route passing near a query point.
type NearbyRoute struct {
	Route          route.Route
	DistanceMeters float64
	Point          geo.Point
}

// NearbyIndex answers "which routes pass near here" with an R-tree over every
// route vertex. It is immutable once built.
type NearbyIndex struct {
	store  *route.Store
	routes []route.Route
	tree   rtree.RTreeG[vertexRef]
}

// NewNearbyIndex indexes every vertex in store.
func NewNearbyIndex(store *route.Store) *NearbyIndex {
	idx := &NearbyIndex{
		store:  store,
		routes: store.Routes(),
	}
	for ri, r := range idx.routes {
		ord := 0
		for _, ls := range r.Geometry {
			for _, v := range ls {
				pt := [2]float64{v.Lon(), v.Lat()}
				idx.tree.Insert(pt, pt, vertexRef{route: ri, ordinal: ord, point: geo.FromOrb(v)})
				ord++
			}
		}
	}
	return idx
}

// Len returns the number of indexed vertices.
func (idx *NearbyIndex) Len() int {
	return idx.tree.Len()
}

// Near returns every route with a vertex within radius meters of p, with that
// route's nearest such vertex. Results are ordered by distance, then store
// order.
func (idx *NearbyIndex) Near(p geo.Point, radius float64) []NearbyRoute {
	if radius <= 0 || len(idx.routes) == 0 {
		return nil
	}
	dLat, dLng := geo.DegreesForMeters(p.Lat, radius)
	lo := [2]float64{p.Lng - dLng, p.Lat - dLat}
	hi := [2]float64{p.Lng + dLng, p.Lat + dLat}

	type hit struct {
		ref  vertexRef
		dist float64
	}
	best := make(map[int]hit)
	idx.tree.Search(lo, hi, func(_, _ [2]float64, ref vertexRef) bool {
		d := geo.Distance(p, ref.point)
		if d > radius {
			return true
		}
		cur, ok := best[ref.route]
		// The tree yields vertices in no particular order; break ties on the
		// traversal ordinal so the earliest vertex wins.
		if !ok || d < cur.dist || (d == cur.dist && ref.ordinal < cur.ref.ordinal) {
			best[ref.route] = hit{ref: ref, dist: d}
		}
		return true
	})

	out := make([]NearbyRoute, 0, len(best))
	order := make(map[string]int, len(best))
	for ri, h := range best {
		r := idx.routes[ri]
		order[r.ID] = ri
		out = append(out, NearbyRoute{Route: r, DistanceMeters: h.dist, Point: h.ref.point})
	}
	slices.SortFunc(out, func(a, b NearbyRoute) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(order[a.Route.ID], order[b.Route.ID])
	})
	return out
}
