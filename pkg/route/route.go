// Package route holds the jeepney/multicab route records, their on-disk file
// format and the immutable store the recommendation engine reads from.
package route

import (
	"github.com/paulmach/orb"
)

// Route is one fixed transit route.
//
// Geometry is traversed line-string by line-string, point by point; that
// order is significant because nearest-vertex ties resolve to the earliest
// vertex. Routes are shared between goroutines once loaded and must not be
// mutated.
type Route struct {
	ID       string
	Name     string
	Color    string
	Geometry orb.MultiLineString
}

// VertexCount returns the total number of vertices across all line-strings.
func (r Route) VertexCount() int {
	n := 0
	for _, ls := range r.Geometry {
		n += len(ls)
	}
	return n
}

// Empty reports whether the route has no vertices at all.
func (r Route) Empty() bool {
	return r.VertexCount() == 0
}

// Bound returns the bounding box of the route's geometry.
func (r Route) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// Label is the name shown to riders, falling back to the ID.
func (r Route) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
