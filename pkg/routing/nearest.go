package routing

import (
	"math"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// DistanceFunc measures the distance in meters between two points.
type DistanceFunc func(a, b geo.Point) float64

// NearestMatch is the closest route vertex to a query point.
// Found is false, and DistanceMeters +Inf, when the route has no vertices.
type NearestMatch struct {
	DistanceMeters float64
	Point          geo.Point
	Found          bool
}

// NearestPointOnRoute returns the route vertex closest to q by haversine
// distance. Only vertices are considered, never points along segments. When
// several vertices tie, the first in traversal order wins.
func NearestPointOnRoute(q geo.Point, r route.Route) NearestMatch {
	return nearestVertex(geo.Distance, q, r)
}

func nearestVertex(dist DistanceFunc, q geo.Point, r route.Route) NearestMatch {
	best := NearestMatch{DistanceMeters: math.Inf(1)}
	for _, ls := range r.Geometry {
		for _, v := range ls {
			p := geo.FromOrb(v)
			d := dist(q, p)
			if math.IsNaN(d) {
				d = math.Inf(1)
			}
			if !best.Found || d < best.DistanceMeters {
				best = NearestMatch{DistanceMeters: d, Point: p, Found: true}
			}
		}
	}
	return best
}
