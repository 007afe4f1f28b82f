// Package routing chooses which fixed route a rider should take between two
// points. It does no path-finding: a route either passes near the destination
// or it does not.
package routing

import (
	"cmp"
	"errors"
	"slices"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// DefaultThresholdMeters is how close a route must come to the destination
// to be ridden there directly.
const DefaultThresholdMeters = 300.0

var (
	// ErrNoStartPoint is returned when no start location has been chosen.
	ErrNoStartPoint = errors.New("no start point")
	// ErrNoRoutesAvailable is returned when the store holds no routes.
	ErrNoRoutesAvailable = errors.New("no routes available")
)

// Kind names the two recommendation outcomes.
type Kind string

const (
	KindDirect       Kind = "direct"
	KindWalkToPickup Kind = "walk_to_pickup"
)

// Candidate is one route evaluated against a query.
type Candidate struct {
	Route             route.Route
	DistanceFromStart float64
	DistanceFromDest  float64
	// Pickup is the route vertex nearest to the start.
	Pickup      geo.Point
	PickupFound bool
}

// Recommendation is either Direct or WalkToPickup.
type Recommendation interface {
	Kind() Kind
	ChosenRoute() route.Route
	Chosen() Candidate

	recommendation()
}

// Direct means at least one route passes within the threshold of the
// destination. Alternates are the other such routes, nearest first.
type Direct struct {
	Best       Candidate
	Alternates []Candidate
}

func (Direct) Kind() Kind                 { return KindDirect }
func (d Direct) ChosenRoute() route.Route { return d.Best.Route }
func (d Direct) Chosen() Candidate        { return d.Best }
func (Direct) recommendation()            {}

// AlternateRoutes returns the alternates' routes in ranked order.
func (d Direct) AlternateRoutes() []route.Route {
	out := make([]route.Route, len(d.Alternates))
	for i, c := range d.Alternates {
		out[i] = c.Route
	}
	return out
}

// WalkToPickup means no route reaches the destination closely enough; the
// rider should walk to Pickup and board the route ending nearest the
// destination.
type WalkToPickup struct {
	Best   Candidate
	Pickup geo.Point
}

func (WalkToPickup) Kind() Kind                 { return KindWalkToPickup }
func (w WalkToPickup) ChosenRoute() route.Route { return w.Best.Route }
func (w WalkToPickup) Chosen() Candidate        { return w.Best }
func (WalkToPickup) recommendation()            {}

// Engine turns a start, a destination and a set of routes into a
// Recommendation. It is pure and safe for concurrent use.
type Engine struct {
	threshold float64
	distance  DistanceFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the direct-ride threshold in meters.
func WithThreshold(meters float64) Option {
	return func(e *Engine) {
		if meters > 0 {
			e.threshold = meters
		}
	}
}

// WithDistance replaces the haversine metric. Intended for tests.
func WithDistance(fn DistanceFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.distance = fn
		}
	}
}

// NewEngine returns an engine using haversine distance and a 300 m threshold
// unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		threshold: DefaultThresholdMeters,
		distance:  geo.Distance,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the direct-ride threshold in meters.
func (e *Engine) Threshold() float64 { return e.threshold }

// Recommend picks a route for travelling from start to dest.
//
// Routes whose nearest vertex lies strictly within the threshold of dest are
// ridden directly; the nearest wins and the rest become alternates, with ties
// kept in input order. When none qualifies, the route ending globally nearest
// dest is chosen and the rider walks to its vertex nearest start. Ties again
// go to the earlier route.
func (e *Engine) Recommend(start *geo.Point, dest geo.Point, routes []route.Route) (Recommendation, error) {
	if start == nil {
		return nil, ErrNoStartPoint
	}
	if len(routes) == 0 {
		return nil, ErrNoRoutesAvailable
	}

	candidates := make([]Candidate, len(routes))
	for i, r := range routes {
		fromStart := nearestVertex(e.distance, *start, r)
		fromDest := nearestVertex(e.distance, dest, r)
		candidates[i] = Candidate{
			Route:             r,
			DistanceFromStart: fromStart.DistanceMeters,
			DistanceFromDest:  fromDest.DistanceMeters,
			Pickup:            fromStart.Point,
			PickupFound:       fromStart.Found,
		}
	}

	var valid []Candidate
	for _, c := range candidates {
		if c.DistanceFromDest < e.threshold {
			valid = append(valid, c)
		}
	}

	if len(valid) == 0 {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.DistanceFromDest < best.DistanceFromDest {
				best = c
			}
		}
		return WalkToPickup{Best: best, Pickup: best.Pickup}, nil
	}

	slices.SortStableFunc(valid, func(a, b Candidate) int {
		return cmp.Compare(a.DistanceFromDest, b.DistanceFromDest)
	})
	return Direct{Best: valid[0], Alternates: valid[1:]}, nil
}
