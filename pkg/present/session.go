package present

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
)

// ErrNoDestination is returned when a recommendation is requested before a
// destination has been chosen.
var ErrNoDestination = errors.New("no destination")

// Default labels for points set without one.
const (
	LabelStart       = "Start"
	LabelDestination = "Destination"
	LabelMyLocation  = "My Location"
)

// Field is the search field a map click fills in.
type Field string

const (
	FieldNone        Field = ""
	FieldStart       Field = "start"
	FieldDestination Field = "destination"
)

// Place is a chosen point with the text shown for it.
type Place struct {
	Point geo.Point `json:"point"`
	Label string    `json:"label"`
}

// Planner is what a session needs from the routing layer.
type Planner interface {
	routing.Recommender
	Store() *route.Store
	RecommendIn(ctx context.Context, store *route.Store, start *geo.Point, dest geo.Point) (routing.Recommendation, error)
}

// State is a copy of a session's search state.
type State struct {
	Start          *Place
	Destination    *Place
	Active         Field
	Recommendation routing.Recommendation
}

// SearchSession is one user's start/destination search. Methods are safe for
// concurrent use and are applied one at a time, in call order.
type SearchSession struct {
	mu      sync.Mutex
	planner Planner
	m       Map
	adapter *Adapter

	start, dest             *Place
	startMarker, destMarker Marker
	active                  Field
	last                    routing.Recommendation
}

// NewSearchSession creates a session drawing onto m.
func NewSearchSession(planner Planner, m Map) *SearchSession {
	return &SearchSession{
		planner: planner,
		m:       m,
		adapter: NewAdapter(m, planner.Store()),
	}
}

// Open starts a new search: no field is active until the user focuses one.
func (s *SearchSession) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = FieldNone
}

// Focus marks which field map clicks should fill.
func (s *SearchSession) Focus(f Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = f
}

// SetStart replaces the start point. An empty label becomes "Start".
func (s *SearchSession) SetStart(p geo.Point, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStart(p, label)
}

// Locate sets the start to the device's position.
func (s *SearchSession) Locate(p geo.Point) {
	s.SetStart(p, LabelMyLocation)
}

// SetDestination replaces the destination and recommends a route for it.
// The destination is kept even when the recommendation fails.
func (s *SearchSession) SetDestination(ctx context.Context, p geo.Point, label string) (routing.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDestination(p, label)
	return s.recommend(ctx)
}

// Click applies a map click to the active field. Clicks with no active field
// are ignored and return (nil, nil). A destination click also recommends.
func (s *SearchSession) Click(ctx context.Context, p geo.Point) (routing.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := p.String()
	switch s.active {
	case FieldStart:
		s.setStart(p, label)
		return nil, nil
	case FieldDestination:
		s.setDestination(p, label)
		return s.recommend(ctx)
	default:
		return nil, nil
	}
}

// Swap exchanges start and destination and relabels them with the default
// labels. The previous recommendation no longer applies, so it is dropped
// along with its highlight and pickup marker. Map clicks then fill the
// destination.
func (s *SearchSession) Swap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = nil
	s.sync()
	s.adapter.ClearPickup()
	s.adapter.HideAll()

	oldStart, oldDest := s.start, s.dest
	s.clearStart()
	s.clearDestination()
	if oldStart != nil {
		s.setDestination(oldStart.Point, "")
	}
	if oldDest != nil {
		s.setStart(oldDest.Point, "")
	}
	s.active = FieldDestination
}

// Recommend reruns the recommendation for the current points.
func (s *SearchSession) Recommend(ctx context.Context) (routing.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recommend(ctx)
}

// Reset clears both points, the pickup marker and any highlighted route.
func (s *SearchSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStart()
	s.clearDestination()
	s.active = FieldNone
	s.last = nil
	s.sync()
	s.adapter.ClearPickup()
	s.adapter.HideAll()
}

// Adapter gives tray-style control over route layers. The callback runs with
// the session locked.
func (s *SearchSession) Adapter(fn func(a *Adapter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync()
	fn(s.adapter)
}

// State returns a copy of the session state.
func (s *SearchSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Active: s.active, Recommendation: s.last}
	if s.start != nil {
		p := *s.start
		st.Start = &p
	}
	if s.dest != nil {
		p := *s.dest
		st.Destination = &p
	}
	return st
}

func (s *SearchSession) recommend(ctx context.Context) (routing.Recommendation, error) {
	if s.dest == nil {
		return nil, ErrNoDestination
	}
	var start *geo.Point
	if s.start != nil {
		p := s.start.Point
		start = &p
	}
	// Recommend over the store the layers were drawn from, so a concurrent
	// reload cannot pick a route that has no layer.
	s.sync()
	rec, err := s.planner.RecommendIn(ctx, s.adapter.Store(), start, s.dest.Point)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	s.adapter.Apply(rec)
	s.last = rec
	return rec, nil
}

// sync rebuilds the layers when the route store has been replaced.
func (s *SearchSession) sync() {
	if cur := s.planner.Store(); cur != s.adapter.Store() {
		s.adapter.Reset(cur)
	}
}

func (s *SearchSession) setStart(p geo.Point, label string) {
	if label == "" {
		label = LabelStart
	}
	s.clearStart()
	s.start = &Place{Point: p, Label: label}
	s.startMarker = s.m.ShowMarker(p, MarkerStart)
}

func (s *SearchSession) setDestination(p geo.Point, label string) {
	if label == "" {
		label = LabelDestination
	}
	s.clearDestination()
	s.dest = &Place{Point: p, Label: label}
	s.destMarker = s.m.ShowMarker(p, MarkerDestination)
}

func (s *SearchSession) clearStart() {
	if s.start == nil {
		return
	}
	s.m.RemoveMarker(s.startMarker)
	s.start, s.startMarker = nil, 0
}

func (s *SearchSession) clearDestination() {
	if s.dest == nil {
		return
	}
	s.m.RemoveMarker(s.destMarker)
	s.dest, s.destMarker = nil, 0
}
