package present

import (
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// Op names a recorded map operation.
type Op string

const (
	OpAddLayer     Op = "add_layer"
	OpRemoveLayer  Op = "remove_layer"
	OpShowLayer    Op = "show_layer"
	OpHideLayer    Op = "hide_layer"
	OpShowMarker   Op = "show_marker"
	OpRemoveMarker Op = "remove_marker"
	OpSetView      Op = "set_view"
	OpFitView      Op = "fit_view"
)

// Bounds is a south-west / north-east box as map clients expect it.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Command is one map operation, serialisable for a browser client to replay.
type Command struct {
	Op      Op          `json:"op"`
	Layer   Layer       `json:"layer,omitempty"`
	RouteID string      `json:"route_id,omitempty"`
	Color   string      `json:"color,omitempty"`
	Marker  Marker      `json:"marker,omitempty"`
	Style   MarkerStyle `json:"style,omitempty"`
	Point   *geo.Point  `json:"point,omitempty"`
	Zoom    int         `json:"zoom,omitempty"`
	Bounds  *Bounds     `json:"bounds,omitempty"`
	Padding int         `json:"padding,omitempty"`
}

// MarkerState is a marker currently on a Recorder's map.
type MarkerState struct {
	Point geo.Point
	Style MarkerStyle
}

type layerState struct {
	routeID string
	visible bool
}

// Recorder is a Map that records commands and tracks the resulting map state.
// Handles start at 1 so the zero value never names a live layer or marker.
type Recorder struct {
	mu         sync.Mutex
	cmds       []Command
	nextLayer  Layer
	nextMarker Marker
	layers     map[Layer]*layerState
	markers    map[Marker]MarkerState
	center     geo.Point
	zoom       int
}

// NewRecorder returns an empty recorder centered on the service area.
func NewRecorder() *Recorder {
	return &Recorder{
		layers:  make(map[Layer]*layerState),
		markers: make(map[Marker]MarkerState),
		center:  DefaultCenter,
		zoom:    DefaultZoom,
	}
}

func (r *Recorder) AddRouteLayer(rt route.Route) Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLayer++
	l := r.nextLayer
	r.layers[l] = &layerState{routeID: rt.ID}
	r.cmds = append(r.cmds, Command{Op: OpAddLayer, Layer: l, RouteID: rt.ID, Color: rt.Color})
	return l
}

func (r *Recorder) RemoveLayer(l Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layers[l]; !ok {
		return
	}
	delete(r.layers, l)
	r.cmds = append(r.cmds, Command{Op: OpRemoveLayer, Layer: l})
}

func (r *Recorder) SetLayerVisible(l Layer, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.layers[l]
	if !ok || st.visible == visible {
		return
	}
	st.visible = visible
	op := OpHideLayer
	if visible {
		op = OpShowLayer
	}
	r.cmds = append(r.cmds, Command{Op: op, Layer: l, RouteID: st.routeID})
}

func (r *Recorder) ShowMarker(p geo.Point, style MarkerStyle) Marker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMarker++
	m := r.nextMarker
	r.markers[m] = MarkerState{Point: p, Style: style}
	r.cmds = append(r.cmds, Command{Op: OpShowMarker, Marker: m, Style: style, Point: &p})
	return m
}

func (r *Recorder) RemoveMarker(m Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[m]; !ok {
		return
	}
	delete(r.markers, m)
	r.cmds = append(r.cmds, Command{Op: OpRemoveMarker, Marker: m})
}

func (r *Recorder) SetView(center geo.Point, zoom int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center, r.zoom = center, zoom
	r.cmds = append(r.cmds, Command{Op: OpSetView, Point: &center, Zoom: zoom})
}

func (r *Recorder) FitView(b orb.Bound, padding int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = geo.FromOrb(b.Center())
	r.cmds = append(r.cmds, Command{
		Op:      OpFitView,
		Bounds:  &Bounds{South: b.Bottom(), West: b.Left(), North: b.Top(), East: b.Right()},
		Padding: padding,
	})
}

// Drain returns the commands recorded since the last Drain.
func (r *Recorder) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.cmds
	r.cmds = nil
	return out
}

// VisibleRoutes returns the IDs of visible route layers, sorted.
func (r *Recorder) VisibleRoutes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, st := range r.layers {
		if st.visible {
			ids = append(ids, st.routeID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Markers returns the markers currently shown.
func (r *Recorder) Markers() map[Marker]MarkerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.markers)
}

// View returns the current center and zoom.
func (r *Recorder) View() (geo.Point, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.center, r.zoom
}
