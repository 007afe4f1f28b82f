package present

import (
	"github.com/paulmach/orb"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
)

// Adapter renders recommendations onto a Map. It owns the association from
// route ID to map layer and the single pickup marker.
type Adapter struct {
	m      Map
	store  *route.Store
	ids    []string
	layers map[string]Layer
	bounds map[string]orb.Bound

	pickup    Marker
	hasPickup bool
}

// NewAdapter creates one hidden layer per route in store.
func NewAdapter(m Map, store *route.Store) *Adapter {
	a := &Adapter{m: m}
	a.Reset(store)
	return a
}

// Store returns the store the layers were built from.
func (a *Adapter) Store() *route.Store {
	return a.store
}

// Reset drops every layer and the pickup marker and rebuilds layers for store.
func (a *Adapter) Reset(store *route.Store) {
	for _, id := range a.ids {
		a.m.RemoveLayer(a.layers[id])
	}
	a.ClearPickup()

	a.store = store
	a.ids = nil
	a.layers = make(map[string]Layer, store.Len())
	a.bounds = make(map[string]orb.Bound, store.Len())
	for _, r := range store.Routes() {
		a.ids = append(a.ids, r.ID)
		a.layers[r.ID] = a.m.AddRouteLayer(r)
		if !r.Empty() {
			a.bounds[r.ID] = r.Bound()
		}
	}
}

// Apply shows exactly the chosen route. A WalkToPickup also places the pickup
// marker and recenters on it; a Direct clears any pickup marker.
func (a *Adapter) Apply(rec routing.Recommendation) {
	a.HighlightRoute(rec.ChosenRoute().ID)

	switch rec := rec.(type) {
	case routing.WalkToPickup:
		if rec.Best.PickupFound {
			a.placePickup(rec.Pickup)
		} else {
			a.ClearPickup()
		}
	case routing.Direct:
		a.ClearPickup()
	}
}

// HighlightRoute hides every route layer, then shows id's. It reports whether
// id has a layer.
func (a *Adapter) HighlightRoute(id string) bool {
	a.HideAll()
	l, ok := a.layers[id]
	if ok {
		a.m.SetLayerVisible(l, true)
	}
	return ok
}

// ShowAll makes every route layer visible.
func (a *Adapter) ShowAll() {
	for _, id := range a.ids {
		a.m.SetLayerVisible(a.layers[id], true)
	}
}

// HideAll hides every route layer.
func (a *Adapter) HideAll() {
	for _, id := range a.ids {
		a.m.SetLayerVisible(a.layers[id], false)
	}
}

// SetRouteVisible toggles one route layer. Showing a route also zooms to it.
func (a *Adapter) SetRouteVisible(id string, visible bool) bool {
	l, ok := a.layers[id]
	if !ok {
		return false
	}
	a.m.SetLayerVisible(l, visible)
	if visible {
		a.ZoomRoute(id)
	}
	return true
}

// ZoomRoute fits the view to a route's bounds.
func (a *Adapter) ZoomRoute(id string) bool {
	b, ok := a.bounds[id]
	if !ok {
		return false
	}
	a.m.FitView(b, FitPadding)
	return true
}

// ClearPickup removes the pickup marker if one is shown.
func (a *Adapter) ClearPickup() {
	if !a.hasPickup {
		return
	}
	a.m.RemoveMarker(a.pickup)
	a.pickup, a.hasPickup = 0, false
}

func (a *Adapter) placePickup(p geo.Point) {
	a.ClearPickup()
	a.pickup = a.m.ShowMarker(p, MarkerPickup)
	a.hasPickup = true
	a.m.SetView(p, PickupZoom)
}
