// Package present turns recommendations into map operations and keeps the
// per-user search state (start, destination, which field a map click fills).
package present

import (
	"github.com/paulmach/orb"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// View defaults for the service area.
var DefaultCenter = geo.Point{Lat: 8.95, Lng: 125.54}

const (
	DefaultZoom = 13
	PickupZoom  = 16
	// FitPadding is the pixel padding used when fitting a route into view.
	FitPadding = 40
)

// Layer is a handle to a route layer owned by a Map.
type Layer int

// Marker is a handle to a marker owned by a Map.
type Marker int

// MarkerStyle selects a marker icon.
type MarkerStyle string

const (
	MarkerStart       MarkerStyle = "start"
	MarkerDestination MarkerStyle = "destination"
	MarkerPickup      MarkerStyle = "pickup"
)

// Map is the rendering collaborator. New layers start hidden.
type Map interface {
	AddRouteLayer(r route.Route) Layer
	RemoveLayer(l Layer)
	SetLayerVisible(l Layer, visible bool)
	ShowMarker(p geo.Point, style MarkerStyle) Marker
	RemoveMarker(m Marker)
	SetView(center geo.Point, zoom int)
	FitView(b orb.Bound, padding int)
}
