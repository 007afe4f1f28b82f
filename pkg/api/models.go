package api

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/geocode"
	"multicab_router/pkg/present"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
)

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (ll LatLngJSON) point() geo.Point { return geo.Point{Lat: ll.Lat, Lng: ll.Lng} }

func toLatLng(p geo.Point) LatLngJSON { return LatLngJSON{Lat: p.Lat, Lng: p.Lng} }

// RecommendRequest is the JSON body for POST /api/v1/recommend.
// Start is optional so a missing start reaches the engine and is reported
// as no_start_point.
type RecommendRequest struct {
	Start       *LatLngJSON `json:"start"`
	Destination *LatLngJSON `json:"destination"`
}

// RouteSummaryJSON describes a route without its geometry.
type RouteSummaryJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Color    string          `json:"color,omitempty"`
	Vertices int             `json:"vertices"`
	Bounds   *present.Bounds `json:"bounds,omitempty"`
}

func summarize(r route.Route) RouteSummaryJSON {
	s := RouteSummaryJSON{ID: r.ID, Name: r.Label(), Color: r.Color, Vertices: r.VertexCount()}
	if !r.Empty() {
		s.Bounds = toBounds(r.Bound())
	}
	return s
}

func toBounds(b orb.Bound) *present.Bounds {
	return &present.Bounds{South: b.Bottom(), West: b.Left(), North: b.Top(), East: b.Right()}
}

// CandidateJSON is one evaluated route in a recommendation.
type CandidateJSON struct {
	Route                   RouteSummaryJSON `json:"route"`
	DistanceFromStartMeters *float64         `json:"distance_from_start_meters,omitempty"`
	DistanceFromDestMeters  float64          `json:"distance_from_destination_meters"`
}

// RecommendationJSON is the wire form of a routing.Recommendation.
type RecommendationJSON struct {
	Kind       routing.Kind    `json:"kind"`
	Chosen     CandidateJSON   `json:"chosen"`
	Alternates []CandidateJSON `json:"alternates,omitempty"`
	Pickup     *LatLngJSON     `json:"pickup,omitempty"`
}

func toRecommendationJSON(rec routing.Recommendation) *RecommendationJSON {
	if rec == nil {
		return nil
	}
	out := &RecommendationJSON{Kind: rec.Kind()}
	switch rec := rec.(type) {
	case routing.Direct:
		out.Chosen = toCandidateJSON(rec.Best, false)
		for _, alt := range rec.Alternates {
			out.Alternates = append(out.Alternates, toCandidateJSON(alt, false))
		}
	case routing.WalkToPickup:
		out.Chosen = toCandidateJSON(rec.Best, true)
		if rec.Best.PickupFound {
			p := toLatLng(rec.Pickup)
			out.Pickup = &p
		}
	}
	return out
}

func toCandidateJSON(c routing.Candidate, withStart bool) CandidateJSON {
	out := CandidateJSON{Route: summarize(c.Route), DistanceFromDestMeters: c.DistanceFromDest}
	if withStart {
		d := c.DistanceFromStart
		out.DistanceFromStartMeters = &d
	}
	return out
}

// RecommendResponse is the JSON response for a successful recommendation.
type RecommendResponse struct {
	Recommendation *RecommendationJSON `json:"recommendation"`
	Card           present.Card        `json:"card"`
}

// RoutesResponse is the JSON response for GET /api/v1/routes.
type RoutesResponse struct {
	Routes []RouteSummaryJSON `json:"routes"`
}

// RouteDetailResponse is the JSON response for GET /api/v1/routes/{id}.
type RouteDetailResponse struct {
	Feature   *geojson.Feature `json:"feature"`
	Polylines []string         `json:"polylines"`
}

// NearbyRouteJSON is one route passing near a query point.
type NearbyRouteJSON struct {
	Route          RouteSummaryJSON `json:"route"`
	DistanceMeters float64          `json:"distance_meters"`
	Nearest        LatLngJSON       `json:"nearest"`
}

// NearbyResponse is the JSON response for GET /api/v1/routes/nearby.
type NearbyResponse struct {
	RadiusMeters float64           `json:"radius_meters"`
	Routes       []NearbyRouteJSON `json:"routes"`
}

// GeocodeResponse is the JSON response for geocode and suggestion queries.
type GeocodeResponse struct {
	Results []geocode.Candidate `json:"results"`
}

// PlaceRequest sets a session point either by coordinates or by a search
// query resolved through the geocoder.
type PlaceRequest struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Label string   `json:"label"`
	Query string   `json:"query"`
}

// FocusRequest is the JSON body for POST /api/v1/sessions/{id}/focus.
type FocusRequest struct {
	Field present.Field `json:"field"`
}

// RouteToggleRequest is the JSON body for POST /api/v1/sessions/{id}/routes/{routeID}.
type RouteToggleRequest struct {
	Visible bool `json:"visible"`
}

// SessionResponse is the JSON response for every session operation. Commands
// are the map operations produced since the previous response.
type SessionResponse struct {
	ID             string              `json:"id"`
	Start          *present.Place      `json:"start,omitempty"`
	Destination    *present.Place      `json:"destination,omitempty"`
	Active         present.Field       `json:"active_field,omitempty"`
	Recommendation *RecommendationJSON `json:"recommendation,omitempty"`
	Card           *present.Card       `json:"card,omitempty"`
	Error          string              `json:"error,omitempty"`
	Message        string              `json:"message,omitempty"`
	VisibleRoutes  []string            `json:"visible_routes"`
	Markers        []MarkerJSON        `json:"markers"`
	View           ViewJSON            `json:"view"`
	Commands       []present.Command   `json:"commands"`
}

// MarkerJSON is a marker currently on the session's map.
type MarkerJSON struct {
	ID    present.Marker      `json:"id"`
	Style present.MarkerStyle `json:"style"`
	Point geo.Point           `json:"point"`
}

// ViewJSON is the session map's current center and zoom.
type ViewJSON struct {
	Center geo.Point `json:"center"`
	Zoom   int       `json:"zoom"`
}

// toMarkersJSON lists markers in creation order.
func toMarkersJSON(markers map[present.Marker]present.MarkerState) []MarkerJSON {
	out := make([]MarkerJSON, 0, len(markers))
	for id, m := range markers {
		out = append(out, MarkerJSON{ID: id, Style: m.Style, Point: m.Point})
	}
	slices.SortFunc(out, func(a, b MarkerJSON) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	Routes          int             `json:"routes"`
	Vertices        int             `json:"vertices"`
	ThresholdMeters float64         `json:"threshold_meters"`
	Sessions        int             `json:"sessions"`
	Bounds          *present.Bounds `json:"bounds,omitempty"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Routes int    `json:"routes"`
}
