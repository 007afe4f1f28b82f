package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"multicab_router/pkg/export"
	"multicab_router/pkg/geo"
	"multicab_router/pkg/geocode"
	"multicab_router/pkg/obs"
	"multicab_router/pkg/present"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
)

const (
	maxBodyBytes    = 1024
	maxNearbyRadius = 5000.0
)

// Planner is what the handlers need from the routing layer.
type Planner interface {
	present.Planner
	Engine() *routing.Engine
	Nearby(ctx context.Context, pt geo.Point, radius float64) ([]routing.NearbyRoute, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	planner  Planner
	geocoder geocode.Searcher
	sessions *SessionStore
}

// NewHandlers creates handlers. geocoder may be nil, which disables search
// by name.
func NewHandlers(planner Planner, geocoder geocode.Searcher, sessions *SessionStore) *Handlers {
	return &Handlers{
		planner:  planner,
		geocoder: geocoder,
		sessions: sessions,
	}
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	n := h.planner.Store().Len()
	if n == 0 {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "no_routes"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Routes: n})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	store := h.planner.Store()
	resp := StatsResponse{
		Routes:          store.Len(),
		Vertices:        store.VertexCount(),
		ThresholdMeters: h.planner.Engine().Threshold(),
		Sessions:        h.sessions.Len(),
	}
	if resp.Vertices > 0 {
		resp.Bounds = toBounds(store.Bound())
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRecommend handles POST /api/v1/recommend.
func (h *Handlers) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Destination == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "destination")
		return
	}
	if err := validateCoord(*req.Destination); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "destination")
		return
	}
	var start *geo.Point
	if req.Start != nil {
		if err := validateCoord(*req.Start); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
			return
		}
		p := req.Start.point()
		start = &p
	}

	rec, err := h.recommend(r.Context(), start, req.Destination.point())
	if err != nil {
		writeRecommendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendResponse{
		Recommendation: toRecommendationJSON(rec),
		Card:           present.Describe(rec),
	})
}

func (h *Handlers) recommend(ctx context.Context, start *geo.Point, dest geo.Point) (_ routing.Recommendation, err error) {
	defer obs.Time(ctx, "routing.Recommend")(&err)
	return h.planner.Recommend(ctx, start, dest)
}

// HandleGeocode handles GET /api/v1/geocode?q=.
func (h *Handlers) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		writeError(w, http.StatusNotImplemented, "geocoding_disabled", "")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q")
		return
	}
	results, err := h.geocoder.Search(r.Context(), q)
	if err != nil {
		writeGeocodeError(w, err)
		return
	}
	if results == nil {
		results = []geocode.Candidate{}
	}
	writeJSON(w, http.StatusOK, GeocodeResponse{Results: results})
}

// HandleListRoutes handles GET /api/v1/routes.
func (h *Handlers) HandleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.planner.Store().Routes()
	resp := RoutesResponse{Routes: make([]RouteSummaryJSON, len(routes))}
	for i, rt := range routes {
		resp.Routes[i] = summarize(rt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRoute handles GET /api/v1/routes/{id}.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.planner.Store().Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "route_not_found", "id")
		return
	}

	f := geojson.NewFeature(rt.Geometry)
	f.ID = rt.ID
	f.Properties["name"] = rt.Label()
	if rt.Color != "" {
		f.Properties["color"] = rt.Color
	}
	writeJSON(w, http.StatusOK, RouteDetailResponse{
		Feature:   f,
		Polylines: export.EncodePolylines(rt),
	})
}

// HandleRouteKML handles GET /api/v1/routes/{id}/kml.
func (h *Handlers) HandleRouteKML(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.planner.Store().Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "route_not_found", "id")
		return
	}
	writeKML(w, "route-"+rt.ID+".kml", rt.Label(), []route.Route{rt})
}

// HandleAllRoutesKML handles GET /api/v1/routes.kml.
func (h *Handlers) HandleAllRoutesKML(w http.ResponseWriter, r *http.Request) {
	writeKML(w, "routes.kml", "Multicab routes", h.planner.Store().Routes())
}

// HandleNearby handles GET /api/v1/routes/nearby?lat=&lng=&radius=.
func (h *Handlers) HandleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lat")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lng")
		return
	}
	pt := geo.Point{Lat: lat, Lng: lng}
	if err := pt.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}

	radius := h.planner.Engine().Threshold()
	if s := q.Get("radius"); s != "" {
		radius, err = strconv.ParseFloat(s, 64)
		if err != nil || !(radius > 0) || radius > maxNearbyRadius {
			writeError(w, http.StatusBadRequest, "invalid_radius", "radius")
			return
		}
	}

	found, err := h.planner.Nearby(r.Context(), pt, radius)
	if err != nil {
		writeRecommendError(w, err)
		return
	}
	resp := NearbyResponse{RadiusMeters: radius, Routes: make([]NearbyRouteJSON, len(found))}
	for i, n := range found {
		resp.Routes[i] = NearbyRouteJSON{
			Route:          summarize(n.Route),
			DistanceMeters: n.DistanceMeters,
			Nearest:        toLatLng(n.Point),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCreateSession handles POST /api/v1/sessions.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeSession(w, http.StatusCreated, h.sessions.Create(), nil)
}

// HandleGetSession handles GET /api/v1/sessions/{sid}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		writeSession(w, http.StatusOK, sess, nil)
	}
}

// HandleDeleteSession handles DELETE /api/v1/sessions/{sid}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "sid")) {
		writeError(w, http.StatusNotFound, "session_not_found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFocus handles POST /api/v1/sessions/{sid}/focus.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req FocusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Field {
	case present.FieldNone, present.FieldStart, present.FieldDestination:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "field")
		return
	}
	sess.search.Focus(req.Field)
	writeSession(w, http.StatusOK, sess, nil)
}

// HandleSetStart handles POST /api/v1/sessions/{sid}/start.
func (h *Handlers) HandleSetStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, label, ok := h.resolvePlace(w, r)
	if !ok {
		return
	}
	sess.search.SetStart(p, label)
	writeSession(w, http.StatusOK, sess, nil)
}

// HandleLocate handles POST /api/v1/sessions/{sid}/locate with the device
// position.
func (h *Handlers) HandleLocate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, ok := decodePoint(w, r)
	if !ok {
		return
	}
	sess.search.Locate(p)
	writeSession(w, http.StatusOK, sess, nil)
}

// HandleSetDestination handles POST /api/v1/sessions/{sid}/destination.
func (h *Handlers) HandleSetDestination(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, label, ok := h.resolvePlace(w, r)
	if !ok {
		return
	}
	_, err := sess.search.SetDestination(r.Context(), p, label)
	writeSession(w, http.StatusOK, sess, err)
}

// HandleClick handles POST /api/v1/sessions/{sid}/click.
func (h *Handlers) HandleClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, ok := decodePoint(w, r)
	if !ok {
		return
	}
	_, err := sess.search.Click(r.Context(), p)
	writeSession(w, http.StatusOK, sess, err)
}

// HandleSwap handles POST /api/v1/sessions/{sid}/swap.
func (h *Handlers) HandleSwap(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		sess.search.Swap()
		writeSession(w, http.StatusOK, sess, nil)
	}
}

// HandleReset handles POST /api/v1/sessions/{sid}/reset.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		sess.search.Reset()
		writeSession(w, http.StatusOK, sess, nil)
	}
}

// HandleToggleAllRoutes handles POST /api/v1/sessions/{sid}/routes.
func (h *Handlers) HandleToggleAllRoutes(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RouteToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.search.Adapter(func(a *present.Adapter) {
		if req.Visible {
			a.ShowAll()
		} else {
			a.HideAll()
		}
	})
	writeSession(w, http.StatusOK, sess, nil)
}

// HandleToggleRoute handles POST /api/v1/sessions/{sid}/routes/{id}.
func (h *Handlers) HandleToggleRoute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RouteToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	found := false
	sess.search.Adapter(func(a *present.Adapter) {
		found = a.SetRouteVisible(id, req.Visible)
	})
	if !found {
		writeError(w, http.StatusNotFound, "route_not_found", "id")
		return
	}
	writeSession(w, http.StatusOK, sess, nil)
}

// HandleSuggest handles GET /api/v1/sessions/{sid}/suggest?q=. A newer
// suggestion request for the same session cancels this one.
func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if sess.suggest == nil {
		writeError(w, http.StatusNotImplemented, "geocoding_disabled", "")
		return
	}
	results, err := sess.suggest.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, geocode.ErrSuperseded) {
			writeError(w, http.StatusConflict, "superseded", "")
			return
		}
		writeGeocodeError(w, err)
		return
	}
	if results == nil {
		results = []geocode.Candidate{}
	}
	writeJSON(w, http.StatusOK, GeocodeResponse{Results: results})
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, ok := h.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "")
	}
	return sess, ok
}

// resolvePlace reads a PlaceRequest. A query is geocoded and its first match
// used; otherwise lat and lng are required.
func (h *Handlers) resolvePlace(w http.ResponseWriter, r *http.Request) (geo.Point, string, bool) {
	var req PlaceRequest
	if !decodeJSON(w, r, &req) {
		return geo.Point{}, "", false
	}

	if q := strings.TrimSpace(req.Query); q != "" {
		if h.geocoder == nil {
			writeError(w, http.StatusNotImplemented, "geocoding_disabled", "")
			return geo.Point{}, "", false
		}
		c, err := geocode.First(r.Context(), h.geocoder, q)
		if err != nil {
			writeGeocodeError(w, err)
			return geo.Point{}, "", false
		}
		label := req.Label
		if label == "" {
			label = c.DisplayName
		}
		return c.Point(), label, true
	}

	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "lat")
		return geo.Point{}, "", false
	}
	ll := LatLngJSON{Lat: *req.Lat, Lng: *req.Lng}
	if err := validateCoord(ll); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return geo.Point{}, "", false
	}
	return ll.point(), req.Label, true
}

func decodePoint(w http.ResponseWriter, r *http.Request) (geo.Point, bool) {
	var ll LatLngJSON
	if !decodeJSON(w, r, &ll) {
		return geo.Point{}, false
	}
	if err := validateCoord(ll); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return geo.Point{}, false
	}
	return ll.point(), true
}

// decodeJSON enforces a JSON content type and a small body limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	return true
}

func writeSession(w http.ResponseWriter, status int, sess *Session, err error) {
	st := sess.search.State()
	center, zoom := sess.rec.View()
	resp := SessionResponse{
		ID:            sess.ID(),
		Start:         st.Start,
		Destination:   st.Destination,
		Active:        st.Active,
		VisibleRoutes: sess.rec.VisibleRoutes(),
		Markers:       toMarkersJSON(sess.rec.Markers()),
		View:          ViewJSON{Center: center, Zoom: zoom},
		Commands:      sess.rec.Drain(),
	}
	if st.Recommendation != nil {
		resp.Recommendation = toRecommendationJSON(st.Recommendation)
		card := present.Describe(st.Recommendation)
		resp.Card = &card
	}
	if err != nil {
		status, resp.Error, _ = recommendErrorStatus(err)
		resp.Message = present.ErrorMessage(err)
	}
	if resp.VisibleRoutes == nil {
		resp.VisibleRoutes = []string{}
	}
	if resp.Commands == nil {
		resp.Commands = []present.Command{}
	}
	writeJSON(w, status, resp)
}

func writeKML(w http.ResponseWriter, filename, name string, routes []route.Route) {
	var buf bytes.Buffer
	if err := export.WriteKML(&buf, name, routes...); err != nil {
		log.Printf("kml export failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(buf.Bytes())
}

func recommendErrorStatus(err error) (status int, code, field string) {
	switch {
	case errors.Is(err, routing.ErrNoStartPoint):
		return http.StatusUnprocessableEntity, "no_start_point", "start"
	case errors.Is(err, present.ErrNoDestination):
		return http.StatusUnprocessableEntity, "no_destination", "destination"
	case errors.Is(err, routing.ErrNoRoutesAvailable):
		return http.StatusServiceUnavailable, "no_routes_available", ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request_timeout", ""
	}
	return http.StatusInternalServerError, "internal_error", ""
}

func writeRecommendError(w http.ResponseWriter, err error) {
	status, code, field := recommendErrorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("recommend failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: code, Field: field, Message: present.ErrorMessage(err)})
}

func writeGeocodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geocode.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", "q")
	case errors.Is(err, geocode.ErrNotFound):
		writeError(w, http.StatusNotFound, "location_not_found", "")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		log.Printf("geocode failed: %v", err)
		writeError(w, http.StatusBadGateway, "geocoder_unavailable", "")
	}
}

func validateCoord(ll LatLngJSON) error {
	return geo.ValidateCoord(ll.Lat, ll.Lng)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
