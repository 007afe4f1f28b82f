package route

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrMissingID       = errors.New("route id is missing")
	ErrMissingGeoJSON  = errors.New("route geojson is missing")
	ErrNoLineGeometry  = errors.New("route geojson has no line vertices")
	ErrDuplicateID     = errors.New("route id already loaded")
	ErrUnsupportedType = errors.New("unsupported geojson type")
)

// InvalidRouteFileError reports a route file that could not be used.
// Loaders exclude the file and keep going.
type InvalidRouteFileError struct {
	Path string
	Err  error
}

func (e *InvalidRouteFileError) Error() string {
	if e.Path == "" {
		return "invalid route file: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid route file %s: %v", e.Path, e.Err)
}

func (e *InvalidRouteFileError) Unwrap() error { return e.Err }

// fileRecord mirrors the route file layout:
//
//	{"id": 1, "name": "...", "color": "#e6194b", "geojson": {...}}
type fileRecord struct {
	ID      json.RawMessage `json:"id"`
	Name    string          `json:"name"`
	Color   string          `json:"color"`
	GeoJSON json.RawMessage `json:"geojson"`
}

// Parse decodes one route file. The geojson member may be a bare geometry, a
// Feature or a FeatureCollection; every LineString and MultiLineString found in
// document order contributes line-strings, other geometry types are ignored.
func Parse(data []byte) (Route, error) {
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Route{}, &InvalidRouteFileError{Err: fmt.Errorf("decode: %w", err)}
	}

	id, err := parseID(rec.ID)
	if err != nil {
		return Route{}, &InvalidRouteFileError{Err: err}
	}

	if isNull(rec.GeoJSON) {
		return Route{}, &InvalidRouteFileError{Err: ErrMissingGeoJSON}
	}
	lines, err := decodeLines(rec.GeoJSON)
	if err != nil {
		return Route{}, &InvalidRouteFileError{Err: err}
	}

	r := Route{
		ID:       id,
		Name:     rec.Name,
		Color:    rec.Color,
		Geometry: lines,
	}
	if r.Empty() {
		return Route{}, &InvalidRouteFileError{Err: ErrNoLineGeometry}
	}
	return r, nil
}

// Encode writes r in the route file format.
func Encode(w io.Writer, r Route) error {
	var geom orb.Geometry = r.Geometry
	if len(r.Geometry) == 1 {
		geom = r.Geometry[0]
	}
	raw, err := json.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}
	idJSON, err := json.Marshal(r.ID)
	if err != nil {
		return fmt.Errorf("encode id: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fileRecord{
		ID:      idJSON,
		Name:    r.Name,
		Color:   r.Color,
		GeoJSON: raw,
	})
}

// parseID accepts a JSON string or number.
func parseID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", ErrMissingID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", ErrMissingID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func decodeLines(raw json.RawMessage) (orb.MultiLineString, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		var out orb.MultiLineString
		for _, f := range fc.Features {
			out = appendLines(out, f.Geometry)
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		return appendLines(nil, f.Geometry), nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnsupportedType)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		return appendLines(nil, g.Geometry()), nil
	}
}

func appendLines(dst orb.MultiLineString, g orb.Geometry) orb.MultiLineString {
	switch g := g.(type) {
	case orb.LineString:
		if len(g) > 0 {
			dst = append(dst, g)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				dst = append(dst, ls)
			}
		}
	case orb.Collection:
		for _, c := range g {
			dst = appendLines(dst, c)
		}
	}
	return dst
}
