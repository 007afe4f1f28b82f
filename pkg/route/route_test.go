package route

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineStringFile = `{
  "id": 1,
  "name": "Libertad - Cogon",
  "color": "#e6194b",
  "geojson": {"type": "LineString", "coordinates": [[125.50, 8.94], [125.52, 8.945], [125.54, 8.95]]}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParse_LineString(t *testing.T) {
	r, err := Parse([]byte(lineStringFile))
	require.NoError(t, err)

	assert.Equal(t, "1", r.ID)
	assert.Equal(t, "Libertad - Cogon", r.Name)
	assert.Equal(t, "#e6194b", r.Color)
	require.Len(t, r.Geometry, 1)
	assert.Equal(t, 3, r.VertexCount())
	assert.Equal(t, orb.Point{125.50, 8.94}, r.Geometry[0][0])
}

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		name      string
		geojson   string
		wantLines int
		wantVerts int
	}{
		{
			name:      "multilinestring",
			geojson:   `{"type":"MultiLineString","coordinates":[[[125.5,8.9],[125.51,8.91]],[[125.52,8.92]]]}`,
			wantLines: 2,
			wantVerts: 3,
		},
		{
			name:      "feature",
			geojson:   `{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[125.5,8.9],[125.51,8.91]]}}`,
			wantLines: 1,
			wantVerts: 2,
		},
		{
			name: "feature collection with a stop point",
			geojson: `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[125.5,8.9]}},
				{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[125.5,8.9],[125.51,8.91]]}},
				{"type":"Feature","properties":{},"geometry":{"type":"MultiLineString","coordinates":[[[125.6,8.9]]]}}
			]}`,
			wantLines: 2,
			wantVerts: 3,
		},
		{
			name:      "geometry collection",
			geojson:   `{"type":"GeometryCollection","geometries":[{"type":"LineString","coordinates":[[125.5,8.9],[125.51,8.91]]},{"type":"Point","coordinates":[1,2]}]}`,
			wantLines: 1,
			wantVerts: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := `{"id":"r","geojson":` + tt.geojson + `}`
			r, err := Parse([]byte(data))
			require.NoError(t, err)
			assert.Len(t, r.Geometry, tt.wantLines)
			assert.Equal(t, tt.wantVerts, r.VertexCount())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"missing id", `{"name":"x","geojson":{"type":"LineString","coordinates":[[1,2]]}}`, ErrMissingID},
		{"null id", `{"id":null,"geojson":{"type":"LineString","coordinates":[[1,2]]}}`, ErrMissingID},
		{"blank id", `{"id":"  ","geojson":{"type":"LineString","coordinates":[[1,2]]}}`, ErrMissingID},
		{"missing geojson", `{"id":3}`, ErrMissingGeoJSON},
		{"polygon only", `{"id":3,"geojson":{"type":"Polygon","coordinates":[[[1,2],[3,4],[5,6],[1,2]]]}}`, ErrNoLineGeometry},
		{"empty line", `{"id":3,"geojson":{"type":"LineString","coordinates":[]}}`, ErrNoLineGeometry},
		{"untyped geojson", `{"id":3,"geojson":{"coordinates":[]}}`, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			var inv *InvalidRouteFileError
			assert.True(t, errors.As(err, &inv), "want *InvalidRouteFileError, got %T", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Parse([]byte("not json"))
	var inv *InvalidRouteFileError
	assert.True(t, errors.As(err, &inv))
}

func TestEncode_RoundTrip(t *testing.T) {
	in := Route{
		ID:    "7",
		Name:  "Doongan",
		Color: "#3cb44b",
		Geometry: orb.MultiLineString{
			{{125.5, 8.9}, {125.51, 8.91}},
			{{125.52, 8.92}, {125.53, 8.93}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadDir_PartialSuccess(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "route1.json", lineStringFile)
	// route2.json intentionally missing.
	writeFile(t, dir, "route3.json", `{"name":"no id","geojson":{"type":"LineString","coordinates":[[1,2]]}}`)
	writeFile(t, dir, "route4.json", `{"id":"4","name":"Four","geojson":{"type":"LineString","coordinates":[[125.6,8.96]]}}`)
	writeFile(t, dir, "route5.json", `{"id":1,"name":"dup","geojson":{"type":"LineString","coordinates":[[125.6,8.96]]}}`)
	writeFile(t, dir, "route6.json", `{broken`)

	s, errs := LoadDir(dir, DefaultFileCount)

	require.Equal(t, 2, s.Len())
	routes := s.Routes()
	assert.Equal(t, "1", routes[0].ID)
	assert.Equal(t, "4", routes[1].ID)

	require.Len(t, errs, 3)
	for _, err := range errs {
		var inv *InvalidRouteFileError
		require.True(t, errors.As(err, &inv))
		assert.NotEmpty(t, inv.Path)
	}
	assert.ErrorIs(t, errs[0], ErrMissingID)
	assert.ErrorIs(t, errs[1], ErrDuplicateID)
}

func TestLoadDir_Discover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "route10.json", `{"id":"10","geojson":{"type":"LineString","coordinates":[[1,2]]}}`)
	writeFile(t, dir, "route2.json", `{"id":"2","geojson":{"type":"LineString","coordinates":[[1,2]]}}`)
	writeFile(t, dir, "notes.json", `{}`)

	s, errs := LoadDir(dir, 0)
	assert.Empty(t, errs)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "2", s.Routes()[0].ID)
	assert.Equal(t, "10", s.Routes()[1].ID)
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	s, errs := LoadDir(filepath.Join(t.TempDir(), "nope"), 0)
	assert.Equal(t, 0, s.Len())
	assert.Len(t, errs, 1)

	s, errs = LoadDir(filepath.Join(t.TempDir(), "nope"), 3)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, errs)
}

func TestStore(t *testing.T) {
	a := Route{ID: "a", Geometry: orb.MultiLineString{{{125.5, 8.9}, {125.6, 9.0}}}}
	b := Route{ID: "b", Geometry: orb.MultiLineString{{{125.4, 8.8}}}}

	s, err := NewStore([]Route{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, s.VertexCount())

	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, b, got)
	_, ok = s.Get("c")
	assert.False(t, ok)

	bound := s.Bound()
	assert.Equal(t, orb.Point{125.4, 8.8}, bound.Min)
	assert.Equal(t, orb.Point{125.6, 9.0}, bound.Max)

	// Callers cannot reorder the store through the returned slice.
	rs := s.Routes()
	rs[0], rs[1] = rs[1], rs[0]
	assert.Equal(t, "a", s.Routes()[0].ID)

	_, err = NewStore([]Route{a, a})
	assert.ErrorIs(t, err, ErrDuplicateID)
	_, err = NewStore([]Route{{}})
	assert.ErrorIs(t, err, ErrMissingID)

	var nilStore *Store
	assert.Equal(t, 0, nilStore.Len())
	assert.Nil(t, nilStore.Routes())
}

func TestCatalog_Replace(t *testing.T) {
	first, _ := NewStore([]Route{{ID: "a"}})
	second, _ := NewStore([]Route{{ID: "b"}, {ID: "c"}})

	c := NewCatalog(first)
	snap := c.Snapshot()
	old := c.Replace(second)

	assert.Same(t, first, old)
	assert.Equal(t, 1, snap.Len(), "earlier snapshot is unaffected")
	assert.Equal(t, 2, c.Snapshot().Len())
}

func TestRoute_Label(t *testing.T) {
	assert.Equal(t, "Bancasi", Route{ID: "3", Name: "Bancasi"}.Label())
	assert.Equal(t, "3", Route{ID: "3"}.Label())
}
