// Package export renders routes for other tools: KML for desktop GIS and
// Google encoded polylines for compact transfer to map clients.
package export

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	kml "github.com/twpayne/go-kml"
	"github.com/twpayne/go-polyline"

	"multicab_router/pkg/route"
)

// defaultColor is used for routes without a parseable color.
var defaultColor = color.RGBA{R: 0x33, G: 0x88, B: 0xff, A: 0xff}

// lineWidth matches the stroke weight route layers are drawn with.
const lineWidth = 5

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q: want #rgb or #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// WriteKML writes routes as a KML document with one styled placemark each.
func WriteKML(w io.Writer, name string, routes ...route.Route) error {
	children := []kml.Element{kml.Name(name)}
	for _, r := range routes {
		c, err := ParseHexColor(r.Color)
		if err != nil {
			c = defaultColor
		}
		style := kml.SharedStyle("route-"+r.ID,
			kml.LineStyle(
				kml.Color(c),
				kml.Width(lineWidth),
			),
		)

		lines := make([]kml.Element, 0, len(r.Geometry))
		for _, ls := range r.Geometry {
			coords := make([]kml.Coordinate, len(ls))
			for i, p := range ls {
				coords[i] = kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
			}
			lines = append(lines, kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			))
		}

		children = append(children,
			style,
			kml.Placemark(
				kml.Name(r.Label()),
				kml.Description("Route "+r.ID),
				kml.StyleURL(style.URL()),
				kml.MultiGeometry(lines...),
			),
		)
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

// EncodePolylines returns one encoded polyline per line-string of r.
func EncodePolylines(r route.Route) []string {
	out := make([]string, 0, len(r.Geometry))
	for _, ls := range r.Geometry {
		coords := make([][]float64, len(ls))
		for i, p := range ls {
			coords[i] = []float64{p.Lat(), p.Lon()}
		}
		out = append(out, string(polyline.EncodeCoords(coords)))
	}
	return out
}
