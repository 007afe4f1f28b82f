package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"multicab_router/pkg/export"
	"multicab_router/pkg/route"
)

// Format selects the OSM encoding of the input.
type Format string

const (
	FormatPBF Format = "pbf"
	FormatXML Format = "xml"
)

// DetectFormat guesses the format from a file name. Anything that is not
// .osm or .xml is treated as PBF.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".osm", ".xml":
		return FormatXML
	}
	return FormatPBF
}

// publicTransportRoutes lists route tag values served by multicabs and
// jeepneys. Mappers use all of these for the same vehicles.
var publicTransportRoutes = map[string]bool{
	"bus":        true,
	"minibus":    true,
	"share_taxi": true,
	"jeepney":    true,
	"trolleybus": true,
}

// isTransitRoute returns true if the relation describes a vehicle route.
func isTransitRoute(tags osm.Tags) bool {
	if tags.Find("type") != "route" {
		return false
	}
	return publicTransportRoutes[tags.Find("route")]
}

// isPathRole returns true if a member with this role is part of the driven
// path rather than a stop or platform.
func isPathRole(role string) bool {
	switch role {
	case "", "forward", "backward":
		return true
	}
	// stop, stop_entry_only, platform, ...
	return false
}

// palette colors routes without a usable colour tag.
var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#469990", "#9a6324",
}

// relationInfo holds a route relation collected during Pass 1.
type relationInfo struct {
	ID     osm.RelationID
	Ref    string
	Name   string
	Colour string
	Ways   []osm.WayID
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only routes with at least one vertex inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(s string) (BBox, error) {
	var b BBox
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &b.MinLat, &b.MinLng, &b.MaxLat, &b.MaxLng); err != nil {
		return BBox{}, fmt.Errorf("bbox %q: want minLat,minLng,maxLat,maxLng: %w", s, err)
	}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return BBox{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return b, nil
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	Format Format // defaults to FormatPBF
	BBox   BBox   // if non-zero, drop routes entirely outside this box
}

// scanner is the subset shared by the PBF and XML decoders.
type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

func newScanner(ctx context.Context, r io.Reader, f Format, want osm.Type) scanner {
	if f == FormatXML {
		return osmxml.New(ctx, r)
	}
	s := osmpbf.New(ctx, r, 1)
	s.SkipNodes = want != osm.TypeNode
	s.SkipWays = want != osm.TypeWay
	s.SkipRelations = want != osm.TypeRelation
	return s
}

// scan runs one pass over rs, calling fn for every object. The reader is
// rewound first.
func scan(ctx context.Context, rs io.ReadSeeker, f Format, want osm.Type, fn func(osm.Object)) error {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	s := newScanner(ctx, rs, f, want)
	for s.Scan() {
		fn(s.Object())
	}
	if err := s.Err(); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// Parse reads OSM data and returns one route per public transport route
// relation. The reader is consumed three times (relations, ways, nodes),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) ([]route.Route, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: Collect route relations and the ways they drive along.
	var rels []relationInfo
	neededWays := make(map[osm.WayID]struct{})
	err := scan(ctx, rs, opt.Format, osm.TypeRelation, func(obj osm.Object) {
		r, ok := obj.(*osm.Relation)
		if !ok || !isTransitRoute(r.Tags) {
			return
		}
		info := relationInfo{
			ID:     r.ID,
			Ref:    strings.TrimSpace(r.Tags.Find("ref")),
			Name:   strings.TrimSpace(r.Tags.Find("name")),
			Colour: r.Tags.Find("colour"),
		}
		for _, m := range r.Members {
			if m.Type != osm.TypeWay || !isPathRole(m.Role) {
				continue
			}
			id := osm.WayID(m.Ref)
			info.Ways = append(info.Ways, id)
			neededWays[id] = struct{}{}
		}
		if len(info.Ways) > 0 {
			rels = append(rels, info)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("pass 1 (relations): %w", err)
	}
	log.Printf("Pass 1 complete: %d route relations, %d member ways", len(rels), len(neededWays))

	// Pass 2: Node lists of member ways.
	wayNodes := make(map[osm.WayID][]osm.NodeID, len(neededWays))
	neededNodes := make(map[osm.NodeID]struct{})
	err = scan(ctx, rs, opt.Format, osm.TypeWay, func(obj osm.Object) {
		w, ok := obj.(*osm.Way)
		if !ok || len(w.Nodes) < 2 {
			return
		}
		if _, needed := neededWays[w.ID]; !needed {
			return
		}
		ids := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			ids[i] = wn.ID
			neededNodes[wn.ID] = struct{}{}
		}
		wayNodes[w.ID] = ids
	})
	if err != nil {
		return nil, fmt.Errorf("pass 2 (ways): %w", err)
	}
	log.Printf("Pass 2 complete: %d ways, %d referenced nodes", len(wayNodes), len(neededNodes))

	// Pass 3: Coordinates for referenced nodes only.
	coords := make(map[osm.NodeID]orb.Point, len(neededNodes))
	err = scan(ctx, rs, opt.Format, osm.TypeNode, func(obj osm.Object) {
		n, ok := obj.(*osm.Node)
		if !ok {
			return
		}
		if _, needed := neededNodes[n.ID]; needed {
			coords[n.ID] = orb.Point{n.Lon, n.Lat}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("pass 3 (nodes): %w", err)
	}
	log.Printf("Pass 3 complete: %d node coordinates collected", len(coords))

	routes := make([]route.Route, 0, len(rels))
	seen := make(map[string]osm.RelationID, len(rels))
	var missingWays, bboxFiltered, duplicates int
	for _, rel := range rels {
		var members [][]osm.NodeID
		for _, id := range rel.Ways {
			nodes, ok := wayNodes[id]
			if !ok {
				missingWays++
				continue
			}
			members = append(members, nodes)
		}

		r := route.Route{
			ID:       routeID(rel),
			Name:     rel.Name,
			Geometry: buildGeometry(stitch(members), coords),
		}
		if r.Empty() {
			continue
		}
		if !opt.BBox.IsZero() && !touches(r.Geometry, opt.BBox) {
			bboxFiltered++
			continue
		}
		if first, dup := seen[r.ID]; dup {
			log.Printf("Warning: relation %d reuses ref %q of relation %d, using its OSM id", rel.ID, r.ID, first)
			r.ID = "osm-" + strconv.FormatInt(int64(rel.ID), 10)
			duplicates++
		}
		seen[r.ID] = rel.ID

		if _, err := export.ParseHexColor(rel.Colour); err == nil {
			r.Color = rel.Colour
		} else {
			r.Color = palette[len(routes)%len(palette)]
		}
		routes = append(routes, r)
	}

	if missingWays > 0 {
		log.Printf("Warning: %d member ways missing from the extract", missingWays)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d routes outside bounding box", bboxFiltered)
	}
	if duplicates > 0 {
		log.Printf("Renamed %d routes with duplicate refs", duplicates)
	}
	log.Printf("Built %d routes", len(routes))
	return routes, nil
}

func routeID(rel relationInfo) string {
	if rel.Ref != "" {
		return rel.Ref
	}
	return "osm-" + strconv.FormatInt(int64(rel.ID), 10)
}

// stitch joins consecutive member ways that share an end node into longer
// node sequences, reversing ways mapped against the direction of travel.
// Gaps start a new sequence.
func stitch(ways [][]osm.NodeID) [][]osm.NodeID {
	var out [][]osm.NodeID
	var cur []osm.NodeID
	single := false // cur is one way whose orientation is not yet fixed
	for _, w := range ways {
		if len(cur) == 0 {
			cur = slices.Clone(w)
			single = true
			continue
		}
		if single && (cur[0] == w[0] || cur[0] == w[len(w)-1]) && cur[len(cur)-1] != w[0] && cur[len(cur)-1] != w[len(w)-1] {
			slices.Reverse(cur)
		}
		last := cur[len(cur)-1]
		switch {
		case w[0] == last:
			cur = append(cur, w[1:]...)
		case w[len(w)-1] == last:
			rev := slices.Clone(w[:len(w)-1])
			slices.Reverse(rev)
			cur = append(cur, rev...)
		default:
			out = append(out, cur)
			cur = slices.Clone(w)
			single = true
			continue
		}
		single = false
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// buildGeometry resolves node IDs to coordinates. Nodes outside the extract
// split the line.
func buildGeometry(seqs [][]osm.NodeID, coords map[osm.NodeID]orb.Point) orb.MultiLineString {
	var mls orb.MultiLineString
	for _, seq := range seqs {
		var ls orb.LineString
		for _, id := range seq {
			p, ok := coords[id]
			if !ok {
				if len(ls) >= 2 {
					mls = append(mls, ls)
				}
				ls = nil
				continue
			}
			ls = append(ls, p)
		}
		if len(ls) >= 2 {
			mls = append(mls, ls)
		}
	}
	return mls
}

func touches(mls orb.MultiLineString, b BBox) bool {
	for _, ls := range mls {
		for _, p := range ls {
			if b.Contains(p.Lat(), p.Lon()) {
				return true
			}
		}
	}
	return false
}
