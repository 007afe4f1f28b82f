package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"multicab_router/pkg/export"
	osmparser "multicab_router/pkg/osm"
	"multicab_router/pkg/route"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf or .osm file")
	output := flag.String("output", "routes", "Directory to write route<N>.json files into")
	format := flag.String("format", "", "Input format: pbf or xml (default: from file extension)")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 8.85,125.45,9.02,125.65)")
	butuan := flag.Bool("butuan", false, "Shortcut for --bbox 8.85,125.45,9.02,125.65 (Butuan City bounding box)")
	kml := flag.Bool("kml", false, "Also write routes.kml next to the route files")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: importosm --input <file.osm.pbf|file.osm> [--output routes] [--format pbf|xml] [--butuan | --bbox minLat,minLng,maxLat,maxLng] [--kml]")
		os.Exit(1)
	}

	// Parse options.
	opts := osmparser.ParseOptions{Format: osmparser.DetectFormat(*input)}
	switch *format {
	case "":
	case "pbf":
		opts.Format = osmparser.FormatPBF
	case "xml":
		opts.Format = osmparser.FormatXML
	default:
		log.Fatalf("Unknown format %q (expected pbf or xml)", *format)
	}
	if *butuan {
		opts.BBox = osmparser.BBox{MinLat: 8.85, MaxLat: 9.02, MinLng: 125.45, MaxLng: 125.65}
		log.Println("Using Butuan bounding box filter: lat [8.85, 9.02], lng [125.45, 125.65]")
	} else if *bbox != "" {
		b, err := osmparser.ParseBBox(*bbox)
		if err != nil {
			log.Fatalf("Invalid bbox: %v", err)
		}
		opts.BBox = b
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Printf("Parsing OSM data (%s)...", opts.Format)
	routes, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	if len(routes) == 0 {
		log.Fatalf("No public transport route relations found in %s", *input)
	}

	// Step 2: Write one file per route.
	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	for i, r := range routes {
		path := filepath.Join(*output, route.FileName(i+1))
		if err := writeRoute(path, r); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("Wrote %s: %s (%d vertices)", path, r.Label(), r.VertexCount())
	}

	// Step 3: Optional KML overview.
	if *kml {
		path := filepath.Join(*output, "routes.kml")
		if err := writeKML(path, routes); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("Wrote %s", path)
	}

	log.Printf("Done in %s. %d routes written to %s", time.Since(start).Round(time.Millisecond), len(routes), *output)
}

func writeRoute(path string, r route.Route) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := route.Encode(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeKML(path string, routes []route.Route) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteKML(f, "Multicab routes", routes...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
