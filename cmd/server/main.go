package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multicab_router/pkg/api"
	"multicab_router/pkg/config"
	"multicab_router/pkg/geocode"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
	"multicab_router/pkg/storage"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	routesDir := flag.String("routes", "", "Directory holding route<N>.json files (overrides ROUTES_DIR)")
	count := flag.Int("count", 0, "Number of route files to load, 0 = all found (overrides ROUTE_FILE_COUNT)")
	port := flag.Int("port", 0, "HTTP port (overrides PORT)")
	threshold := flag.Float64("threshold", 0, "Destination match threshold in meters (overrides MATCH_THRESHOLD_METERS)")
	noGeocode := flag.Bool("no-geocode", false, "Disable place search")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "routes":
			cfg.RoutesDir = *routesDir
		case "count":
			cfg.RouteFileCount = *count
		case "port":
			cfg.Port = *port
		case "threshold":
			cfg.ThresholdMeters = *threshold
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	start := time.Now()

	// Load routes. Bad files are logged and skipped.
	log.Printf("Loading routes from %s...", cfg.RoutesDir)
	store := loadRoutes(cfg.RoutesDir, cfg.RouteFileCount)
	if store.Len() == 0 {
		log.Println("Warning: no routes loaded, recommendations will fail until a reload succeeds")
	}
	catalog := route.NewCatalog(store)

	engine := routing.NewEngine(routing.WithThreshold(cfg.ThresholdMeters))
	planner := routing.NewPlanner(engine, catalog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var searcher geocode.Searcher
	if !*noGeocode {
		searcher = newSearcher(ctx, cfg)
	}

	log.Printf("Ready in %s: %d routes, %d vertices, threshold %.0f m",
		time.Since(start).Round(time.Millisecond), store.Len(), store.VertexCount(), engine.Threshold())

	go reloadOnHangup(ctx, catalog, cfg.RoutesDir, cfg.RouteFileCount)

	sessions := api.NewSessionStore(planner, searcher, cfg.SuggestDebounce, cfg.SessionIdleTTL)
	go sessions.Run(ctx, time.Minute)

	// Setup HTTP server.
	srvCfg := api.DefaultConfig(cfg.Addr())
	srvCfg.CORSOrigins = cfg.CORSOrigins
	srvCfg.MaxConcurrent = cfg.MaxConcurrent
	srvCfg.RequestTimeout = cfg.RequestTimeout
	if wt := cfg.RequestTimeout + 5*time.Second; wt > srvCfg.WriteTimeout {
		srvCfg.WriteTimeout = wt
	}

	handlers := api.NewHandlers(planner, searcher, sessions)
	srv := api.NewServer(srvCfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}

func loadRoutes(dir string, count int) *route.Store {
	store, errs := route.LoadDir(dir, count)
	for _, err := range errs {
		log.Printf("Warning: %v", err)
	}
	return store
}

// reloadOnHangup reloads the route files on SIGHUP. A reload that yields no
// routes keeps the previous set.
func reloadOnHangup(ctx context.Context, catalog *route.Catalog, dir string, count int) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Printf("Received SIGHUP, reloading routes from %s...", dir)
			store := loadRoutes(dir, count)
			if store.Len() == 0 {
				log.Println("Reload found no routes, keeping the current set")
				continue
			}
			old := catalog.Replace(store)
			log.Printf("Reloaded %d routes (was %d)", store.Len(), old.Len())
		}
	}
}

// newSearcher builds the Nominatim client, fronted by a SQL cache when
// GEOCODE_CACHE_DSN is set. A cache that cannot be opened is skipped.
func newSearcher(ctx context.Context, cfg config.Config) geocode.Searcher {
	client := geocode.NewNominatimClient(cfg.GeocodeConfig())
	log.Printf("Geocoding via %s (viewbox %s)", cfg.NominatimURL, cfg.GeocodeViewbox)
	if cfg.GeocodeCacheDSN == "" {
		return client
	}

	db, err := storage.Open(ctx, cfg.GeocodeCacheDSN)
	if err != nil {
		log.Printf("Warning: geocode cache disabled: %v", err)
		return client
	}
	cache := geocode.NewSQLCache(db, cfg.GeocodeCacheTTL)
	if err := cache.InitSchema(ctx); err != nil {
		log.Printf("Warning: geocode cache disabled: %v", err)
		db.Close()
		return client
	}
	log.Printf("Geocode cache: %s, ttl %s", db.Dialect, cfg.GeocodeCacheTTL)
	return geocode.NewCachedSearcher(client, cache)
}
