// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"multicab_router/pkg/geocode"
	"multicab_router/pkg/route"
	"multicab_router/pkg/routing"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port            int
	RoutesDir       string
	RouteFileCount  int
	ThresholdMeters float64
	CORSOrigins     []string
	MaxConcurrent   int
	RequestTimeout  time.Duration
	SessionIdleTTL  time.Duration
	NominatimURL    string
	NominatimAgent  string
	GeocodeViewbox  geocode.Viewbox
	GeocodeLocality string
	GeocodeCacheDSN string
	GeocodeCacheTTL time.Duration
	SuggestDebounce time.Duration
}

// LoadDotEnv loads files (default ".env") into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("No %s file found, using environment", f)
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	viewbox := geocode.DefaultViewbox
	if v := os.Getenv("GEOCODE_VIEWBOX"); v != "" {
		vb, err := geocode.ParseViewbox(v)
		if err != nil {
			return Config{}, fmt.Errorf("GEOCODE_VIEWBOX: %w", err)
		}
		viewbox = vb
	}

	cfg := Config{
		Port:            getEnvInt("PORT", 8080),
		RoutesDir:       getEnv("ROUTES_DIR", "routes"),
		RouteFileCount:  getEnvInt("ROUTE_FILE_COUNT", route.DefaultFileCount),
		ThresholdMeters: getEnvFloat("MATCH_THRESHOLD_METERS", routing.DefaultThresholdMeters),
		CORSOrigins:     getEnvList("CORS_ORIGINS"),
		MaxConcurrent:   getEnvInt("MAX_CONCURRENT", runtime.NumCPU()*2),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		NominatimURL:    getEnv("NOMINATIM_URL", geocode.DefaultConfig().BaseURL),
		NominatimAgent:  getEnv("NOMINATIM_USER_AGENT", geocode.DefaultConfig().UserAgent),
		GeocodeViewbox:  viewbox,
		GeocodeLocality: getEnv("GEOCODE_LOCALITY", ""),
		GeocodeCacheDSN: getEnv("GEOCODE_CACHE_DSN", ""),
		GeocodeCacheTTL: getEnvDuration("GEOCODE_CACHE_TTL", 7*24*time.Hour),
		SuggestDebounce: getEnvDuration("SUGGEST_DEBOUNCE", 250*time.Millisecond),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.ThresholdMeters <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD_METERS must be positive, got %v", c.ThresholdMeters))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// GeocodeConfig returns the Nominatim client settings.
func (c Config) GeocodeConfig() geocode.Config {
	g := geocode.DefaultConfig()
	g.BaseURL = c.NominatimURL
	g.UserAgent = c.NominatimAgent
	g.Viewbox = c.GeocodeViewbox
	g.Locality = c.GeocodeLocality
	return g
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
