// Package geocode resolves free-text place names to coordinates through a
// Nominatim-compatible search service, with a persistent cache and a
// single-flight suggester for type-ahead search.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/obs"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNotFound   = errors.New("location not found")
)

// Candidate is one search result.
type Candidate struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// Point returns the candidate's position.
func (c Candidate) Point() geo.Point {
	return geo.Point{Lat: c.Lat, Lng: c.Lon}
}

// Searcher returns ranked candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// First returns the top candidate for query.
func First(ctx context.Context, s Searcher, query string) (Candidate, error) {
	results, err := s.Search(ctx, query)
	if err != nil {
		return Candidate{}, err
	}
	if len(results) == 0 {
		return Candidate{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return results[0], nil
}

// Viewbox bounds a search: left/top/right/bottom in degrees.
type Viewbox struct {
	West, North, East, South float64
}

// DefaultViewbox covers Butuan City.
var DefaultViewbox = Viewbox{West: 125.50, North: 8.99, East: 125.60, South: 8.90}

// ParseViewbox parses "west,north,east,south".
func ParseViewbox(s string) (Viewbox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Viewbox{}, fmt.Errorf("viewbox %q: want west,north,east,south", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Viewbox{}, fmt.Errorf("viewbox %q: %w", s, err)
		}
		v[i] = f
	}
	return Viewbox{West: v[0], North: v[1], East: v[2], South: v[3]}, nil
}

func (v Viewbox) IsZero() bool { return v == Viewbox{} }

func (v Viewbox) String() string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', 2, 64) }
	return f(v.West) + "," + f(v.North) + "," + f(v.East) + "," + f(v.South)
}

// Config configures a NominatimClient.
type Config struct {
	BaseURL   string
	UserAgent string
	Viewbox   Viewbox
	// Bounded restricts results to the viewbox instead of merely preferring it.
	Bounded bool
	Limit   int
	// Locality, when set, keeps only results whose display name contains it.
	Locality    string
	HTTPClient  *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultConfig returns the settings the service area uses.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://nominatim.openstreetmap.org",
		UserAgent:   "multicab-router/1.0",
		Viewbox:     DefaultViewbox,
		Bounded:     true,
		Limit:       5,
		MaxAttempts: 4,
		Backoff:     200 * time.Millisecond,
	}
}

// NominatimClient searches a Nominatim /search endpoint. It is safe for
// concurrent use.
type NominatimClient struct {
	cfg     Config
	session *http.Client
}

// NewNominatimClient fills unset fields from DefaultConfig.
func NewNominatimClient(cfg Config) *NominatimClient {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	session := cfg.HTTPClient
	if session == nil {
		session = &http.Client{Timeout: 10 * time.Second}
	}
	return &NominatimClient{cfg: cfg, session: session}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search implements Searcher.
func (c *NominatimClient) Search(ctx context.Context, query string) (_ []Candidate, err error) {
	defer obs.Time(ctx, "nominatim.Search")(&err)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newSearchRequest(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	var decoded []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	locality := strings.ToLower(c.cfg.Locality)
	out := make([]Candidate, 0, len(decoded))
	for _, r := range decoded {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil || geo.ValidateCoord(lat, lon) != nil {
			continue
		}
		if locality != "" && !strings.Contains(strings.ToLower(r.DisplayName), locality) {
			continue
		}
		out = append(out, Candidate{Lat: lat, Lon: lon, DisplayName: r.DisplayName})
	}
	return out, nil
}

func (c *NominatimClient) newSearchRequest(ctx context.Context, query string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	q := req.URL.Query()
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	if !c.cfg.Viewbox.IsZero() {
		q.Set("viewbox", c.cfg.Viewbox.String())
		if c.cfg.Bounded {
			q.Set("bounded", "1")
		}
	}
	q.Set("q", query)
	req.URL.RawQuery = q.Encode()
	return req, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (c *NominatimClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries network errors, 429 and 5xx responses with exponential
// backoff, giving up early when ctx ends.
func (c *NominatimClient) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := c.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.cfg.MaxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
