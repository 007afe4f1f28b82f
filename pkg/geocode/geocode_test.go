package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multicab_router/pkg/storage"
)

const searchBody = `[
	{"lat":"8.9475","lon":"125.5406","display_name":"Butuan City Hall, Butuan, Agusan del Norte"},
	{"lat":"not-a-number","lon":"125.5","display_name":"Broken, Butuan"},
	{"lat":"8.95","lon":"125.52","display_name":"Somewhere, Cabadbaran"}
]`

func newTestClient(t *testing.T, h http.HandlerFunc, mod func(*Config)) *NominatimClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Backoff = time.Millisecond
	if mod != nil {
		mod(&cfg)
	}
	return NewNominatimClient(cfg)
}

func TestNominatimClient_Search(t *testing.T) {
	var gotQuery map[string]string
	var gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotUA = r.Header.Get("User-Agent")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}, nil)

	got, err := c.Search(context.Background(), "  city hall ")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"format":  "json",
		"limit":   "5",
		"bounded": "1",
		"viewbox": "125.50,8.99,125.60,8.90",
		"q":       "city hall",
	}, gotQuery)
	assert.Equal(t, "multicab-router/1.0", gotUA)

	require.Len(t, got, 2, "unparseable coordinates are dropped")
	assert.Equal(t, Candidate{Lat: 8.9475, Lon: 125.5406, DisplayName: "Butuan City Hall, Butuan, Agusan del Norte"}, got[0])
}

func TestNominatimClient_LocalityFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	}, func(cfg *Config) { cfg.Locality = "butuan" })

	got, err := c.Search(context.Background(), "hall")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].DisplayName, "Butuan")
}

func TestNominatimClient_Retry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}, nil)

	got, err := c.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNominatimClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}, nil)

	_, err := c.Search(context.Background(), "x")
	require.Error(t, err)
	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNominatimClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := c.Search(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNominatimClient_EmptyQuery(t *testing.T) {
	c := NewNominatimClient(Config{})
	_, err := c.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results map[string][]Candidate
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, q string) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q], nil
}

func TestFirst(t *testing.T) {
	f := &fakeSearcher{results: map[string][]Candidate{
		"gaisano": {{Lat: 8.94, Lon: 125.53, DisplayName: "Gaisano"}, {Lat: 1, Lon: 2}},
	}}
	c, err := First(context.Background(), f, "gaisano")
	require.NoError(t, err)
	assert.Equal(t, "Gaisano", c.DisplayName)
	assert.Equal(t, 8.94, c.Point().Lat)

	_, err = First(context.Background(), f, "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseViewbox(t *testing.T) {
	v, err := ParseViewbox("125.50, 8.99,125.60,8.90")
	require.NoError(t, err)
	assert.Equal(t, DefaultViewbox, v)
	assert.Equal(t, "125.50,8.99,125.60,8.90", v.String())

	_, err = ParseViewbox("1,2,3")
	assert.Error(t, err)
	_, err = ParseViewbox("a,b,c,d")
	assert.Error(t, err)
}

func openCache(t *testing.T, ttl time.Duration) *SQLCache {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "geocode.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewSQLCache(db, ttl)
	require.NoError(t, c.InitSchema(ctx))
	return c
}

func TestSQLCache(t *testing.T) {
	ctx := context.Background()
	c := openCache(t, time.Hour)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "robinsons")
	require.NoError(t, err)
	assert.False(t, ok)

	want := []Candidate{{Lat: 8.93, Lon: 125.52, DisplayName: "Robinsons Place Butuan"}}
	require.NoError(t, c.Put(ctx, "robinsons", want))
	got, ok, err := c.Get(ctx, "robinsons")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Upsert replaces the previous entry.
	require.NoError(t, c.Put(ctx, "robinsons", nil))
	got, ok, err = c.Get(ctx, "robinsons")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)

	now = now.Add(2 * time.Hour)
	_, ok, err = c.Get(ctx, "robinsons")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are misses")

	assert.Error(t, c.Put(ctx, " ", want))
}

func TestCachedSearcher(t *testing.T) {
	ctx := context.Background()
	f := &fakeSearcher{results: map[string][]Candidate{
		"City  Hall": {{Lat: 8.9475, Lon: 125.5406, DisplayName: "City Hall"}},
	}}
	s := NewCachedSearcher(f, openCache(t, 0))

	first, err := s.Search(ctx, "City  Hall")
	require.NoError(t, err)
	second, err := s.Search(ctx, "city hall")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.calls, "second lookup is served from cache")

	_, err = s.Search(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	f.err = errors.New("upstream down")
	_, err = s.Search(ctx, "uncached")
	assert.Error(t, err)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "j.c. aquino avenue", NormalizeQuery("  J.C.   Aquino\tAvenue "))
}

// blockingSearcher blocks every search until its context ends or release is
// closed.
type blockingSearcher struct {
	started chan string
	release chan struct{}
}

func (b *blockingSearcher) Search(ctx context.Context, q string) ([]Candidate, error) {
	b.started <- q
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return []Candidate{{DisplayName: q}}, nil
	}
}

func TestSuggester_SupersedesPrevious(t *testing.T) {
	b := &blockingSearcher{started: make(chan string, 2), release: make(chan struct{})}
	s := NewSuggester(b, 0)
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Suggest(ctx, "li")
		firstErr <- err
	}()
	require.Equal(t, "li", <-b.started)

	secondDone := make(chan []Candidate, 1)
	go func() {
		res, err := s.Suggest(ctx, "libertad")
		assert.NoError(t, err)
		secondDone <- res
	}()

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first suggestion was not canceled")
	}

	require.Equal(t, "libertad", <-b.started)
	close(b.release)
	res := <-secondDone
	require.Len(t, res, 1)
	assert.Equal(t, "libertad", res[0].DisplayName)
}

func TestSuggester_Debounce(t *testing.T) {
	f := &fakeSearcher{results: map[string][]Candidate{"abc": {{DisplayName: "abc"}}}}
	s := NewSuggester(f, 100*time.Millisecond)
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() {
		_, err := s.Suggest(ctx, "a")
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	res, err := s.Suggest(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, res, 1)

	assert.ErrorIs(t, <-errs, ErrSuperseded)
	assert.Equal(t, 1, f.calls, "the debounced keystroke never reached the searcher")
}

func TestSuggester_EmptyQueryCancels(t *testing.T) {
	b := &blockingSearcher{started: make(chan string, 1), release: make(chan struct{})}
	s := NewSuggester(b, 0)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Suggest(context.Background(), "bay")
		errs <- err
	}()
	<-b.started

	_, err := s.Suggest(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.ErrorIs(t, <-errs, ErrSuperseded)
}
