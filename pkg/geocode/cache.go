package geocode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"multicab_router/pkg/obs"
	"multicab_router/pkg/storage"
)

// Cache stores search results by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]Candidate, bool, error)
	Put(ctx context.Context, key string, results []Candidate) error
}

// NormalizeQuery gives consistent cache keys: lower case, single spaces.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// SQLCache is a Cache backed by a geocode_cache table on SQLite or Postgres.
// Entries older than the TTL are treated as misses; a zero TTL never expires.
type SQLCache struct {
	db  *storage.DB
	ttl time.Duration
	now func() time.Time
}

func NewSQLCache(db *storage.DB, ttl time.Duration) *SQLCache {
	return &SQLCache{db: db, ttl: ttl, now: time.Now}
}

// InitSchema creates the cache table if needed.
func (c *SQLCache) InitSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		query      TEXT PRIMARY KEY,
		results    TEXT NOT NULL,
		fetched_at BIGINT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create geocode_cache table: %w", err)
	}
	return nil
}

func (c *SQLCache) Get(ctx context.Context, key string) ([]Candidate, bool, error) {
	if c.db == nil {
		return nil, false, errors.New("geocode cache: db is nil")
	}
	q := fmt.Sprintf(`SELECT results, fetched_at FROM geocode_cache WHERE query = %s;`, c.db.Dialect.Placeholder(1))

	var (
		raw       string
		fetchedAt int64
	)
	err := c.db.QueryRowContext(ctx, q, key).Scan(&raw, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get geocode cache: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(fetchedAt, 0)) > c.ttl {
		return nil, false, nil
	}

	var out []Candidate
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, fmt.Errorf("get geocode cache: decode %q: %w", key, err)
	}
	return out, true, nil
}

func (c *SQLCache) Put(ctx context.Context, key string, results []Candidate) error {
	if c.db == nil {
		return errors.New("geocode cache: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("insert geocode cache: empty query key")
	}
	if results == nil {
		results = []Candidate{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("insert geocode cache: encode: %w", err)
	}

	d := c.db.Dialect
	q := fmt.Sprintf(`
	INSERT INTO geocode_cache (query, results, fetched_at)
	VALUES (%s, %s, %s)
	ON CONFLICT (query) DO UPDATE SET
		results = excluded.results,
		fetched_at = excluded.fetched_at;`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))

	if _, err := c.db.ExecContext(ctx, q, key, string(raw), c.now().Unix()); err != nil {
		return fmt.Errorf("insert geocode cache query=%q: %w", key, err)
	}
	return nil
}

// CachedSearcher consults a Cache before delegating to another Searcher.
// Cache failures are logged and never fail a search.
type CachedSearcher struct {
	next  Searcher
	cache Cache
}

func NewCachedSearcher(next Searcher, cache Cache) *CachedSearcher {
	return &CachedSearcher{next: next, cache: cache}
}

func (s *CachedSearcher) Search(ctx context.Context, query string) (_ []Candidate, err error) {
	defer obs.Time(ctx, "geocode.CachedSearch")(&err)

	key := NormalizeQuery(query)
	if key == "" {
		return nil, ErrEmptyQuery
	}

	hit, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("geocode cache read failed: %v", err)
	} else if ok {
		return hit, nil
	}

	results, err := s.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, key, results); err != nil {
		log.Printf("geocode cache write failed: %v", err)
	}
	return results, nil
}
