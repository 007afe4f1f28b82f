package route

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// Store is an ordered, immutable set of routes. Store order is load order and
// is the order the engine evaluates routes in. A nil *Store behaves as empty.
type Store struct {
	routes []Route
	byID   map[string]int
}

// NewStore builds a store from routes in the given order.
func NewStore(routes []Route) (*Store, error) {
	s := &Store{
		routes: make([]Route, 0, len(routes)),
		byID:   make(map[string]int, len(routes)),
	}
	for _, r := range routes {
		if r.ID == "" {
			return nil, ErrMissingID
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		s.byID[r.ID] = len(s.routes)
		s.routes = append(s.routes, r)
	}
	return s, nil
}

// Routes returns the routes in store order. The slice is a copy; the
// geometries are shared and must not be modified.
func (s *Store) Routes() []Route {
	if s == nil {
		return nil
	}
	return slices.Clone(s.routes)
}

// Get looks up a route by ID.
func (s *Store) Get(id string) (Route, bool) {
	if s == nil {
		return Route{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Route{}, false
	}
	return s.routes[i], true
}

// Len returns the number of routes.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.routes)
}

// VertexCount returns the number of vertices across all routes.
func (s *Store) VertexCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.routes {
		n += r.VertexCount()
	}
	return n
}

// Bound returns the bounding box of every route in the store.
func (s *Store) Bound() orb.Bound {
	var (
		b     orb.Bound
		found bool
	)
	for _, r := range s.Routes() {
		if r.Empty() {
			continue
		}
		if !found {
			b, found = r.Bound(), true
			continue
		}
		b = b.Union(r.Bound())
	}
	return b
}

// Catalog holds the current Store and lets it be swapped atomically, so a
// reload never disturbs requests already working on the previous snapshot.
type Catalog struct {
	cur atomic.Pointer[Store]
}

// NewCatalog returns a catalog serving s.
func NewCatalog(s *Store) *Catalog {
	c := &Catalog{}
	c.cur.Store(s)
	return c
}

// Snapshot returns the current store.
func (c *Catalog) Snapshot() *Store {
	return c.cur.Load()
}

// Replace installs s and returns the store it replaced.
func (c *Catalog) Replace(s *Store) *Store {
	return c.cur.Swap(s)
}
