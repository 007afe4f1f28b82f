package routing

import (
	"context"
	"sync/atomic"

	"multicab_router/pkg/geo"
	"multicab_router/pkg/route"
)

// Recommender is the interface for recommendation queries.
type Recommender interface {
	Recommend(ctx context.Context, start *geo.Point, dest geo.Point) (Recommendation, error)
}

// Planner serves recommendations against whatever store a Catalog currently
// holds. Each call works on one snapshot.
type Planner struct {
	engine  *Engine
	catalog *route.Catalog
	nearby  atomic.Pointer[NearbyIndex]
}

// NewPlanner binds an engine to a catalog.
func NewPlanner(engine *Engine, catalog *route.Catalog) *Planner {
	return &Planner{engine: engine, catalog: catalog}
}

// Recommend implements Recommender.
func (p *Planner) Recommend(ctx context.Context, start *geo.Point, dest geo.Point) (Recommendation, error) {
	return p.RecommendIn(ctx, p.catalog.Snapshot(), start, dest)
}

// RecommendIn recommends over a store the caller already holds, so the
// result refers only to routes in that store.
func (p *Planner) RecommendIn(ctx context.Context, store *route.Store, start *geo.Point, dest geo.Point) (Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.engine.Recommend(start, dest, store.Routes())
}

// Store returns the current route snapshot.
func (p *Planner) Store() *route.Store {
	return p.catalog.Snapshot()
}

// Engine returns the underlying engine.
func (p *Planner) Engine() *Engine {
	return p.engine
}

// Nearby lists routes passing within radius meters of pt. The vertex index is
// rebuilt lazily whenever the catalog's store changes.
func (p *Planner) Nearby(ctx context.Context, pt geo.Point, radius float64) ([]NearbyRoute, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store := p.catalog.Snapshot()
	idx := p.nearby.Load()
	if idx == nil || idx.store != store {
		idx = NewNearbyIndex(store)
		p.nearby.Store(idx)
	}
	return idx.Near(pt, radius), nil
}
