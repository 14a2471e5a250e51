// Package catalog serves public reads of the plant reference catalog.
package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

const (
	CacheSize = 512
	CacheTTL  = 10 * time.Minute

	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// Catalog reads plants through an expiring LRU cache. Admin writes must call
// Invalidate.
type Catalog struct {
	db      *sql.DB
	cache   *lru.LRU[string, *storage.Plant]
	metrics *observability.Metrics
}

// New creates a catalog reader. db is usually a read replica; metrics may be nil.
func New(db *sql.DB, metrics *observability.Metrics) *Catalog {
	return &Catalog{
		db:      db,
		cache:   lru.NewLRU[string, *storage.Plant](CacheSize, nil, CacheTTL),
		metrics: metrics,
	}
}

func (c *Catalog) record(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("catalog").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("catalog").Inc()
	}
}

// Get returns one plant by id.
func (c *Catalog) Get(ctx context.Context, id string) (*storage.Plant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validationf("plant id is required")
	}
	if p, ok := c.cache.Get(id); ok {
		c.record(true)
		return p, nil
	}
	c.record(false)

	p, err := postgres.NewPlantRepository(c.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, p)
	return p, nil
}

// Search matches plant names and synonyms. An empty query returns the first
// page of the catalog.
func (c *Catalog) Search(ctx context.Context, q string, limit int) ([]*storage.Plant, error) {
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	return postgres.NewPlantRepository(c.db).Search(ctx, strings.TrimSpace(q), limit)
}

// Invalidate drops every cached entry.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

// Len reports the number of cached plants.
func (c *Catalog) Len() int {
	return c.cache.Len()
}
