// Package admin implements the administrator operations on the plant catalog
// and on user accounts. Batch operations process items independently and
// report per-item failures instead of aborting.
package admin

import (
	"database/sql"
	"math"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/catalog"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// BatchResult reports a batch operation item by item.
type BatchResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

func (r *BatchResult) fail(msg string) {
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

// Service runs admin operations. Callers must have passed the admin gate.
type Service struct {
	db      *sql.DB
	catalog *catalog.Catalog
	cleaner *media.Cleaner
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewService(db *sql.DB, cat *catalog.Catalog, cleaner *media.Cleaner, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{db: db, catalog: cat, cleaner: cleaner, logger: logger, metrics: metrics}
}

func (s *Service) recordItem(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	s.metrics.AdminBatchItemsTotal.WithLabelValues(operation, result).Inc()
}

func (s *Service) invalidateCatalog() {
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
}

// NewPage validates paging input, applying the default page size.
func NewPage(page, pageSize int) (storage.Page, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		return storage.Page{}, apperr.Validationf("page must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return storage.Page{}, apperr.Validationf("pageSize must be between 1 and %d", MaxPageSize)
	}
	if page-1 > math.MaxInt/pageSize {
		return storage.Page{}, apperr.Validationf("page is too large")
	}
	return storage.Page{Page: page, PageSize: pageSize}, nil
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
