package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/advice"
	"github.com/platinummonkey/potkeeper/pkg/catalog"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// CatalogHandlers serves the public plant catalog and care advice.
type CatalogHandlers struct {
	catalog *catalog.Catalog
	logger  *observability.Logger
	now     func() time.Time
}

func (h *CatalogHandlers) Routes() []Route {
	return []Route{
		{"plants.search", http.MethodGet, "/plants", Public, h.searchPlants},
		{"plants.get", http.MethodGet, "/plants/{id}", Public, h.getPlant},
		{"care_advice", http.MethodPost, "/care-advice", Public, h.careAdvice},
	}
}

// searchPlants handles GET /plants?q=&limit=
func (h *CatalogHandlers) searchPlants(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	plants, err := h.catalog.Search(r.Context(), httputil.QueryString(r, "q", ""), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, data(plants))
}

func (h *CatalogHandlers) getPlant(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	plant, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, data(plant))
}

// careAdvice handles POST /care-advice
func (h *CatalogHandlers) careAdvice(w http.ResponseWriter, r *http.Request) {
	var req advice.Request
	if !decode(w, r, h.logger, &req) {
		return
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	items, err := advice.Advise(req.Weather, now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, data(items))
}
