package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/platinummonkey/potkeeper/pkg/admin"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// AdminHandlers serves the administrator routes. Every route is registered
// with Admin access.
type AdminHandlers struct {
	svc    *admin.Service
	logger *observability.Logger
}

func (h *AdminHandlers) Routes() []Route {
	return []Route{
		{"admin.check", http.MethodGet, "/admin/check", Admin, h.check},

		{"admin.plants.list", http.MethodGet, "/admin/plants", Admin, h.listPlants},
		{"admin.plants.create", http.MethodPost, "/admin/plants", Admin, h.createPlant},
		{"admin.plants.import", http.MethodPost, "/admin/plants/batch", Admin, h.batchImport},
		{"admin.plants.batch_delete", http.MethodDelete, "/admin/plants/batch", Admin, h.batchDeletePlants},
		{"admin.plants.update", http.MethodPut, "/admin/plants/{id}", Admin, h.updatePlant},
		{"admin.plants.delete", http.MethodDelete, "/admin/plants/{id}", Admin, h.deletePlant},

		{"admin.users.list", http.MethodGet, "/admin/users", Admin, h.listUsers},
		{"admin.users.batch_delete", http.MethodDelete, "/admin/users/batch", Admin, h.batchEraseUsers},
		{"admin.users.get", http.MethodGet, "/admin/users/{id}", Admin, h.getUser},
		{"admin.users.update", http.MethodPut, "/admin/users/{id}", Admin, h.updateUser},
		{"admin.users.delete", http.MethodDelete, "/admin/users/{id}", Admin, h.eraseUser},
	}
}

func (h *AdminHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func (h *AdminHandlers) check(w http.ResponseWriter, r *http.Request) {
	ok(w, httputil.Body{"isAdmin": true, "message": "Admin access granted"})
}

// paging reads page, pageSize and search from the query string.
func paging(r *http.Request) (page, pageSize int, search string, err error) {
	if page, err = httputil.QueryInt(r, "page", 0); err != nil {
		return
	}
	if pageSize, err = httputil.QueryInt(r, "pageSize", 0); err != nil {
		return
	}
	search = httputil.QueryString(r, "search", "")
	return
}

// listPlants handles GET /admin/plants?page=&pageSize=&search=
func (h *AdminHandlers) listPlants(w http.ResponseWriter, r *http.Request) {
	page, pageSize, search, err := paging(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.ListPlants(r.Context(), page, pageSize, search)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": res.Plants, "pagination": res.Pagination})
}

func (h *AdminHandlers) createPlant(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decode(w, r, h.logger, &raw) {
		return
	}
	plant, err := h.svc.CreatePlant(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, httputil.Body{"data": plant, "message": "Plant created successfully"})
}

func (h *AdminHandlers) updatePlant(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var raw json.RawMessage
	if !decode(w, r, h.logger, &raw) {
		return
	}
	plant, err := h.svc.UpdatePlant(r.Context(), id, raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": plant, "message": "Plant updated successfully"})
}

func (h *AdminHandlers) deletePlant(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.DeletePlant(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, message("Plant deleted successfully"))
}

// importItems accepts either a bare JSON array or {"plants": [...]}.
func importItems(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, apperr.Validationf("invalid data format")
		}
		return items, nil
	}

	var wrapped struct {
		Plants []json.RawMessage `json:"plants"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil || wrapped.Plants == nil {
		return nil, apperr.Validationf("invalid data format")
	}
	return wrapped.Plants, nil
}

// batchImport handles POST /admin/plants/batch. Item failures are reported
// in the 200 response.
func (h *AdminHandlers) batchImport(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decode(w, r, h.logger, &raw) {
		return
	}
	items, err := importItems(raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	results, err := h.svc.BatchImport(r.Context(), items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"results": results})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *AdminHandlers) batchDeletePlants(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	n, err := h.svc.BatchDeletePlants(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"deleted": n, "message": fmt.Sprintf("Deleted %d plants", n)})
}

// listUsers handles GET /admin/users?page=&pageSize=&search=
func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, search, err := paging(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.ListUsers(r.Context(), page, pageSize, search)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": res.Users, "pagination": res.Pagination})
}

func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(user))
}

func (h *AdminHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch admin.UserPatch
	if !decode(w, r, h.logger, &patch) {
		return
	}
	user, err := h.svc.UpdateUser(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": user, "message": "User updated successfully"})
}

func (h *AdminHandlers) eraseUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.svc.EraseUser(r.Context(), principal(r).UserID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": report, "message": "User deleted successfully"})
}

// batchEraseUsers handles DELETE /admin/users/batch
func (h *AdminHandlers) batchEraseUsers(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	results, err := h.svc.BatchEraseUsers(r.Context(), principal(r).UserID, req.IDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"results": results})
}
