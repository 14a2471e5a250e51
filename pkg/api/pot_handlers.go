package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/lifecycle"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to disk.
const multipartMemory = 8 << 20

// PotHandlers serves pots and everything hanging off them.
type PotHandlers struct {
	svc    *lifecycle.Service
	logger *observability.Logger
}

func (h *PotHandlers) Routes() []Route {
	return []Route{
		{"pots.list", http.MethodGet, "/pots", Authenticated, h.listPots},
		{"pots.create", http.MethodPost, "/pots", Authenticated, h.createPot},
		{"pots.reorder", http.MethodPut, "/pots/reorder", Authenticated, h.reorderPots},
		{"pots.get", http.MethodGet, "/pots/{id}", Authenticated, h.getPot},
		{"pots.update", http.MethodPut, "/pots/{id}", Authenticated, h.updatePot},
		{"pots.delete", http.MethodDelete, "/pots/{id}", Authenticated, h.deletePot},
		{"pots.stats", http.MethodGet, "/pots/{id}/stats", Authenticated, h.potStats},
		{"pots.care_records", http.MethodGet, "/pots/{id}/care-records", Authenticated, h.listCareRecords},
		{"pots.timelines", http.MethodGet, "/pots/{id}/timelines", Authenticated, h.listTimelines},
		{"pots.care_schedules", http.MethodGet, "/pots/{id}/care-schedules", Authenticated, h.listPotSchedules},

		{"care_records.create", http.MethodPost, "/care-records", Authenticated, h.createCareRecords},
		{"care_records.detail", http.MethodGet, "/care-records/detail/{id}", Authenticated, h.getCareRecord},
		{"care_records.get", http.MethodGet, "/care-records/{id:[0-9]+}", Authenticated, h.getCareRecord},
		// Record ids are numeric and pot ids never are.
		{"care_records.by_pot", http.MethodGet, "/care-records/{id}", Authenticated, h.listCareRecords},
		{"care_records.update", http.MethodPut, "/care-records/{id}", Authenticated, h.updateCareRecord},
		{"care_records.delete", http.MethodDelete, "/care-records/{id}", Authenticated, h.deleteCareRecord},

		{"timelines.create", http.MethodPost, "/timelines", Authenticated, h.createTimeline},
		{"timelines.get", http.MethodGet, "/timelines/{id}", Authenticated, h.getTimeline},
		{"timelines.update", http.MethodPut, "/timelines/{id}", Authenticated, h.updateTimeline},
		{"timelines.delete", http.MethodDelete, "/timelines/{id}", Authenticated, h.deleteTimeline},

		{"care_schedules.list", http.MethodGet, "/care-schedules", Authenticated, h.listSchedules},
		{"care_schedules.create", http.MethodPost, "/care-schedules", Authenticated, h.createSchedule},
		{"care_schedules.reminders", http.MethodGet, "/care-schedules/reminders", Authenticated, h.reminders},
		{"care_schedules.by_pot", http.MethodGet, "/care-schedules/pot/{id}", Authenticated, h.listPotSchedules},
		{"care_schedules.update", http.MethodPut, "/care-schedules/{id}", Authenticated, h.updateSchedule},
		{"care_schedules.delete", http.MethodDelete, "/care-schedules/{id}", Authenticated, h.deleteSchedule},

		{"upload.image", http.MethodPost, "/upload/image", Authenticated, h.uploadImage},
	}
}

func (h *PotHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// idParam returns the {id} segment of a numeric resource path. It writes
// the error response when the id is invalid.
func (h *PotHandlers) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return 0, false
	}
	return id, true
}

func (h *PotHandlers) potParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return id, true
}

// listPots handles GET /pots
func (h *PotHandlers) listPots(w http.ResponseWriter, r *http.Request) {
	pots, err := h.svc.ListPots(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(pots))
}

// createPot handles POST /pots
func (h *PotHandlers) createPot(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.PotInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	pot, err := h.svc.CreatePot(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, httputil.Body{"data": pot, "id": pot.ID, "message": "Pot created successfully"})
}

func (h *PotHandlers) reorderPots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PotIDs []string `json:"potIds"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.fail(w, r, apperr.Validationf("invalid potIds, expected array"))
		return
	}

	if err := h.svc.ReorderPots(r.Context(), principal(r), req.PotIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, message("Pots reordered successfully"))
}

func (h *PotHandlers) getPot(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	pot, err := h.svc.GetPot(r.Context(), principal(r), potID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(pot))
}

func (h *PotHandlers) updatePot(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	var req lifecycle.PotPatch
	if !decode(w, r, h.logger, &req) {
		return
	}

	pot, err := h.svc.UpdatePot(r.Context(), principal(r), potID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": pot, "message": "Pot updated successfully"})
}

// deletePot handles DELETE /pots/{id}. Image cleanup continues after the
// response is written.
func (h *PotHandlers) deletePot(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	report, err := h.svc.DeletePot(r.Context(), principal(r), potID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{
		"message":         "Pot deleted successfully",
		"timelineCount":   report.TimelineCount,
		"careRecordCount": report.CareRecordCount,
		"scheduleCount":   report.ScheduleCount,
		"imagesScheduled": report.ImagesScheduled,
	})
}

func (h *PotHandlers) potStats(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	stats, err := h.svc.Stats(r.Context(), principal(r), potID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(stats))
}

func (h *PotHandlers) listCareRecords(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.svc.ListCareRecords(r.Context(), principal(r), potID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(records))
}

func (h *PotHandlers) listTimelines(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	entries, err := h.svc.ListTimelines(r.Context(), principal(r), potID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(entries))
}

func (h *PotHandlers) listPotSchedules(w http.ResponseWriter, r *http.Request) {
	potID, valid := h.potParam(w, r)
	if !valid {
		return
	}
	schedules, err := h.svc.ListPotSchedules(r.Context(), principal(r), potID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(schedules))
}

// createCareRecords handles POST /care-records
func (h *PotHandlers) createCareRecords(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CareInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	res, err := h.svc.CreateCareRecords(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body := httputil.Body{"count": res.Count}
	if res.TimelineID != nil {
		body["timelineId"] = *res.TimelineID
	}
	created(w, body)
}

func (h *PotHandlers) getCareRecord(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	record, err := h.svc.GetCareRecord(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(record))
}

func (h *PotHandlers) updateCareRecord(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	var req lifecycle.CarePatch
	if !decode(w, r, h.logger, &req) {
		return
	}

	record, err := h.svc.UpdateCareRecord(r.Context(), principal(r), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(record))
}

func (h *PotHandlers) deleteCareRecord(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	scheduled, err := h.svc.DeleteCareRecord(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"imagesScheduled": scheduled})
}

// createTimeline handles POST /timelines
func (h *PotHandlers) createTimeline(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.TimelineInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	entry, err := h.svc.CreateTimeline(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, data(entry))
}

func (h *PotHandlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	entry, err := h.svc.GetTimeline(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(entry))
}

func (h *PotHandlers) updateTimeline(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	var req lifecycle.TimelinePatch
	if !decode(w, r, h.logger, &req) {
		return
	}

	entry, err := h.svc.UpdateTimeline(r.Context(), principal(r), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(entry))
}

func (h *PotHandlers) deleteTimeline(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	scheduled, err := h.svc.DeleteTimeline(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"imagesScheduled": scheduled})
}

// listSchedules handles GET /care-schedules
func (h *PotHandlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.svc.ListSchedules(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(schedules))
}

func (h *PotHandlers) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.ScheduleInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	schedule, err := h.svc.CreateSchedule(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, data(schedule))
}

func (h *PotHandlers) reminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.svc.Reminders(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(reminders))
}

func (h *PotHandlers) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	var req lifecycle.SchedulePatch
	if !decode(w, r, h.logger, &req) {
		return
	}

	schedule, err := h.svc.UpdateSchedule(r.Context(), principal(r), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, data(schedule))
}

func (h *PotHandlers) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, valid := h.idParam(w, r)
	if !valid {
		return
	}
	if err := h.svc.DeleteSchedule(r.Context(), principal(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, message("Care schedule deleted"))
}

// uploadImage handles POST /upload/image, a multipart form with an "image"
// file and optional "uploadType" and "potId" (or "entityId") fields.
func (h *PotHandlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.fail(w, r, apperr.Wrap(apperr.Validation, "invalid multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		h.fail(w, r, apperr.Validationf("no image provided"))
		return
	}
	defer file.Close()

	potID := strings.TrimSpace(r.FormValue("potId"))
	if potID == "" {
		potID = strings.TrimSpace(r.FormValue("entityId"))
	}

	res, err := h.svc.Upload(r.Context(), principal(r), lifecycle.UploadInput{
		UploadType:   strings.TrimSpace(r.FormValue("uploadType")),
		PotID:        potID,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, httputil.Body{"data": res, "url": res.URL, "imageUrl": res.ImageURL})
}
