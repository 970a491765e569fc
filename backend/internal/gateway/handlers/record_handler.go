package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"student_records/backend/internal/gateway/util"
	"student_records/backend/internal/records"
	"student_records/backend/internal/shared"
)

// RecordHandler serves upload and record reads, edits, deletes and exports.
// Ownership is enforced by the service from the principal in context.
type RecordHandler struct {
	Records *records.RecordsService
}

// RESTUpdateRecordRequest is the body of PUT /records/{id}
type RESTUpdateRecordRequest struct {
	RawData shared.Fields `json:"rawData"`
}

func requestTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 15*time.Second)
}

// ============================================================================
// Uploads
// ============================================================================

// ListUploads handles GET /uploads
func (h *RecordHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)
	page := parsePage(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	uploads, pagination, err := h.Records.ListUploads(ctx, principal, page)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"uploads":    uploads,
		"pagination": pagination,
	})
}

// GetUpload handles GET /uploads/{id}
func (h *RecordHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	upload, err := h.Records.GetUpload(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"upload":  upload,
	})
}

// DeleteUpload handles DELETE /uploads/{id}
func (h *RecordHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	deleted, err := h.Records.DeleteUpload(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "Upload deleted",
		"deletedRecords": deleted,
	})
}

// ListRecords handles GET /uploads/{id}/records
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	page, err := h.Records.ListRecords(ctx, principal, chi.URLParam(r, "id"), parseListRequest(r))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"records":    page.Records,
		"headers":    page.Headers,
		"pagination": page.Pagination,
	})
}

// Export handles GET /uploads/{id}/export?format=xlsx|csv
func (h *RecordHandler) Export(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	export, err := h.Records.PrepareExport(r.Context(), principal, chi.URLParam(r, "id"), r.URL.Query().Get("format"), parseListRequest(r))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	data, err := export.Render(r.Context())
	if err != nil {
		shared.Log.WithError(err).WithField("upload_id", chi.URLParam(r, "id")).Error("Export failed")
		util.HandleGRPCError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ============================================================================
// Records
// ============================================================================

// GetRecord handles GET /records/{id}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	record, err := h.Records.GetRecord(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"record":  record,
	})
}

// UpdateRecord handles PUT /records/{id}
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	var reqBody RESTUpdateRecordRequest
	if !util.DecodeAndValidate(w, r, &reqBody) {
		return
	}

	ctx, cancel := requestTimeout(r)
	defer cancel()

	record, err := h.Records.UpdateRecord(ctx, principal, chi.URLParam(r, "id"), reqBody.RawData)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Record updated",
		"record":  record,
	})
}

// DeleteRecord handles DELETE /records/{id}
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	principal, _ := util.PrincipalFrom(r)

	ctx, cancel := requestTimeout(r)
	defer cancel()

	if err := h.Records.DeleteRecord(ctx, principal, chi.URLParam(r, "id")); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Record deleted",
	})
}

// ============================================================================
// Query parsing
// ============================================================================

func parsePage(r *http.Request) shared.Page {
	return shared.NormalizePage(util.QueryInt(r, "page", 1), util.QueryInt(r, "limit", shared.DefaultPageLimit))
}

// parseListRequest reads page, limit, search, sortBy, sortOrder and filter[<header>]=value
func parseListRequest(r *http.Request) records.ListRequest {
	q := r.URL.Query()

	req := records.ListRequest{
		Page:      parsePage(r),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: 1,
		Filters:   map[string]string{},
	}

	switch strings.ToLower(q.Get("sortOrder")) {
	case "desc", "-1":
		req.SortOrder = -1
	}

	for key, values := range q {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		header := strings.TrimSuffix(strings.TrimPrefix(key, "filter["), "]")
		if header != "" {
			req.Filters[header] = values[0]
		}
	}
	return req
}
