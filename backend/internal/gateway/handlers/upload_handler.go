package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"student_records/backend/internal/gateway/util"
	"student_records/backend/internal/ingestion"
	"student_records/backend/internal/shared"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to disk
const multipartMemory = 8 << 20

// UploadHandler accepts spreadsheet uploads and runs the ingestion pipeline.
type UploadHandler struct {
	Ingestion *ingestion.Service
	MaxBytes  int64
}

// Upload handles POST /uploads (multipart, field "file")
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, ok := util.PrincipalFrom(r)
	if !ok {
		util.WriteJSONError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = shared.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			util.WriteJSONError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		util.WriteJSONError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	// the run is not aborted when the client goes away
	ctx := context.WithoutCancel(r.Context())

	result, err := h.Ingestion.Ingest(ctx, ingestion.Request{
		Filename: header.Filename,
		Data:     data,
		OwnerID:  principal.UserID,
	})
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "File processed successfully",
		"uploadId": result.UploadID,
		"status":   result.Status,
		"stats":    result.Stats,
	})
}

func (h *UploadHandler) writeIngestError(w http.ResponseWriter, err error) {
	var runErr *ingestion.RunError
	switch {
	case errors.Is(err, ingestion.ErrEmptyFile):
		util.WriteJSONError(w, http.StatusBadRequest, "Uploaded file is empty")
	case errors.Is(err, ingestion.ErrUnreadableWorkbook):
		util.WriteJSONError(w, http.StatusBadRequest, "Unable to read spreadsheet file")
	case errors.Is(err, ingestion.ErrNoUsableData):
		util.WriteJSONError(w, http.StatusBadRequest, "No data found in file")
	case errors.As(err, &runErr):
		util.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":  false,
			"message":  "Error processing file",
			"uploadId": runErr.UploadID,
		})
	default:
		shared.Log.WithError(err).WithFields(logrus.Fields{"stage": "ingest"}).Error("Upload rejected")
		util.WriteJSONError(w, http.StatusInternalServerError, "Error processing file")
	}
}
