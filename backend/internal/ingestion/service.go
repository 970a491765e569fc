// ============================================================================
// backend/internal/ingestion/service.go
// Spreadsheet ingestion: decode, normalize headers, map rows, batch-write
// ============================================================================

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

var (
	// ErrEmptyFile is returned for a zero-byte upload
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrNoUsableData is returned when the sheet has no headers or no data rows
	ErrNoUsableData = errors.New("no usable data found in file")
)

// RunError reports a failure after the upload record was created.
// The upload has been marked failed.
type RunError struct {
	UploadID string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.UploadID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Request is one file submitted for ingestion
type Request struct {
	Filename string
	Data     []byte
	OwnerID  string
}

// Stats summarizes row outcomes for the caller
type Stats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Result is returned for a run that reached a completed state
type Result struct {
	UploadID string              `json:"uploadId"`
	Status   shared.UploadStatus `json:"status"`
	Stats    Stats               `json:"stats"`
	Skipped  int                 `json:"skipped"`
	Batches  int                 `json:"batches"`
}

// Service runs the ingestion pipeline
type Service struct {
	uploads   repository.UploadRepository
	records   repository.RecordRepository
	batchSize int
	log       *logrus.Logger
	now       func() time.Time
}

// NewService creates the ingestion service
func NewService(uploads repository.UploadRepository, records repository.RecordRepository, batchSize int, log *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = shared.DefaultBatchSize
	}
	return &Service{
		uploads:   uploads,
		records:   records,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// Ingest decodes req and stores its rows. Errors before the upload record
// exists are returned as-is; later failures come back as *RunError.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyFile
	}

	sheet, err := DecodeWorkbook(req.Filename, req.Data)
	if err != nil {
		return nil, err
	}
	if len(sheet) <= 1 {
		return nil, ErrNoUsableData
	}

	columns := NormalizeHeaders(sheet[0])
	if len(columns) == 0 {
		return nil, ErrNoUsableData
	}

	log := s.log.WithFields(logrus.Fields{
		"filename": req.Filename,
		"owner_id": req.OwnerID,
	})
	if dups := DuplicateHeaders(columns); len(dups) > 0 {
		log.WithField("headers", dups).Warn("Duplicate headers, later columns overwrite earlier ones")
	}

	upload := &shared.UploadJob{
		ID:           shared.GenerateID("upload"),
		Filename:     req.Filename,
		SizeBytes:    int64(len(req.Data)),
		Status:       shared.UploadProcessing,
		OwnerID:      req.OwnerID,
		TotalRecords: len(sheet) - 1,
		Headers:      ColumnNames(columns),
		Errors:       []shared.RowError{},
		CreatedAt:    s.now(),
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	log = log.WithField("upload_id", upload.ID)
	log.WithFields(logrus.Fields{
		"rows":    upload.TotalRecords,
		"columns": len(columns),
	}).Info("Ingestion started")

	return s.process(ctx, log, upload, columns, sheet[1:])
}

func (s *Service) process(ctx context.Context, log *logrus.Entry, upload *shared.UploadJob, columns []Column, rows [][]interface{}) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, s.fail(ctx, log, upload.ID, fmt.Errorf("unexpected error: %v", r))
		}
	}()

	writer := &batchWriter{
		uploads:   s.uploads,
		records:   s.records,
		batchSize: s.batchSize,
		log:       log,
	}

	t, err := writer.run(ctx, columns, rows, Stamp{
		UploadID:  upload.ID,
		OwnerID:   upload.OwnerID,
		CreatedAt: upload.CreatedAt,
	})
	if err != nil {
		return nil, s.fail(ctx, log, upload.ID, err)
	}

	status := shared.UploadCompleted
	if t.failed > 0 {
		status = shared.UploadCompletedWithErrors
	}
	if err := s.uploads.Finish(ctx, upload.ID, status, s.now(), nil); err != nil {
		return nil, s.fail(ctx, log, upload.ID, fmt.Errorf("failed to finalize upload: %w", err))
	}

	log.WithFields(logrus.Fields{
		"status":    status,
		"processed": t.processed,
		"failed":    t.failed,
		"skipped":   t.skipped,
		"batches":   t.batches,
	}).Info("Ingestion finished")

	return &Result{
		UploadID: upload.ID,
		Status:   status,
		Stats: Stats{
			Total:      upload.TotalRecords,
			Successful: t.processed,
			Failed:     t.failed,
		},
		Skipped: t.skipped,
		Batches: t.batches,
	}, nil
}

// fail marks the upload failed with one error entry and wraps cause
func (s *Service) fail(ctx context.Context, log *logrus.Entry, uploadID string, cause error) error {
	log.WithError(cause).Error("Ingestion failed")

	entry := []shared.RowError{{RowNumber: 0, Message: cause.Error()}}
	if err := s.uploads.Finish(ctx, uploadID, shared.UploadFailed, s.now(), entry); err != nil {
		log.WithError(err).Error("Failed to mark upload as failed")
	}
	return &RunError{UploadID: uploadID, Err: cause}
}
