package records

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// RecordsService serves uploads and their stored rows
type RecordsService struct {
	uploads repository.UploadRepository
	records repository.RecordRepository
	log     *logrus.Logger
}

// ListRequest carries the record listing options
type ListRequest struct {
	Page      shared.Page
	Search    string
	Filters   map[string]string
	SortBy    string
	SortOrder int
}

// RecordPage is one page of records of an upload
type RecordPage struct {
	Records    []shared.RecordRow `json:"records"`
	Headers    []string           `json:"headers"`
	Pagination shared.Pagination  `json:"pagination"`
}

// NewRecordsService creates a new RecordsService instance
func NewRecordsService(uploads repository.UploadRepository, records repository.RecordRepository, log *logrus.Logger) *RecordsService {
	return &RecordsService{uploads: uploads, records: records, log: log}
}

// ============================================================================
// Uploads
// ============================================================================

// ListUploads returns the caller's uploads, newest first. Admins see all.
func (s *RecordsService) ListUploads(ctx context.Context, p shared.Principal, page shared.Page) ([]shared.UploadJob, shared.Pagination, error) {
	uploads, total, err := s.uploads.List(ctx, repository.UploadQuery{OwnerID: p.OwnerFilter(), Page: page})
	if err != nil {
		s.log.WithError(err).Error("Failed to list uploads")
		return nil, shared.Pagination{}, status.Error(codes.Internal, "failed to list uploads")
	}
	return uploads, shared.NewPagination(page, total), nil
}

// GetUpload returns one upload with its error list
func (s *RecordsService) GetUpload(ctx context.Context, p shared.Principal, id string) (*shared.UploadJob, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "upload id is required")
	}

	upload, err := s.uploads.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "upload")
	}
	if !p.CanAccess(upload.OwnerID) {
		return nil, status.Error(codes.NotFound, "upload not found")
	}
	return upload, nil
}

// DeleteUpload removes an upload and every record it produced
func (s *RecordsService) DeleteUpload(ctx context.Context, p shared.Principal, id string) (int64, error) {
	upload, err := s.GetUpload(ctx, p, id)
	if err != nil {
		return 0, err
	}
	if !upload.Status.IsTerminal() {
		return 0, status.Error(codes.FailedPrecondition, "upload is still processing")
	}

	deleted, err := s.records.DeleteByUpload(ctx, upload.ID)
	if err != nil {
		s.log.WithError(err).WithField("upload_id", upload.ID).Error("Failed to delete records")
		return 0, status.Error(codes.Internal, "failed to delete records")
	}
	if err := s.uploads.Delete(ctx, upload.ID); err != nil {
		return deleted, s.storeError(err, "upload")
	}

	s.log.WithFields(logrus.Fields{
		"upload_id": upload.ID,
		"records":   deleted,
	}).Info("Upload deleted")
	return deleted, nil
}

// ============================================================================
// Records
// ============================================================================

// ListRecords pages through the records of an upload with search and filters
func (s *RecordsService) ListRecords(ctx context.Context, p shared.Principal, uploadID string, req ListRequest) (*RecordPage, error) {
	upload, err := s.GetUpload(ctx, p, uploadID)
	if err != nil {
		return nil, err
	}

	q := recordQuery(upload, req)
	rows, total, err := s.records.Find(ctx, q)
	if err != nil {
		s.log.WithError(err).WithField("upload_id", upload.ID).Error("Failed to query records")
		return nil, status.Error(codes.Internal, "failed to query records")
	}

	return &RecordPage{
		Records:    rows,
		Headers:    upload.Headers,
		Pagination: shared.NewPagination(req.Page, total),
	}, nil
}

// GetRecord returns one record
func (s *RecordsService) GetRecord(ctx context.Context, p shared.Principal, id string) (*shared.RecordRow, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "record id is required")
	}

	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "record")
	}
	if !p.CanAccess(record.OwnerID) {
		return nil, status.Error(codes.NotFound, "record not found")
	}
	return record, nil
}

// UpdateRecord replaces the raw data of a record. The inferred id is kept.
func (s *RecordsService) UpdateRecord(ctx context.Context, p shared.Principal, id string, data shared.Fields) (*shared.RecordRow, error) {
	if data.Len() == 0 {
		return nil, status.Error(codes.InvalidArgument, "rawData must contain at least one field")
	}

	record, err := s.GetRecord(ctx, p, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.records.UpdateRawData(ctx, record.ID, data, now); err != nil {
		return nil, s.storeError(err, "record")
	}

	record.RawData = data
	record.UpdatedAt = now
	return record, nil
}

// DeleteRecord removes one record
func (s *RecordsService) DeleteRecord(ctx context.Context, p shared.Principal, id string) error {
	record, err := s.GetRecord(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, record.ID); err != nil {
		return s.storeError(err, "record")
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func recordQuery(upload *shared.UploadJob, req ListRequest) repository.RecordQuery {
	return repository.RecordQuery{
		UploadID:  upload.ID,
		Headers:   upload.Headers,
		Search:    req.Search,
		Filters:   req.Filters,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Page:      req.Page,
	}
}

// storeError maps repository errors onto status codes
func (s *RecordsService) storeError(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s not found", what)
	case errors.Is(err, repository.ErrUnavailable):
		s.log.WithError(err).Error("Store unavailable")
		return status.Error(codes.Unavailable, "database unavailable")
	default:
		s.log.WithError(err).Errorf("Failed to access %s", what)
		return status.Errorf(codes.Internal, "failed to access %s", what)
	}
}
