package repository

import (
	"context"
	"errors"
	"time"

	"student_records/backend/internal/shared"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate key")
	// ErrUnavailable wraps network, timeout and server selection failures.
	ErrUnavailable = errors.New("store unavailable")
)

// BatchProgress is the per-batch delta applied to an upload.
type BatchProgress struct {
	Processed int
	Failed    int
	Errors    []shared.RowError
}

// UploadQuery selects uploads for listing. An empty OwnerID lists every owner.
type UploadQuery struct {
	OwnerID string
	Page    shared.Page
}

// RecordQuery selects records of one upload.
type RecordQuery struct {
	UploadID  string
	OwnerID   string
	Headers   []string
	Search    string
	Filters   map[string]string
	SortBy    string
	SortOrder int // 1 ascending, -1 descending
	Page      shared.Page
}

// UserQuery filters user listings.
type UserQuery struct {
	Role       string
	ActiveOnly bool
	Limit      int64
}

// UploadRepository persists UploadJob documents.
type UploadRepository interface {
	Create(ctx context.Context, upload *shared.UploadJob) error
	Get(ctx context.Context, id string) (*shared.UploadJob, error)
	List(ctx context.Context, q UploadQuery) ([]shared.UploadJob, int64, error)
	// ApplyBatch increments the counters and appends errors in one update.
	ApplyBatch(ctx context.Context, id string, p BatchProgress) error
	// Finish sets the terminal status and completion time, appending errs.
	Finish(ctx context.Context, id string, status shared.UploadStatus, completedAt time.Time, errs []shared.RowError) error
	Delete(ctx context.Context, id string) error
	// Count counts uploads in status; an empty status counts all.
	Count(ctx context.Context, status shared.UploadStatus) (int64, error)
}

// RecordRepository persists RecordRow documents.
type RecordRepository interface {
	Insert(ctx context.Context, record *shared.RecordRow) error
	Get(ctx context.Context, id string) (*shared.RecordRow, error)
	Find(ctx context.Context, q RecordQuery) ([]shared.RecordRow, int64, error)
	// Each streams every record matching q, ignoring q.Page.
	Each(ctx context.Context, q RecordQuery, fn func(*shared.RecordRow) error) error
	UpdateRawData(ctx context.Context, id string, data shared.Fields, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUpload(ctx context.Context, uploadID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, user *shared.User) error
	GetByID(ctx context.Context, id string) (*shared.User, error)
	GetByEmail(ctx context.Context, email string) (*shared.User, error)
	List(ctx context.Context, q UserQuery) ([]shared.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context, activeOnly bool) (int64, error)
}

// SessionRepository tracks issued tokens for revocation.
type SessionRepository interface {
	Create(ctx context.Context, session *shared.Session) error
	Exists(ctx context.Context, token string) (bool, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
