// ============================================================================
// backend/internal/shared/models.go
// Shared data models and structs for MongoDB documents
// ============================================================================

package shared

import (
	"time"
)

// ============================================================================
// User Models
// ============================================================================

// User represents an account that can upload and browse student data
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"` // Never expose in JSON
	Role         string    `bson:"role" json:"role"`       // user, admin
	Name         string    `bson:"name" json:"name"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Session represents an active login (for JWT revocation)
type Session struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Token     string    `bson:"token" json:"token"`
	Scope     string    `bson:"scope" json:"scope"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// IsExpired checks if a session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Principal is the authenticated caller of a request
type Principal struct {
	UserID string
	Role   string
	Scope  string
}

// IsAdmin reports whether the caller holds an admin-scoped token for an admin account
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin && p.Scope == ScopeAdmin
}

// OwnerFilter returns the owner id to restrict queries to, or "" for admins
func (p Principal) OwnerFilter() string {
	if p.IsAdmin() {
		return ""
	}
	return p.UserID
}

// CanAccess reports whether the caller may see a resource owned by ownerID
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}

// ============================================================================
// Upload Models
// ============================================================================

// UploadStatus is the lifecycle state of an UploadJob
type UploadStatus string

const (
	UploadProcessing          UploadStatus = "processing"
	UploadCompleted           UploadStatus = "completed"
	UploadCompletedWithErrors UploadStatus = "completed_with_errors"
	UploadFailed              UploadStatus = "failed"
)

// IsTerminal reports whether no further mutation is expected
func (s UploadStatus) IsTerminal() bool {
	return s == UploadCompleted || s == UploadCompletedWithErrors || s == UploadFailed
}

// RowError records one row (or batch) that could not be stored
type RowError struct {
	RowNumber int           `bson:"row_number" json:"row_number"`
	Message   string        `bson:"message" json:"message"`
	RawData   []interface{} `bson:"raw_data,omitempty" json:"raw_data,omitempty"`
}

// UploadJob is the parent bookkeeping record for one spreadsheet upload
type UploadJob struct {
	ID               string       `bson:"_id" json:"id"`
	Filename         string       `bson:"filename" json:"filename"`
	SizeBytes        int64        `bson:"size_bytes" json:"size_bytes"`
	Status           UploadStatus `bson:"status" json:"status"`
	OwnerID          string       `bson:"owner_id" json:"owner_id"`
	TotalRecords     int          `bson:"total_records" json:"total_records"`
	ProcessedRecords int          `bson:"processed_records" json:"processed_records"`
	FailedRecords    int          `bson:"failed_records" json:"failed_records"`
	Headers          []string     `bson:"headers" json:"headers"`
	Errors           []RowError   `bson:"errors" json:"errors,omitempty"`
	CreatedAt        time.Time    `bson:"created_at" json:"created_at"`
	CompletedAt      *time.Time   `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// RecordRow is one stored spreadsheet data row
type RecordRow struct {
	ID         string    `bson:"_id" json:"id"`
	InferredID string    `bson:"inferred_id" json:"inferred_id"`
	RawData    Fields    `bson:"raw_data" json:"raw_data"`
	UploadID   string    `bson:"upload_id" json:"upload_id"`
	RowNumber  int       `bson:"row_number" json:"row_number"`
	OwnerID    string    `bson:"owner_id" json:"owner_id"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ============================================================================
// Query Models
// ============================================================================

// Page describes skip/limit pagination
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Skip returns the number of documents to skip
func (p Page) Skip() int64 {
	if p.Page <= 1 {
		return 0
	}
	return int64(p.Page-1) * int64(p.Limit)
}

// Pagination is returned alongside paged results
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewPagination computes page totals
func NewPagination(p Page, total int64) Pagination {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// SystemStats summarizes stored data for admins
type SystemStats struct {
	TotalUsers        int64 `json:"total_users"`
	ActiveUsers       int64 `json:"active_users"`
	TotalUploads      int64 `json:"total_uploads"`
	ProcessingUploads int64 `json:"processing_uploads"`
	FailedUploads     int64 `json:"failed_uploads"`
	TotalRecords      int64 `json:"total_records"`
}

// ============================================================================
// Validation Constants
// ============================================================================

const (
	// User roles
	RoleUser  = "user"
	RoleAdmin = "admin"

	// Token scopes
	ScopeUser  = "user"
	ScopeAdmin = "admin"

	// Pagination
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// NormalizePage clamps page and limit to sane values
func NormalizePage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}
