// Package testutil provides in-memory repositories for service and handler tests.
package testutil

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// ============================================================================
// Uploads
// ============================================================================

// UploadStore is an in-memory UploadRepository.
type UploadStore struct {
	mu      sync.Mutex
	uploads map[string]*shared.UploadJob

	// Batches records every ApplyBatch delta in call order.
	Batches []repository.BatchProgress
	// Snapshots holds ProcessedRecords after each ApplyBatch.
	Snapshots []int

	CreateErr     error
	ApplyBatchErr error
	// FailApplyBatchAt fails the n-th ApplyBatch call (1-based) with ApplyBatchErr.
	FailApplyBatchAt int
	FinishErr        error
}

// NewUploadStore returns an empty UploadStore.
func NewUploadStore() *UploadStore {
	return &UploadStore{uploads: make(map[string]*shared.UploadJob)}
}

func (s *UploadStore) Create(_ context.Context, upload *shared.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, exists := s.uploads[upload.ID]; exists {
		return repository.ErrDuplicate
	}
	stored := *upload
	if stored.Errors == nil {
		stored.Errors = []shared.RowError{}
	}
	s.uploads[upload.ID] = &stored
	return nil
}

func (s *UploadStore) Get(_ context.Context, id string) (*shared.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *upload
	out.Errors = append([]shared.RowError{}, upload.Errors...)
	return &out, nil
}

func (s *UploadStore) List(_ context.Context, q repository.UploadQuery) ([]shared.UploadJob, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []shared.UploadJob{}
	for _, upload := range s.uploads {
		if q.OwnerID != "" && upload.OwnerID != q.OwnerID {
			continue
		}
		out := *upload
		out.Errors = nil
		matched = append(matched, out)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, q.Page), int64(len(matched)), nil
}

func (s *UploadStore) ApplyBatch(_ context.Context, id string, p repository.BatchProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.Batches) + 1
	if s.ApplyBatchErr != nil && (s.FailApplyBatchAt == 0 || s.FailApplyBatchAt == call) {
		s.Batches = append(s.Batches, repository.BatchProgress{})
		return s.ApplyBatchErr
	}
	upload, ok := s.uploads[id]
	if !ok {
		return repository.ErrNotFound
	}
	upload.ProcessedRecords += p.Processed
	upload.FailedRecords += p.Failed
	upload.Errors = append(upload.Errors, p.Errors...)
	s.Batches = append(s.Batches, p)
	s.Snapshots = append(s.Snapshots, upload.ProcessedRecords)
	return nil
}

func (s *UploadStore) Finish(_ context.Context, id string, status shared.UploadStatus, completedAt time.Time, errs []shared.RowError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FinishErr != nil {
		return s.FinishErr
	}
	upload, ok := s.uploads[id]
	if !ok {
		return repository.ErrNotFound
	}
	upload.Status = status
	upload.CompletedAt = &completedAt
	upload.Errors = append(upload.Errors, errs...)
	return nil
}

func (s *UploadStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.uploads, id)
	return nil
}

func (s *UploadStore) Count(_ context.Context, status shared.UploadStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, upload := range s.uploads {
		if status == "" || upload.Status == status {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored uploads.
func (s *UploadStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// ============================================================================
// Records
// ============================================================================

// RecordStore is an in-memory RecordRepository. Search and filters follow
// the Mongo $regex semantics: only string values can match.
type RecordStore struct {
	mu      sync.Mutex
	records map[string]*shared.RecordRow

	// InsertHook runs before every insert; a non-nil error rejects the row.
	InsertHook func(*shared.RecordRow) error
	// Inserts counts attempted inserts, including rejected ones.
	Inserts int
	// EachErr fails Each after the first record has been delivered.
	EachErr error
}

// NewRecordStore returns an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*shared.RecordRow)}
}

func (s *RecordStore) Insert(_ context.Context, record *shared.RecordRow) error {
	s.mu.Lock()
	s.Inserts++
	hook := s.InsertHook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(record); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return repository.ErrDuplicate
	}
	stored := *record
	s.records[record.ID] = &stored
	return nil
}

func (s *RecordStore) Get(_ context.Context, id string) (*shared.RecordRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *record
	return &out, nil
}

func (s *RecordStore) Find(_ context.Context, q repository.RecordQuery) ([]shared.RecordRow, int64, error) {
	matched := s.match(q)
	return paginate(matched, q.Page), int64(len(matched)), nil
}

func (s *RecordStore) Each(_ context.Context, q repository.RecordQuery, fn func(*shared.RecordRow) error) error {
	for i, record := range s.match(q) {
		if i > 0 && s.EachErr != nil {
			return s.EachErr
		}
		if err := fn(&record); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordStore) UpdateRawData(_ context.Context, id string, data shared.Fields, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.RawData = data
	record.UpdatedAt = updatedAt
	return nil
}

func (s *RecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *RecordStore) DeleteByUpload(_ context.Context, uploadID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, record := range s.records {
		if record.UploadID == uploadID {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *RecordStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), nil
}

// All returns every stored record ordered by row number.
func (s *RecordStore) All() []shared.RecordRow {
	return s.match(repository.RecordQuery{})
}

func (s *RecordStore) match(q repository.RecordQuery) []shared.RecordRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(q.Headers))
	for _, h := range q.Headers {
		known[h] = true
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	matched := []shared.RecordRow{}
	for _, record := range s.records {
		if q.UploadID != "" && record.UploadID != q.UploadID {
			continue
		}
		if q.OwnerID != "" && record.OwnerID != q.OwnerID {
			continue
		}
		if search != "" && !matchesSearch(record, q.Headers, search) {
			continue
		}
		if !matchesFilters(record, known, q.Filters) {
			continue
		}
		matched = append(matched, *record)
	}

	desc := q.SortOrder < 0
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].RowNumber, matched[j].RowNumber
		if a == b {
			return matched[i].ID < matched[j].ID
		}
		if desc {
			return a > b
		}
		return a < b
	})
	return matched
}

func matchesSearch(record *shared.RecordRow, headers []string, needle string) bool {
	if strings.Contains(strings.ToLower(record.InferredID), needle) {
		return true
	}
	for _, h := range headers {
		if v, ok := record.RawData.Get(h); ok {
			if s, isString := v.(string); isString && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

func matchesFilters(record *shared.RecordRow, known map[string]bool, filters map[string]string) bool {
	for key, want := range filters {
		if key == "" || want == "" {
			continue
		}
		var got interface{}
		switch {
		case known[key]:
			got, _ = record.RawData.Get(key)
		case key == "inferred_id":
			got = record.InferredID
		case key == "row_number":
			n, err := strconv.Atoi(strings.TrimSpace(want))
			if err != nil {
				continue
			}
			if record.RowNumber != n {
				return false
			}
			continue
		default:
			// only headers, inferred_id and row_number are filterable
			continue
		}
		s, ok := got.(string)
		if !ok || !strings.EqualFold(s, want) {
			return false
		}
	}
	return true
}

// ============================================================================
// Users and sessions
// ============================================================================

// UserStore is an in-memory UserRepository.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*shared.User
}

// NewUserStore returns an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*shared.User)}
}

func (s *UserStore) Create(_ context.Context, user *shared.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.ID == user.ID {
			return repository.ErrDuplicate
		}
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*shared.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*shared.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) List(_ context.Context, q repository.UserQuery) ([]shared.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := []shared.User{}
	for _, user := range s.users {
		if q.Role != "" && user.Role != q.Role {
			continue
		}
		if q.ActiveOnly && !user.IsActive {
			continue
		}
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	if q.Limit > 0 && int64(len(users)) > q.Limit {
		users = users[:q.Limit]
	}
	return users, nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.update(id, func(u *shared.User) { u.PasswordHash = passwordHash })
}

func (s *UserStore) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(u *shared.User) { u.IsActive = active })
}

func (s *UserStore) update(id string, fn func(*shared.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(user)
	user.UpdatedAt = time.Now()
	return nil
}

func (s *UserStore) Count(_ context.Context, activeOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, user := range s.users {
		if !activeOnly || user.IsActive {
			n++
		}
	}
	return n, nil
}

// SessionStore is an in-memory SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*shared.Session
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*shared.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *shared.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	s.sessions[session.Token] = &stored
	return nil
}

func (s *SessionStore) Exists(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	return ok && !session.IsExpired(), nil
}

func (s *SessionStore) DeleteByToken(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return 0, nil
	}
	delete(s.sessions, token)
	return 1, nil
}

func (s *SessionStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Helpers
// ============================================================================

// NewRepositories returns a fresh set of in-memory repositories.
func NewRepositories() (*repository.Repositories, *UploadStore, *RecordStore) {
	uploads := NewUploadStore()
	records := NewRecordStore()
	return &repository.Repositories{
		Uploads:  uploads,
		Records:  records,
		Users:    NewUserStore(),
		Sessions: NewSessionStore(),
	}, uploads, records
}

func paginate[T any](items []T, page shared.Page) []T {
	if page.Limit <= 0 {
		return items
	}
	start := int(page.Skip())
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
