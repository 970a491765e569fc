package records

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
	"student_records/backend/internal/testutil"
)

var (
	owner    = shared.Principal{UserID: "user_1", Role: shared.RoleUser, Scope: shared.ScopeUser}
	stranger = shared.Principal{UserID: "user_2", Role: shared.RoleUser, Scope: shared.ScopeUser}
	admin    = shared.Principal{UserID: "admin_1", Role: shared.RoleAdmin, Scope: shared.ScopeAdmin}
)

type fixture struct {
	service *RecordsService
	uploads *testutil.UploadStore
	records *testutil.RecordStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &fixture{uploads: testutil.NewUploadStore(), records: testutil.NewRecordStore()}
	f.service = NewRecordsService(f.uploads, f.records, log)

	ctx := context.Background()
	require.NoError(t, f.uploads.Create(ctx, &shared.UploadJob{
		ID:           "upload_1",
		Filename:     "class list.xlsx",
		Status:       shared.UploadCompleted,
		OwnerID:      owner.UserID,
		TotalRecords: 3,
		Headers:      []string{"Name", "Email", "GPA"},
		CreatedAt:    time.Now(),
	}))

	rows := []struct {
		name, email string
		gpa         float64
	}{
		{"Alice", "a@x.com", 3.9},
		{"Bob (a.k.a. B*)", "b@x.com", 3.1},
		{"Carl", "c@x.com", 2.5},
	}
	for i, r := range rows {
		data := shared.NewFields(3)
		data.Set("Name", r.name)
		data.Set("Email", r.email)
		data.Set("GPA", r.gpa)
		require.NoError(t, f.records.Insert(ctx, &shared.RecordRow{
			ID:         shared.GenerateID("record"),
			InferredID: shared.GenerateID("ROW"),
			RawData:    *data,
			UploadID:   "upload_1",
			RowNumber:  i + 2,
			OwnerID:    owner.UserID,
			CreatedAt:  time.Now(),
		}))
	}
	return f
}

func codeOf(err error) codes.Code {
	return status.Code(err)
}

func TestUploads(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner lists own uploads only", func(t *testing.T) {
		f := newFixture(t)

		uploads, page, err := f.service.ListUploads(ctx, owner, shared.NormalizePage(1, 10))
		require.NoError(t, err)
		assert.Len(t, uploads, 1)
		assert.Equal(t, int64(1), page.Total)

		uploads, _, err = f.service.ListUploads(ctx, stranger, shared.NormalizePage(1, 10))
		require.NoError(t, err)
		assert.Empty(t, uploads)

		uploads, _, err = f.service.ListUploads(ctx, admin, shared.NormalizePage(1, 10))
		require.NoError(t, err)
		assert.Len(t, uploads, 1)
	})

	t.Run("Foreign upload reads as not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.GetUpload(ctx, stranger, "upload_1")
		assert.Equal(t, codes.NotFound, codeOf(err))

		upload, err := f.service.GetUpload(ctx, admin, "upload_1")
		require.NoError(t, err)
		assert.Equal(t, "upload_1", upload.ID)

		_, err = f.service.GetUpload(ctx, owner, "upload_missing")
		assert.Equal(t, codes.NotFound, codeOf(err))
	})

	t.Run("Delete removes upload and its records", func(t *testing.T) {
		f := newFixture(t)

		deleted, err := f.service.DeleteUpload(ctx, owner, "upload_1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
		assert.Equal(t, 0, f.uploads.Len())
		assert.Empty(t, f.records.All())
	})

	t.Run("Processing upload cannot be deleted", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.uploads.Create(ctx, &shared.UploadJob{
			ID: "upload_2", Status: shared.UploadProcessing, OwnerID: owner.UserID, CreatedAt: time.Now(),
		}))

		_, err := f.service.DeleteUpload(ctx, owner, "upload_2")
		assert.Equal(t, codes.FailedPrecondition, codeOf(err))
	})
}

func TestRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("Pages and totals", func(t *testing.T) {
		f := newFixture(t)

		page, err := f.service.ListRecords(ctx, owner, "upload_1", ListRequest{Page: shared.NormalizePage(2, 2)})
		require.NoError(t, err)
		assert.Equal(t, []string{"Name", "Email", "GPA"}, page.Headers)
		assert.Equal(t, int64(3), page.Pagination.Total)
		assert.Equal(t, int64(2), page.Pagination.TotalPages)
		require.Len(t, page.Records, 1)
		assert.Equal(t, 4, page.Records[0].RowNumber)
	})

	t.Run("Search treats metacharacters literally", func(t *testing.T) {
		f := newFixture(t)

		page, err := f.service.ListRecords(ctx, owner, "upload_1", ListRequest{
			Page:   shared.NormalizePage(1, 10),
			Search: "(a.k.a. b*)",
		})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		name, _ := page.Records[0].RawData.Get("Name")
		assert.Equal(t, "Bob (a.k.a. B*)", name)
	})

	t.Run("Filter matches whole value case-insensitively", func(t *testing.T) {
		f := newFixture(t)

		page, err := f.service.ListRecords(ctx, owner, "upload_1", ListRequest{
			Page:    shared.NormalizePage(1, 10),
			Filters: map[string]string{"Email": "C@X.COM"},
		})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)

		page, err = f.service.ListRecords(ctx, owner, "upload_1", ListRequest{
			Page:    shared.NormalizePage(1, 10),
			Filters: map[string]string{"Email": "x.com"},
		})
		require.NoError(t, err)
		assert.Empty(t, page.Records)
	})

	t.Run("Stranger cannot list records", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ListRecords(ctx, stranger, "upload_1", ListRequest{Page: shared.NormalizePage(1, 10)})
		assert.Equal(t, codes.NotFound, codeOf(err))
	})

	t.Run("Update replaces raw data", func(t *testing.T) {
		f := newFixture(t)
		target := f.records.All()[0]

		data := shared.NewFields(1)
		data.Set("Name", "Alicia")

		updated, err := f.service.UpdateRecord(ctx, owner, target.ID, *data)
		require.NoError(t, err)
		assert.Equal(t, []string{"Name"}, updated.RawData.Keys())
		assert.Equal(t, target.InferredID, updated.InferredID)

		stored, err := f.service.GetRecord(ctx, owner, target.ID)
		require.NoError(t, err)
		name, _ := stored.RawData.Get("Name")
		assert.Equal(t, "Alicia", name)
		assert.False(t, stored.UpdatedAt.IsZero())
	})

	t.Run("Update rejects empty data and foreign records", func(t *testing.T) {
		f := newFixture(t)
		target := f.records.All()[0]

		_, err := f.service.UpdateRecord(ctx, owner, target.ID, *shared.NewFields(0))
		assert.Equal(t, codes.InvalidArgument, codeOf(err))

		data := shared.NewFields(1)
		data.Set("Name", "x")
		_, err = f.service.UpdateRecord(ctx, stranger, target.ID, *data)
		assert.Equal(t, codes.NotFound, codeOf(err))
	})

	t.Run("Delete record", func(t *testing.T) {
		f := newFixture(t)
		target := f.records.All()[0]

		assert.Equal(t, codes.NotFound, codeOf(f.service.DeleteRecord(ctx, stranger, target.ID)))
		require.NoError(t, f.service.DeleteRecord(ctx, admin, target.ID))
		assert.Len(t, f.records.All(), 2)
	})
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("CSV", func(t *testing.T) {
		f := newFixture(t)

		export, err := f.service.PrepareExport(ctx, owner, "upload_1", "csv", ListRequest{})
		require.NoError(t, err)
		assert.Equal(t, "class list_export.csv", export.Filename)

		var buf bytes.Buffer
		require.NoError(t, export.Write(ctx, &buf))

		lines, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, lines, 4)
		assert.Equal(t, []string{"Name", "Email", "GPA"}, lines[0])
		assert.Equal(t, []string{"Alice", "a@x.com", "3.9"}, lines[1])
	})

	t.Run("XLSX honours filters", func(t *testing.T) {
		f := newFixture(t)

		export, err := f.service.PrepareExport(ctx, owner, "upload_1", "", ListRequest{
			Filters: map[string]string{"Name": "carl"},
		})
		require.NoError(t, err)
		assert.Equal(t, "class list_export.xlsx", export.Filename)

		var buf bytes.Buffer
		require.NoError(t, export.Write(ctx, &buf))

		book, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer book.Close()

		rows, err := book.GetRows(exportSheet)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"Name", "Email", "GPA"}, rows[0])
		assert.Equal(t, "Carl", rows[1][0])
		assert.Equal(t, "2.5", rows[1][2])
	})

	t.Run("Render reports store failures as status errors", func(t *testing.T) {
		f := newFixture(t)
		f.records.EachErr = errors.New("cursor died")

		export, err := f.service.PrepareExport(ctx, owner, "upload_1", "xlsx", ListRequest{})
		require.NoError(t, err)

		data, err := export.Render(ctx)
		assert.Nil(t, data)
		assert.Equal(t, codes.Internal, codeOf(err))

		f.records.EachErr = fmt.Errorf("next batch: %w", repository.ErrUnavailable)
		_, err = export.Render(ctx)
		assert.Equal(t, codes.Unavailable, codeOf(err))
	})

	t.Run("Render returns the complete file", func(t *testing.T) {
		f := newFixture(t)

		export, err := f.service.PrepareExport(ctx, owner, "upload_1", "csv", ListRequest{})
		require.NoError(t, err)

		data, err := export.Render(ctx)
		require.NoError(t, err)
		lines, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		assert.Len(t, lines, 4)
	})

	t.Run("Unknown format", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.PrepareExport(ctx, owner, "upload_1", "pdf", ListRequest{})
		assert.Equal(t, codes.InvalidArgument, codeOf(err))
	})

	t.Run("Foreign upload", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.PrepareExport(ctx, stranger, "upload_1", "csv", ListRequest{})
		assert.Equal(t, codes.NotFound, codeOf(err))
	})
}
