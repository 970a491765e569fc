package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
	"student_records/backend/internal/testutil"
)

type fixture struct {
	service *Service
	uploads *testutil.UploadStore
	records *testutil.RecordStore
}

func newFixture(batchSize int) *fixture {
	uploads := testutil.NewUploadStore()
	records := testutil.NewRecordStore()
	return &fixture{
		service: NewService(uploads, records, batchSize, quietLogger()),
		uploads: uploads,
		records: records,
	}
}

func (f *fixture) ingest(t *testing.T, rows [][]interface{}) (*Result, error) {
	t.Helper()
	return f.service.Ingest(context.Background(), Request{
		Filename: "students.xlsx",
		Data:     buildXLSX(t, rows),
		OwnerID:  "user_1",
	})
}

func (f *fixture) upload(t *testing.T, id string) *shared.UploadJob {
	t.Helper()
	upload, err := f.uploads.Get(context.Background(), id)
	require.NoError(t, err)
	return upload
}

func numberedRows(n int) [][]interface{} {
	rows := [][]interface{}{{"Name", "Email"}}
	for i := 1; i <= n; i++ {
		rows = append(rows, []interface{}{fmt.Sprintf("Student %d", i), fmt.Sprintf("s%d@x.com", i)})
	}
	return rows
}

func TestIngest(t *testing.T) {
	t.Run("Two clean rows complete", func(t *testing.T) {
		f := newFixture(100)
		result, err := f.ingest(t, [][]interface{}{
			{"Name", "Email"},
			{"Alice", "a@x.com"},
			{"Bob", "b@x.com"},
		})
		require.NoError(t, err)

		assert.Equal(t, shared.UploadCompleted, result.Status)
		assert.Equal(t, Stats{Total: 2, Successful: 2, Failed: 0}, result.Stats)

		upload := f.upload(t, result.UploadID)
		assert.Equal(t, 2, upload.TotalRecords)
		assert.Equal(t, 2, upload.ProcessedRecords)
		assert.Equal(t, 0, upload.FailedRecords)
		assert.Equal(t, shared.UploadCompleted, upload.Status)
		assert.Equal(t, []string{"Name", "Email"}, upload.Headers)
		assert.Equal(t, "user_1", upload.OwnerID)
		assert.NotNil(t, upload.CompletedAt)

		stored := f.records.All()
		require.Len(t, stored, 2)
		assert.Equal(t, []string{"Name", "Email"}, stored[0].RawData.Keys())
		name, _ := stored[0].RawData.Get("Name")
		assert.Equal(t, "Alice", name)
		assert.Equal(t, 2, stored[0].RowNumber)
		assert.Equal(t, 3, stored[1].RowNumber)
		assert.Equal(t, result.UploadID, stored[1].UploadID)
	})

	t.Run("Blank row is skipped without counting as failed", func(t *testing.T) {
		f := newFixture(100)
		result, err := f.ingest(t, [][]interface{}{
			{"Name", "Email"},
			{"Alice", "a@x.com"},
			{nil, nil},
			{"Bob", "b@x.com"},
		})
		require.NoError(t, err)

		upload := f.upload(t, result.UploadID)
		assert.Equal(t, 3, upload.TotalRecords)
		assert.Equal(t, 2, upload.ProcessedRecords)
		assert.Equal(t, 0, upload.FailedRecords)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, shared.UploadCompleted, upload.Status)
		assert.Len(t, f.records.All(), 2)
	})

	t.Run("ID column supplies the inferred id", func(t *testing.T) {
		f := newFixture(100)
		_, err := f.ingest(t, [][]interface{}{
			{"ID", "Name"},
			{"7", "Carl"},
			{nil, "Dana"},
		})
		require.NoError(t, err)

		stored := f.records.All()
		require.Len(t, stored, 2)
		assert.Equal(t, "7", stored[0].InferredID)
		assert.Regexp(t, syntheticID, stored[1].InferredID)
	})

	t.Run("Invalid buffer persists nothing", func(t *testing.T) {
		f := newFixture(100)
		_, err := f.service.Ingest(context.Background(), Request{
			Filename: "students.xlsx",
			Data:     []byte("this is not a workbook"),
			OwnerID:  "user_1",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnreadableWorkbook))

		var runErr *RunError
		assert.False(t, errors.As(err, &runErr))
		assert.Equal(t, 0, f.uploads.Len())
	})

	t.Run("250 rows run as three batches", func(t *testing.T) {
		f := newFixture(100)
		result, err := f.ingest(t, numberedRows(250))
		require.NoError(t, err)

		require.Len(t, f.uploads.Batches, 3)
		assert.Equal(t, 100, f.uploads.Batches[0].Processed)
		assert.Equal(t, 100, f.uploads.Batches[1].Processed)
		assert.Equal(t, 50, f.uploads.Batches[2].Processed)
		assert.Equal(t, []int{100, 200, 250}, f.uploads.Snapshots)
		assert.Equal(t, 3, result.Batches)
		assert.Equal(t, 250, f.upload(t, result.UploadID).ProcessedRecords)
	})

	t.Run("Empty file", func(t *testing.T) {
		f := newFixture(100)
		_, err := f.service.Ingest(context.Background(), Request{Filename: "x.xlsx", OwnerID: "user_1"})
		assert.True(t, errors.Is(err, ErrEmptyFile))
	})

	t.Run("Header only sheet has no usable data", func(t *testing.T) {
		f := newFixture(100)
		_, err := f.ingest(t, [][]interface{}{{"Name", "Email"}})
		assert.True(t, errors.Is(err, ErrNoUsableData))
		assert.Equal(t, 0, f.uploads.Len())
	})

	t.Run("Blank headers have no usable data", func(t *testing.T) {
		f := newFixture(100)
		_, err := f.service.Ingest(context.Background(), Request{
			Filename: "blank.csv",
			Data:     []byte(" , \nAlice,a@x.com\n"),
			OwnerID:  "user_1",
		})
		assert.True(t, errors.Is(err, ErrNoUsableData))
		assert.Equal(t, 0, f.uploads.Len())
	})
}

func TestIngestFailures(t *testing.T) {
	t.Run("Failing row does not stop its batch or later batches", func(t *testing.T) {
		f := newFixture(10)
		f.records.InsertHook = func(r *shared.RecordRow) error {
			if r.RowNumber == 5 {
				return errors.New("validation failed")
			}
			return nil
		}

		result, err := f.ingest(t, numberedRows(25))
		require.NoError(t, err)

		upload := f.upload(t, result.UploadID)
		assert.Equal(t, 24, upload.ProcessedRecords)
		assert.Equal(t, 1, upload.FailedRecords)
		assert.Equal(t, 25, f.records.Inserts)
		assert.Equal(t, shared.UploadCompletedWithErrors, upload.Status)
		assert.Equal(t, shared.UploadCompletedWithErrors, result.Status)

		require.Len(t, upload.Errors, 1)
		assert.Equal(t, 5, upload.Errors[0].RowNumber)
		assert.Contains(t, upload.Errors[0].Message, "validation failed")
		assert.Equal(t, []interface{}{"Student 4", "s4@x.com"}, upload.Errors[0].RawData)
	})

	t.Run("Panicking row is recorded as a row error", func(t *testing.T) {
		f := newFixture(100)
		f.records.InsertHook = func(r *shared.RecordRow) error {
			if r.RowNumber == 3 {
				panic("driver bug")
			}
			return nil
		}

		result, err := f.ingest(t, numberedRows(3))
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 3, Successful: 2, Failed: 1}, result.Stats)

		upload := f.upload(t, result.UploadID)
		require.Len(t, upload.Errors, 1)
		assert.Contains(t, upload.Errors[0].Message, "driver bug")
	})

	t.Run("Unavailable store collapses the batch into one entry", func(t *testing.T) {
		f := newFixture(10)
		f.records.InsertHook = func(r *shared.RecordRow) error {
			if r.RowNumber <= 11 {
				return fmt.Errorf("insert: %w", repository.ErrUnavailable)
			}
			return nil
		}

		result, err := f.ingest(t, numberedRows(15))
		require.NoError(t, err)

		upload := f.upload(t, result.UploadID)
		assert.Equal(t, 10, upload.FailedRecords)
		assert.Equal(t, 5, upload.ProcessedRecords)
		require.Len(t, upload.Errors, 1)
		assert.Equal(t, 2, upload.Errors[0].RowNumber)
		assert.Contains(t, upload.Errors[0].Message, "10 rows")
		assert.Equal(t, shared.UploadCompletedWithErrors, upload.Status)
	})

	t.Run("Lost progress update fails the run", func(t *testing.T) {
		f := newFixture(10)
		f.uploads.ApplyBatchErr = repository.ErrUnavailable
		f.uploads.FailApplyBatchAt = 2

		_, err := f.ingest(t, numberedRows(25))
		require.Error(t, err)

		var runErr *RunError
		require.True(t, errors.As(err, &runErr))
		assert.True(t, errors.Is(err, repository.ErrUnavailable))

		upload := f.upload(t, runErr.UploadID)
		assert.Equal(t, shared.UploadFailed, upload.Status)
		assert.Equal(t, 10, upload.ProcessedRecords)
		assert.NotNil(t, upload.CompletedAt)
		require.Len(t, upload.Errors, 1)
		assert.Equal(t, 0, upload.Errors[0].RowNumber)
		assert.Len(t, f.uploads.Batches, 2)
	})

	t.Run("Create failure returns before any row is written", func(t *testing.T) {
		f := newFixture(10)
		f.uploads.CreateErr = repository.ErrUnavailable

		_, err := f.ingest(t, numberedRows(3))
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrUnavailable))
		assert.Equal(t, 0, f.records.Inserts)
	})
}

func TestIngestRowAccounting(t *testing.T) {
	rows := [][]interface{}{{"ID", "Name", "Email"}}
	for i := 1; i <= 57; i++ {
		switch {
		case i%7 == 0:
			rows = append(rows, []interface{}{nil, "  ", nil})
		default:
			rows = append(rows, []interface{}{int64(i), fmt.Sprintf("Student %d", i), nil})
		}
	}

	f := newFixture(20)
	f.records.InsertHook = func(r *shared.RecordRow) error {
		if r.RowNumber%5 == 0 {
			return errors.New("rejected")
		}
		return nil
	}

	result, err := f.ingest(t, rows)
	require.NoError(t, err)

	upload := f.upload(t, result.UploadID)
	assert.Equal(t, 57, upload.TotalRecords)
	assert.Equal(t, upload.TotalRecords, upload.ProcessedRecords+upload.FailedRecords+result.Skipped)
	assert.Equal(t, 8, result.Skipped)
	assert.Equal(t, upload.FailedRecords, len(upload.Errors))
	assert.Equal(t, shared.UploadCompletedWithErrors, upload.Status)

	for _, record := range f.records.All() {
		id, _ := record.RawData.Get("ID")
		assert.Equal(t, fmt.Sprint(id), record.InferredID)
	}
}
