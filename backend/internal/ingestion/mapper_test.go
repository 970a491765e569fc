package ingestion

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_records/backend/internal/shared"
)

var syntheticID = regexp.MustCompile(`^ROW_\d+_[0-9a-z]{9}$`)

func TestNormalizeHeaders(t *testing.T) {
	t.Run("Trims, stringifies and drops empties", func(t *testing.T) {
		columns := NormalizeHeaders([]interface{}{"  Name ", nil, "", "   ", int64(2024), true, "Email"})

		assert.Equal(t, []string{"Name", "2024", "true", "Email"}, ColumnNames(columns))
		assert.Equal(t, []int{0, 4, 5, 6}, []int{columns[0].Index, columns[1].Index, columns[2].Index, columns[3].Index})
	})

	t.Run("Normalized headers are a fixed point", func(t *testing.T) {
		headers := []interface{}{"ID", "Name", "Roll No", "GPA"}

		once := ColumnNames(NormalizeHeaders(headers))
		again := make([]interface{}, len(once))
		for i, h := range once {
			again[i] = h
		}

		assert.Equal(t, []string{"ID", "Name", "Roll No", "GPA"}, once)
		assert.Equal(t, once, ColumnNames(NormalizeHeaders(again)))
	})

	t.Run("Duplicates are kept and reported", func(t *testing.T) {
		columns := NormalizeHeaders([]interface{}{"Name", "Name ", "Email", "Name"})
		assert.Equal(t, []string{"Name", "Name", "Email", "Name"}, ColumnNames(columns))
		assert.Equal(t, []string{"Name"}, DuplicateHeaders(columns))
	})

	t.Run("All blank yields nothing", func(t *testing.T) {
		assert.Empty(t, NormalizeHeaders([]interface{}{nil, " ", ""}))
	})
}

func TestMapRow(t *testing.T) {
	stamp := Stamp{UploadID: "upload_1", OwnerID: "user_1", CreatedAt: time.UnixMilli(1700000000000)}
	columns := NormalizeHeaders([]interface{}{"Name", "Email", "GPA"})

	t.Run("Zips values and stamps bookkeeping", func(t *testing.T) {
		record, ok := MapRow(columns, []interface{}{"Alice", "a@x.com", 3.9}, 2, stamp)
		require.True(t, ok)

		assert.Equal(t, []string{"Name", "Email", "GPA"}, record.RawData.Keys())
		gpa, _ := record.RawData.Get("GPA")
		assert.Equal(t, 3.9, gpa)
		assert.Equal(t, "upload_1", record.UploadID)
		assert.Equal(t, "user_1", record.OwnerID)
		assert.Equal(t, 2, record.RowNumber)
		assert.Equal(t, stamp.CreatedAt, record.CreatedAt)
		assert.Regexp(t, `^record_`, record.ID)
	})

	t.Run("Blank and missing cells are left out", func(t *testing.T) {
		record, ok := MapRow(columns, []interface{}{"Bob", "   "}, 3, stamp)
		require.True(t, ok)
		assert.Equal(t, []string{"Name"}, record.RawData.Keys())
	})

	t.Run("Row with nothing populated is skipped", func(t *testing.T) {
		_, ok := MapRow(columns, []interface{}{nil, "", "  "}, 4, stamp)
		assert.False(t, ok)

		_, ok = MapRow(columns, nil, 5, stamp)
		assert.False(t, ok)
	})

	t.Run("False and zero are kept as values", func(t *testing.T) {
		record, ok := MapRow(columns, []interface{}{false, nil, int64(0)}, 6, stamp)
		require.True(t, ok)
		assert.Equal(t, 2, record.RawData.Len())
	})

	t.Run("Duplicate header keeps last populated value in first position", func(t *testing.T) {
		dup := NormalizeHeaders([]interface{}{"Name", "Email", "Name"})
		record, ok := MapRow(dup, []interface{}{"first", "e@x.com", "last"}, 2, stamp)
		require.True(t, ok)

		assert.Equal(t, []string{"Name", "Email"}, record.RawData.Keys())
		name, _ := record.RawData.Get("Name")
		assert.Equal(t, "last", name)
	})

	t.Run("Cells follow their original column", func(t *testing.T) {
		gap := NormalizeHeaders([]interface{}{"Name", nil, "Email"})
		record, ok := MapRow(gap, []interface{}{"Dana", "ignored", "d@x.com"}, 2, stamp)
		require.True(t, ok)

		email, _ := record.RawData.Get("Email")
		assert.Equal(t, "d@x.com", email)
		assert.Equal(t, 2, record.RawData.Len())
	})
}

func TestInferID(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	fields := func(kv ...interface{}) *shared.Fields {
		f := shared.NewFields(len(kv) / 2)
		for i := 0; i < len(kv); i += 2 {
			f.Set(kv[i].(string), kv[i+1])
		}
		return f
	}

	t.Run("Candidate column is used verbatim", func(t *testing.T) {
		assert.Equal(t, "7", InferID(fields("ID", "7", "Name", "Carl"), now))
		assert.Equal(t, "007", InferID(fields("Student ID", "007"), now))
		assert.Equal(t, "42", InferID(fields("Roll Number", int64(42)), now))
	})

	t.Run("Candidates are checked in order", func(t *testing.T) {
		assert.Equal(t, "A1", InferID(fields("student_id", "S9", "ID", "A1"), now))
	})

	t.Run("Falsy candidate is passed over", func(t *testing.T) {
		assert.Equal(t, "R5", InferID(fields("ID", int64(0), "id", "", "Roll No", "R5"), now))
	})

	t.Run("Synthetic id when no candidate matches", func(t *testing.T) {
		id := InferID(fields("Name", "Erin"), now)
		assert.Regexp(t, syntheticID, id)
		assert.Contains(t, id, "ROW_1700000000123_")
	})

	t.Run("Empty data gets the empty marker", func(t *testing.T) {
		assert.Equal(t, "EMPTY_1700000000123", InferID(shared.NewFields(0), now))
	})
}
