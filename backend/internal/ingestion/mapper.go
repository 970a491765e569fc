package ingestion

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"student_records/backend/internal/shared"
)

// idCandidates are checked in order when inferring a row identifier
var idCandidates = []string{"ID", "id", "Student ID", "StudentID", "student_id", "Roll No", "Roll Number"}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Stamp carries the bookkeeping fields copied onto every mapped row
type Stamp struct {
	UploadID  string
	OwnerID   string
	CreatedAt time.Time
}

// MapRow zips row against columns into a RecordRow. Nil cells and strings
// that are blank after trimming are left out. ok is false when nothing
// remains, in which case the row is skipped rather than stored.
func MapRow(columns []Column, row []interface{}, rowNumber int, stamp Stamp) (record *shared.RecordRow, ok bool) {
	data := shared.NewFields(len(columns))
	for _, col := range columns {
		if col.Index >= len(row) {
			continue
		}
		value := row[col.Index]
		if value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		data.Set(col.Name, value)
	}
	if data.Len() == 0 {
		return nil, false
	}

	return &shared.RecordRow{
		ID:         shared.GenerateID("record"),
		InferredID: InferID(data, stamp.CreatedAt),
		RawData:    *data,
		UploadID:   stamp.UploadID,
		RowNumber:  rowNumber,
		OwnerID:    stamp.OwnerID,
		CreatedAt:  stamp.CreatedAt,
	}, true
}

// InferID returns the first truthy candidate id column verbatim, or a
// best-effort synthetic id. Synthetic ids are not checked for collisions.
func InferID(data *shared.Fields, now time.Time) string {
	for _, key := range idCandidates {
		if v, found := data.Get(key); found && truthy(v) {
			return cellString(v)
		}
	}

	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if data.Len() == 0 {
		return "EMPTY_" + millis
	}
	return "ROW_" + millis + "_" + randomSuffix(9)
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	default:
		return true
	}
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.Intn(len(base36))]
	}
	return string(b)
}
