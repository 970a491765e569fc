package records

import (
	"bytes"
	"context"
	"errors"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// Export formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

const exportSheet = "Records"

// Export streams the filtered records of one upload as a spreadsheet
type Export struct {
	Filename    string
	ContentType string

	format  string
	headers []string
	query   repository.RecordQuery
	records repository.RecordRepository
}

// PrepareExport resolves the upload and output format. Nothing is read
// from the record store until Write is called.
func (s *RecordsService) PrepareExport(ctx context.Context, p shared.Principal, uploadID, format string, req ListRequest) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX && format != FormatCSV {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported export format %q", format)
	}

	upload, err := s.GetUpload(ctx, p, uploadID)
	if err != nil {
		return nil, err
	}

	q := recordQuery(upload, req)
	q.Page = shared.Page{}

	base := strings.TrimSuffix(filepath.Base(upload.Filename), filepath.Ext(upload.Filename))
	if base == "" || base == "." {
		base = upload.ID
	}

	contentType := "text/csv; charset=utf-8"
	if format == FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}

	return &Export{
		Filename:    fmt.Sprintf("%s_export.%s", base, format),
		ContentType: contentType,
		format:      format,
		headers:     upload.Headers,
		query:       q,
		records:     s.records,
	}, nil
}

// Render encodes the export in memory so a failed read is reported before
// any response is sent. Errors are gRPC status errors.
func (e *Export) Render(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(ctx, &buf); err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, status.Error(codes.Unavailable, "record store unavailable")
		}
		return nil, status.Error(codes.Internal, "failed to export records")
	}
	return buf.Bytes(), nil
}

// Write encodes every matching record into w, header row first
func (e *Export) Write(ctx context.Context, w io.Writer) error {
	if e.format == FormatCSV {
		return e.writeCSV(ctx, w)
	}
	return e.writeXLSX(ctx, w)
}

func (e *Export) writeCSV(ctx context.Context, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(e.headers); err != nil {
		return err
	}

	line := make([]string, len(e.headers))
	err := e.records.Each(ctx, e.query, func(record *shared.RecordRow) error {
		for i, h := range e.headers {
			v, _ := record.RawData.Get(h)
			line[i] = csvValue(v)
		}
		return cw.Write(line)
	})
	if err != nil {
		return fmt.Errorf("export records: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func (e *Export) writeXLSX(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(e.headers))
	for i, h := range e.headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	row := 2
	err = e.records.Each(ctx, e.query, func(record *shared.RecordRow) error {
		values := make([]interface{}, len(e.headers))
		for i, h := range e.headers {
			v, _ := record.RawData.Get(h)
			values[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return sw.SetRow(cell, values)
	})
	if err != nil {
		return fmt.Errorf("export records: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	_, err = f.WriteTo(w)
	return err
}

func csvValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
