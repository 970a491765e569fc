package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadableWorkbook is returned when an upload cannot be decoded as a spreadsheet
var ErrUnreadableWorkbook = errors.New("unable to read spreadsheet")

// Sheet is the decoded first worksheet, row-major. Row 0 holds the headers.
// Cells are nil, string, bool, int64 or float64.
type Sheet [][]interface{}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// DecodeWorkbook decodes the first sheet of an xlsx or csv upload,
// unwrapping gzip, zstd or xz compression first.
func DecodeWorkbook(filename string, data []byte) (Sheet, error) {
	compression := DetectCompression(filename, data)
	raw, err := Decompress(compression, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}

	inner := TrimCompressionExt(filename)
	var sheet Sheet
	switch {
	case bytes.HasPrefix(raw, zipMagic):
		sheet, err = decodeXLSX(raw)
	case strings.EqualFold(filepath.Ext(inner), ".csv"):
		sheet, err = decodeCSV(raw)
	default:
		err = fmt.Errorf("unsupported file format %q", filepath.Ext(inner))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	return sheet, nil
}

func decodeXLSX(data []byte) (Sheet, error) {
	xlsxFile, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer xlsxFile.Close()

	sheets := xlsxFile.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	name := sheets[0]

	rows, err := xlsxFile.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}

	sheet := make(Sheet, len(rows))
	for r, row := range rows {
		cells := make([]interface{}, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			cellType, err := xlsxFile.GetCellType(name, axis)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", axis, err)
			}
			cells[c] = typedCell(cellType, raw)
		}
		sheet[r] = cells
	}
	return sheet, nil
}

// typedCell converts a raw cell string into the value type the cell declares
func typedCell(cellType excelize.CellType, raw string) interface{} {
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, ok := parseNumber(raw); ok {
			return n
		}
	}
	return raw
}

func parseNumber(raw string) (interface{}, bool) {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}

func decodeCSV(data []byte) (Sheet, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var sheet Sheet
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		cells := make([]interface{}, len(record))
		for i, v := range record {
			if v != "" {
				cells[i] = v
			}
		}
		sheet = append(sheet, cells)
	}
	return sheet, nil
}
