package ingestion

import (
	"fmt"
	"strconv"
	"strings"
)

// Column is a normalized header and the sheet column it was read from
type Column struct {
	Name  string
	Index int
}

// NormalizeHeaders stringifies and trims every header cell, dropping empties.
// Duplicate names are kept; the later column overwrites the earlier one
// when rows are mapped.
func NormalizeHeaders(row []interface{}) []Column {
	columns := make([]Column, 0, len(row))
	for i, cell := range row {
		if cell == nil {
			continue
		}
		name := strings.TrimSpace(cellString(cell))
		if name == "" {
			continue
		}
		columns = append(columns, Column{Name: name, Index: i})
	}
	return columns
}

// ColumnNames returns the header names in column order
func ColumnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	return names
}

// DuplicateHeaders lists header names that appear more than once
func DuplicateHeaders(columns []Column) []string {
	seen := make(map[string]int, len(columns))
	var dups []string
	for _, col := range columns {
		seen[col.Name]++
		if seen[col.Name] == 2 {
			dups = append(dups, col.Name)
		}
	}
	return dups
}

// cellString renders a cell value the way it reads in the sheet
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
