// Package csvmd converts delimited or spreadsheet data into Markdown pipe tables.
package csvmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// DefaultEmptyStr is the placeholder printed for empty, missing or "None" cells.
const DefaultEmptyStr = "NULL"

// Options controls parsing and rendering.
type Options struct {
	// EmptyStr replaces empty, missing and literal "None" values.
	EmptyStr string
	// KeepRawHeader prints column names as read, without removing '#'
	// characters and surrounding whitespace.
	KeepRawHeader bool
	// Comma is the field delimiter of CSV input.
	Comma rune
}

// DefaultOptions returns comma separated input with the NULL placeholder.
func DefaultOptions() Options {
	return Options{
		EmptyStr: DefaultEmptyStr,
		Comma:    ',',
	}
}

// CommaFor maps the separator flag value to a delimiter: "t" selects tab,
// anything else comma.
func CommaFor(separator string) rune {
	if separator == "t" {
		return '\t'
	}
	return ','
}

// Row maps column names to raw cell values. A column missing from the map
// had no field in the input record.
type Row map[string]string

// Table is a header plus the records that follow it.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable builds a table whose columns come from the first record. Column
// names are unique and keep the position of their first occurrence; with
// duplicate names the later field wins. Short records leave trailing columns
// missing, extra fields are dropped and empty records are skipped.
func NewTable(records [][]string) *Table {
	t := &Table{}

	var header []string
	for _, record := range records {
		if len(record) == 0 {
			continue
		}
		if header == nil {
			header = record
			seen := make(map[string]bool, len(record))
			for _, name := range record {
				if !seen[name] {
					seen[name] = true
					t.Columns = append(t.Columns, name)
				}
			}
			continue
		}

		row := make(Row, len(t.Columns))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			row[name] = record[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Parse reads all of r as delimited text separated by comma.
func Parse(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return NewTable(records), nil
}

// Value returns the normalized cell of row for column.
func (r Row) Value(column, emptyStr string) string {
	v, ok := r[column]
	return Normalize(v, ok, emptyStr)
}

// Normalize trims v and substitutes emptyStr when the value is missing,
// empty or the literal "None".
func Normalize(v string, present bool, emptyStr string) string {
	if !present {
		return emptyStr
	}
	v = strings.TrimSpace(v)
	if v == "" || v == "None" {
		return emptyStr
	}
	return v
}
