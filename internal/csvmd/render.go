package csvmd

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrEmptyTable is returned when there is no record to render.
var ErrEmptyTable = errors.New("csvmd: input has no records")

// HeaderText returns the printed form of a column name.
func HeaderText(column string, keepRaw bool) string {
	if keepRaw {
		return column
	}
	return strings.TrimSpace(strings.ReplaceAll(column, "#", ""))
}

// Render writes t as a Markdown pipe table followed by a blank line. The
// separator row has as many dashes as the raw column name has characters.
func Render(w io.Writer, t *Table, opts Options) error {
	if t == nil || len(t.Rows) == 0 {
		return ErrEmptyTable
	}

	bw := bufio.NewWriter(w)

	cells := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cells[i] = HeaderText(c, opts.KeepRawHeader)
	}
	writeRow(bw, cells)

	for i, c := range t.Columns {
		cells[i] = strings.Repeat("-", utf8.RuneCountInString(c))
	}
	writeRow(bw, cells)

	for _, row := range t.Rows {
		for i, c := range t.Columns {
			cells[i] = row.Value(c, opts.EmptyStr)
		}
		writeRow(bw, cells)
	}

	bw.WriteByte('\n')
	return bw.Flush()
}

func writeRow(w *bufio.Writer, cells []string) {
	w.WriteByte('|')
	for _, c := range cells {
		w.WriteString(c)
		w.WriteByte('|')
	}
	w.WriteByte('\n')
}
