// Package tabular parses uploaded CSV files into typed tables and computes
// the per-file statistics returned by the upload API.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFilename = errors.New("tabular: only .csv files are accepted")
	ErrNoHeader        = errors.New("tabular: missing header row")
)

// Column kinds reported in Statistics.VariableTypes.
const (
	KindInt      = "int64"
	KindFloat    = "float64"
	KindBool     = "bool"
	KindDatetime = "datetime"
	KindString   = "string"
)

// Table is a parsed CSV file. Each row holds one cell per column; cells are
// int64, float64, bool, string or nil for an empty field.
type Table struct {
	Columns []string
	Kinds   []string
	Rows    [][]any
}

// ValidateFilename reports whether name looks like a CSV upload.
func ValidateFilename(name string) error {
	if !strings.Contains(name, ".") {
		return ErrInvalidFilename
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return ErrInvalidFilename
	}
	return nil
}

// Parse reads a CSV document with a header row and infers one kind per
// column from its non-empty cells.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("tabular: read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tabular: read row %d: %w", len(raw)+2, err)
		}
		row := make([]string, len(cols))
		copy(row, rec)
		raw = append(raw, row)
	}

	t := &Table{Columns: cols, Kinds: make([]string, len(cols)), Rows: make([][]any, len(raw))}
	for i := range raw {
		t.Rows[i] = make([]any, len(cols))
	}
	for c := range cols {
		t.Kinds[c] = inferKind(raw, c)
		for i, row := range raw {
			t.Rows[i][c] = convert(strings.TrimSpace(row[c]), t.Kinds[c])
		}
	}
	return t, nil
}

// Records returns the rows keyed by column name.
func (t *Table) Records() []map[string]any {
	return t.records(t.Rows)
}

// Head returns the first n records.
func (t *Table) Head(n int) []map[string]any {
	return t.records(t.Rows[:min(max(n, 0), len(t.Rows))])
}

func (t *Table) records(rows [][]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(t.Columns))
		for c, name := range t.Columns {
			rec[name] = row[c]
		}
		out[i] = rec
	}
	return out
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
	"02-Jan-2006",
	"Jan 2, 2006",
}

func isDatetime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// inferKind mirrors a dataframe's dtype inference: integers with gaps widen
// to float64, an all-empty column is float64.
func inferKind(raw [][]string, c int) string {
	ints, floats, bools, dates, present := true, true, true, true, 0
	hasEmpty := false
	for _, row := range raw {
		v := strings.TrimSpace(row[c])
		if v == "" {
			hasEmpty = true
			continue
		}
		present++
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			ints = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			floats = false
		}
		if _, ok := parseBool(v); !ok {
			bools = false
		}
		if dates && !isDatetime(v) {
			dates = false
		}
	}
	switch {
	case present == 0:
		return KindFloat
	case ints && !hasEmpty:
		return KindInt
	case ints || floats:
		return KindFloat
	case bools && !hasEmpty:
		return KindBool
	case dates:
		return KindDatetime
	default:
		return KindString
	}
}

func convert(v, kind string) any {
	if v == "" {
		return nil
	}
	switch kind {
	case KindInt:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case KindFloat:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case KindBool:
		b, _ := parseBool(v)
		return b
	}
	return v
}
