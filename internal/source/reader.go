// Package source reads the raw doctor and appointment sheets into tables.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/etl/internal/platform/csvfile"
	"github.com/ehr/etl/internal/transform"
)

// ErrSourceNotFound is returned when an input path does not exist.
var ErrSourceNotFound = errors.New("input file not found")

// Reader loads a spreadsheet or delimited file into a transform.Table. The
// first row is the header; the first sheet of a workbook is used.
type Reader struct {
	log zerolog.Logger
}

func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{log: logger.With().Str("component", "source").Logger()}
}

// Read loads path. envHint names the configuration variable that points at
// it and is included in the not-found error.
func (r *Reader) Read(ctx context.Context, path, envHint string) (*transform.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (check the %s variable)", ErrSourceNotFound, path, envHint)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	r.log.Info().Str("path", path).Msg("reading source")

	var (
		table *transform.Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		table, err = readCSV(path)
	default:
		table, err = readWorkbook(path)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("path", path).
		Int("rows", len(table.Rows)).
		Strs("columns", table.Columns).
		Msg("source read")
	return table, nil
}

func readCSV(path string) (*transform.Table, error) {
	header, records, err := csvfile.Read(path)
	if err != nil {
		return nil, err
	}

	table := &transform.Table{Columns: header, Rows: make([]transform.Row, 0, len(records))}
	for _, rec := range records {
		row := make(transform.Row, len(header))
		for i, col := range header {
			if i < len(rec) && rec[i] != "" {
				row[col] = rec[i]
			} else {
				row[col] = nil
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func readWorkbook(path string) (*transform.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return &transform.Table{}, nil
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	cells := cellReader{f: f, sheet: sheet, date1904: date1904, dateStyles: make(map[int]bool)}

	header := rows[0]
	table := &transform.Table{Columns: header, Rows: make([]transform.Row, 0, len(rows)-1)}
	for i, raw := range rows[1:] {
		row := make(transform.Row, len(header))
		for col, name := range header {
			if col >= len(raw) || raw[col] == "" {
				row[name] = nil
				continue
			}
			v, err := cells.value(col+1, i+2, raw[col])
			if err != nil {
				return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
			}
			row[name] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// cellReader turns raw cell text into a typed value using the cell type and
// its number format.
type cellReader struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func (c *cellReader) value(col, row int, raw string) (any, error) {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := c.f.GetCellType(c.sheet, axis)
	if err != nil {
		return nil, err
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeDate:
		if v := parseISODate(raw); v != nil {
			return *v, nil
		}
		return raw, nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		isDate, err := c.isDateCell(axis)
		if err != nil {
			return nil, err
		}
		if isDate {
			t, err := excelize.ExcelDateToTime(f, c.date1904)
			if err == nil {
				return t, nil
			}
		}
		return f, nil
	default:
		return raw, nil
	}
}

func (c *cellReader) isDateCell(axis string) (bool, error) {
	idx, err := c.f.GetCellStyle(c.sheet, axis)
	if err != nil {
		return false, err
	}
	if idx == 0 {
		return false, nil
	}
	if v, ok := c.dateStyles[idx]; ok {
		return v, nil
	}

	style, err := c.f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	custom := ""
	if style.CustomNumFmt != nil {
		custom = *style.CustomNumFmt
	}
	v := isDateFormat(style.NumFmt, custom)
	c.dateStyles[idx] = v
	return v, nil
}

// isoCellLayouts are the forms a t="d" cell stores its value in.
var isoCellLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseISODate reads the value of an ISO 8601 date cell as a calendar date.
func parseISODate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoCellLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return transform.ParseMixedDate(t)
		}
	}
	return transform.ParseMixedDate(raw)
}

// isDateFormat reports whether a number format renders a calendar date.
func isDateFormat(id int, custom string) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	if custom == "" {
		return false
	}

	// Drop quoted literals and bracketed sections ([Red], [$-409]) before
	// looking for day or year tokens.
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(custom) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	stripped := b.String()
	return strings.ContainsAny(stripped, "dy")
}
