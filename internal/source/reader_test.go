package source

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/etl/internal/transform"
)

func writeWorkbook(t *testing.T, build func(f *excelize.File, sheet string)) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	build(f, sheet)

	path := filepath.Join(t.TempDir(), "appointments.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

// replaceSheetXML swaps the first worksheet part of a saved workbook for the
// given XML, for cell encodings excelize never writes itself.
func replaceSheetXML(t *testing.T, path, sheetXML string) {
	t.Helper()
	src, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open workbook zip: %v", err)
	}
	defer src.Close()

	out := path + ".tmp"
	dst, err := os.Create(out)
	if err != nil {
		t.Fatalf("create %s: %v", out, err)
	}
	zw := zip.NewWriter(dst)
	for _, entry := range src.File {
		w, err := zw.Create(entry.Name)
		if err != nil {
			t.Fatalf("create entry %s: %v", entry.Name, err)
		}
		if entry.Name == "xl/worksheets/sheet1.xml" {
			if _, err := io.WriteString(w, sheetXML); err != nil {
				t.Fatalf("write sheet: %v", err)
			}
			continue
		}
		r, err := entry.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", entry.Name, err)
		}
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			t.Fatalf("copy entry %s: %v", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := dst.Close(); err != nil {
		t.Fatalf("close %s: %v", out, err)
	}
	if err := os.Rename(out, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestRead_MissingFileNamesVariable(t *testing.T) {
	r := NewReader(zerolog.Nop())
	_, err := r.Read(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"), "DOCTORS_XLSX")
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "DOCTORS_XLSX") {
		t.Errorf("expected variable name in error, got %q", err.Error())
	}
}

func TestRead_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReader(zerolog.Nop()).Read(ctx, "whatever.xlsx", "APPOINTMENTS_XLSX")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRead_WorkbookTypesCells(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File, sheet string) {
		header := []any{"booking_id", "patient_id", "doctor_id", "booking_date", "status"}
		must := func(err error) {
			t.Helper()
			if err != nil {
				t.Fatalf("build workbook: %v", err)
			}
		}
		must(f.SetSheetRow(sheet, "A1", &header))

		must(f.SetCellValue(sheet, "A2", "BK-1"))
		must(f.SetCellValue(sheet, "B2", 12))
		must(f.SetCellValue(sheet, "C2", 7.5))
		must(f.SetCellValue(sheet, "D2", 45000))
		must(f.SetCellValue(sheet, "E2", " Confirmed. "))

		dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
		must(err)
		must(f.SetCellValue(sheet, "A3", 2))
		must(f.SetCellValue(sheet, "D3", 45000))
		must(f.SetCellStyle(sheet, "D3", "D3", dateStyle))
		must(f.SetCellValue(sheet, "E3", true))
	})

	table, err := NewReader(zerolog.Nop()).Read(context.Background(), path, "APPOINTMENTS_XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(table.Columns, transform.AppointmentColumns) {
		t.Errorf("unexpected columns: %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}

	first := table.Rows[0]
	wantFirst := transform.Row{
		"booking_id":   "BK-1",
		"patient_id":   12.0,
		"doctor_id":    7.5,
		"booking_date": 45000.0, // plain numbers stay serials
		"status":       " Confirmed. ",
	}
	if !reflect.DeepEqual(first, wantFirst) {
		t.Errorf("expected %v, got %v", wantFirst, first)
	}

	second := table.Rows[1]
	if second["patient_id"] != nil || second["doctor_id"] != nil {
		t.Errorf("expected empty cells to be nil, got %v", second)
	}
	date, ok := second["booking_date"].(time.Time)
	if !ok {
		t.Fatalf("expected date formatted cell to be a time.Time, got %T", second["booking_date"])
	}
	if s := date.Format(transform.DateLayout); s != "2023-03-15" {
		t.Errorf("expected 2023-03-15, got %s", s)
	}
	if second["status"] != true {
		t.Errorf("expected bool cell, got %v (%T)", second["status"], second["status"])
	}
}

func TestRead_ISODateCells(t *testing.T) {
	path := writeWorkbook(t, func(f *excelize.File, sheet string) {})
	replaceSheetXML(t, path, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`+
		`<row r="1"><c r="A1" t="inlineStr"><is><t>booking_date</t></is></c></row>`+
		`<row r="2"><c r="A2" t="d"><v>2023-03-15T00:00:00</v></c></row>`+
		`<row r="3"><c r="A3" t="d"><v>2023-07-04T18:30:00Z</v></c></row>`+
		`<row r="4"><c r="A4" t="d"><v>2023-01-02</v></c></row>`+
		`<row r="5"><c r="A5" t="d"><v>not a date</v></c></row>`+
		`</sheetData></worksheet>`)

	table, err := NewReader(zerolog.Nop()).Read(context.Background(), path, "APPOINTMENTS_XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(table.Rows))
	}

	for i, want := range []string{"2023-03-15", "2023-07-04", "2023-01-02"} {
		v := table.Rows[i]["booking_date"]
		d, ok := v.(time.Time)
		if !ok {
			t.Errorf("row %d: expected time.Time, got %v (%T)", i, v, v)
			continue
		}
		if s := d.Format(transform.DateLayout); s != want {
			t.Errorf("row %d: expected %s, got %s", i, want, s)
		}
		if d.Hour() != 0 || d.Location() != time.UTC {
			t.Errorf("row %d: expected UTC midnight, got %s", i, d)
		}
	}
	if v := table.Rows[3]["booking_date"]; v != "not a date" {
		t.Errorf("expected unparseable date cell to stay text, got %v (%T)", v, v)
	}
}

func TestRead_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doctors.csv")
	content := "doctor_id,name,specialty\n1,Dr. Ana,Cardiology\n,Dr. Bo,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	table, err := NewReader(zerolog.Nop()).Read(context.Background(), path, "DOCTORS_XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(table.Columns, transform.DoctorColumns) {
		t.Errorf("unexpected columns: %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if v := table.Rows[0]["doctor_id"]; v != "1" {
		t.Errorf("expected \"1\", got %v", v)
	}
	if table.Rows[1]["doctor_id"] != nil || table.Rows[1]["specialty"] != nil {
		t.Errorf("expected empty cells to be nil, got %v", table.Rows[1])
	}
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		id     int
		custom string
		want   bool
	}{
		{id: 0, want: false},
		{id: 2, want: false},
		{id: 14, want: true},
		{id: 22, want: true},
		{id: 49, want: false},
		{id: 164, custom: "yyyy-mm-dd", want: true},
		{id: 164, custom: "dd/mm/yyyy;@", want: true},
		{id: 164, custom: `[$-409]mmmm d, yyyy`, want: true},
		{id: 164, custom: "0.00", want: false},
		{id: 164, custom: `"day "0`, want: false},
		{id: 164, custom: "[Red]#,##0", want: false},
	}
	for _, tt := range tests {
		if got := isDateFormat(tt.id, tt.custom); got != tt.want {
			t.Errorf("isDateFormat(%d, %q) = %v, want %v", tt.id, tt.custom, got, tt.want)
		}
	}
}
