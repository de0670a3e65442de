package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
)

// Diagnostic dump names, written under the diagnostics directory.
const (
	InvalidBookingDateDump = "invalid_booking_date_rows.csv"
	ForeignKeyRejectDump   = "rejected_appointments_fk_doctor_missing.csv"
)

// previewRows is how many dumped rows are echoed into the log.
const previewRows = 10

const nullToken = "<NA>"

// Dumper receives rows diverted from the working set for human review.
type Dumper interface {
	DumpAppointments(name string, rows []Appointment) error
}

// AppointmentStats counts what each cleaning stage changed or dropped.
type AppointmentStats struct {
	Read               int `json:"read"`
	BookingIDCleaned   int `json:"booking_id_cleaned"`
	BookingIDDropped   int `json:"booking_id_dropped"`
	PatientIDDropped   int `json:"patient_id_dropped"`
	DoctorIDFractional int `json:"doctor_id_fractional"`
	UnrealisticDates   int `json:"unrealistic_dates_dropped"`
	InvalidDates       int `json:"invalid_dates"`
	UnmappedStatuses   int `json:"unmapped_statuses"`
	Kept               int `json:"kept"`
}

// Normalizer cleans raw doctor and appointment tables into typed records.
type Normalizer struct {
	rules Rules
	dump  Dumper
	log   zerolog.Logger
}

func NewNormalizer(rules Rules, dump Dumper, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		rules: rules,
		dump:  dump,
		log:   logger.With().Str("component", "transform").Logger(),
	}
}

// Doctors types every doctors row. No row is removed: unparseable ids become
// nil and are left for the quality gate.
func (n *Normalizer) Doctors(t *Table) ([]Doctor, error) {
	if missing := missingColumns(t.Columns, DoctorColumns); len(missing) > 0 {
		return nil, &SchemaError{Entity: "doctors", Missing: missing}
	}

	out := make([]Doctor, 0, len(t.Rows))
	nullIDs := 0
	for _, row := range t.Rows {
		d := Doctor{
			DoctorID:  int64Of(row[ColDoctorID]),
			Name:      trimmedText(row[ColName]),
			Specialty: trimmedText(row[ColSpecialty]),
		}
		if d.DoctorID == nil {
			nullIDs++
		}
		out = append(out, d)
	}

	n.log.Info().Int("rows", len(out)).Int("null_doctor_id", nullIDs).Msg("doctors normalized")
	return out, nil
}

// working pairs an appointment under construction with its source row.
type working struct {
	raw  Row
	appt Appointment
}

// Appointments runs the cleaning stages in order. Each stage may shrink the
// working set; rows with an unparseable booking_date are dumped but kept. The
// dump is taken before status mapping and shows the status as read.
func (n *Normalizer) Appointments(t *Table) ([]Appointment, AppointmentStats, error) {
	var stats AppointmentStats
	if missing := missingColumns(t.Columns, AppointmentColumns); len(missing) > 0 {
		return nil, stats, &SchemaError{Entity: "appointments", Missing: missing}
	}

	rows := make([]working, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, working{raw: r})
	}
	stats.Read = len(rows)

	rows = n.cleanBookingIDs(rows, &stats)
	rows = n.cleanPatientIDs(rows, &stats)
	n.cleanDoctorIDs(rows, &stats)
	rows = n.parseBookingDates(rows, &stats)

	// Until statuses are mapped, each record carries the source status text
	// so the invalid-date dump keeps the raw token.
	out := make([]Appointment, len(rows))
	for i := range rows {
		out[i] = rows[i].appt
		if s, ok := textOf(rows[i].raw[ColStatus]); ok {
			out[i].Status = &s
		}
	}

	if err := n.dumpInvalidDates(out, &stats); err != nil {
		return nil, stats, err
	}

	n.normalizeStatuses(rows, out, &stats)

	stats.Kept = len(out)
	return out, stats, nil
}

func (n *Normalizer) cleanBookingIDs(rows []working, stats *AppointmentStats) []working {
	kept := rows[:0]
	for _, w := range rows {
		if s, ok := textOf(w.raw[ColBookingID]); ok {
			s = strings.TrimSpace(s)
			if !digitsOnly(s) {
				stats.BookingIDCleaned++
			}
			w.appt.BookingID = int64Of(stripNonDigits(s))
		}
		if w.appt.BookingID == nil {
			stats.BookingIDDropped++
			continue
		}
		kept = append(kept, w)
	}

	if stats.BookingIDCleaned > 0 {
		n.log.Warn().Int("rows", stats.BookingIDCleaned).Msg("booking_id cleaned")
	}
	if stats.BookingIDDropped > 0 {
		n.log.Error().Int("rows", stats.BookingIDDropped).Msg("booking_id still null after cleaning, rows dropped")
	}
	return kept
}

func (n *Normalizer) cleanPatientIDs(rows []working, stats *AppointmentStats) []working {
	kept := rows[:0]
	for _, w := range rows {
		w.appt.PatientID = int64Of(w.raw[ColPatientID])
		if w.appt.PatientID == nil {
			stats.PatientIDDropped++
			continue
		}
		kept = append(kept, w)
	}

	if stats.PatientIDDropped > 0 {
		n.log.Warn().Int("rows", stats.PatientIDDropped).Msg("patient_id null, rows dropped")
	}
	return kept
}

// cleanDoctorIDs never truncates: a fractional foreign key becomes nil so the
// quality gate rejects the run.
func (n *Normalizer) cleanDoctorIDs(rows []working, stats *AppointmentStats) {
	for i := range rows {
		raw := rows[i].raw[ColDoctorID]
		rows[i].appt.DoctorID = int64Of(raw)
		if rows[i].appt.DoctorID != nil {
			continue
		}
		if f, ok := numberOf(raw); ok && f != math.Trunc(f) {
			stats.DoctorIDFractional++
		}
	}

	if stats.DoctorIDFractional > 0 {
		n.log.Error().Int("rows", stats.DoctorIDFractional).Msg("doctor_id has non-integer values, set to null")
	}
}

func (n *Normalizer) parseBookingDates(rows []working, stats *AppointmentStats) []working {
	remaining := 0
	for i := range rows {
		rows[i].appt.BookingDate = ParseMixedDate(rows[i].raw[ColBookingDate])
		if rows[i].appt.BookingDate == nil {
			remaining++
		}
	}
	n.log.Info().Int("remaining_invalid", remaining).Msg("booking_date parsed")

	kept := rows[:0]
	for _, w := range rows {
		if d := w.appt.BookingDate; d != nil && d.Year() >= n.rules.MaxBookingYear {
			stats.UnrealisticDates++
			continue
		}
		kept = append(kept, w)
	}

	if stats.UnrealisticDates > 0 {
		n.log.Warn().
			Int("rows", stats.UnrealisticDates).
			Int("min_year", n.rules.MaxBookingYear).
			Msg("unrealistic booking_date dropped")
	}
	return kept
}

func (n *Normalizer) dumpInvalidDates(appts []Appointment, stats *AppointmentStats) error {
	var invalid []Appointment
	for _, a := range appts {
		if a.BookingDate == nil {
			invalid = append(invalid, a)
		}
	}
	stats.InvalidDates = len(invalid)

	if len(invalid) > 0 {
		preview := make([]string, 0, previewRows)
		for i := 0; i < len(invalid) && i < previewRows; i++ {
			preview = append(preview, strings.Join(invalid[i].Record(), ","))
		}
		n.log.Warn().
			Int("rows", len(invalid)).
			Strs("columns", AppointmentColumns).
			Strs("preview", preview).
			Msg("invalid booking_date rows")
	}

	if n.dump == nil {
		return nil
	}
	if err := n.dump.DumpAppointments(InvalidBookingDateDump, invalid); err != nil {
		return fmt.Errorf("dump invalid booking_date rows: %w", err)
	}
	if len(invalid) > 0 {
		n.log.Warn().Str("file", InvalidBookingDateDump).Msg("invalid booking_date rows dumped")
	}
	return nil
}

func (n *Normalizer) normalizeStatuses(rows []working, out []Appointment, stats *AppointmentStats) {
	before := make(map[string]int)
	after := make(map[string]int)
	for i := range rows {
		raw := nullToken
		if s, ok := textOf(rows[i].raw[ColStatus]); ok {
			raw = strings.ToLower(strings.TrimSpace(s))
		}
		before[raw]++

		if canonical, found := n.rules.NormalizeStatus(rows[i].raw[ColStatus]); found {
			out[i].Status = &canonical
			after[canonical]++
			continue
		}
		out[i].Status = nil
		after[nullToken]++
		stats.UnmappedStatuses++
	}

	n.log.Info().
		Interface("before", before).
		Interface("after", after).
		Msg("status normalized")
}

func trimmedText(v any) *string {
	s, ok := textOf(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}
