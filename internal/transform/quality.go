package transform

import (
	"fmt"

	"github.com/rs/zerolog"
)

// GateReport holds the counts behind each quality gate check.
type GateReport struct {
	DoctorNullIDs       int `json:"doctor_null_ids"`
	DoctorDupIDs        int `json:"doctor_dup_ids"`
	BookingNullIDs      int `json:"booking_null_ids"`
	BookingDupIDs       int `json:"booking_dup_ids"`
	AppointmentNullDoc  int `json:"appointment_null_doctor_id"`
	InvalidStatuses     int `json:"invalid_statuses"`
	InvalidBookingDates int `json:"invalid_booking_dates"`
}

// Violations renders every failed check, in a fixed order.
func (r GateReport) Violations() []string {
	var errs []string
	if r.DoctorNullIDs > 0 || r.DoctorDupIDs > 0 {
		errs = append(errs, fmt.Sprintf("Doctors PK violations: null=%d, dup=%d", r.DoctorNullIDs, r.DoctorDupIDs))
	}
	if r.BookingNullIDs > 0 || r.BookingDupIDs > 0 {
		errs = append(errs, fmt.Sprintf("Appointments PK violations: null=%d, dup=%d", r.BookingNullIDs, r.BookingDupIDs))
	}
	if r.AppointmentNullDoc > 0 {
		errs = append(errs, fmt.Sprintf("Appointments doctor_id NULL count: %d", r.AppointmentNullDoc))
	}
	if r.InvalidStatuses > 0 {
		errs = append(errs, fmt.Sprintf("Appointments invalid status values after normalization: %d", r.InvalidStatuses))
	}
	if r.InvalidBookingDates > 0 {
		errs = append(errs, fmt.Sprintf("Appointments invalid booking_date values: %d", r.InvalidBookingDates))
	}
	return errs
}

// QualityGate checks batch-level invariants over both normalized sets. It
// never mutates or drops rows.
type QualityGate struct {
	rules Rules
	log   zerolog.Logger
}

func NewQualityGate(rules Rules, logger zerolog.Logger) *QualityGate {
	return &QualityGate{rules: rules, log: logger.With().Str("component", "quality_gate").Logger()}
}

// Inspect evaluates every check and returns the counts.
func (g *QualityGate) Inspect(doctors []Doctor, appts []Appointment) GateReport {
	var r GateReport

	docIDs := make([]*int64, len(doctors))
	for i := range doctors {
		docIDs[i] = doctors[i].DoctorID
	}
	r.DoctorNullIDs, r.DoctorDupIDs = keyDefects(docIDs)

	bookingIDs := make([]*int64, len(appts))
	for i := range appts {
		bookingIDs[i] = appts[i].BookingID
		if appts[i].DoctorID == nil {
			r.AppointmentNullDoc++
		}
		if !g.rules.IsValidStatus(appts[i].Status) {
			r.InvalidStatuses++
		}
		if appts[i].BookingDate == nil {
			r.InvalidBookingDates++
		}
	}
	r.BookingNullIDs, r.BookingDupIDs = keyDefects(bookingIDs)

	return r
}

// Check inspects both datasets once and fails with a *ValidationError naming
// every violated check. The report is returned either way.
func (g *QualityGate) Check(doctors []Doctor, appts []Appointment) (GateReport, error) {
	report := g.Inspect(doctors, appts)
	if violations := report.Violations(); len(violations) > 0 {
		err := &ValidationError{Violations: violations}
		g.log.Error().Str("violations", err.Error()).Msg("quality gates failed")
		return report, err
	}

	g.log.Info().
		Strs("valid_statuses", g.rules.ValidStatusList()).
		Msg("quality gates passed: PKs, NOT NULLs, status domain, and date validity OK")
	return report, nil
}

// keyDefects counts nil keys and repeated keys. A nil after the first nil is
// also a duplicate.
func keyDefects(keys []*int64) (nulls, dups int) {
	seen := make(map[int64]bool, len(keys))
	seenNull := false
	for _, k := range keys {
		if k == nil {
			nulls++
			if seenNull {
				dups++
			}
			seenNull = true
			continue
		}
		if seen[*k] {
			dups++
			continue
		}
		seen[*k] = true
	}
	return nulls, dups
}
