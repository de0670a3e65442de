package transform

import (
	"sort"
	"strconv"
	"time"
)

// Row is one raw source record keyed by column name. Values are nil, string,
// float64, int64, bool or time.Time.
type Row map[string]any

// Table is an ordered set of raw rows plus the header they were read with.
type Table struct {
	Columns []string
	Rows    []Row
}

// Column names shared by the source sheets, the snapshots and the database.
const (
	ColDoctorID    = "doctor_id"
	ColName        = "name"
	ColSpecialty   = "specialty"
	ColBookingID   = "booking_id"
	ColPatientID   = "patient_id"
	ColBookingDate = "booking_date"
	ColStatus      = "status"
)

var (
	DoctorColumns      = []string{ColDoctorID, ColName, ColSpecialty}
	AppointmentColumns = []string{ColBookingID, ColPatientID, ColDoctorID, ColBookingDate, ColStatus}
)

// DateLayout is the canonical textual form of a booking date.
const DateLayout = "2006-01-02"

// Doctor is a normalized doctors row.
type Doctor struct {
	DoctorID  *int64  `db:"doctor_id" json:"doctor_id"`
	Name      *string `db:"name" json:"name"`
	Specialty *string `db:"specialty" json:"specialty"`
}

// Row renders the doctor back into raw form.
func (d Doctor) Row() Row {
	return Row{
		ColDoctorID:  int64Val(d.DoctorID),
		ColName:      strAny(d.Name),
		ColSpecialty: strAny(d.Specialty),
	}
}

// Record returns the doctor as delimited-text fields in DoctorColumns order.
func (d Doctor) Record() []string {
	return []string{fmtInt(d.DoctorID), strVal(d.Name), strVal(d.Specialty)}
}

// Values returns the doctor in DoctorColumns order for bulk insert.
func (d Doctor) Values() []any {
	return []any{d.DoctorID, d.Name, d.Specialty}
}

// Appointment is a normalized appointments row. BookingDate is a UTC
// midnight.
type Appointment struct {
	BookingID   *int64     `db:"booking_id" json:"booking_id"`
	PatientID   *int64     `db:"patient_id" json:"patient_id"`
	DoctorID    *int64     `db:"doctor_id" json:"doctor_id"`
	BookingDate *time.Time `db:"booking_date" json:"booking_date"`
	Status      *string    `db:"status" json:"status"`
}

// Row renders the appointment back into raw form.
func (a Appointment) Row() Row {
	var date any
	if a.BookingDate != nil {
		date = *a.BookingDate
	}
	return Row{
		ColBookingID:   int64Val(a.BookingID),
		ColPatientID:   int64Val(a.PatientID),
		ColDoctorID:    int64Val(a.DoctorID),
		ColBookingDate: date,
		ColStatus:      strAny(a.Status),
	}
}

// Record returns the appointment as delimited-text fields in
// AppointmentColumns order.
func (a Appointment) Record() []string {
	date := ""
	if a.BookingDate != nil {
		date = a.BookingDate.Format(DateLayout)
	}
	return []string{fmtInt(a.BookingID), fmtInt(a.PatientID), fmtInt(a.DoctorID), date, strVal(a.Status)}
}

// Values returns the appointment in AppointmentColumns order for bulk insert.
func (a Appointment) Values() []any {
	return []any{a.BookingID, a.PatientID, a.DoctorID, a.BookingDate, a.Status}
}

// missingColumns returns the required names absent from cols, sorted.
func missingColumns(cols []string, required []string) []string {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	var missing []string
	for _, r := range required {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return missing
}

func int64Val(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func strAny(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fmtInt(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
