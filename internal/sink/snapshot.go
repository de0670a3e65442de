package sink

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ehr/etl/internal/platform/csvfile"
	"github.com/ehr/etl/internal/transform"
)

const (
	DoctorsSnapshot      = "final_doctors.csv"
	AppointmentsSnapshot = "final_appointments.csv"
)

// SnapshotWriter persists the final datasets as delimited files.
type SnapshotWriter struct {
	dir string
	log zerolog.Logger
}

func NewSnapshotWriter(dir string, logger zerolog.Logger) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, log: logger.With().Str("component", "snapshot").Logger()}
}

// Write replaces both snapshot files under the output directory.
func (w *SnapshotWriter) Write(doctors []transform.Doctor, appts []transform.Appointment) error {
	docRecords := make([][]string, len(doctors))
	for i, d := range doctors {
		docRecords[i] = d.Record()
	}
	if err := csvfile.Write(filepath.Join(w.dir, DoctorsSnapshot), transform.DoctorColumns, docRecords); err != nil {
		return err
	}

	apptRecords := make([][]string, len(appts))
	for i, a := range appts {
		apptRecords[i] = a.Record()
	}
	if err := csvfile.Write(filepath.Join(w.dir, AppointmentsSnapshot), transform.AppointmentColumns, apptRecords); err != nil {
		return err
	}

	w.log.Info().
		Str("dir", w.dir).
		Int("doctors", len(doctors)).
		Int("appointments", len(appts)).
		Msg("dataset written")
	return nil
}
