// Package diagnostics writes rows diverted from the pipeline to delimited
// files for human review. The files are never read back by the pipeline.
package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ehr/etl/internal/platform/csvfile"
	"github.com/ehr/etl/internal/transform"
)

// Writer dumps appointment rows under a fixed directory, one file per dump
// name, overwritten on every run.
type Writer struct {
	dir string
	log zerolog.Logger
}

func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, log: logger.With().Str("component", "diagnostics").Logger()}
}

// Path returns where the named dump is written.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// DumpAppointments writes rows to the named dump. An empty set removes any
// dump left by a previous run.
func (w *Writer) DumpAppointments(name string, rows []transform.Appointment) error {
	path := w.Path(name)
	if len(rows) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale dump %s: %w", path, err)
		}
		return nil
	}

	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.Record()
	}
	if err := csvfile.Write(path, transform.AppointmentColumns, records); err != nil {
		return err
	}

	w.log.Debug().Str("path", path).Int("rows", len(rows)).Msg("dump written")
	return nil
}
