package transform

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ForeignKeyEnforcer drops appointments whose doctor_id is not a known
// doctor. It runs after the quality gate and only checks existence.
type ForeignKeyEnforcer struct {
	dump Dumper
	log  zerolog.Logger
}

func NewForeignKeyEnforcer(dump Dumper, logger zerolog.Logger) *ForeignKeyEnforcer {
	return &ForeignKeyEnforcer{dump: dump, log: logger.With().Str("component", "foreign_key").Logger()}
}

// Partition splits appts into rows referencing a doctor in doctors and the
// rest, both in input order.
func Partition(doctors []Doctor, appts []Appointment) (kept, rejected []Appointment) {
	valid := make(map[int64]struct{}, len(doctors))
	for _, d := range doctors {
		if d.DoctorID != nil {
			valid[*d.DoctorID] = struct{}{}
		}
	}

	kept = make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.DoctorID != nil {
			if _, ok := valid[*a.DoctorID]; ok {
				kept = append(kept, a)
				continue
			}
		}
		rejected = append(rejected, a)
	}
	return kept, rejected
}

// Enforce returns the appointments with a valid doctor reference and dumps the
// rejected rows.
func (e *ForeignKeyEnforcer) Enforce(doctors []Doctor, appts []Appointment) ([]Appointment, []Appointment, error) {
	kept, rejected := Partition(doctors, appts)

	if e.dump != nil {
		if err := e.dump.DumpAppointments(ForeignKeyRejectDump, rejected); err != nil {
			return nil, nil, fmt.Errorf("dump foreign key rejects: %w", err)
		}
	}

	if len(rejected) > 0 {
		e.log.Error().Int("rows", len(rejected)).Msg("FK violations (appointments with unknown doctor_id)")
		e.log.Error().Str("file", ForeignKeyRejectDump).Int("count", len(rejected)).Msg("FK violations dumped")
	}
	return kept, rejected, nil
}
