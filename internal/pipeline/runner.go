// Package pipeline wires extraction, transformation, validation and loading
// into a single batch run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/etl/internal/config"
	"github.com/ehr/etl/internal/sink"
	"github.com/ehr/etl/internal/transform"
)

// ErrNoOutputs is returned by Run when the runner was built without a
// snapshot writer or loader.
var ErrNoOutputs = errors.New("pipeline has no snapshot writer or loader")

// Source reads one input file into a raw table.
type Source interface {
	Read(ctx context.Context, path, envHint string) (*transform.Table, error)
}

// Snapshotter persists the final datasets.
type Snapshotter interface {
	Write(doctors []transform.Doctor, appts []transform.Appointment) error
}

// Loader replaces the destination tables with the final datasets.
type Loader interface {
	Load(ctx context.Context, doctors []transform.Doctor, appts []transform.Appointment) (sink.LoadResult, error)
}

// Options selects the inputs and rules for a run.
type Options struct {
	RunID            string
	DoctorsPath      string
	AppointmentsPath string
	Rules            transform.Rules
}

// Deps are the collaborators a Runner drives. Snapshots and Loader may be nil
// for a dry run.
type Deps struct {
	Source    Source
	Dumper    transform.Dumper
	Snapshots Snapshotter
	Loader    Loader
}

// Result is what a run produced.
type Result struct {
	RunID        string                     `json:"run_id"`
	Doctors      []transform.Doctor         `json:"-"`
	Appointments []transform.Appointment    `json:"-"`
	Rejected     []transform.Appointment    `json:"-"`
	Stats        transform.AppointmentStats `json:"appointment_stats"`
	Gate         transform.GateReport       `json:"gate"`
	Loaded       *sink.LoadResult           `json:"loaded,omitempty"`
	Duration     time.Duration              `json:"duration"`
}

type Runner struct {
	opts       Options
	deps       Deps
	normalizer *transform.Normalizer
	gate       *transform.QualityGate
	fk         *transform.ForeignKeyEnforcer
	log        zerolog.Logger
}

// NewRunID tags logger with a fresh run_id. Build every component of a run
// from the returned logger so all lines of the run share it.
func NewRunID(logger zerolog.Logger) (string, zerolog.Logger) {
	id := uuid.NewString()
	return id, logger.With().Str("run_id", id).Logger()
}

func New(opts Options, deps Deps, logger zerolog.Logger) *Runner {
	return &Runner{
		opts:       opts,
		deps:       deps,
		normalizer: transform.NewNormalizer(opts.Rules, deps.Dumper, logger),
		gate:       transform.NewQualityGate(opts.Rules, logger),
		fk:         transform.NewForeignKeyEnforcer(deps.Dumper, logger),
		log:        logger.With().Str("component", "pipeline").Logger(),
	}
}

// Transform extracts both inputs, normalizes them, runs the quality gate and
// drops appointments with an unknown doctor. Nothing is persisted apart from
// the diagnostic dumps.
func (r *Runner) Transform(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: r.opts.RunID}

	rawDoctors, err := r.deps.Source.Read(ctx, r.opts.DoctorsPath, config.EnvDoctorsPath)
	if err != nil {
		return nil, fmt.Errorf("extract doctors: %w", err)
	}
	rawAppts, err := r.deps.Source.Read(ctx, r.opts.AppointmentsPath, config.EnvAppointmentsPath)
	if err != nil {
		return nil, fmt.Errorf("extract appointments: %w", err)
	}

	doctors, err := r.normalizer.Doctors(rawDoctors)
	if err != nil {
		return nil, err
	}
	appts, stats, err := r.normalizer.Appointments(rawAppts)
	if err != nil {
		return nil, err
	}
	res.Stats = stats

	res.Gate, err = r.gate.Check(doctors, appts)
	if err != nil {
		return nil, err
	}

	kept, rejected, err := r.fk.Enforce(doctors, appts)
	if err != nil {
		return nil, err
	}

	res.Doctors = doctors
	res.Appointments = kept
	res.Rejected = rejected
	res.Duration = time.Since(start)
	return res, nil
}

// Run performs Transform, writes the snapshots and loads the database. The
// load is never attempted when an earlier step fails.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.deps.Snapshots == nil || r.deps.Loader == nil {
		return nil, ErrNoOutputs
	}
	start := time.Now()
	r.log.Info().Msg("ETL started")

	res, err := r.Transform(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.deps.Snapshots.Write(res.Doctors, res.Appointments); err != nil {
		return nil, fmt.Errorf("write snapshots: %w", err)
	}

	loaded, err := r.deps.Loader.Load(ctx, res.Doctors, res.Appointments)
	if err != nil {
		return nil, err
	}
	res.Loaded = &loaded
	res.Duration = time.Since(start)

	r.log.Info().
		Int64("doctors", loaded.Doctors).
		Int64("appointments", loaded.Appointments).
		Int("rejected", len(res.Rejected)).
		Dur("duration", res.Duration).
		Msg("ETL finished successfully")
	return res, nil
}
