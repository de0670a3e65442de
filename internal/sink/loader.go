// Package sink persists the final datasets: delimited snapshots and a
// transactional bulk load into PostgreSQL.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/etl/internal/transform"
)

// ErrLoadFailed wraps any error raised while the load transaction was open.
// The destination tables are left as they were.
var ErrLoadFailed = errors.New("load failed")

const (
	DoctorsTable      = "doctors"
	AppointmentsTable = "appointments"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LoadResult reports how many rows each table received.
type LoadResult struct {
	Doctors      int64 `json:"doctors"`
	Appointments int64 `json:"appointments"`
}

// Loader replaces the contents of the doctors and appointments tables in one
// transaction. Truncating first makes reruns idempotent.
type Loader struct {
	db     TxBeginner
	schema string
	log    zerolog.Logger
}

func NewLoader(db TxBeginner, schema string, logger zerolog.Logger) *Loader {
	return &Loader{db: db, schema: schema, log: logger.With().Str("component", "loader").Logger()}
}

func (l *Loader) table(name string) pgx.Identifier {
	if l.schema == "" {
		return pgx.Identifier{name}
	}
	return pgx.Identifier{l.schema, name}
}

// Load truncates both tables, copies doctors then appointments, and commits.
// Any failure rolls the whole transaction back and returns ErrLoadFailed.
func (l *Loader) Load(ctx context.Context, doctors []transform.Doctor, appts []transform.Appointment) (LoadResult, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: begin transaction: %w", ErrLoadFailed, err)
	}

	res, err := l.load(ctx, tx, doctors, appts)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			l.log.Error().Err(rbErr).Msg("rollback failed")
		}
		l.log.Error().
			Err(err).
			Str("schema", l.schema).
			Int("doctors", len(doctors)).
			Int("appointments", len(appts)).
			Msg("load failed, transaction rolled back")
		return LoadResult{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	l.log.Info().
		Int64("doctors", res.Doctors).
		Int64("appointments", res.Appointments).
		Msg("load committed")
	return res, nil
}

func (l *Loader) load(ctx context.Context, tx pgx.Tx, doctors []transform.Doctor, appts []transform.Appointment) (LoadResult, error) {
	var res LoadResult

	appTable, docTable := l.table(AppointmentsTable), l.table(DoctorsTable)
	l.log.Info().Str("tables", appTable.Sanitize()+", "+docTable.Sanitize()).Msg("truncating tables")
	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s, %s", appTable.Sanitize(), docTable.Sanitize())); err != nil {
		return res, fmt.Errorf("truncate: %w", err)
	}

	n, err := tx.CopyFrom(ctx, docTable, transform.DoctorColumns,
		pgx.CopyFromSlice(len(doctors), func(i int) ([]any, error) {
			return doctors[i].Values(), nil
		}))
	if err != nil {
		return res, fmt.Errorf("insert doctors: %w", err)
	}
	res.Doctors = n

	n, err = tx.CopyFrom(ctx, appTable, transform.AppointmentColumns,
		pgx.CopyFromSlice(len(appts), func(i int) ([]any, error) {
			return appts[i].Values(), nil
		}))
	if err != nil {
		return res, fmt.Errorf("insert appointments: %w", err)
	}
	res.Appointments = n

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}
