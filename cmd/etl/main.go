package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/etl/internal/config"
	"github.com/ehr/etl/internal/diagnostics"
	"github.com/ehr/etl/internal/pipeline"
	"github.com/ehr/etl/internal/platform/db"
	"github.com/ehr/etl/internal/platform/logging"
	"github.com/ehr/etl/internal/sink"
	"github.com/ehr/etl/internal/source"
	"github.com/ehr/etl/internal/transform"
)

// Process exit codes.
const (
	exitOK         = 0
	exitFatal      = 1
	exitLoadFailed = 2
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if errors.Is(err, sink.ErrLoadFailed) {
		return exitLoadFailed
	}
	return exitFatal
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "etl",
		Short:         "Doctors and appointments ETL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("env-file", ".env", "Optional env file read before the environment")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(dbCmd())
	return cmd
}

func addPathFlags(cmd *cobra.Command) {
	cmd.Flags().String("doctors", "", "Doctors workbook (overrides "+config.EnvDoctorsPath+")")
	cmd.Flags().String("appointments", "", "Appointments workbook (overrides "+config.EnvAppointmentsPath+")")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract, clean, validate and load both datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.cfg.RequireDatabase(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, loader, err := env.runner(true)
			if err != nil {
				return err
			}
			defer loader.Close()

			_, err = runner.Run(ctx)
			return err
		},
	}
	addPathFlags(cmd)
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Clean and validate both datasets without writing snapshots or touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			runner, _, err := env.runner(false)
			if err != nil {
				return err
			}
			res, err := runner.Transform(cmd.Context())
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(map[string]interface{}{
				"run_id":            res.RunID,
				"doctors":           len(res.Doctors),
				"appointments":      len(res.Appointments),
				"rejected":          len(res.Rejected),
				"appointment_stats": res.Stats,
			})
		},
	}
	addPathFlags(cmd)
	return cmd
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Connect to the database and print pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.cfg.RequireDatabase(); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, env.cfg.PoolConfig())
			if err != nil {
				return err
			}
			defer pool.Close()

			stats, err := db.Check(ctx, pool)
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if encErr := out.Encode(stats); encErr != nil {
				return encErr
			}
			if err != nil {
				return fmt.Errorf("database unhealthy: %w", err)
			}
			return nil
		},
	})
	return cmd
}

// cmdEnv holds what every subcommand needs once flags and config are read.
type cmdEnv struct {
	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
}

func setup(cmd *cobra.Command) (*cmdEnv, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadFrom(envFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("doctors"); f != nil && f.Changed {
		cfg.DoctorsPath = f.Value.String()
	}
	if f := cmd.Flags().Lookup("appointments"); f != nil && f.Changed {
		cfg.AppointmentsPath = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:   level,
		Console: cfg.IsDev(),
		Dir:     cfg.LogDir,
		Stdout:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return &cmdEnv{cfg: cfg, log: logger, closer: closer}, nil
}

func (e *cmdEnv) close() {
	_ = e.closer.Close()
}

// runner builds a pipeline whose components all log under one run_id.
// Without persist the runner can only Transform and the loader is nil.
func (e *cmdEnv) runner(persist bool) (*pipeline.Runner, *poolLoader, error) {
	rules, err := e.cfg.Rules()
	if err != nil {
		return nil, nil, err
	}

	runID, logger := pipeline.NewRunID(e.log)
	deps := pipeline.Deps{
		Source: source.NewReader(logger),
		Dumper: diagnostics.NewWriter(e.cfg.DiagnosticsDir, logger),
	}
	var loader *poolLoader
	if persist {
		loader = &poolLoader{cfg: e.cfg, log: logger}
		deps.Snapshots = sink.NewSnapshotWriter(e.cfg.ProcessedDir, logger)
		deps.Loader = loader
	}

	return pipeline.New(pipeline.Options{
		RunID:            runID,
		DoctorsPath:      e.cfg.DoctorsPath,
		AppointmentsPath: e.cfg.AppointmentsPath,
		Rules:            rules,
	}, deps, logger), loader, nil
}

// poolLoader connects on first use so a run that fails validation never
// opens a connection.
type poolLoader struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
}

func (l *poolLoader) Load(ctx context.Context, doctors []transform.Doctor, appts []transform.Appointment) (sink.LoadResult, error) {
	if l.pool == nil {
		pool, err := db.NewPool(ctx, l.cfg.PoolConfig())
		if err != nil {
			return sink.LoadResult{}, fmt.Errorf("connect database: %w", err)
		}
		l.pool = pool
		l.log.Info().Msg("connected to database")
	}
	return sink.NewLoader(l.pool, l.cfg.DBSchema, l.log).Load(ctx, doctors, appts)
}

func (l *poolLoader) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
