package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindRetentionSweep = "retention_sweep"

	// QueueMaintenance runs housekeeping jobs one at a time.
	QueueMaintenance = "maintenance"

	defaultSweepInterval = time.Hour
)

// ClientOptions wires a River client for the server.
type ClientOptions struct {
	Workers       *river.Workers
	Logger        *slog.Logger
	Hooks         []rivertype.Hook
	SweepInterval time.Duration
}

// NewClientConfig schedules the retention sweep on the maintenance queue.
func NewClientConfig(opts ClientOptions) *river.Config {
	cfg := &river.Config{
		Workers:      opts.Workers,
		PeriodicJobs: NewPeriodicJobs(opts.SweepInterval),
		Queues: map[string]river.QueueConfig{
			QueueMaintenance: {MaxWorkers: 1},
		},
		Hooks: opts.Hooks,
	}
	if opts.Logger != nil {
		cfg.Logger = opts.Logger
		cfg.ErrorHandler = &errorLogger{logger: opts.Logger}
	}
	return cfg
}

// NewClient creates a River client on the pgx v5 driver. It does not start it.
func NewClient(pool *pgxpool.Pool, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	client, err := river.NewClient(riverpgxv5.New(pool), NewClientConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}
	return client, nil
}

// NewPeriodicJobs schedules the retention sweep every interval, starting at boot.
func NewPeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := sweepInsertOpts(interval)
				return RetentionSweepArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// sweepInsertOpts makes a sweep single-attempt (the next period retries) and unique per
// period so replicas sharing the database insert it once.
func sweepInsertOpts(interval time.Duration) river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		Queue:       QueueMaintenance,
		UniqueOpts:  river.UniqueOpts{ByPeriod: interval},
	}
}

// Migrate installs or upgrades River's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	return nil
}

type errorLogger struct {
	logger *slog.Logger
}

func (h *errorLogger) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.logger.ErrorContext(ctx, "job failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
	return nil
}

func (h *errorLogger) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.ErrorContext(ctx, "job panicked", "job_id", job.ID, "kind", job.Kind, "panic", fmt.Sprint(panicVal), "trace", trace)
	return nil
}
