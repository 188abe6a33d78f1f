package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
)

// RetentionSweepArgs defines the periodic job that removes expired events.
type RetentionSweepArgs struct{}

func (RetentionSweepArgs) Kind() string { return JobKindRetentionSweep }

// RetentionSweepWorker runs the retention sweep. Sweep failures are logged by the Sweeper and
// the job still completes; the next periodic run tries again.
type RetentionSweepWorker struct {
	river.WorkerDefaults[RetentionSweepArgs]
	Sweeper *Sweeper
}

func (RetentionSweepWorker) Kind() string { return JobKindRetentionSweep }

func (w RetentionSweepWorker) Work(ctx context.Context, job *river.Job[RetentionSweepArgs]) error {
	if w.Sweeper == nil {
		return fmt.Errorf("sweeper not configured")
	}
	w.Sweeper.Run(ctx, TriggerJob)
	return nil
}

// NewWorkers registers every worker the server runs.
func NewWorkers(sweeper *Sweeper) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RetentionSweepArgs](workers, RetentionSweepWorker{Sweeper: sweeper})
	return workers
}
