package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

var (
	RiverJobsInserted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "river_jobs_inserted_total",
			Help:      "River jobs inserted, by kind",
		},
		[]string{"kind"},
	)

	RiverJobsRunning = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "river_jobs_running",
			Help:      "River jobs currently being worked, by kind",
		},
		[]string{"kind"},
	)

	RiverJobDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "river_job_duration_seconds",
			Help:      "Time spent working a River job attempt",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"kind"},
	)

	RiverJobsWorked = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "river_jobs_worked_total",
			Help:      "River job attempts by kind and result (success or error)",
		},
		[]string{"kind", "result"},
	)
)

// RiverHook feeds the River job metrics. Attempt duration is measured from the
// attempted_at timestamp River sets when it hands the job to a worker.
type RiverHook struct {
	river.HookDefaults
	now func() time.Time
}

func NewRiverHook() *RiverHook {
	return &RiverHook{now: time.Now}
}

func (h *RiverHook) InsertBegin(_ context.Context, params *rivertype.JobInsertParams) error {
	RiverJobsInserted.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *RiverHook) WorkBegin(_ context.Context, job *rivertype.JobRow) error {
	RiverJobsRunning.WithLabelValues(job.Kind).Inc()
	return nil
}

func (h *RiverHook) WorkEnd(_ context.Context, job *rivertype.JobRow, err error) error {
	RiverJobsRunning.WithLabelValues(job.Kind).Dec()
	if job.AttemptedAt != nil {
		RiverJobDuration.WithLabelValues(job.Kind).Observe(h.now().Sub(*job.AttemptedAt).Seconds())
	}
	RiverJobsWorked.WithLabelValues(job.Kind, resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
