package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/Togather-Foundation/orbit/internal/metrics"
	"github.com/Togather-Foundation/orbit/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("github.com/Togather-Foundation/orbit/internal/jobs")

// Sweep triggers, used as the metrics label and in logs.
const (
	TriggerRequest = "request"
	TriggerJob     = "job"
	TriggerCLI     = "cli"
)

// Purger deletes events older than the retention window.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
	RetentionCutoff() string
}

// Sweeper runs the retention purge. Failures are logged and never returned: a failed sweep
// must not fail the request or job that triggered it.
type Sweeper struct {
	purger   Purger
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func NewSweeper(purger Purger, logger zerolog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		purger:   purger,
		logger:   logger.With().Str("component", "retention").Logger(),
		interval: interval,
		now:      time.Now,
	}
}

// Run purges once and returns the number of events removed (zero on failure).
func (s *Sweeper) Run(ctx context.Context, trigger string) int64 {
	ctx, span := tracer.Start(ctx, "retention.sweep", trace.WithAttributes(attribute.String("retention.trigger", trigger)))
	defer span.End()

	start := time.Now()
	deleted, err := s.purger.PurgeExpired(ctx)
	metrics.RetentionSweepDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
		metrics.RetentionSweeps.WithLabelValues(trigger, "error").Inc()
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("retention sweep failed")
		return 0
	}

	metrics.RetentionSweeps.WithLabelValues(trigger, "success").Inc()
	metrics.RetentionEventsDeleted.WithLabelValues(trigger).Add(float64(deleted))
	span.SetAttributes(attribute.Int64("retention.deleted", deleted))
	if deleted > 0 {
		s.logger.Info().
			Str("trigger", trigger).
			Str("cutoff", s.purger.RetentionCutoff()).
			Int64("deleted", deleted).
			Msg("expired events removed")
	} else {
		s.logger.Debug().Str("trigger", trigger).Msg("retention sweep found nothing to remove")
	}
	return deleted
}

// MaybeRun runs a sweep when the interval has elapsed since the last one. Concurrent callers
// do not wait: whoever holds the lock sweeps, the rest return immediately.
func (s *Sweeper) MaybeRun(ctx context.Context) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.interval {
		return false
	}
	s.lastRun = now
	s.Run(ctx, TriggerRequest)
	return true
}
