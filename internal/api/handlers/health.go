package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Togather-Foundation/orbit/internal/metrics"
)

// Check outcomes. A failing check makes /readyz answer 503; warnings only degrade it.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

const checkTimeout = 2 * time.Second

// HealthCheck is the /readyz body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Check probes one dependency. ctx carries the per-check deadline.
type Check func(ctx context.Context) CheckResult

type HealthOptions struct {
	DB *sql.DB
	// Dialect is "sqlite" or "postgres".
	Dialect   string
	Jobs      bool
	Version   string
	GitCommit string
}

// HealthChecker runs the readiness checks behind /readyz concurrently.
type HealthChecker struct {
	names     []string
	checks    map[string]Check
	version   string
	gitCommit string
	now       func() time.Time
}

func NewHealthChecker(opts HealthOptions) *HealthChecker {
	h := &HealthChecker{
		checks:    make(map[string]Check),
		version:   opts.Version,
		gitCommit: opts.GitCommit,
		now:       time.Now,
	}
	h.Register("database", databaseCheck(opts.DB, opts.Dialect))
	h.Register("migrations", migrationsCheck(opts.DB))
	if opts.Jobs {
		h.Register("job_queue", jobQueueCheck(opts.DB, opts.Dialect))
	}
	return h
}

// Register adds or replaces a named check.
func (h *HealthChecker) Register(name string, check Check) {
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

func (h *HealthChecker) run(ctx context.Context) map[string]CheckResult {
	results := make([]CheckResult, len(h.names))
	var g errgroup.Group
	for i, name := range h.names {
		check := h.checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := h.now()
			res := check(cctx)
			res.LatencyMs = h.now().Sub(start).Milliseconds()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]CheckResult, len(h.names))
	for i, name := range h.names {
		out[name] = results[i]
		metrics.HealthCheckLatency.WithLabelValues(name).Set(float64(results[i].LatencyMs))
	}
	return out
}

// overall folds check results into healthy, degraded or unhealthy.
func overall(checks map[string]CheckResult) (string, int) {
	status, code := "healthy", http.StatusOK
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			return "unhealthy", http.StatusServiceUnavailable
		case CheckWarn:
			status = "degraded"
		}
	}
	return status, code
}

var healthGauge = map[string]float64{"unhealthy": 0, "degraded": 1, "healthy": 2}

// Readyz reports whether the server can take traffic.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeHealth(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		}

		checks := h.run(r.Context())
		status, code := overall(checks)
		metrics.HealthStatus.Set(healthGauge[status])

		writeHealth(w, code, HealthCheck{
			Status:    status,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
	})
}

// Healthz is the liveness probe. It never touches the database.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func failed(ctx context.Context, msg string, err error, remediation string) CheckResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("%s: timed out after %s", msg, checkTimeout)
	}
	details := map[string]any{"error": err.Error()}
	if remediation != "" {
		details["remediation"] = remediation
	}
	return CheckResult{Status: CheckFail, Message: msg, Details: details}
}

func missingTable(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "no such table") || strings.Contains(s, "does not exist")
}

func databaseCheck(db *sql.DB, dialect string) Check {
	return func(ctx context.Context) CheckResult {
		if db == nil {
			return CheckResult{Status: CheckFail, Message: "Database not initialized"}
		}
		if err := db.PingContext(ctx); err != nil {
			return failed(ctx, "Database unreachable", err, "Check DATABASE_URL and the database service")
		}
		stats := db.Stats()
		return CheckResult{
			Status:  CheckPass,
			Message: dialect + " connection successful",
			Details: map[string]any{
				"engine":           dialect,
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
			},
		}
	}
}

func migrationsCheck(db *sql.DB) Check {
	return func(ctx context.Context) CheckResult {
		if db == nil {
			return CheckResult{Status: CheckFail, Message: "Database not initialized"}
		}
		var (
			version int64
			dirty   bool
		)
		err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
		switch {
		case err != nil && missingTable(err):
			return failed(ctx, "Migrations not applied", err, "Run: orbit migrate up")
		case err != nil:
			return failed(ctx, "Failed to read migration version", err, "")
		case dirty:
			return CheckResult{
				Status:  CheckFail,
				Message: fmt.Sprintf("Migration %d is dirty; fix it by hand before migrating again", version),
				Details: map[string]any{"version": version, "dirty": true},
			}
		}
		return CheckResult{
			Status:  CheckPass,
			Message: fmt.Sprintf("Schema at version %d", version),
			Details: map[string]any{"version": version},
		}
	}
}

func jobQueueCheck(db *sql.DB, dialect string) Check {
	return func(ctx context.Context) CheckResult {
		if dialect != "postgres" {
			return CheckResult{Status: CheckWarn, Message: "Job queue requires PostgreSQL; retention runs on requests"}
		}
		if db == nil {
			return CheckResult{Status: CheckFail, Message: "Database not initialized"}
		}
		var active int64
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM river_job WHERE state IN ('available', 'running')`).Scan(&active)
		switch {
		case err != nil && missingTable(err):
			return CheckResult{Status: CheckWarn, Message: "River tables not found", Details: map[string]any{"remediation": "Start the server with jobs enabled"}}
		case err != nil:
			return failed(ctx, "Failed to query job queue", err, "")
		}
		return CheckResult{Status: CheckPass, Message: "River job queue operational", Details: map[string]any{"active_jobs": active}}
	}
}
