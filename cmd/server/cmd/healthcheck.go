package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	url           string
	ready         bool
	allowDegraded bool
	timeout       time.Duration
}

// probeResult is the outcome of one GET against /healthz or /readyz.
type probeResult struct {
	Status  string
	Latency time.Duration
	Failing []string
	Err     error
}

// healthy reports whether the probe passed. degraded only counts when allowed.
func (p probeResult) healthy(allowDegraded bool) bool {
	if p.Err != nil {
		return false
	}
	switch p.Status {
	case "ok", "healthy":
		return true
	case "degraded":
		return allowDegraded
	}
	return false
}

type probeBody struct {
	Status string `json:"status"`
	Checks map[string]struct {
		Status string `json:"status"`
	} `json:"checks"`
}

func newHealthcheckCommand() *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server",
		Long: `Probe a running Orbit server and exit non-zero unless it reports healthy.

By default the liveness endpoint /healthz is probed. --ready probes /readyz,
which also checks the database, the schema migrations, and the job queue.

Examples:
  orbit healthcheck
  orbit healthcheck --ready --allow-degraded --timeout 2s
  orbit healthcheck --url http://orbit.internal:8080/readyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := opts.url
			if target == "" {
				target = defaultProbeURL(os.Getenv("SERVER_PORT"), opts.ready)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			res := probe(ctx, http.DefaultClient, target)
			if !res.healthy(opts.allowDegraded) {
				return probeError(target, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%dms)\n", target, res.Status, res.Latency.Milliseconds())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "endpoint to probe (default: http://localhost:{SERVER_PORT}/healthz)")
	cmd.Flags().BoolVar(&opts.ready, "ready", false, "probe /readyz instead of /healthz")
	cmd.Flags().BoolVar(&opts.allowDegraded, "allow-degraded", false, "accept a degraded readiness report")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func defaultProbeURL(port string, ready bool) string {
	if port == "" {
		port = "8080"
	}
	path := "/healthz"
	if ready {
		path = "/readyz"
	}
	return "http://localhost:" + port + path
}

func probe(ctx context.Context, client *http.Client, url string) probeResult {
	var res probeResult
	start := time.Now()
	defer func() { res.Latency = time.Since(start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = err
		return res
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("timed out")
		}
		res.Err = err
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	var body probeBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		res.Err = fmt.Errorf("invalid response (HTTP %d): %w", resp.StatusCode, err)
		return res
	}
	res.Status = body.Status
	for name, check := range body.Checks {
		if check.Status != "pass" {
			res.Failing = append(res.Failing, name+"="+check.Status)
		}
	}
	sort.Strings(res.Failing)
	if resp.StatusCode != http.StatusOK && res.Status == "" {
		res.Status = http.StatusText(resp.StatusCode)
	}
	return res
}

func probeError(target string, res probeResult) error {
	if res.Err != nil {
		return fmt.Errorf("health check %s: %w", target, res.Err)
	}
	if len(res.Failing) > 0 {
		return fmt.Errorf("health check %s: %s (%s)", target, res.Status, strings.Join(res.Failing, ", "))
	}
	return fmt.Errorf("health check %s: %s", target, res.Status)
}
