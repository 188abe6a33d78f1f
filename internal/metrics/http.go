package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template, and status class",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	HTTPResponseSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size by route template",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 7),
		},
		[]string{"method", "route"},
	)
)

// UnmatchedRoute labels requests that match no registered route.
const UnmatchedRoute = "unmatched"

// RouteLabeler maps request paths onto the registered route templates so the route label
// has a fixed set of values. Templates use ServeMux syntax: "{name}" matches one segment,
// a trailing "/" matches the whole subtree.
type RouteLabeler struct {
	routes []route
}

type route struct {
	template string
	segments []string
	subtree  bool
	wild     int
}

func NewRouteLabeler(templates ...string) *RouteLabeler {
	l := &RouteLabeler{}
	for _, t := range templates {
		r := route{template: t, subtree: len(t) > 1 && strings.HasSuffix(t, "/")}
		r.segments = splitPath(strings.TrimSuffix(t, "/"))
		for _, s := range r.segments {
			if isWildcard(s) {
				r.wild++
			}
		}
		l.routes = append(l.routes, r)
	}
	return l
}

// Label returns the most specific template matching path. Literal segments beat wildcards.
func (l *RouteLabeler) Label(path string) string {
	segments := splitPath(path)
	best, bestWild := UnmatchedRoute, -1
	for _, r := range l.routes {
		if !r.matches(segments) {
			continue
		}
		if bestWild == -1 || r.wild < bestWild {
			best, bestWild = r.template, r.wild
		}
	}
	return best
}

func (r route) matches(segments []string) bool {
	if r.subtree {
		if len(segments) < len(r.segments) {
			return false
		}
	} else if len(segments) != len(r.segments) {
		return false
	}
	for i, s := range r.segments {
		if isWildcard(s) {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if s != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isWildcard(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

// statusRecorder captures the status and body size. Unwrap keeps http.ResponseController working.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// HTTPMiddleware records request count, latency, and response size per route template.
func HTTPMiddleware(routes *RouteLabeler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HTTPRequestsInFlight.Inc()
			defer HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			method := methodLabel(r.Method)
			name := routes.Label(r.URL.Path)
			HTTPRequestsTotal.WithLabelValues(method, name, statusClass(rec.status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, name).Observe(time.Since(start).Seconds())
			HTTPResponseSize.WithLabelValues(method, name).Observe(float64(rec.size))
		})
	}
}

func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return "OTHER"
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
