package middleware

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const maxRequestIDLength = 128

// validRequestID accepts upstream IDs made of visible ASCII only, so they are
// safe to echo in headers and log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// newRequestID returns a ULID, so IDs sort by arrival time in log searches.
func newRequestID() string {
	return ulid.Make().String()
}

// CorrelationID gives every request an ID, reusing a well-formed X-Request-ID
// from upstream. The ID is echoed back and stored in the context together with
// a child of logger that carries it and, under an active span, the trace ID.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if !validRequestID(id) {
				id = newRequestID()
			}
			w.Header().Set("X-Request-ID", id)

			fields := logger.With().Str("request_id", id)
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				fields = fields.Str("trace_id", sc.TraceID().String())
			}
			reqLog := fields.Logger()

			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(reqLog.WithContext(ctx)))
		})
	}
}

// RequestID returns the ID assigned by CorrelationID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LoggerFromContext returns the request logger, or a no-op logger outside a request.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}
