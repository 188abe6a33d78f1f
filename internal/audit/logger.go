// Package audit records account and ownership changes as structured log lines,
// separate from the per-request access log.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string
	Details      map[string]string
}

// Logger writes audit entries. A nil *Logger discards everything.
type Logger struct {
	log zerolog.Logger
	now func() time.Time
}

// NewLogger tags every line it writes with audit=true.
func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{
		log: base.With().Bool("audit", true).Logger(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Log writes one entry.
func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	ev := l.log.Info()
	if entry.Status == StatusFailure {
		ev = l.log.Warn()
	}
	ev = ev.Time("at", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		ev = ev.Str("resource_type", entry.ResourceType).Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		ev = ev.Str("ip", entry.IPAddress)
	}
	if len(entry.Details) > 0 {
		d := zerolog.Dict()
		for k, v := range entry.Details {
			d = d.Str(k, v)
		}
		ev = ev.Dict("details", d)
	}
	ev.Msg("audit")
}

// LogRequest fills the caller address from r and writes the entry.
func (l *Logger) LogRequest(r *http.Request, entry Entry) {
	if l == nil {
		return
	}
	if entry.IPAddress == "" && r != nil {
		entry.IPAddress = remoteIP(r)
	}
	l.Log(entry)
}

// remoteIP is the direct peer. Forwarding headers are not consulted since they are
// caller-controlled unless a trusted proxy rewrote them.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
