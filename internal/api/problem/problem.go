// Package problem writes RFC 7807 problem details for the JSON API.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
)

const contentType = "application/problem+json"

const typeBase = "https://orbit.togather.foundation/problems/"

const (
	TypeValidation       = typeBase + "validation-error"
	TypeNotFound         = typeBase + "not-found"
	TypeConflict         = typeBase + "conflict"
	TypeCapacityExceeded = typeBase + "capacity-exceeded"
	TypeForbidden        = typeBase + "forbidden"
	TypeUnauthorized     = typeBase + "unauthorized"
	TypeTooLarge         = typeBase + "payload-too-large"
	TypeCSRF             = typeBase + "csrf-failure"
	TypeRateLimited      = typeBase + "rate-limited"
	TypeServerError      = typeBase + "server-error"
)

type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) { p.Detail = detail }
}

// WithErrors attaches per-field messages, keyed by form field name.
func WithErrors(fields map[string]string) Option {
	return func(p *ProblemDetails) { p.Errors = fields }
}

type class struct {
	status int
	typ    string
	title  string
}

var classes = map[apperr.Kind]class{
	apperr.Validation:       {http.StatusBadRequest, TypeValidation, "Invalid request"},
	apperr.NotFound:         {http.StatusNotFound, TypeNotFound, "Not found"},
	apperr.Conflict:         {http.StatusConflict, TypeConflict, "Conflict"},
	apperr.CapacityExceeded: {http.StatusConflict, TypeCapacityExceeded, "Capacity exceeded"},
	apperr.Permission:       {http.StatusForbidden, TypeForbidden, "Forbidden"},
	apperr.Auth:             {http.StatusUnauthorized, TypeUnauthorized, "Unauthorized"},
}

var serverError = class{http.StatusInternalServerError, TypeServerError, "Server error"}

// Classify maps an error kind to its HTTP status, problem type and title.
// Unknown kinds, Internal included, are server errors.
func Classify(kind apperr.Kind) (int, string, string) {
	c, ok := classes[kind]
	if !ok {
		c = serverError
	}
	return c.status, c.typ, c.title
}

// Write logs err against the request logger and sends a problem. Unless a
// detail option is given, err's text reaches the client only in development
// and test.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{Type: typ, Title: title, Status: status}
	if r != nil {
		p.Instance = r.URL.Path
	}
	for _, opt := range opts {
		opt(&p)
	}

	if err != nil {
		if p.Detail == "" {
			p.Detail = http.StatusText(status)
			if env == "development" || env == "test" {
				p.Detail = err.Error()
			}
		}
		if r != nil {
			logProblem(r, p, err)
		}
	}

	WriteProblem(w, p)
}

func logProblem(r *http.Request, p ProblemDetails, err error) {
	log := zerolog.Ctx(r.Context())
	level := zerolog.WarnLevel
	if p.Status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).
		Err(err).
		Int("status", p.Status).
		Str("type", p.Type).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(p.Title)
}

// FromError writes the problem matching a domain error. Classified errors carry
// user-facing messages and are always shown; anything else is a 500.
func FromError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Write(w, r, http.StatusRequestEntityTooLarge, TypeTooLarge, "Payload too large", err, env,
			WithDetail(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)))
		return
	}

	kind := apperr.KindOf(err)
	status, typ, title := Classify(kind)
	if kind == apperr.Internal {
		Write(w, r, status, typ, title, err, env)
		return
	}

	opts := []Option{WithDetail(apperr.Message(err, title))}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		opts = append(opts, WithErrors(verr.Fields))
	}
	Write(w, r, status, typ, title, err, env, opts...)
}

// fallbackBody is sent if a problem cannot be encoded.
var fallbackBody = []byte(`{"type":"about:blank","title":"Internal Server Error","status":500}`)

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	body, err := json.Marshal(p)
	if err != nil {
		body, p.Status = fallbackBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(p.Status)
	_, _ = w.Write(body)
}

var ErrUnauthorized = apperr.New(apperr.Auth, "Please log in first")
