package problem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
)

func decode(t *testing.T, res *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	var p ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&p))
	return p
}

func TestWrite_Detail(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{env: "development", want: "boom"},
		{env: "test", want: "boom"},
		{env: "production", want: http.StatusText(http.StatusBadRequest)},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events/7", nil)
			res := httptest.NewRecorder()

			Write(res, req, http.StatusBadRequest, TypeValidation, "bad request", errors.New("boom"), tt.env)

			p := decode(t, res)
			require.Equal(t, http.StatusBadRequest, res.Code)
			require.Equal(t, tt.want, p.Detail)
			require.Equal(t, "/api/v1/events/7", p.Instance)
		})
	}
}

func TestWrite_LogsAtStatusLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	Write(httptest.NewRecorder(), req, http.StatusInternalServerError, TypeServerError, "Server error", errors.New("disk full"), "production")
	Write(httptest.NewRecorder(), req, http.StatusNotFound, TypeNotFound, "Not found", errors.New("no row"), "production")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	require.Contains(t, string(lines[0]), `"level":"error"`)
	require.Contains(t, string(lines[0]), `"error":"disk full"`)
	require.Contains(t, string(lines[1]), `"level":"warn"`)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{"validation", apperr.NewValidationError("title", "Title is required"), http.StatusBadRequest, TypeValidation, "Title is required"},
		{"not found", apperr.New(apperr.NotFound, "Event not found"), http.StatusNotFound, TypeNotFound, "Event not found"},
		{"wrapped conflict", fmt.Errorf("join: %w", apperr.New(apperr.Conflict, "You already joined this event")), http.StatusConflict, TypeConflict, "You already joined this event"},
		{"capacity", apperr.New(apperr.CapacityExceeded, "Event is full"), http.StatusConflict, TypeCapacityExceeded, "Event is full"},
		{"permission", apperr.New(apperr.Permission, "You can only delete your own events"), http.StatusForbidden, TypeForbidden, "You can only delete your own events"},
		{"auth", ErrUnauthorized, http.StatusUnauthorized, TypeUnauthorized, "Please log in first"},
		{"internal", errors.New("database is locked"), http.StatusInternalServerError, TypeServerError, http.StatusText(http.StatusInternalServerError)},
		{"body too large", &http.MaxBytesError{Limit: 1024}, http.StatusRequestEntityTooLarge, TypeTooLarge, "Request body exceeds 1024 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := httptest.NewRecorder()
			FromError(res, httptest.NewRequest(http.MethodPost, "/api/v1/events/1/join", nil), tt.err, "production")

			require.Equal(t, tt.wantStatus, res.Code)
			p := decode(t, res)
			require.Equal(t, tt.wantType, p.Type)
			require.Equal(t, tt.wantStatus, p.Status)
			require.Equal(t, tt.wantDetail, p.Detail)
		})
	}
}

func TestFromError_ValidationFields(t *testing.T) {
	verr := apperr.NewValidationError("title", "Title is required")
	verr.Add("date", "Date must be YYYY-MM-DD")

	res := httptest.NewRecorder()
	FromError(res, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil), verr, "production")

	p := decode(t, res)
	require.Equal(t, map[string]string{
		"title": "Title is required",
		"date":  "Date must be YYYY-MM-DD",
	}, p.Errors)
}

func TestClassify_UnknownKind(t *testing.T) {
	status, typ, _ := Classify(apperr.Kind(99))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, TypeServerError, typ)
}
