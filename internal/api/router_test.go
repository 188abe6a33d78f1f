package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/orbit/internal/auth"
	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/storage/sqlstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMethodMux(t *testing.T) {
	reply := func(code int, body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
		})
	}
	mux := methodMux(map[string]http.Handler{
		http.MethodGet:  reply(http.StatusOK, "list"),
		http.MethodPost: reply(http.StatusCreated, "created"),
	})

	tests := []struct {
		method    string
		wantCode  int
		wantBody  string
		wantAllow string
	}{
		{method: http.MethodGet, wantCode: http.StatusOK, wantBody: "list"},
		{method: http.MethodHead, wantCode: http.StatusOK, wantBody: "list"},
		{method: http.MethodPost, wantCode: http.StatusCreated, wantBody: "created"},
		{method: http.MethodPut, wantCode: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
		{method: http.MethodPatch, wantCode: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
		{method: http.MethodOptions, wantCode: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/events", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, tt.wantAllow, rec.Header().Get("Allow"))
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestMethodMux_HeadOnlyFromGet(t *testing.T) {
	mux := methodMux(map[string]http.Handler{http.MethodDelete: http.NotFoundHandler()})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/api/v1/events/1/join", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "DELETE", rec.Header().Get("Allow"))
}

func TestMethodMux_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	methodMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Empty(t, rec.Header().Values("Allow"))
}

type testServer struct {
	handler  http.Handler
	users    *users.Service
	events   *events.Service
	sessions *auth.SessionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "orbit.db")
	require.NoError(t, sqlstore.MigrateUp(databaseURL))
	store, err := sqlstore.Open(context.Background(), databaseURL, sqlstore.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Config{
		Environment: "test",
		Session:     config.SessionConfig{Secret: "router-test-secret", Lifetime: time.Hour, CookieName: "orbit_session"},
		RateLimit:   config.RateLimitConfig{PublicPerMinute: 1000, LoginPer15Minutes: 100},
	}
	userSvc := users.NewService(store.Users(), zerolog.Nop(), users.WithBcryptCost(bcrypt.MinCost))
	eventSvc := events.NewService(store.Events(), zerolog.Nop())
	sessions, err := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.Lifetime, "orbit")
	require.NoError(t, err)

	handler, err := NewRouter(Deps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Store:    store,
		Users:    userSvc,
		Events:   eventSvc,
		Sessions: sessions,
		Version:  "1.2.3",
	})
	require.NoError(t, err)
	return &testServer{handler: handler, users: userSvc, events: eventSvc, sessions: sessions}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) sessionCookie(t *testing.T, u users.User) *http.Cookie {
	t.Helper()
	token, _, err := s.sessions.Issue(u.ID, u.Username)
	require.NoError(t, err)
	return &http.Cookie{Name: "orbit_session", Value: token}
}

func TestRouter_PublicPages(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
		wantType   string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/history", http.StatusOK, "text/html"},
		{"/login", http.StatusOK, "text/html"},
		{"/register", http.StatusOK, "text/html"},
		{"/static/orbit.css", http.StatusOK, "text/css"},
		{"/robots.txt", http.StatusOK, "text/plain"},
		{"/healthz", http.StatusOK, "application/json"},
		{"/readyz", http.StatusOK, "application/json"},
		{"/version", http.StatusOK, "application/json"},
		{"/api/v1/events", http.StatusOK, "application/json"},
		{"/api/v1/categories", http.StatusOK, "application/json"},
		{"/nowhere", http.StatusNotFound, "text/html"},
		{"/events/12345", http.StatusNotFound, "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := srv.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Header().Get("Content-Type"), tt.wantType)
			require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
		})
	}
}

func TestRouter_ProtectedPagesRedirectToLogin(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login?next="+url.QueryEscape("/profile"), rec.Header().Get("Location"))

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/events/new", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRouter_SessionCookieOpensProfile(t *testing.T) {
	srv := newTestServer(t)
	alice, err := srv.users.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(srv.sessionCookie(t, alice))
	rec := srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "alice")
}

func TestRouter_FormPostsNeedCSRFToken(t *testing.T) {
	srv := newTestServer(t)
	alice, err := srv.users.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events/new", strings.NewReader("title=x&date=2030-01-01"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(srv.sessionCookie(t, alice))
	rec := srv.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	created, err := srv.events.ListCreatedBy(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Empty(t, created)
}

func TestRouter_APIJoinRequiresSession(t *testing.T) {
	srv := newTestServer(t)
	alice, err := srv.users.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)
	event, err := srv.events.Create(context.Background(), alice.ID, events.CreateInput{Title: "Meetup", Date: "2030-01-01"})
	require.NoError(t, err)
	path := "/api/v1/events/" + itoa(event.ID) + "/join"

	rec := srv.do(httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.AddCookie(srv.sessionCookie(t, alice))
	rec = srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/events/"+itoa(event.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		ParticipantCount int      `json:"participant_count"`
		Participants     []string `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.Equal(t, 1, detail.ParticipantCount)
	require.Equal(t, []string{"alice"}, detail.Participants)

	rec = srv.do(httptest.NewRequest(http.MethodPut, path, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "DELETE, POST", rec.Header().Get("Allow"))
}

func TestRouter_InvalidSessionCookieIsCleared(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "orbit_session", Value: "garbage"})
	rec := srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "orbit_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)
}

func TestRouter_SessionForRemovedAccount(t *testing.T) {
	srv := newTestServer(t)
	alice, err := srv.users.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)
	event, err := srv.events.Create(context.Background(), alice.ID, events.CreateInput{Title: "Meetup", Date: "2030-01-01"})
	require.NoError(t, err)

	ghost := users.User{ID: alice.ID + 100, Username: "ghost"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/"+itoa(event.ID)+"/join", nil)
	req.AddCookie(srv.sessionCookie(t, ghost))
	rec := srv.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "orbit_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)

	got, err := srv.events.Get(context.Background(), 0, event.ID)
	require.NoError(t, err)
	require.Zero(t, got.ParticipantCount)
}

func TestRouter_VersionNamesDatabase(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info BuildInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	require.Equal(t, "1.2.3", info.Version)
	require.Equal(t, "sqlite", info.Database)
}

func TestRouter_MetricsUseRouteTemplates(t *testing.T) {
	srv := newTestServer(t)
	srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/events/98765", nil))

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `route="/api/v1/events/{id}"`)
	require.NotContains(t, rec.Body.String(), "98765")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
