package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/orbit/internal/auth"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*auth.SessionManager, SessionCookie) {
	t.Helper()
	manager, err := auth.NewSessionManager("test-secret-with-enough-entropy-123", time.Hour, "orbit")
	require.NoError(t, err)
	return manager, SessionCookie{Name: "orbit_session"}
}

func identityRecorder(got *Identity, present *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *present = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestSession_ValidCookie(t *testing.T) {
	manager, cookie := newTestSessions(t)
	token, _, err := manager.Issue(7, "alice")
	require.NoError(t, err)

	var id Identity
	var ok bool
	handler := Session(manager, cookie, nil)(identityRecorder(&id, &ok))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "orbit_session", Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	require.Equal(t, Identity{UserID: 7, Username: "alice"}, id)
}

func TestSession_Anonymous(t *testing.T) {
	manager, cookie := newTestSessions(t)

	var id Identity
	var ok bool
	handler := Session(manager, cookie, nil)(identityRecorder(&id, &ok))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	require.False(t, ok)
	require.Empty(t, res.Result().Cookies())
}

func TestSession_InvalidCookieCleared(t *testing.T) {
	manager, cookie := newTestSessions(t)

	var id Identity
	var ok bool
	handler := Session(manager, cookie, nil)(identityRecorder(&id, &ok))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "orbit_session", Value: "not-a-token"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.False(t, ok)
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "orbit_session", cookies[0].Name)
	require.Negative(t, cookies[0].MaxAge)
}

// fakeAccounts knows user 7; looking up user 99 fails.
type fakeAccounts map[int64]bool

func (f fakeAccounts) Exists(_ context.Context, userID int64) (bool, error) {
	if userID == 99 {
		return false, errors.New("database is down")
	}
	return f[userID], nil
}

func TestSession_AccountLookup(t *testing.T) {
	manager, cookie := newTestSessions(t)
	accounts := fakeAccounts{7: true}

	tests := []struct {
		name        string
		userID      int64
		wantOK      bool
		wantCleared bool
	}{
		{name: "existing account", userID: 7, wantOK: true},
		{name: "removed account", userID: 8, wantCleared: true},
		{name: "lookup error keeps cookie", userID: 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := manager.Issue(tt.userID, "alice")
			require.NoError(t, err)

			var id Identity
			var ok bool
			handler := Session(manager, cookie, accounts)(identityRecorder(&id, &ok))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "orbit_session", Value: token})
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantCleared, len(res.Result().Cookies()) == 1)
		})
	}
}

func TestRequireSession(t *testing.T) {
	handler := RequireSession(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/login?next=%2Fprofile", res.Header().Get("Location"))

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/events/3/join", nil))
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/login", res.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: 1, Username: "alice"}))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestRequireSessionJSON(t *testing.T) {
	handler := RequireSessionJSON("test")(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/v1/events/3/join", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}

func TestSessionCookie_Set(t *testing.T) {
	res := httptest.NewRecorder()
	SessionCookie{Name: "orbit_session", Secure: true}.Set(res, "tok", time.Now().Add(time.Hour))

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "tok", c.Value)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Positive(t, c.MaxAge)
}
