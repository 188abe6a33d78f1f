package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Togather-Foundation/orbit/internal/api/problem"
	"github.com/Togather-Foundation/orbit/internal/auth"
)

// Identity is the logged-in user carried by the session cookie.
type Identity struct {
	UserID   int64
	Username string
}

const identityKey contextKey = "identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the session identity, if the request has a valid one.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID > 0
}

// SessionCookie writes and clears the session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) Set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Accounts confirms that the user behind a session still exists.
type Accounts interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Session resolves the optional identity. A missing cookie means anonymous; an invalid or
// expired one, or one naming a removed account, is cleared and the request continues
// anonymously. accounts may be nil, which trusts every valid token.
func Session(manager *auth.SessionManager, cookie SessionCookie, accounts Accounts) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookie.Name)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				next.ServeHTTP(w, r)
				return
			}

			logger := LoggerFromContext(r.Context())
			claims, err := manager.Validate(c.Value)
			if err == nil {
				var userID int64
				if userID, err = claims.UserID(); err == nil {
					exists := true
					if accounts != nil {
						exists, err = accounts.Exists(r.Context(), userID)
						if err != nil {
							logger.Warn().Err(err).Int64("user_id", userID).Msg("session account lookup failed")
							next.ServeHTTP(w, r)
							return
						}
					}
					if exists {
						ctx := WithIdentity(r.Context(), Identity{UserID: userID, Username: claims.Username})
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
					err = errAccountGone
				}
			}

			logger.Debug().Err(err).Msg("discarding invalid session cookie")
			cookie.Clear(w)
			next.ServeHTTP(w, r)
		})
	}
}

var errAccountGone = errors.New("session account no longer exists")

// RequireSession redirects anonymous visitors to the login page, remembering where they were
// going for same-site GET requests.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		target := "/login"
		if r.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

// RequireSessionJSON answers anonymous API calls with a 401 problem.
func RequireSessionJSON(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFrom(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			problem.FromError(w, r, problem.ErrUnauthorized, env)
		})
	}
}
