package middleware

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/Togather-Foundation/orbit/internal/api/problem"
)

const (
	// CSRFFieldName is the hidden form field carrying the token.
	CSRFFieldName  = "csrf_token"
	csrfCookieName = "orbit_csrf"
)

type CSRFOptions struct {
	Key    []byte
	Secure bool
	// TrustedOrigins are full origins ("https://events.example.org") allowed
	// to post cross-site. Entries without a host are ignored.
	TrustedOrigins []string
}

// CSRFProtection guards the cookie-authenticated forms with a double-submit
// token. Plain HTTP requests are marked as such when Secure is off, otherwise
// gorilla/csrf rejects them for a missing Referer.
func CSRFProtection(opts CSRFOptions) func(http.Handler) http.Handler {
	protect := csrf.Protect(opts.Key,
		csrf.Secure(opts.Secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName(CSRFFieldName),
		csrf.CookieName(csrfCookieName),
		csrf.TrustedOrigins(originHosts(opts.TrustedOrigins)),
		csrf.ErrorHandler(http.HandlerFunc(rejectCSRF)),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		if opts.Secure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if u, err := url.Parse(strings.TrimSpace(o)); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

func rejectCSRF(w http.ResponseWriter, r *http.Request) {
	LoggerFromContext(r.Context()).Warn().
		Err(csrf.FailureReason(r)).
		Str("path", r.URL.Path).
		Msg("csrf rejected")

	if strings.Contains(r.Header.Get("Accept"), "json") {
		problem.WriteProblem(w, problem.ProblemDetails{
			Type:   problem.TypeCSRF,
			Title:  "Invalid CSRF token",
			Status: http.StatusForbidden,
		})
		return
	}
	http.Error(w, "Your form has expired. Go back, reload the page and try again.", http.StatusForbidden)
}

// CSRFToken returns the masked token, for forms built by hand.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

func CSRFField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}
