package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Togather-Foundation/orbit/internal/api/middleware"
	"github.com/Togather-Foundation/orbit/internal/api/render"
	"github.com/Togather-Foundation/orbit/internal/audit"
	"github.com/Togather-Foundation/orbit/internal/auth"
	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/metrics"
	"github.com/go-playground/validator/v10"
)

// Site serves the HTML pages and form actions.
type Site struct {
	users    *users.Service
	events   *events.Service
	sessions *auth.SessionManager
	cookie   middleware.SessionCookie
	flashes  *Flashes
	renderer *render.Renderer
	validate *validator.Validate
	audit    *audit.Logger
	env      string
}

// SiteConfig wires a Site.
type SiteConfig struct {
	Users    *users.Service
	Events   *events.Service
	Sessions *auth.SessionManager
	Cookie   middleware.SessionCookie
	Flashes  *Flashes
	Renderer *render.Renderer
	Audit    *audit.Logger
	Env      string
}

func NewSite(cfg SiteConfig) *Site {
	return &Site{
		users:    cfg.Users,
		events:   cfg.Events,
		sessions: cfg.Sessions,
		cookie:   cfg.Cookie,
		flashes:  cfg.Flashes,
		renderer: cfg.Renderer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		audit:    cfg.Audit,
		env:      cfg.Env,
	}
}

// page builds the layout data shared by every template and consumes pending flashes.
func (s *Site) page(w http.ResponseWriter, r *http.Request, title string, data any) render.Page {
	p := render.Page{
		Title:     title,
		Flashes:   s.flashes.Pop(w, r),
		CSRFField: middleware.CSRFField(r),
		Today:     s.events.Today(),
		Data:      data,
	}
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		p.User = &render.User{ID: id.UserID, Username: id.Username}
	}
	return p
}

func (s *Site) render(w http.ResponseWriter, r *http.Request, status int, name string, page render.Page) {
	if err := s.renderer.Render(w, status, name, page); err != nil {
		middleware.LoggerFromContext(r.Context()).Error().Err(err).Str("template", name).Msg("render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type errorView struct {
	Status  int
	Message string
}

// renderError shows a classified error as a page. Unclassified errors are logged and shown
// as a generic failure.
func (s *Site) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(apperr.KindOf(err))
	message := apperr.Message(err, "Something went wrong. Please try again.")
	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.render(w, r, status, "error.html", s.page(w, r, http.StatusText(status), errorView{Status: status, Message: message}))
}

// statusForKind is the HTTP status a page answers with for a domain error kind.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict, apperr.CapacityExceeded:
		return http.StatusConflict
	case apperr.Permission:
		return http.StatusForbidden
	case apperr.Auth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// flashLevel picks the flash style for a failed action.
func flashLevel(kind apperr.Kind) string {
	switch kind {
	case apperr.CapacityExceeded, apperr.Permission, apperr.Validation:
		return render.FlashWarning
	case apperr.Conflict:
		return render.FlashInfo
	default:
		return render.FlashDanger
	}
}

// actionResult labels the outcome metric of an event action.
func actionResult(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

func recordAction(action string, err error) {
	metrics.EventActions.WithLabelValues(action, actionResult(err)).Inc()
}

// viewerID is the session user's ID, or zero for anonymous visitors.
func viewerID(r *http.Request) int64 {
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		return id.UserID
	}
	return 0
}

// sessionUser returns the identity placed by middleware.RequireSession.
func sessionUser(r *http.Request) middleware.Identity {
	id, _ := middleware.IdentityFrom(r.Context())
	return id
}

func eventIDParam(r *http.Request) (int64, error) {
	return events.ParseID(r.PathValue("id"))
}

// safeRedirect returns target when it is a local path, fallback otherwise.
func safeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return target
}

// backTo sends the browser back to the page the form was posted from when that page is on
// this site.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return fallback
	}
	target := ref.Path
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	return safeRedirect(target, fallback)
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// isBodyTooLarge reports whether parsing failed because the body hit the size limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
