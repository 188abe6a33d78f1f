package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/orbit/internal/api/middleware"
	"github.com/Togather-Foundation/orbit/internal/api/render"
	"github.com/Togather-Foundation/orbit/internal/audit"
	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/metrics"
	"github.com/go-playground/validator/v10"
)

type registerForm struct {
	Username     string `form:"username" validate:"required"`
	Password     string `form:"password" validate:"required"`
	Confirmation string `form:"confirmation" validate:"required,eqfield=Password"`
}

type loginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

type registerView struct {
	Username string
}

type loginView struct {
	Username string
	Next     string
}

func recordAuth(action string, err error) {
	metrics.AuthAttempts.WithLabelValues(action, actionResult(err)).Inc()
}

// formMessage turns a failed form struct check into the message shown above the form.
func formMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "eqfield" {
				return "Passwords must match"
			}
		}
	}
	return "All fields required"
}

// RegisterForm shows the registration form.
func (s *Site) RegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", s.page(w, r, "Register", registerView{}))
}

// Register creates an account and sends the visitor to the login form.
func (s *Site) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.formParseError(w, r, err)
		return
	}
	form := registerForm{
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Confirmation: r.PostFormValue("confirmation"),
	}

	fail := func(status int, err error, message string) {
		recordAuth("register", err)
		page := s.page(w, r, "Register", registerView{Username: form.Username})
		page.Flashes = append(page.Flashes, render.Flash{Level: render.FlashDanger, Message: message})
		s.render(w, r, status, "register.html", page)
	}

	if err := s.validate.Struct(form); err != nil {
		fail(http.StatusBadRequest, apperr.NewValidationError("form", formMessage(err)), formMessage(err))
		return
	}

	if _, err := s.users.Register(r.Context(), form.Username, form.Password); err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.Internal {
			recordAuth("register", err)
			s.renderError(w, r, err)
			return
		}
		fail(statusForKind(kind), err, apperr.Message(err, ""))
		return
	}

	recordAuth("register", nil)
	s.audit.LogRequest(r, audit.Entry{Action: "user.register", Actor: form.Username})
	s.flashes.Add(w, r, render.FlashSuccess, "Registration successful! You can now log in.")
	redirect(w, r, "/login")
}

// LoginForm shows the login form. next carries the page to return to after login.
func (s *Site) LoginForm(w http.ResponseWriter, r *http.Request) {
	view := loginView{Next: safeRedirect(r.URL.Query().Get("next"), "")}
	s.render(w, r, http.StatusOK, "login.html", s.page(w, r, "Log in", view))
}

// Login checks the credentials and issues the session cookie.
func (s *Site) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.formParseError(w, r, err)
		return
	}
	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Next:     safeRedirect(r.PostFormValue("next"), ""),
	}

	fail := func(status int, err error, message string) {
		recordAuth("login", err)
		page := s.page(w, r, "Log in", loginView{Username: form.Username, Next: form.Next})
		page.Flashes = append(page.Flashes, render.Flash{Level: render.FlashDanger, Message: message})
		s.render(w, r, status, "login.html", page)
	}

	if err := s.validate.Struct(form); err != nil {
		fail(http.StatusBadRequest, apperr.NewValidationError("form", "All fields required"), "All fields required")
		return
	}

	user, err := s.users.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			s.audit.LogRequest(r, audit.Entry{Action: "user.login", Actor: form.Username, Status: audit.StatusFailure})
			fail(http.StatusUnauthorized, err, apperr.Message(err, ""))
			return
		}
		recordAuth("login", err)
		s.renderError(w, r, err)
		return
	}

	token, expires, err := s.sessions.Issue(user.ID, user.Username)
	if err != nil {
		recordAuth("login", err)
		s.renderError(w, r, err)
		return
	}
	s.cookie.Set(w, token, expires)
	recordAuth("login", nil)
	s.audit.LogRequest(r, audit.Entry{Action: "user.login", Actor: user.Username})
	middleware.LoggerFromContext(r.Context()).Info().Int64("user_id", user.ID).Msg("user logged in")
	redirect(w, r, safeRedirect(form.Next, "/"))
}

// Logout clears the session cookie.
func (s *Site) Logout(w http.ResponseWriter, r *http.Request) {
	s.cookie.Clear(w)
	redirect(w, r, "/")
}
