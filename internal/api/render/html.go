// Package render executes the embedded HTML page templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Flash is a one-shot message shown at the top of the next page.
type Flash struct {
	Level   string
	Message string
}

// Flash levels, matching the CSS classes.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// User is the logged-in visitor as the layout needs it.
type User struct {
	ID       int64
	Username string
}

// Page is the data every template receives. Data holds the page-specific view.
type Page struct {
	Title     string
	User      *User
	Flashes   []Flash
	CSRFField template.HTML
	Today     string
	Data      any
}

// Pages rendered by the site. Each is parsed together with the layout and partials.
var pageNames = []string{
	"index.html",
	"history.html",
	"profile.html",
	"event.html",
	"new_event.html",
	"login.html",
	"register.html",
	"error.html",
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every page from fsys, which must contain base.html and partials/*.html.
func New(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys, "base.html", "partials/*.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes page into a buffer first so a template error never leaves a half-written
// response behind.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", page); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

var funcs = template.FuncMap{
	"humanDate": HumanDate,
	"truncate":  Truncate,
	"join":      strings.Join,
	"card": func(page Page, event any, actions bool) map[string]any {
		return map[string]any{"Page": page, "Event": event, "Actions": actions}
	},
}

// HumanDate formats a stored YYYY-MM-DD date for display, falling back to the raw value.
func HumanDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Mon, Jan 2 2006")
}

// Truncate shortens s to at most n runes, adding an ellipsis when it cuts.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
