package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/orbit/internal/api/middleware"
	"github.com/Togather-Foundation/orbit/internal/api/render"
	"github.com/gorilla/securecookie"
)

const flashCookieName = "orbit_flash"

// flashMaxAge bounds how long an unread flash survives.
const flashMaxAge = 60

// Flashes carries one-shot messages across a redirect in a signed cookie.
type Flashes struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewFlashes signs flash cookies with key.
func NewFlashes(key []byte, secure bool) *Flashes {
	codec := securecookie.New(key, nil)
	codec.MaxAge(flashMaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Flashes{codec: codec, secure: secure}
}

// Add queues a message for the next rendered page, keeping any not yet shown.
func (f *Flashes) Add(w http.ResponseWriter, r *http.Request, level, message string) {
	pending := append(f.read(r), render.Flash{Level: level, Message: message})
	value, err := f.codec.Encode(flashCookieName, pending)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Warn().Err(err).Msg("encode flash cookie")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop returns the pending messages and clears the cookie.
func (f *Flashes) Pop(w http.ResponseWriter, r *http.Request) []render.Flash {
	pending := f.read(r)
	if _, err := r.Cookie(flashCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   f.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return pending
}

func (f *Flashes) read(r *http.Request) []render.Flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	var pending []render.Flash
	if err := f.codec.Decode(flashCookieName, c.Value, &pending); err != nil {
		return nil
	}
	return pending
}
