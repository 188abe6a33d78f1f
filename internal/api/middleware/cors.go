package middleware

import (
	"net/http"
	"slices"

	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// CORS lets browser clients on other origins call the JSON API with the session cookie.
// AllowAllOrigins reflects any origin (development); otherwise only the configured origins
// are answered, and rejected origins are logged.
func CORS(cfg config.CORSConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if cfg.AllowAllOrigins || slices.Contains(cfg.AllowedOrigins, origin) {
				return true
			}
			logger.Warn().Str("origin", origin).Msg("cors origin rejected")
			return false
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
