package api

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/Togather-Foundation/orbit/internal/api/handlers"
	"github.com/Togather-Foundation/orbit/internal/api/middleware"
	"github.com/Togather-Foundation/orbit/internal/api/render"
	"github.com/Togather-Foundation/orbit/internal/audit"
	"github.com/Togather-Foundation/orbit/internal/auth"
	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/metrics"
	"github.com/Togather-Foundation/orbit/internal/storage/sqlstore"
	"github.com/Togather-Foundation/orbit/web"
	"github.com/rs/zerolog"
)

// Deps are the long-lived components the router serves.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    *sqlstore.Store
	Users    *users.Service
	Events   *events.Service
	Sessions *auth.SessionManager
	// Sweeper runs the retention sweep on incoming requests. Nil leaves retention to the job
	// queue.
	Sweeper middleware.Sweeper

	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter builds the full HTTP handler: pages, JSON API, static files and probes behind the
// shared middleware chain.
func NewRouter(deps Deps) (http.Handler, error) {
	cfg := deps.Config
	secure := cfg.IsProduction()

	keys, err := auth.DeriveKeys([]byte(cfg.Session.Secret))
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(web.Templates())
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	cookie := middleware.SessionCookie{Name: cfg.Session.CookieName, Secure: secure}
	site := handlers.NewSite(handlers.SiteConfig{
		Users:    deps.Users,
		Events:   deps.Events,
		Sessions: deps.Sessions,
		Cookie:   cookie,
		Flashes:  handlers.NewFlashes(keys.Flash, secure),
		Renderer: renderer,
		Audit:    audit.NewLogger(deps.Logger),
		Env:      cfg.Environment,
	})
	apiHandler := handlers.NewAPIHandler(deps.Events, cfg.Environment)
	health := handlers.NewHealthChecker(handlers.HealthOptions{
		DB:        deps.Store.DB(),
		Dialect:   deps.Store.Dialect().Name(),
		Jobs:      cfg.Jobs.Enabled,
		Version:   deps.Version,
		GitCommit: deps.GitCommit,
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", health.Readyz())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/version", VersionHandler(BuildInfo{
		Version:   deps.Version,
		GitCommit: deps.GitCommit,
		BuildDate: deps.BuildDate,
		Database:  deps.Store.Dialect().Name(),
	}))
	mux.Handle("/static/", web.StaticHandler())
	mux.Handle("/robots.txt", web.RobotsTxtHandler())
	mux.Handle("/api/v1/", middleware.CORS(cfg.CORS, deps.Logger)(apiRoutes(apiHandler, cfg.Environment)))
	mux.Handle("/", middleware.CSRFProtection(middleware.CSRFOptions{
		Key:            keys.CSRF,
		Secure:         secure,
		TrustedOrigins: cfg.CORS.AllowedOrigins,
	})(pageRoutes(site)))

	routes := metrics.NewRouteLabeler(routeTemplates...)
	var handler http.Handler = mux
	handler = middleware.Session(deps.Sessions, cookie, deps.Users)(handler)
	handler = middleware.Housekeeping(deps.Sweeper)(handler)
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = middleware.RateLimit(cfg.RateLimit)(handler)
	handler = middleware.SecurityHeaders(secure)(handler)
	handler = metrics.HTTPMiddleware(routes)(handler)
	handler = middleware.RequestLogging()(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.Tracing(routes)(handler)
	return handler, nil
}

// routeTemplates are the metric labels for every route registered below.
var routeTemplates = []string{
	"/", "/history", "/register", "/login", "/logout", "/profile",
	"/events/new", "/events/{id}", "/events/{id}/join", "/events/{id}/leave",
	"/events/{id}/delete", "/events/{id}/comments",
	"/api/v1/events", "/api/v1/events/{id}", "/api/v1/events/{id}/comments",
	"/api/v1/events/{id}/join", "/api/v1/categories",
	"/healthz", "/readyz", "/metrics", "/version", "/robots.txt", "/static/",
}

func pageRoutes(site *handlers.Site) http.Handler {
	session := middleware.RequireSession
	fn := func(f http.HandlerFunc) http.Handler { return f }

	mux := http.NewServeMux()
	mux.Handle("/{$}", methodMux(map[string]http.Handler{http.MethodGet: fn(site.Index)}))
	mux.Handle("/history", methodMux(map[string]http.Handler{http.MethodGet: fn(site.History)}))
	mux.Handle("/register", methodMux(map[string]http.Handler{
		http.MethodGet:  fn(site.RegisterForm),
		http.MethodPost: fn(site.Register),
	}))
	mux.Handle("/login", methodMux(map[string]http.Handler{
		http.MethodGet:  fn(site.LoginForm),
		http.MethodPost: fn(site.Login),
	}))
	mux.Handle("/logout", methodMux(map[string]http.Handler{http.MethodPost: fn(site.Logout)}))
	mux.Handle("/profile", session(methodMux(map[string]http.Handler{http.MethodGet: fn(site.Profile)})))
	mux.Handle("/events/new", session(methodMux(map[string]http.Handler{
		http.MethodGet:  fn(site.NewEventForm),
		http.MethodPost: fn(site.CreateEvent),
	})))
	mux.Handle("/events/{id}", methodMux(map[string]http.Handler{http.MethodGet: fn(site.EventDetail)}))
	mux.Handle("/events/{id}/join", session(methodMux(map[string]http.Handler{http.MethodPost: fn(site.Join)})))
	mux.Handle("/events/{id}/leave", session(methodMux(map[string]http.Handler{http.MethodPost: fn(site.Leave)})))
	mux.Handle("/events/{id}/delete", session(methodMux(map[string]http.Handler{http.MethodPost: fn(site.Delete)})))
	mux.Handle("/events/{id}/comments", session(methodMux(map[string]http.Handler{http.MethodPost: fn(site.AddComment)})))
	mux.Handle("/", http.HandlerFunc(site.NotFound))
	return mux
}

func apiRoutes(h *handlers.APIHandler, env string) http.Handler {
	session := middleware.RequireSessionJSON(env)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{http.MethodGet: http.HandlerFunc(h.List)}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{http.MethodGet: http.HandlerFunc(h.Get)}))
	mux.Handle("/api/v1/events/{id}/comments", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(h.Comments),
		http.MethodPost: session(http.HandlerFunc(h.AddComment)),
	}))
	mux.Handle("/api/v1/events/{id}/join", methodMux(map[string]http.Handler{
		http.MethodPost:   session(http.HandlerFunc(h.Join)),
		http.MethodDelete: session(http.HandlerFunc(h.Leave)),
	}))
	mux.Handle("/api/v1/categories", methodMux(map[string]http.Handler{http.MethodGet: http.HandlerFunc(h.Categories)}))
	return mux
}

// methodMux dispatches on r.Method. HEAD is served by the GET handler when
// there is no explicit one; anything else unregistered gets 405 with Allow.
func methodMux(handlers map[string]http.Handler) http.Handler {
	allow := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok && r.Method == http.MethodHead {
			h, ok = handlers[http.MethodGet]
		}
		if !ok {
			if allow != "" {
				w.Header().Set("Allow", allow)
			}
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	return strings.Join(slices.Sorted(maps.Keys(handlers)), ", ")
}
