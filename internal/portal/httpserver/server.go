package httpserver

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	custommw "caspiangreenports.org/portal/internal/portal/httpserver/middleware"
	"caspiangreenports.org/portal/internal/portal/observability"
	"caspiangreenports.org/portal/public"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxFormBytes          = 64 << 10
)

// FormRegistry hands out per-session forms and drops them when a session ends.
type FormRegistry interface {
	custommw.FormStore
	Forget(sessionID string)
}

// Config holds runtime options for the portal HTTP server.
type Config struct {
	Address        string
	BasePath       string
	Environment    string
	Sessions       custommw.SessionStore
	Forms          FormRegistry
	Logger         *zap.Logger
	Metrics        http.Handler
	CSRFHeaderName string

	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("httpserver: session store is required")
	}
	if cfg.Forms == nil {
		return nil, errors.New("httpserver: form registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NoopLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLogger(logger))
	router.Use(observability.RequestLogger())
	router.Use(observability.Recoverer())
	router.Use(chimw.Compress(5))
	router.Use(chimw.Timeout(timeout))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("embed static: %w", err)
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	paths := newRoutePaths(normalizeBasePath(cfg.BasePath))
	handlers := newAuthHandlers(cfg.Forms, paths, cfg.CSRFHeaderName)
	mountPortalRoutes(router, handlers, routeOptions{
		Sessions:    cfg.Sessions,
		Forms:       cfg.Forms,
		Environment: cfg.Environment,
		CSRF:        custommw.CSRFConfig{HeaderName: cfg.CSRFHeaderName},
	})

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          log.New(observability.NewPrintfAdapter(logger), "", 0),
	}, nil
}

type routeOptions struct {
	Sessions    custommw.SessionStore
	Forms       custommw.FormStore
	Environment string
	CSRF        custommw.CSRFConfig
}

func mountPortalRoutes(router chi.Router, h *authHandlers, opts routeOptions) {
	p := h.paths
	if p.base != "/" {
		router.Get(p.base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, p.home, http.StatusMovedPermanently)
		})
	}

	router.Group(func(r chi.Router) {
		r.Use(chimw.RequestSize(maxFormBytes))
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Session(opts.Sessions))
		r.Use(custommw.Environment(opts.Environment))
		r.Use(custommw.CSRF(opts.CSRF))
		r.Use(custommw.Forms(opts.Forms))

		r.Get(p.login, h.LoginPage)
		r.Post(p.login, h.LoginSubmit)
		r.Get(p.register, h.RegisterModal)
		r.Post(p.register, h.RegisterSubmit)
		r.Post(p.registerOpen, h.RegisterOpen)
		r.Post(p.registerClose, h.RegisterClose)
		r.Post(p.logout, h.Logout)

		r.With(custommw.RequireUser(p.login)).Get(p.home, h.Home)
	})
}

// routePaths are the absolute paths of the portal routes under a base path.
type routePaths struct {
	base          string
	home          string
	login         string
	logout        string
	register      string
	registerOpen  string
	registerClose string
}

func newRoutePaths(base string) routePaths {
	join := func(p string) string {
		if base == "/" {
			return p
		}
		return base + p
	}
	return routePaths{
		base:          base,
		home:          join("/"),
		login:         join("/login"),
		logout:        join("/logout"),
		register:      join("/register"),
		registerOpen:  join("/register/open"),
		registerClose: join("/register/close"),
	}
}

func normalizeBasePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
