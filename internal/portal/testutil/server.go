// Package testutil spins up the portal HTTP stack for tests.
package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"caspiangreenports.org/portal/internal/portal/authprovider"
	"caspiangreenports.org/portal/internal/portal/credentials"
	"caspiangreenports.org/portal/internal/portal/forms"
	"caspiangreenports.org/portal/internal/portal/httpserver"
	"caspiangreenports.org/portal/internal/portal/observability"
	"caspiangreenports.org/portal/internal/portal/session"
)

// SessionCookieName is the cookie used by servers built with NewServer.
const SessionCookieName = "test_session"

type serverOptions struct {
	cfg      httpserver.Config
	provider credentials.Provider
	formOpts []credentials.Option
	metrics  *observability.Metrics
}

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*serverOptions)

// WithProvider overrides the auth provider behind the forms.
func WithProvider(provider credentials.Provider) ServerOption {
	return func(o *serverOptions) {
		o.provider = provider
	}
}

// WithBasePath sets a custom base path for the portal routes.
func WithBasePath(path string) ServerOption {
	return func(o *serverOptions) {
		o.cfg.BasePath = path
	}
}

// WithEnvironment sets the deployment environment shown in the header.
func WithEnvironment(env string) ServerOption {
	return func(o *serverOptions) {
		o.cfg.Environment = env
	}
}

// WithMetrics exposes m on /metrics and records form activity into it.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// WithFormOptions appends options applied to every form controller.
func WithFormOptions(opts ...credentials.Option) ServerOption {
	return func(o *serverOptions) {
		o.formOpts = append(o.formOpts, opts...)
	}
}

// NewServer constructs an httptest server running the portal HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	o := serverOptions{
		cfg: httpserver.Config{
			Address:        ":0",
			BasePath:       "/",
			Environment:    "test",
			CSRFHeaderName: "X-CSRF-Token",
		},
		provider: authprovider.NewStub(nil),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sessions, err := session.NewManager(session.Config{
		CookieName: SessionCookieName,
		HashKey:    []byte("12345678901234567890123456789012"),
		BlockKey:   []byte("abcdefghijklmnopqrstuvwxyzABCDEF"),
		Lifetime:   time.Hour,
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	registryOpts := forms.Options{FormOptions: o.formOpts}
	if o.metrics != nil {
		registryOpts.Gauge = o.metrics
		registryOpts.FormOptions = append(registryOpts.FormOptions, credentials.WithRecorder(o.metrics))
		o.cfg.Metrics = o.metrics.Handler()
	}
	registry := forms.NewRegistry(o.provider, registryOpts)
	t.Cleanup(registry.Close)

	o.cfg.Sessions = sessions
	o.cfg.Forms = registry

	srv, err := httpserver.New(o.cfg)
	if err != nil {
		t.Fatalf("http server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}
