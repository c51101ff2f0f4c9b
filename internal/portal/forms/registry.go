// Package forms keeps the live form controllers of each browser session.
package forms

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/credentials"
)

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// ErrClosed is returned by Get after the registry has been closed.
var ErrClosed = errors.New("forms: registry closed")

// Entry groups the forms shown to one browser session.
type Entry struct {
	Login    *credentials.Controller
	Register *credentials.RegisterModal

	lastUsed time.Time
}

// Gauge receives the number of live entries after every change.
type Gauge interface {
	SetActiveForms(n int)
}

// Options configures a Registry.
type Options struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
	Gauge         Gauge
	// FormOptions are applied to every controller the registry creates.
	FormOptions []credentials.Option
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Registry lazily creates form entries keyed by session ID and discards the
// ones nobody touched within the idle timeout.
type Registry struct {
	provider credentials.Provider
	idle     time.Duration
	interval time.Duration
	logger   *zap.Logger
	gauge    Gauge
	formOpts []credentials.Option
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	closed  bool
}

// NewRegistry constructs a registry whose forms call provider.
func NewRegistry(provider credentials.Provider, opts Options) *Registry {
	if provider == nil {
		panic("forms: provider is required")
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		provider: provider,
		idle:     opts.IdleTimeout,
		interval: opts.SweepInterval,
		logger:   opts.Logger,
		gauge:    opts.Gauge,
		formOpts: opts.FormOptions,
		now:      opts.Now,
		entries:  make(map[string]*Entry),
	}
}

// Get returns the entry for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	entry, ok := r.entries[sessionID]
	if !ok {
		entry = &Entry{
			Login:    credentials.NewLoginController(r.provider, r.formOpts...),
			Register: credentials.NewRegisterModal(r.provider, r.formOpts...),
		}
		r.entries[sessionID] = entry
		r.reportLocked()
	}
	entry.lastUsed = r.now()
	return entry, nil
}

// Forget tears down the entry for sessionID, if any.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
		r.reportLocked()
	}
	r.mu.Unlock()

	if ok {
		entry.close()
	}
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts entries idle for longer than the idle timeout and returns how
// many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*Entry
	for id, entry := range r.entries {
		if entry.lastUsed.Before(cutoff) {
			stale = append(stale, entry)
			delete(r.entries, id)
		}
	}
	if len(stale) > 0 {
		r.reportLocked()
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.close()
	}
	if len(stale) > 0 {
		r.logger.Debug("evicted idle form sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps on every interval until ctx is done, then closes the registry.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every entry. Later Get calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.reportLocked()
	r.mu.Unlock()

	for _, entry := range entries {
		entry.close()
	}
}

func (r *Registry) reportLocked() {
	if r.gauge != nil {
		r.gauge.SetActiveForms(len(r.entries))
	}
}

func (e *Entry) close() {
	e.Login.Close()
	e.Register.Close()
}
