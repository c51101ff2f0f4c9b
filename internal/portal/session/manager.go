// Package session keeps portal sessions in signed, encrypted cookies.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName       = "portal_session"
	defaultLifetime         = 12 * time.Hour
	defaultRememberLifetime = 30 * 24 * time.Hour
	defaultIdleTimeout      = 30 * time.Minute
)

var (
	// ErrExpired is returned by Load when the cookie outlived its idle or absolute limit.
	ErrExpired = errors.New("session expired")
	// ErrInvalidConfig is returned by NewManager for unusable keys.
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Config describes the session cookie and its lifetime limits.
type Config struct {
	CookieName   string
	HashKey      []byte
	BlockKey     []byte
	Path         string
	Domain       string
	CookieSecure bool
	SameSite     http.SameSite

	// IdleTimeout ends sessions that were not used for this long. Remembered
	// sessions ignore it.
	IdleTimeout      time.Duration
	Lifetime         time.Duration
	RememberLifetime time.Duration
	Now              func() time.Time
}

// Manager loads and stores sessions.
type Manager struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite
	limits   limits
	codec    *securecookie.SecureCookie
	now      func() time.Time
}

// NewManager validates cfg, fills in defaults and builds the cookie codec.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if n := len(cfg.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes, got %d", ErrInvalidConfig, n)
	}

	m := &Manager{
		name:     valueOr(cfg.CookieName, defaultCookieName),
		path:     valueOr(cfg.Path, "/"),
		domain:   cfg.Domain,
		secure:   cfg.CookieSecure,
		sameSite: cfg.SameSite,
		limits: limits{
			idle:       durationOr(cfg.IdleTimeout, defaultIdleTimeout),
			absolute:   durationOr(cfg.Lifetime, defaultLifetime),
			remembered: durationOr(cfg.RememberLifetime, defaultRememberLifetime),
		},
		now: cfg.Now,
	}
	if m.sameSite == http.SameSiteDefaultMode {
		m.sameSite = http.SameSiteLaxMode
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.codec = securecookie.New(cfg.HashKey, cfg.BlockKey)
	m.codec.SetSerializer(securecookie.JSONEncoder{})
	m.codec.MaxAge(int(max(m.limits.absolute, m.limits.remembered) / time.Second))
	return m, nil
}

// Load returns the request's session. Missing or undecodable cookies give a
// fresh anonymous session; an outlived one gives ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return m.New(), nil
	}
	var rec record
	if err := m.codec.Decode(m.name, cookie.Value, &rec); err != nil || rec.ID == "" {
		return m.New(), nil
	}
	if m.limits.expired(rec, m.now()) {
		return nil, ErrExpired
	}
	return &Session{rec: rec, limits: m.limits, now: m.now}, nil
}

// New starts an anonymous session.
func (m *Manager) New() *Session {
	now := m.now().UTC()
	rec := record{
		ID:       mustNewToken(),
		Created:  now,
		Seen:     now,
		Deadline: m.limits.deadline(now, false),
	}
	return &Session{rec: rec, limits: m.limits, now: m.now, dirty: true}
}

// Save writes sess to the response. Destroyed sessions clear the cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if sess.destroyed {
		m.Destroy(w)
		return nil
	}

	now := m.now()
	sess.Touch(now)
	value, err := m.codec.Encode(m.name, sess.rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := m.cookie(value)
	// Only remembered sessions outlive the browser.
	if sess.rec.Remember && !sess.rec.Deadline.IsZero() {
		cookie.Expires = sess.rec.Deadline.UTC()
		cookie.MaxAge = -1
		if left := sess.rec.Deadline.Sub(now); left > 0 {
			cookie.MaxAge = int(left.Round(time.Second) / time.Second)
		}
	}
	http.SetCookie(w, cookie)
	return nil
}

// Destroy clears the session cookie.
func (m *Manager) Destroy(w http.ResponseWriter) {
	cookie := m.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: m.sameSite,
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
