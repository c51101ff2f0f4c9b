package session

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/gorilla/securecookie"
)

const tokenBytes = 32

// User is the signed-in portal account.
type User struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email"`
}

// record is the cookie payload.
type record struct {
	ID       string    `json:"sid"`
	Created  time.Time `json:"iat"`
	Seen     time.Time `json:"seen"`
	Deadline time.Time `json:"exp,omitempty"`
	Remember bool      `json:"rem,omitempty"`
	CSRF     string    `json:"csrf,omitempty"`
	User     *User     `json:"usr,omitempty"`
}

type limits struct {
	idle       time.Duration
	absolute   time.Duration
	remembered time.Duration
}

func (l limits) deadline(created time.Time, remember bool) time.Time {
	if remember {
		return created.UTC().Add(l.remembered)
	}
	return created.UTC().Add(l.absolute)
}

func (l limits) expired(rec record, now time.Time) bool {
	now = now.UTC()
	if !rec.Deadline.IsZero() && now.After(rec.Deadline) {
		return true
	}
	if rec.Remember {
		return false
	}
	seen := rec.Seen
	if seen.IsZero() {
		seen = rec.Created
	}
	return !seen.IsZero() && now.Sub(seen) > l.idle
}

// Session is the request-scoped view of a stored session. Changes mark it
// dirty so the middleware knows to write the cookie back.
type Session struct {
	rec       record
	limits    limits
	now       func() time.Time
	previous  string
	dirty     bool
	destroyed bool
}

func (s *Session) ID() string            { return s.rec.ID }
func (s *Session) CreatedAt() time.Time  { return s.rec.Created }
func (s *Session) LastActive() time.Time { return s.rec.Seen }
func (s *Session) ExpiresAt() time.Time  { return s.rec.Deadline }
func (s *Session) RememberMe() bool      { return s.rec.Remember }
func (s *Session) CSRFToken() string     { return s.rec.CSRF }
func (s *Session) User() *User           { return s.rec.User }
func (s *Session) Dirty() bool           { return s.dirty }
func (s *Session) Destroyed() bool       { return s.destroyed }

// PreviousID is the ID the session was loaded with, once Renew replaced it.
func (s *Session) PreviousID() string { return s.previous }

// SetRememberMe switches between the browser-session and remembered
// lifetimes, both counted from creation.
func (s *Session) SetRememberMe(remember bool) {
	if s.rec.Remember == remember {
		return
	}
	s.rec.Remember = remember
	s.rec.Deadline = s.limits.deadline(s.rec.Created, remember)
	s.dirty = true
}

// EnsureCSRFToken returns the session's CSRF token, minting one if needed.
func (s *Session) EnsureCSRFToken() (string, error) {
	if s.rec.CSRF != "" {
		return s.rec.CSRF, nil
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.rec.CSRF = token
	s.dirty = true
	return token, nil
}

// SetUser stores a copy of user; nil signs the session out.
func (s *Session) SetUser(user *User) {
	current := s.rec.User
	switch {
	case current == nil && user == nil:
		return
	case current != nil && user != nil && *current == *user:
		return
	case user == nil:
		s.rec.User = nil
	default:
		copied := *user
		s.rec.User = &copied
	}
	s.dirty = true
}

// Renew gives the session a new ID and restarts its lifetime from now. The
// user, remember-me flag and CSRF token are kept, so pages already open in
// the browser keep working. Call it on sign-in, after SetRememberMe.
func (s *Session) Renew() error {
	id, err := newToken()
	if err != nil {
		return err
	}
	if s.previous == "" {
		s.previous = s.rec.ID
	}
	now := s.clock().UTC()
	s.rec.ID = id
	s.rec.Created = now
	s.rec.Seen = now
	s.rec.Deadline = s.limits.deadline(now, s.rec.Remember)
	s.dirty = true
	return nil
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Destroy drops the session when the response is written.
func (s *Session) Destroy() {
	s.destroyed = true
	s.dirty = true
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	if now = now.UTC(); now.After(s.rec.Seen) {
		s.rec.Seen = now
		s.dirty = true
	}
}

func newToken() (string, error) {
	raw := securecookie.GenerateRandomKey(tokenBytes)
	if raw == nil {
		return "", errors.New("session: random source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func mustNewToken() string {
	token, err := newToken()
	if err != nil {
		panic(err)
	}
	return token
}
