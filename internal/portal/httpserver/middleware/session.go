package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/observability"
	appsession "caspiangreenports.org/portal/internal/portal/session"
)

type sessionKey struct{}

// SessionStore is the part of session.Manager the middleware needs.
type SessionStore interface {
	Load(*http.Request) (*appsession.Session, error)
	New() *appsession.Session
	Save(http.ResponseWriter, *appsession.Session) error
	Destroy(http.ResponseWriter)
}

// Session attaches the decoded session to the request context and persists it
// back to the client cookie before the handler writes its response.
func Session(store SessionStore) func(http.Handler) http.Handler {
	if store == nil {
		panic("middleware: session store is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			sess, err := store.Load(r)
			switch {
			case errors.Is(err, appsession.ErrExpired):
				logger.Info("session expired, starting a new one")
			case err != nil:
				logger.Warn("session load failed", zap.Error(err))
			}
			if err != nil || sess == nil {
				sess = store.New()
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			sw := &sessionWriter{ResponseWriter: w, store: store, sess: sess, logger: logger}
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.persist()
		})
	}
}

// SessionFromContext returns the request's session.
func SessionFromContext(ctx context.Context) (*appsession.Session, bool) {
	sess, _ := ctx.Value(sessionKey{}).(*appsession.Session)
	return sess, sess != nil
}

// sessionWriter saves the session right before the header is written, since
// cookies set after that point never reach the client.
type sessionWriter struct {
	http.ResponseWriter
	store  SessionStore
	sess   *appsession.Session
	logger *zap.Logger
	saved  bool
}

func (w *sessionWriter) persist() {
	if w.saved {
		return
	}
	w.saved = true
	if err := w.store.Save(w.ResponseWriter, w.sess); err != nil {
		w.logger.Error("session save failed", zap.Error(err))
	}
}

func (w *sessionWriter) WriteHeader(status int) {
	w.persist()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.persist()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
