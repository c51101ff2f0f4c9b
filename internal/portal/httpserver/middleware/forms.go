package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/forms"
	"caspiangreenports.org/portal/internal/portal/observability"
)

type formsContextKey struct{}

// FormStore hands out the form entry of a session.
type FormStore interface {
	Get(sessionID string) (*forms.Entry, error)
}

// Forms attaches the session's form entry to the context. Must run after Session.
func Forms(store FormStore) func(http.Handler) http.Handler {
	if store == nil {
		panic("form store is required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			entry, err := store.Get(sess.ID())
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, forms.ErrClosed) {
					status = http.StatusServiceUnavailable
				}
				observability.FromContext(r.Context()).Warn("form entry unavailable", zap.Error(err))
				http.Error(w, http.StatusText(status), status)
				return
			}
			ctx := context.WithValue(r.Context(), formsContextKey{}, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FormsFromContext returns the form entry attached by Forms.
func FormsFromContext(ctx context.Context) (*forms.Entry, bool) {
	entry, ok := ctx.Value(formsContextKey{}).(*forms.Entry)
	return entry, ok && entry != nil
}
