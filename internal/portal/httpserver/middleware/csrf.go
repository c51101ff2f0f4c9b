package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/observability"
)

type csrfKey struct{}

const (
	defaultCSRFHeader = "X-CSRF-Token"
	defaultCSRFField  = "_csrf"
)

// CSRFConfig controls where the submitted token is read from.
type CSRFConfig struct {
	HeaderName string
	FieldName  string
}

// CSRF ties a token to the session. Safe methods make sure one exists; unsafe
// methods must echo it in the header (htmx) or the form field (plain forms).
// Must run after Session.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultCSRFHeader
	}
	if cfg.FieldName == "" {
		cfg.FieldName = defaultCSRFField
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				logger.Error("csrf: no session on request")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			token, err := sess.EnsureCSRFToken()
			if err != nil {
				logger.Error("csrf: mint token", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if !safeMethod(r.Method) && !tokensEqual(cfg.submitted(r), token) {
				logger.Warn("csrf token mismatch",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFTokenFromContext returns the session's token for embedding in pages.
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// submitted prefers the header htmx sends over the form field.
func (cfg CSRFConfig) submitted(r *http.Request) string {
	if v := r.Header.Get(cfg.HeaderName); v != "" {
		return v
	}
	return r.PostFormValue(cfg.FieldName)
}

func tokensEqual(submitted, token string) bool {
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) == 1
}

func safeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead ||
		method == http.MethodOptions || method == http.MethodTrace
}
