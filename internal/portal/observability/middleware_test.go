package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{name: "ok", status: http.StatusOK, level: zapcore.InfoLevel},
		{name: "unauthorized", status: http.StatusUnauthorized, level: zapcore.WarnLevel},
		{name: "bad gateway", status: http.StatusBadGateway, level: zapcore.ErrorLevel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := InjectLogger(zap.New(core))(RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				FromContext(r.Context()).Debug("inside handler")
				w.WriteHeader(tc.status)
			})))

			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.Header.Set("HX-Request", "true")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			completed := logs.FilterMessage("request completed").All()
			require.Len(t, completed, 1)
			require.Equal(t, tc.level, completed[0].Level)
			fields := completed[0].ContextMap()
			require.Equal(t, int64(tc.status), fields["status"])
			require.Equal(t, "/login", fields["path"])
			require.Equal(t, true, fields["htmx"])

			inner := logs.FilterMessage("inside handler").All()
			require.Len(t, inner, 1, "handlers should receive the request-scoped logger")
			require.Equal(t, "/login", inner[0].ContextMap()["path"])
		})
	}
}

func TestRecovererLogsPanic(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := InjectLogger(zap.New(core))(Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestFromContextDefaultsToNoop(t *testing.T) {
	t.Parallel()

	require.Same(t, NoopLogger(), FromContext(context.Background()))
}
