package middleware

import (
	"context"
	"net/http"
)

type htmxKey struct{}

// HTMXInfo is what the portal reads from htmx request headers.
type HTMXInfo struct {
	IsHTMX    bool
	IsBoosted bool
	Target    string
	TriggerID string
	// Restore is set when htmx refetches a page missing from its history cache.
	Restore bool
}

// Fragment reports whether the request wants a partial response. Boosted and
// history-restore requests swap the whole body and get full pages.
func (i HTMXInfo) Fragment() bool {
	return i.IsHTMX && !i.IsBoosted && !i.Restore
}

func readHTMX(h http.Header) HTMXInfo {
	flag := func(name string) bool { return h.Get(name) == "true" }
	return HTMXInfo{
		IsHTMX:    flag("HX-Request"),
		IsBoosted: flag("HX-Boosted"),
		Target:    h.Get("HX-Target"),
		TriggerID: h.Get("HX-Trigger"),
		Restore:   flag("HX-History-Restore-Request"),
	}
}

// HTMX stores HTMXInfo on the request context. Every response varies on
// HX-Request since one route serves both pages and fragments.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "HX-Request")
			ctx := context.WithValue(r.Context(), htmxKey{}, readHTMX(r.Header))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HTMXInfoFromContext returns the stored HTMXInfo, or the zero value.
func HTMXInfoFromContext(ctx context.Context) HTMXInfo {
	info, _ := ctx.Value(htmxKey{}).(HTMXInfo)
	return info
}

// IsHTMXRequest is shorthand for HTMXInfoFromContext(ctx).Fragment().
func IsHTMXRequest(ctx context.Context) bool {
	return HTMXInfoFromContext(ctx).Fragment()
}

// Redirect sends the client to target: htmx requests get HX-Redirect, plain
// requests a 303.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
