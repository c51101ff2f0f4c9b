package middleware

import (
	"context"
	"net/http"
	"strings"
)

type environmentContextKey struct{}

// EnvironmentInfo describes the deployment environment shown in the page chrome.
type EnvironmentInfo struct {
	Name string
	// Badge is the short label rendered in the header; empty for production.
	Badge string
}

// Environment attaches the deployment environment to the request context.
// Empty values default to "local".
func Environment(value string) func(http.Handler) http.Handler {
	info := environmentInfo(value)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), environmentContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnvironmentFromContext returns the environment registered for the request.
func EnvironmentFromContext(ctx context.Context) EnvironmentInfo {
	if ctx != nil {
		if info, ok := ctx.Value(environmentContextKey{}).(EnvironmentInfo); ok {
			return info
		}
	}
	return environmentInfo("")
}

func environmentInfo(value string) EnvironmentInfo {
	name := strings.ToLower(strings.TrimSpace(value))
	if name == "" {
		name = "local"
	}
	var badge string
	switch name {
	case "prod", "production":
		badge = ""
	case "staging", "stg":
		badge = "STG"
	case "local", "dev", "development":
		badge = "DEV"
	default:
		badge = strings.ToUpper(name)
		if len(badge) > 4 {
			badge = badge[:4]
		}
	}
	return EnvironmentInfo{Name: name, Badge: badge}
}
