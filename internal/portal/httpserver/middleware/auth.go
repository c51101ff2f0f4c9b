package middleware

import (
	"net/http"
	"net/url"

	appsession "caspiangreenports.org/portal/internal/portal/session"
)

// ReasonLoginRequired is appended to the login URL when a protected page was requested anonymously.
const ReasonLoginRequired = "login_required"

// CurrentUser returns the signed-in user of the request session.
func CurrentUser(r *http.Request) (*appsession.User, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	user := sess.User()
	return user, user != nil && user.Email != ""
}

// RequireUser lets signed-in sessions through and sends everyone else to loginPath.
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := CurrentUser(r); ok {
				next.ServeHTTP(w, r)
				return
			}

			if IsHTMXRequest(r.Context()) {
				w.Header().Set("HX-Redirect", loginPath)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, loginURL(loginPath, r.URL.RequestURI()), http.StatusFound)
		})
	}
}

func loginURL(loginPath, next string) string {
	u, err := url.Parse(loginPath)
	if err != nil {
		return loginPath
	}
	q := u.Query()
	q.Set("reason", ReasonLoginRequired)
	if next != "" {
		q.Set("next", next)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
