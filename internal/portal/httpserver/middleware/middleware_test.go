package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"caspiangreenports.org/portal/internal/portal/authprovider"
	"caspiangreenports.org/portal/internal/portal/forms"
	appsession "caspiangreenports.org/portal/internal/portal/session"
)

func newTestClock() *sessionTestClock {
	return &sessionTestClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
}

func TestHTMXMiddleware(t *testing.T) {
	var info HTMXInfo
	var fragment bool
	handler := HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info = HTMXInfoFromContext(r.Context())
		fragment = IsHTMXRequest(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "login-form")
	req.Header.Set("HX-Trigger", "login-submit")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !info.IsHTMX || info.Target != "login-form" || info.TriggerID != "login-submit" {
		t.Fatalf("unexpected htmx info %#v", info)
	}
	if !fragment {
		t.Fatalf("expected fragment request")
	}
	if rr.Header().Get("Vary") != "HX-Request" {
		t.Fatalf("expected Vary header, got %q", rr.Header().Get("Vary"))
	}

	req = httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Boosted", "true")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if fragment {
		t.Fatalf("boosted requests expect full pages")
	}
}

func TestRedirect(t *testing.T) {
	handler := HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Redirect(w, r, "/login?reason=logged_out")
	}))

	t.Run("plain request gets 303", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logout", nil))
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/login?reason=logged_out" {
			t.Fatalf("unexpected location %q", loc)
		}
	})

	t.Run("htmx request gets HX-Redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.Header.Set("HX-Request", "true")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		if rr.Header().Get("HX-Redirect") != "/login?reason=logged_out" {
			t.Fatalf("expected HX-Redirect header")
		}
	})
}

func TestCSRFMiddleware(t *testing.T) {
	store := newSessionStoreForTest(t, newTestClock())
	handler := HTMX()(Session(store)(CSRF(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CSRFTokenFromContext(r.Context())))
	}))))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	token := rr.Body.String()
	if token == "" {
		t.Fatalf("expected token in context")
	}
	cookie := findCookie(rr.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie")
	}

	t.Run("header token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.AddCookie(cookie)
		req.Header.Set("X-CSRF-Token", token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if rr.Body.String() != token {
			t.Fatalf("token should be stable across requests")
		}
	})

	t.Run("form field accepted", func(t *testing.T) {
		form := url.Values{"_csrf": {token}, "email": {"a@b.co"}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("token of another session rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-CSRF-Token", token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}

func TestRequireUser(t *testing.T) {
	store := newSessionStoreForTest(t, newTestClock())
	protected := RequireUser("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r)
		if !ok {
			t.Fatalf("expected user in session")
		}
		_, _ = w.Write([]byte(user.Email))
	}))
	handler := HTMX()(Session(store)(protected))

	t.Run("anonymous redirects with next", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?tab=berths", nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		loc, err := url.Parse(rr.Header().Get("Location"))
		if err != nil {
			t.Fatalf("parse location: %v", err)
		}
		if loc.Path != "/login" {
			t.Fatalf("expected redirect to /login, got %s", loc.Path)
		}
		if loc.Query().Get("next") != "/?tab=berths" || loc.Query().Get("reason") != ReasonLoginRequired {
			t.Fatalf("unexpected query %q", loc.RawQuery)
		}
	})

	t.Run("htmx anonymous gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("HX-Request", "true")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if rr.Header().Get("HX-Redirect") != "/login" {
			t.Fatalf("expected HX-Redirect header to /login")
		}
	})

	t.Run("signed in passes through", func(t *testing.T) {
		sess := store.New()
		sess.SetUser(&appsession.User{UID: "u1", Email: "pilot@cgp.example"})
		saved := httptest.NewRecorder()
		if err := store.Save(saved, sess); err != nil {
			t.Fatalf("Save error: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(findCookie(saved.Result().Cookies(), "test_session"))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK || rr.Body.String() != "pilot@cgp.example" {
			t.Fatalf("expected 200 with email, got %d %q", rr.Code, rr.Body.String())
		}
	})
}

func TestNoStore(t *testing.T) {
	rr := httptest.NewRecorder()
	NoStore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if got := rr.Header().Get("Cache-Control"); got != "no-store, max-age=0" {
		t.Fatalf("unexpected Cache-Control %q", got)
	}
	if rr.Header().Get("Pragma") != "no-cache" {
		t.Fatalf("expected Pragma no-cache")
	}
}

func TestEnvironmentBadge(t *testing.T) {
	cases := map[string]EnvironmentInfo{
		"":            {Name: "local", Badge: "DEV"},
		"production":  {Name: "production", Badge: ""},
		"Staging":     {Name: "staging", Badge: "STG"},
		"sandbox-eu1": {Name: "sandbox-eu1", Badge: "SAND"},
	}
	for value, want := range cases {
		var got EnvironmentInfo
		Environment(value)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = EnvironmentFromContext(r.Context())
		})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if got != want {
			t.Fatalf("environment %q: expected %#v, got %#v", value, want, got)
		}
	}
}

func TestFormsMiddleware(t *testing.T) {
	store := newSessionStoreForTest(t, newTestClock())
	registry := forms.NewRegistry(authprovider.Funcs{}, forms.Options{})

	var entries []*forms.Entry
	handler := Session(store)(Forms(registry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry, ok := FormsFromContext(r.Context())
		if !ok {
			t.Fatalf("expected form entry in context")
		}
		entries = append(entries, entry)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(findCookie(rr.Result().Cookies(), "test_session"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(entries) != 2 || entries[0] != entries[1] {
		t.Fatalf("expected the same entry for the same session")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one live entry, got %d", registry.Len())
	}

	registry.Close()
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", rr.Code)
	}
}
