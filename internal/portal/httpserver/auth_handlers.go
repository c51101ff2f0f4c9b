package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/credentials"
	"caspiangreenports.org/portal/internal/portal/forms"
	custommw "caspiangreenports.org/portal/internal/portal/httpserver/middleware"
	"caspiangreenports.org/portal/internal/portal/observability"
	appsession "caspiangreenports.org/portal/internal/portal/session"
	"caspiangreenports.org/portal/internal/portal/templates/auth"
	"caspiangreenports.org/portal/internal/portal/templates/layout"
)

const (
	statusLoggedOut = "logged_out"

	msgLoggedOut     = "Вы вышли из системы."
	msgLoginRequired = "Войдите, чтобы продолжить."
	msgBadForm       = "Не удалось обработать форму. Попробуйте ещё раз."

	titleLogin = "Вход"
	titleHome  = "Главная"
)

type authHandlers struct {
	forms      FormRegistry
	paths      routePaths
	csrfHeader string
}

func newAuthHandlers(registry FormRegistry, paths routePaths, csrfHeader string) *authHandlers {
	if registry == nil {
		panic("auth: form registry is required")
	}
	return &authHandlers{forms: registry, paths: paths, csrfHeader: csrfHeader}
}

// LoginPage renders the sign-in screen. Signed-in users are sent on unless
// ?force=1 asks for the form anyway.
func (h *authHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if _, signedIn := custommw.CurrentUser(r); signedIn && !forceLogin(q) {
		http.Redirect(w, r, h.redirectTarget(q.Get("next")), http.StatusFound)
		return
	}

	form := h.loginFormData(r, entry.Login.State())
	form.Notice = noticeForQuery(q)
	form.Next = h.safeNext(q.Get("next"))
	render(w, r, http.StatusOK, h.loginPage(r, entry, form))
}

// LoginSubmit runs the login form with the posted fields.
func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		form := h.loginFormData(r, entry.Login.State())
		form.Error = msgBadForm
		h.respondLogin(w, r, entry, form, http.StatusBadRequest)
		return
	}
	next := h.safeNext(r.PostFormValue("next"))

	login := entry.Login
	login.SetEmail(r.PostFormValue("email"))
	login.SetPassword(r.PostFormValue("password"))
	login.SetRememberMe(parseCheckbox(r.PostFormValue("remember")))

	outcome, err := login.Submit(r.Context())
	status := submitStatus(err)
	form := h.loginFormData(r, outcome.State)
	form.Next = next
	if errors.Is(err, credentials.ErrClosed) {
		// The form was torn down mid-submit and kept nothing; echo the email.
		form.Email = r.PostFormValue("email")
		form.Error = credentials.MsgFormExpired
	}

	if err == nil {
		if signInErr := h.signIn(r, outcome); signInErr != nil {
			observability.FromContext(r.Context()).Error("sign-in session update failed", zap.Error(signInErr))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		form.Continue = h.redirectTarget(next)
	}
	h.respondLogin(w, r, entry, form, status)
}

// signIn stores the account on the session under a fresh session ID and
// drops the form state kept for the old one.
func (h *authHandlers) signIn(r *http.Request, outcome credentials.Outcome) error {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		return errors.New("session missing from context")
	}
	sess.SetUser(&appsession.User{UID: outcome.Result.UID, Email: outcome.State.Email})
	sess.SetRememberMe(outcome.State.RememberMe)
	if err := sess.Renew(); err != nil {
		return err
	}
	if previous := sess.PreviousID(); previous != "" {
		h.forms.Forget(previous)
	}
	return nil
}

// RegisterModal renders the modal fragment in its current state.
func (h *authHandlers) RegisterModal(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	if !custommw.IsHTMXRequest(r.Context()) {
		http.Redirect(w, r, h.paths.login, http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, auth.RegisterModal(h.modalData(r, entry)))
}

// RegisterOpen shows the registration modal.
func (h *authHandlers) RegisterOpen(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	entry.Register.Open()
	h.respondModal(w, r, entry, http.StatusOK)
}

// RegisterClose hides the registration modal; closing twice is harmless.
func (h *authHandlers) RegisterClose(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	entry.Register.Close()
	h.respondModal(w, r, entry, http.StatusOK)
}

// RegisterSubmit runs the registration form of the open modal.
func (h *authHandlers) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	form, open := entry.Register.Form()
	if !open {
		h.respondModal(w, r, entry, http.StatusConflict)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.respondModal(w, r, entry, http.StatusBadRequest)
		return
	}

	form.SetEmail(r.PostFormValue("email"))
	form.SetPassword(r.PostFormValue("password"))
	form.SetPasswordConfirm(r.PostFormValue("password_confirm"))

	_, err := form.Submit(r.Context())
	h.respondModal(w, r, entry, submitStatus(err))
}

// Logout ends the session and returns to the login screen.
func (h *authHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		h.forms.Forget(sess.ID())
		sess.Destroy()
	}
	custommw.Redirect(w, r, h.loginURLWithParams(url.Values{"status": {statusLoggedOut}}))
}

// Home is the signed-in landing page.
func (h *authHandlers) Home(w http.ResponseWriter, r *http.Request) {
	user, _ := custommw.CurrentUser(r)
	data := auth.HomePageData{
		Paths:     h.viewPaths(),
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
	}
	if user != nil {
		data.Email = user.Email
	}
	render(w, r, http.StatusOK, h.page(r, titleHome, auth.HomePage(data)))
}

func (h *authHandlers) entry(w http.ResponseWriter, r *http.Request) (*forms.Entry, bool) {
	entry, ok := custommw.FormsFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return entry, true
}

func (h *authHandlers) respondLogin(w http.ResponseWriter, r *http.Request, entry *forms.Entry, form auth.LoginFormData, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		render(w, r, status, auth.LoginForm(form))
		return
	}
	render(w, r, status, h.loginPage(r, entry, form))
}

func (h *authHandlers) respondModal(w http.ResponseWriter, r *http.Request, entry *forms.Entry, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		render(w, r, status, auth.RegisterModal(h.modalData(r, entry)))
		return
	}
	// Plain form posts follow the redirect back to the login page, which
	// renders the modal in its new state.
	if status == http.StatusOK && r.Method == http.MethodPost {
		http.Redirect(w, r, h.paths.login, http.StatusSeeOther)
		return
	}
	form := h.loginFormData(r, entry.Login.State())
	render(w, r, status, h.loginPage(r, entry, form))
}

func (h *authHandlers) loginPage(r *http.Request, entry *forms.Entry, form auth.LoginFormData) templ.Component {
	return h.page(r, titleLogin, auth.LoginPage(auth.LoginPageData{
		Form:     form,
		Register: h.modalData(r, entry),
	}))
}

func (h *authHandlers) page(r *http.Request, title string, body templ.Component) templ.Component {
	env := custommw.EnvironmentFromContext(r.Context())
	return layout.Page(layout.PageData{
		Title:            title,
		EnvironmentName:  env.Name,
		EnvironmentBadge: env.Badge,
		CSRFToken:        custommw.CSRFTokenFromContext(r.Context()),
		CSRFHeader:       h.csrfHeader,
	}, body)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) loginFormData(r *http.Request, state credentials.FormState) auth.LoginFormData {
	return auth.NewLoginFormData(state, h.viewPaths(), custommw.CSRFTokenFromContext(r.Context()))
}

func (h *authHandlers) modalData(r *http.Request, entry *forms.Entry) auth.RegisterModalData {
	return auth.NewRegisterModalData(entry.Register, h.viewPaths(), custommw.CSRFTokenFromContext(r.Context()))
}

func (h *authHandlers) viewPaths() auth.Paths {
	return auth.Paths{
		Login:         h.paths.login,
		Logout:        h.paths.logout,
		Home:          h.paths.home,
		Register:      h.paths.register,
		RegisterOpen:  h.paths.registerOpen,
		RegisterClose: h.paths.registerClose,
	}
}

// submitStatus maps a submit result onto the response status.
func submitStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, credentials.ErrSubmitInFlight) || errors.Is(err, credentials.ErrClosed) {
		return http.StatusConflict
	}
	kind, _ := credentials.KindOf(err)
	switch kind {
	case credentials.KindValidation:
		return http.StatusUnprocessableEntity
	case credentials.KindRejected:
		return http.StatusUnauthorized
	case credentials.KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func noticeForQuery(q url.Values) string {
	if q.Get("status") == statusLoggedOut {
		return msgLoggedOut
	}
	if q.Get("reason") == custommw.ReasonLoginRequired {
		return msgLoginRequired
	}
	return ""
}

func (h *authHandlers) redirectTarget(raw string) string {
	if next := h.safeNext(raw); next != "" {
		return next
	}
	return h.paths.home
}

func (h *authHandlers) loginURLWithParams(params url.Values) string {
	if len(params) == 0 {
		return h.paths.login
	}
	return h.paths.login + "?" + params.Encode()
}

// safeNext accepts only local paths below the base path, never the login
// page itself.
func (h *authHandlers) safeNext(raw string) string {
	target := localTarget(h.paths.base, raw)
	if target == "" {
		return ""
	}
	if parsed, err := url.Parse(target); err == nil && trimSlash(parsed.Path) == trimSlash(h.paths.login) {
		return ""
	}
	return target
}

func localTarget(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return ""
	}

	p := parsed.Path
	if p == "" {
		p = "/"
	}
	unescaped, err := url.PathUnescape(p)
	if err != nil || strings.Contains(unescaped, `\`) {
		return ""
	}
	cleaned := path.Clean("/" + strings.TrimLeft(unescaped, "/"))
	if strings.HasPrefix(unescaped, "//") || !withinBase(cleaned, base) {
		return ""
	}

	if parsed.RawQuery != "" {
		cleaned += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		cleaned += "#" + parsed.Fragment
	}
	return cleaned
}

func withinBase(p, base string) bool {
	if base == "" || base == "/" {
		return strings.HasPrefix(p, "/")
	}
	return p == base || strings.HasPrefix(p, base+"/")
}

func trimSlash(p string) string {
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func parseCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "on", "yes":
		return true
	default:
		return false
	}
}

func forceLogin(q url.Values) bool {
	switch strings.ToLower(strings.TrimSpace(q.Get("force"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
