// Package auth renders the sign-in screen, the registration modal and the
// signed-in landing page.
package auth

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

// ModalID is the element id htmx swaps when the registration modal changes.
const ModalID = "register-modal"

//go:embed auth.tmpl
var files embed.FS

var views = template.Must(template.New("auth").ParseFS(files, "auth.tmpl"))

// LoginPage renders the login screen body.
func LoginPage(data LoginPageData) templ.Component {
	return view("login_page", data)
}

// LoginForm renders the login form fragment.
func LoginForm(data LoginFormData) templ.Component {
	return view("login_form", data)
}

// RegisterModal renders the registration modal fragment. Closed modals render
// as an empty placeholder that later swaps can target.
func RegisterModal(data RegisterModalData) templ.Component {
	return view("register_modal", data)
}

// HomePage renders the signed-in landing page body.
func HomePage(data HomePageData) templ.Component {
	return view("home_page", data)
}

func view(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return views.ExecuteTemplate(w, name, data)
	})
}
