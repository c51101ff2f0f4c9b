package auth

import "caspiangreenports.org/portal/internal/portal/credentials"

// Paths are the routes the auth views post to.
type Paths struct {
	Login         string
	Logout        string
	Home          string
	Register      string
	RegisterOpen  string
	RegisterClose string
}

// LoginFormData encapsulates rendering state for the login form. Passwords are
// never part of it.
type LoginFormData struct {
	Email     string
	Remember  bool
	Loading   bool
	Error     string
	Success   string
	Notice    string
	Next      string
	Continue  string
	Paths     Paths
	CSRFToken string
}

// RegisterModalData encapsulates rendering state for the registration modal.
type RegisterModalData struct {
	Open      bool
	Email     string
	Loading   bool
	Error     string
	Success   string
	CloseIn   string
	Paths     Paths
	CSRFToken string
}

// LoginPageData is the full login screen: the form plus the modal slot.
type LoginPageData struct {
	Form     LoginFormData
	Register RegisterModalData
}

// HomePageData is the signed-in landing page.
type HomePageData struct {
	Email     string
	Paths     Paths
	CSRFToken string
}

// NewLoginFormData maps a login controller snapshot onto the form view.
func NewLoginFormData(state credentials.FormState, paths Paths, csrf string) LoginFormData {
	return LoginFormData{
		Email:     state.Email,
		Remember:  state.RememberMe,
		Loading:   state.Loading,
		Error:     state.Error,
		Success:   state.SuccessMessage,
		Paths:     paths,
		CSRFToken: csrf,
	}
}

// NewRegisterModalData maps the modal and its form onto the modal view. A
// closed modal renders as an empty slot.
func NewRegisterModalData(modal *credentials.RegisterModal, paths Paths, csrf string) RegisterModalData {
	data := RegisterModalData{Paths: paths, CSRFToken: csrf}
	if modal == nil {
		return data
	}
	form, ok := modal.Form()
	if !ok {
		return data
	}
	state := form.State()
	data.Open = true
	data.Email = state.Email
	data.Loading = state.Loading
	data.Error = state.Error
	data.Success = state.SuccessMessage
	if state.Phase == credentials.PhaseSuccess {
		data.CloseIn = credentials.SuccessCloseDelay.String()
	}
	return data
}
