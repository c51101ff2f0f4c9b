package credentials

import "sync"

// RegisterModal is the visibility shell around a registration form. The form
// exists only while the modal is open; closing discards it.
type RegisterModal struct {
	provider Provider
	opts     []Option

	mu   sync.Mutex
	form *Controller
}

// NewRegisterModal returns a closed modal whose forms call provider.
func NewRegisterModal(provider Provider, opts ...Option) *RegisterModal {
	if provider == nil {
		panic("credentials: provider is required")
	}
	return &RegisterModal{provider: provider, opts: opts}
}

// Open shows the modal and returns its form. Opening an open modal returns the
// existing form unchanged.
func (m *RegisterModal) Open() *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form != nil {
		return m.form
	}

	var form *Controller
	opts := append(append([]Option(nil), m.opts...), WithOnClose(func() { m.closeForm(form) }))
	form = NewRegisterController(m.provider, opts...)
	m.form = form
	return form
}

// Close hides the modal. Closing a closed modal is a no-op.
func (m *RegisterModal) Close() {
	m.closeForm(nil)
}

// IsOpen reports whether the modal is visible.
func (m *RegisterModal) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form != nil
}

// Form returns the form of an open modal.
func (m *RegisterModal) Form() (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form, m.form != nil
}

// closeForm closes the current form. When only is set the close applies to
// that form alone, so a stale delayed close cannot hide a newer form.
func (m *RegisterModal) closeForm(only *Controller) {
	m.mu.Lock()
	form := m.form
	if form == nil || (only != nil && only != form) {
		m.mu.Unlock()
		return
	}
	m.form = nil
	m.mu.Unlock()

	form.Close()
}
