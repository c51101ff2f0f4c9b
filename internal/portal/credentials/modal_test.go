package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterModalOpenClose(t *testing.T) {
	t.Parallel()

	m := NewRegisterModal(&mockProvider{})
	require.False(t, m.IsOpen())
	_, ok := m.Form()
	require.False(t, ok)

	form := m.Open()
	require.True(t, m.IsOpen())
	require.Same(t, form, m.Open(), "opening an open modal keeps the form")
	require.Equal(t, VariantRegister, form.Variant())

	form.SetEmail("user@example.com")
	m.Close()
	require.False(t, m.IsOpen())
	require.True(t, form.Closed())

	// Closing again is a no-op.
	m.Close()
	require.False(t, m.IsOpen())

	reopened := m.Open()
	require.NotSame(t, form, reopened)
	require.Empty(t, reopened.State().Email, "a reopened modal starts with a fresh form")
	m.Close()
}

func TestRegisterModalClosesAfterSuccessfulRegistration(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{result: Result{Success: true, Message: "done"}}
	m := NewRegisterModal(provider)
	t.Cleanup(m.Close)

	form := m.Open()
	form.closeDelay = 10 * time.Millisecond
	fillRegister(form, "new@example.com", "abcdef", "abcdef")

	out, err := form.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "done", out.State.SuccessMessage)
	require.True(t, m.IsOpen(), "the success message stays visible until the delay elapses")

	require.Eventually(t, func() bool { return !m.IsOpen() }, 2*time.Second, 5*time.Millisecond)
	require.True(t, form.Closed())
}

func TestRegisterModalStaleCloseKeepsNewForm(t *testing.T) {
	t.Parallel()

	m := NewRegisterModal(&mockProvider{})
	t.Cleanup(m.Close)

	first := m.Open()
	m.Close()
	second := m.Open()

	// A delayed close belonging to the discarded form must not hide the new one.
	m.closeForm(first)
	require.True(t, m.IsOpen())
	got, ok := m.Form()
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestRegisterModalFailureKeepsModalOpen(t *testing.T) {
	t.Parallel()

	m := NewRegisterModal(&mockProvider{result: Result{Message: "taken"}})
	t.Cleanup(m.Close)

	form := m.Open()
	form.closeDelay = time.Millisecond
	fillRegister(form, "new@example.com", "abcdef", "abcdef")
	out, err := form.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, "taken", out.State.Error)

	time.Sleep(20 * time.Millisecond)
	require.True(t, m.IsOpen())
}
