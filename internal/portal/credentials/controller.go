package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/observability"
)

// SuccessCloseDelay is how long a successful registration stays on screen
// before the modal closes.
const SuccessCloseDelay = time.Second

// Variant identifies which form a controller drives.
type Variant string

const (
	VariantLogin    Variant = "login"
	VariantRegister Variant = "register"
)

// Phase is the position of a form in its submission state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// FormState is a snapshot of a form instance. Empty Error and SuccessMessage
// mean nothing is displayed.
type FormState struct {
	Email           string
	Password        string
	PasswordConfirm string
	RememberMe      bool
	Loading         bool
	Error           string
	SuccessMessage  string
	Phase           Phase
}

// Outcome is returned by Submit. Result is the zero value unless the provider answered.
type Outcome struct {
	State  FormState
	Result Result
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for submit attempts. Without it the logger
// is taken from the submit context.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithOnClose registers the callback fired once a successful registration has
// been displayed for SuccessCloseDelay. Login controllers never call it.
func WithOnClose(fn func()) Option {
	return func(c *Controller) {
		c.onClose = fn
	}
}

// Recorder observes settled submits. outcome is "success" or a Kind.
type Recorder interface {
	ObserveSubmit(form, outcome string, elapsed time.Duration)
}

// WithRecorder reports every settled submit to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// Controller owns the state of one form instance and is the only place that
// state changes. It is safe for concurrent use; at most one submit runs at a time.
type Controller struct {
	variant      Variant
	provider     Provider
	logger       *zap.Logger
	onClose      func()
	recorder     Recorder
	closeDelay   time.Duration
	newAttemptID func() string

	inFlight atomic.Bool

	lifetime context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	state      FormState
	closed     bool
	closeTimer *time.Timer
	closeGen   uint64
}

// NewLoginController returns a controller for the login form.
func NewLoginController(provider Provider, opts ...Option) *Controller {
	return newController(VariantLogin, provider, opts)
}

// NewRegisterController returns a controller for the registration form.
func NewRegisterController(provider Provider, opts ...Option) *Controller {
	return newController(VariantRegister, provider, opts)
}

func newController(variant Variant, provider Provider, opts []Option) *Controller {
	if provider == nil {
		panic("credentials: provider is required")
	}
	lifetime, cancel := context.WithCancel(context.Background())
	c := &Controller{
		variant:      variant,
		provider:     provider,
		closeDelay:   SuccessCloseDelay,
		newAttemptID: func() string { return ulid.Make().String() },
		lifetime:     lifetime,
		cancel:       cancel,
		state:        FormState{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Variant reports which form the controller drives.
func (c *Controller) Variant() Variant {
	return c.variant
}

// State returns a copy of the current form state.
func (c *Controller) State() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetEmail updates the email field.
func (c *Controller) SetEmail(value string) {
	c.edit(func(s *FormState) { s.Email = value })
}

// SetPassword updates the password field.
func (c *Controller) SetPassword(value string) {
	c.edit(func(s *FormState) { s.Password = value })
}

// SetPasswordConfirm updates the confirmation field. Only registration checks it.
func (c *Controller) SetPasswordConfirm(value string) {
	c.edit(func(s *FormState) { s.PasswordConfirm = value })
}

// SetRememberMe toggles the remember-me checkbox.
func (c *Controller) SetRememberMe(remember bool) {
	c.edit(func(s *FormState) { s.RememberMe = remember })
}

// edit applies a field change. Settled forms return to idle, but the displayed
// messages stay until the next submit.
func (c *Controller) edit(apply func(*FormState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	apply(&c.state)
	if c.state.Phase == PhaseSuccess || c.state.Phase == PhaseFailed {
		c.state.Phase = PhaseIdle
	}
}

// Submit validates the current fields and, when they pass, calls the provider.
// A submit issued while another is outstanding fails with ErrSubmitInFlight and
// leaves the state untouched. Validation, rejection and provider failures are
// reported as *SubmitError alongside the resulting state.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Outcome{State: c.State()}, ErrSubmitInFlight
	}
	defer c.inFlight.Store(false)

	started := time.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	c.state.Phase = PhaseValidating
	c.state.Error = ""
	c.state.SuccessMessage = ""
	if msg := c.validateLocked(); msg != "" {
		c.state.Error = msg
		c.state.Phase = PhaseIdle
		snapshot := c.state
		c.mu.Unlock()
		c.observe(string(KindValidation), started)
		return Outcome{State: snapshot}, &SubmitError{Kind: KindValidation, Message: msg}
	}
	creds := Credentials{Email: c.state.Email, Password: c.state.Password}
	c.state.Phase = PhaseSubmitting
	c.state.Loading = true
	c.mu.Unlock()

	logger := c.loggerFor(ctx).With(
		zap.String("form", string(c.variant)),
		zap.String("attempt_id", c.newAttemptID()),
	)

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	result, err := c.call(callCtx, creds)
	stop()
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		logger.Debug("form closed before provider settled; result discarded")
		return Outcome{}, ErrClosed
	}

	c.state.Loading = false
	switch {
	case err != nil:
		logger.Error("auth provider call failed", zap.Error(err))
		c.state.Phase = PhaseFailed
		c.state.Error = MsgServerError
		c.observe(string(KindServer), started)
		return Outcome{State: c.state}, &SubmitError{Kind: KindServer, Message: MsgServerError, Err: err}
	case !result.Success:
		msg := firstNonEmpty(result.Message, c.rejectedFallback())
		logger.Info("credentials rejected")
		c.state.Phase = PhaseFailed
		c.state.Error = msg
		c.observe(string(KindRejected), started)
		return Outcome{State: c.state, Result: result}, &SubmitError{Kind: KindRejected, Message: msg}
	}

	logger.Info("credentials accepted")
	c.state.Phase = PhaseSuccess
	c.state.SuccessMessage = firstNonEmpty(result.Message, c.successFallback())
	c.state.Password = ""
	if c.variant == VariantRegister {
		c.state.Email = ""
		c.state.PasswordConfirm = ""
		c.scheduleCloseLocked()
	}
	c.observe("success", started)
	return Outcome{State: c.state, Result: result}, nil
}

// Close tears the form down: field contents are discarded, an outstanding
// provider call is cancelled and its result ignored, and a pending
// registration close timer is stopped. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.state = FormState{Phase: PhaseIdle}
	c.mu.Unlock()

	c.cancel()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) call(ctx context.Context, creds Credentials) (Result, error) {
	if c.variant == VariantRegister {
		return c.provider.Register(ctx, creds)
	}
	return c.provider.Login(ctx, creds)
}

// validateLocked runs the checks in their fixed order and returns the first failure.
func (c *Controller) validateLocked() string {
	s := c.state
	if !ValidateEmail(s.Email) {
		return MsgInvalidEmail
	}
	if c.variant == VariantRegister {
		if !ValidatePassword(s.Password, RegisterMinPasswordLength) {
			return MsgRegisterPasswordShort
		}
		if !PasswordsMatch(s.Password, s.PasswordConfirm) {
			return MsgPasswordsMismatch
		}
		return ""
	}
	if !ValidatePassword(s.Password, LoginMinPasswordLength) {
		return MsgLoginPasswordShort
	}
	return ""
}

func (c *Controller) scheduleCloseLocked() {
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	c.closeGen++
	gen := c.closeGen
	c.closeTimer = time.AfterFunc(c.closeDelay, func() { c.finishSuccess(gen) })
}

func (c *Controller) finishSuccess(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.closeGen {
		c.mu.Unlock()
		return
	}
	c.closeTimer = nil
	c.state.SuccessMessage = ""
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (c *Controller) observe(outcome string, started time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveSubmit(string(c.variant), outcome, time.Since(started))
	}
}

func (c *Controller) loggerFor(ctx context.Context) *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return observability.FromContext(ctx)
}

func (c *Controller) rejectedFallback() string {
	if c.variant == VariantRegister {
		return MsgRegisterRejected
	}
	return MsgLoginRejected
}

func (c *Controller) successFallback() string {
	if c.variant == VariantRegister {
		return MsgRegisterSucceeded
	}
	return MsgLoginSucceeded
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
