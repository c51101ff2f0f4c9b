// Package authprovider contains the credential providers the portal can run with.
package authprovider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"caspiangreenports.org/portal/internal/portal/credentials"
	"caspiangreenports.org/portal/internal/portal/observability"
)

// Demo account recognised by the stub provider.
const (
	DemoEmail    = "user@example.com"
	DemoPassword = "password"
)

// Stub messages.
const (
	MsgDemoWelcome      = "Добро пожаловать!"
	MsgSimulatedLogin   = "Вход (симуляция): привет!"
	MsgAccountCreated   = "Аккаунт успешно создан."
	stubProviderLogName = "stub"
)

// Stub is a demonstration provider that accepts every sign-in and registration.
type Stub struct {
	// Latency delays each answer, simulating a remote call. The delay honours
	// context cancellation.
	Latency time.Duration
	Logger  *zap.Logger
}

var _ credentials.Provider = (*Stub)(nil)

// NewStub returns a stub provider with no latency.
func NewStub(logger *zap.Logger) *Stub {
	return &Stub{Logger: logger}
}

// Login succeeds for any credentials; the demo account gets a personal welcome.
func (s *Stub) Login(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	s.logger(ctx).Info("login attempt", zap.String("email", creds.Email))
	if err := s.wait(ctx); err != nil {
		return credentials.Result{}, err
	}
	if creds.Email == DemoEmail && creds.Password == DemoPassword {
		return credentials.Result{Success: true, Message: MsgDemoWelcome, UID: "demo"}, nil
	}
	return credentials.Result{Success: true, Message: MsgSimulatedLogin}, nil
}

// Register always creates the account.
func (s *Stub) Register(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	s.logger(ctx).Info("register attempt", zap.String("email", creds.Email))
	if err := s.wait(ctx); err != nil {
		return credentials.Result{}, err
	}
	return credentials.Result{Success: true, Message: MsgAccountCreated}, nil
}

func (s *Stub) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stub) logger(ctx context.Context) *zap.Logger {
	logger := s.Logger
	if logger == nil {
		logger = observability.FromContext(ctx)
	}
	return logger.With(zap.String("provider", stubProviderLogName))
}
