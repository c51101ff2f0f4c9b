package authprovider

import (
	"context"
	"errors"

	"caspiangreenports.org/portal/internal/portal/credentials"
)

// ErrNotConfigured is returned by a Funcs provider whose hook is unset.
var ErrNotConfigured = errors.New("authprovider: operation not configured")

// CallFunc performs one provider call.
type CallFunc func(ctx context.Context, creds credentials.Credentials) (credentials.Result, error)

// Funcs adapts a pair of functions into a credentials.Provider.
type Funcs struct {
	LoginFunc    CallFunc
	RegisterFunc CallFunc
}

var _ credentials.Provider = Funcs{}

// Login calls LoginFunc.
func (f Funcs) Login(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	if f.LoginFunc == nil {
		return credentials.Result{}, ErrNotConfigured
	}
	return f.LoginFunc(ctx, creds)
}

// Register calls RegisterFunc.
func (f Funcs) Register(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	if f.RegisterFunc == nil {
		return credentials.Result{}, ErrNotConfigured
	}
	return f.RegisterFunc(ctx, creds)
}
