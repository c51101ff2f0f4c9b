package credentials

import "context"

// Credentials is the transient email/password pair captured on submit.
type Credentials struct {
	Email    string
	Password string
}

// Result is the outcome reported by a Provider for a completed call.
// Message is a display string, not a machine readable code.
type Result struct {
	Success bool
	Message string
	// UID optionally carries the provider account identifier on success.
	UID string
}

// Provider performs the actual sign-in and account creation. A non-nil error
// means the call itself failed (network, outage); an unsuccessful Result means
// the provider answered and rejected the credentials.
type Provider interface {
	Login(ctx context.Context, creds Credentials) (Result, error)
	Register(ctx context.Context, creds Credentials) (Result, error)
}
