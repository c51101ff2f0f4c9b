package authprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"caspiangreenports.org/portal/internal/portal/credentials"
)

func TestStubLogin(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	stub := NewStub(zap.New(core))

	res, err := stub.Login(context.Background(), credentials.Credentials{Email: DemoEmail, Password: DemoPassword})
	require.NoError(t, err)
	require.Equal(t, credentials.Result{Success: true, Message: MsgDemoWelcome, UID: "demo"}, res)

	res, err = stub.Login(context.Background(), credentials.Credentials{Email: "any@cgp.example", Password: "whatever"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, MsgSimulatedLogin, res.Message)

	entries := logs.FilterMessage("login attempt").All()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		fields := entry.ContextMap()
		require.Contains(t, fields, "email")
		require.NotContains(t, fields, "password")
		require.Equal(t, "stub", fields["provider"])
	}
}

func TestStubRegister(t *testing.T) {
	t.Parallel()

	res, err := NewStub(zap.NewNop()).Register(context.Background(), credentials.Credentials{Email: "new@cgp.example", Password: "abcdef"})
	require.NoError(t, err)
	require.Equal(t, credentials.Result{Success: true, Message: MsgAccountCreated}, res)
}

func TestStubLatencyHonoursContext(t *testing.T) {
	t.Parallel()

	stub := &Stub{Latency: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := stub.Login(ctx, credentials.Credentials{Email: DemoEmail, Password: DemoPassword})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stub.Latency = time.Millisecond
	res, err := stub.Register(context.Background(), credentials.Credentials{Email: "a@b.c", Password: "abcdef"})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestFuncsAdapter(t *testing.T) {
	t.Parallel()

	var seen credentials.Credentials
	provider := Funcs{
		LoginFunc: func(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
			seen = creds
			return credentials.Result{Success: true, Message: "ok"}, nil
		},
	}

	res, err := provider.Login(context.Background(), credentials.Credentials{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Message)
	require.Equal(t, "a@b.c", seen.Email)

	_, err = provider.Register(context.Background(), credentials.Credentials{})
	require.ErrorIs(t, err, ErrNotConfigured)
}
