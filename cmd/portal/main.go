package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"caspiangreenports.org/portal/internal/portal/authprovider"
	"caspiangreenports.org/portal/internal/portal/config"
	"caspiangreenports.org/portal/internal/portal/credentials"
	"caspiangreenports.org/portal/internal/portal/forms"
	"caspiangreenports.org/portal/internal/portal/httpserver"
	"caspiangreenports.org/portal/internal/portal/observability"
	"caspiangreenports.org/portal/internal/portal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", invalid.Fields())
		} else {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		}
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("portal").With(zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("portal stopped with error", zap.Error(err))
		stop()
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Server.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	formOpts := []credentials.Option{credentials.WithLogger(logger.Named("forms"))}
	registryOpts := forms.Options{
		IdleTimeout:   cfg.Forms.IdleTimeout,
		SweepInterval: cfg.Forms.SweepInterval,
		Logger:        logger.Named("forms"),
	}
	if metrics != nil {
		formOpts = append(formOpts, credentials.WithRecorder(metrics))
		registryOpts.Gauge = metrics
	}
	registryOpts.FormOptions = formOpts
	registry := forms.NewRegistry(provider, registryOpts)

	serverCfg := httpserver.Config{
		Address:        cfg.Server.Address,
		BasePath:       cfg.Server.BasePath,
		Environment:    cfg.Environment,
		Sessions:       sessions,
		Forms:          registry,
		Logger:         logger.Named("http"),
		RequestTimeout: cfg.Server.RequestTimeout,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	}
	if metrics != nil {
		serverCfg.Metrics = metrics.Handler()
	}
	srv, err := httpserver.New(serverCfg)
	if err != nil {
		return err
	}

	logger.Info("portal listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("auth_provider", cfg.Auth.Provider),
	)
	return serve(ctx, srv, registry, cfg.Server.ShutdownTimeout, logger)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type janitor interface {
	Run(ctx context.Context) error
}

// serve runs srv and the form janitor until ctx is done or the server fails.
// The janitor outlives the graceful shutdown, so requests still draining keep
// their forms.
func serve(ctx context.Context, srv httpServer, forms janitor, shutdownTimeout time.Duration, logger *zap.Logger) error {
	formsCtx, stopForms := context.WithCancel(context.Background())
	defer stopForms()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return forms.Run(formsCtx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopForms()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (credentials.Provider, error) {
	switch cfg.Auth.Provider {
	case config.ProviderFirebase:
		client, err := authprovider.NewFirebaseAuthClient(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		provider, err := authprovider.NewFirebase(client, client, authprovider.FirebaseConfig{
			APIKey:     cfg.Auth.FirebaseAPIKey,
			Endpoint:   cfg.Auth.FirebaseEndpoint,
			MaxRetries: uint64(max(cfg.Auth.SignInRetries, 0)),
			Logger:     logger.Named("firebase"),
		})
		if err != nil {
			return nil, err
		}
		logger.Info("firebase auth provider enabled", zap.String("project", cfg.Auth.FirebaseProjectID))
		return provider, nil
	default:
		stub := authprovider.NewStub(logger.Named("stub"))
		stub.Latency = cfg.Auth.StubLatency
		logger.Warn("stub auth provider enabled; every credential pair is accepted")
		return stub, nil
	}
}

func buildSessions(cfg config.Config, logger *zap.Logger) (*session.Manager, error) {
	hashKey := []byte(cfg.Session.HashKey)
	blockKey := []byte(cfg.Session.BlockKey)
	if len(hashKey) == 0 {
		// Validation only lets this through for local environments.
		hashKey = securecookie.GenerateRandomKey(32)
		blockKey = securecookie.GenerateRandomKey(32)
		logger.Warn("PORTAL_SESSION_HASH_KEY not set; using ephemeral session keys")
	}
	return session.NewManager(session.Config{
		CookieName:       cfg.Session.CookieName,
		HashKey:          hashKey,
		BlockKey:         blockKey,
		CookieSecure:     cfg.Session.Secure,
		IdleTimeout:      cfg.Session.IdleTimeout,
		Lifetime:         cfg.Session.Lifetime,
		RememberLifetime: cfg.Session.RememberLifetime,
	})
}
