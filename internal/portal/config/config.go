package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultEnvironment      = "local"
	defaultAddress          = ":8080"
	defaultBasePath         = "/"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultLogLevel         = "info"
	defaultCookieName       = "portal_session"
	defaultSessionIdle      = 30 * time.Minute
	defaultSessionLifetime  = 12 * time.Hour
	defaultRememberLifetime = 30 * 24 * time.Hour
	defaultFormsIdle        = 30 * time.Minute
	defaultFormsSweep       = time.Minute
	defaultSignInRetries    = 2

	// ProviderStub selects the demonstration provider.
	ProviderStub = "stub"
	// ProviderFirebase selects Firebase Authentication.
	ProviderFirebase = "firebase"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Session     SessionConfig
	Auth        AuthConfig
	Forms       FormsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Address         string
	BasePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName       string
	HashKey          string
	BlockKey         string
	Secure           bool
	IdleTimeout      time.Duration
	Lifetime         time.Duration
	RememberLifetime time.Duration
}

// AuthConfig selects and configures the auth provider.
type AuthConfig struct {
	Provider                string
	StubLatency             time.Duration
	FirebaseProjectID       string
	FirebaseAPIKey          string
	FirebaseCredentialsFile string
	FirebaseEndpoint        string
	SignInRetries           int
}

// FormsConfig controls the lifetime of per-session form state.
type FormsConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Local reports whether the portal runs on a developer machine.
func (c Config) Local() bool {
	switch strings.ToLower(c.Environment) {
	case "local", "dev", "development", "test":
		return true
	}
	return false
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, the .env file and the
// environment, in increasing order of precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Environment: stringWithDefault(lookup, "PORTAL_ENVIRONMENT", defaultEnvironment),
		LogLevel:    stringWithDefault(lookup, "PORTAL_LOG_LEVEL", defaultLogLevel),
		Server: ServerConfig{
			Address:         stringWithDefault(lookup, "PORTAL_HTTP_ADDR", defaultAddress),
			BasePath:        stringWithDefault(lookup, "PORTAL_BASE_PATH", defaultBasePath),
			ReadTimeout:     durationWithDefault(lookup, "PORTAL_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "PORTAL_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "PORTAL_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  durationWithDefault(lookup, "PORTAL_HTTP_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "PORTAL_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			MetricsEnabled:  boolWithDefault(lookup, "PORTAL_METRICS_ENABLED", true),
		},
		Session: SessionConfig{
			CookieName:       stringWithDefault(lookup, "PORTAL_SESSION_COOKIE", defaultCookieName),
			HashKey:          stringWithDefault(lookup, "PORTAL_SESSION_HASH_KEY", ""),
			BlockKey:         stringWithDefault(lookup, "PORTAL_SESSION_BLOCK_KEY", ""),
			IdleTimeout:      durationWithDefault(lookup, "PORTAL_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:         durationWithDefault(lookup, "PORTAL_SESSION_LIFETIME", defaultSessionLifetime),
			RememberLifetime: durationWithDefault(lookup, "PORTAL_SESSION_REMEMBER_LIFETIME", defaultRememberLifetime),
		},
		Auth: AuthConfig{
			Provider:                strings.ToLower(stringWithDefault(lookup, "PORTAL_AUTH_PROVIDER", ProviderStub)),
			StubLatency:             durationWithDefault(lookup, "PORTAL_AUTH_STUB_LATENCY", 0),
			FirebaseProjectID:       stringWithDefault(lookup, "PORTAL_FIREBASE_PROJECT_ID", ""),
			FirebaseAPIKey:          stringWithDefault(lookup, "PORTAL_FIREBASE_API_KEY", ""),
			FirebaseCredentialsFile: stringWithDefault(lookup, "PORTAL_FIREBASE_CREDENTIALS_FILE", ""),
			FirebaseEndpoint:        stringWithDefault(lookup, "PORTAL_FIREBASE_AUTH_ENDPOINT", ""),
			SignInRetries:           intWithDefault(lookup, "PORTAL_FIREBASE_SIGNIN_RETRIES", defaultSignInRetries),
		},
		Forms: FormsConfig{
			IdleTimeout:   durationWithDefault(lookup, "PORTAL_FORMS_IDLE_TIMEOUT", defaultFormsIdle),
			SweepInterval: durationWithDefault(lookup, "PORTAL_FORMS_SWEEP_INTERVAL", defaultFormsSweep),
		},
	}
	// Cookies are only marked Secure outside local development unless told otherwise.
	cfg.Session.Secure = boolWithDefault(lookup, "PORTAL_SESSION_SECURE", !cfg.Local())

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Address) == "" {
		missing = append(missing, "Server.Address")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		missing = append(missing, "Server.BasePath")
	}
	if cfg.Session.HashKey == "" && !cfg.Local() {
		missing = append(missing, "Session.HashKey")
	}
	if cfg.Session.HashKey != "" && len(cfg.Session.HashKey) < 32 {
		missing = append(missing, "Session.HashKey")
	}
	switch len(cfg.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		missing = append(missing, "Session.BlockKey")
	}
	if cfg.Forms.IdleTimeout <= 0 {
		missing = append(missing, "Forms.IdleTimeout")
	}
	if cfg.Forms.SweepInterval <= 0 {
		missing = append(missing, "Forms.SweepInterval")
	}
	if cfg.Auth.SignInRetries < 0 {
		missing = append(missing, "Auth.SignInRetries")
	}

	switch cfg.Auth.Provider {
	case ProviderStub:
	case ProviderFirebase:
		if cfg.Auth.FirebaseProjectID == "" {
			missing = append(missing, "Auth.FirebaseProjectID")
		}
		if cfg.Auth.FirebaseAPIKey == "" {
			missing = append(missing, "Auth.FirebaseAPIKey")
		}
	default:
		missing = append(missing, "Auth.Provider")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
