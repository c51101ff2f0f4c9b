package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"caspiangreenports.org/portal/internal/portal/credentials"
	"caspiangreenports.org/portal/internal/portal/observability"
)

// DefaultIdentityToolkitEndpoint is the public Identity Toolkit REST base URL.
const DefaultIdentityToolkitEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Firebase messages.
const (
	MsgInvalidCredentials = "Неверный логин или пароль."
	MsgUserDisabled       = "Учетная запись отключена."
	MsgTooManyAttempts    = "Слишком много попыток. Попробуйте позже."
	MsgEmailTaken         = "Пользователь с таким email уже существует."
	MsgWelcome            = "Добро пожаловать!"
)

var (
	// ErrMissingAPIKey is returned when the web API key needed for password sign-in is empty.
	ErrMissingAPIKey = errors.New("authprovider: firebase web api key is required")
	// ErrUnexpectedResponse is returned when Identity Toolkit answers with something unusable.
	ErrUnexpectedResponse = errors.New("authprovider: unexpected identity toolkit response")
	// ErrIdentityMismatch is returned when the verified token belongs to a different account.
	ErrIdentityMismatch = errors.New("authprovider: verified token does not match signed-in account")
)

// credentialErrors maps Identity Toolkit error codes that reject the
// credentials, as opposed to failing the call.
var credentialErrors = map[string]string{
	"EMAIL_NOT_FOUND":             MsgInvalidCredentials,
	"INVALID_PASSWORD":            MsgInvalidCredentials,
	"INVALID_LOGIN_CREDENTIALS":   MsgInvalidCredentials,
	"USER_DISABLED":               MsgUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER": MsgTooManyAttempts,
}

// isEmailTaken reports whether CreateUser failed because the email is in use.
var isEmailTaken = firebaseauth.IsEmailAlreadyExists

// UserCreator abstracts the Firebase Admin SDK account creation call.
type UserCreator interface {
	CreateUser(ctx context.Context, user *firebaseauth.UserToCreate) (*firebaseauth.UserRecord, error)
}

// TokenVerifier abstracts the Firebase Admin SDK client for testability.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseConfig configures the password sign-in half of the provider.
type FirebaseConfig struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
	// MaxRetries bounds retries of transient sign-in failures (network, 5xx).
	MaxRetries uint64
	RetryBase  time.Duration
	Logger     *zap.Logger
}

// Firebase authenticates against Firebase Authentication. Accounts are created
// through the Admin SDK; passwords are checked through the Identity Toolkit REST
// API and the returned ID token is verified with the Admin SDK.
type Firebase struct {
	creator  UserCreator
	verifier TokenVerifier
	cfg      FirebaseConfig
}

var _ credentials.Provider = (*Firebase)(nil)

// NewFirebase constructs a provider from Admin SDK clients.
func NewFirebase(creator UserCreator, verifier TokenVerifier, cfg FirebaseConfig) (*Firebase, error) {
	if creator == nil {
		panic("firebase user creator is required")
	}
	if verifier == nil {
		panic("firebase token verifier is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultIdentityToolkitEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	return &Firebase{creator: creator, verifier: verifier, cfg: cfg}, nil
}

// NewFirebaseAuthClient initialises the Admin SDK auth client. credentialsFile
// may be empty to use application default credentials.
func NewFirebaseAuthClient(ctx context.Context, projectID, credentialsFile string) (*firebaseauth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}

// Register creates the account. An email already in use is a rejection.
func (f *Firebase) Register(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	user := (&firebaseauth.UserToCreate{}).Email(creds.Email).Password(creds.Password)
	record, err := f.creator.CreateUser(ctx, user)
	if err != nil {
		if isEmailTaken(err) {
			return credentials.Result{Success: false, Message: MsgEmailTaken}, nil
		}
		return credentials.Result{}, fmt.Errorf("create firebase user: %w", err)
	}
	f.logger(ctx).Info("firebase account created", zap.String("uid", record.UID))
	return credentials.Result{Success: true, Message: MsgAccountCreated, UID: record.UID}, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken string `json:"idToken"`
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type toolkitErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login checks the password with Identity Toolkit and verifies the issued token.
func (f *Firebase) Login(ctx context.Context, creds credentials.Credentials) (credentials.Result, error) {
	payload, err := json.Marshal(signInRequest{Email: creds.Email, Password: creds.Password, ReturnSecureToken: true})
	if err != nil {
		return credentials.Result{}, fmt.Errorf("encode sign-in request: %w", err)
	}

	var (
		signedIn signInResponse
		rejected string
	)
	backoff := retry.WithMaxRetries(f.cfg.MaxRetries, retry.NewExponential(f.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		signedIn, rejected, callErr = f.signIn(ctx, payload)
		return callErr
	})
	if err != nil {
		return credentials.Result{}, err
	}
	if rejected != "" {
		return credentials.Result{Success: false, Message: rejected}, nil
	}

	token, err := f.verifier.VerifyIDToken(ctx, signedIn.IDToken)
	if err != nil {
		return credentials.Result{}, fmt.Errorf("verify firebase id token: %w", err)
	}
	if signedIn.LocalID != "" && token.UID != signedIn.LocalID {
		return credentials.Result{}, ErrIdentityMismatch
	}
	return credentials.Result{Success: true, Message: MsgWelcome, UID: token.UID}, nil
}

// signIn performs one sign-in request. It returns a rejection message when
// the credentials were refused; retryable failures are marked for retry.Do.
func (f *Firebase) signIn(ctx context.Context, payload []byte) (signInResponse, string, error) {
	endpoint := f.cfg.Endpoint + "/accounts:signInWithPassword?key=" + url.QueryEscape(f.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return signInResponse{}, "", fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return signInResponse{}, "", ctx.Err()
		}
		return signInResponse{}, "", retry.RetryableError(fmt.Errorf("identity toolkit request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return signInResponse{}, "", retry.RetryableError(fmt.Errorf("read identity toolkit response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		f.logger(ctx).Warn("identity toolkit unavailable", zap.Int("status", resp.StatusCode))
		return signInResponse{}, "", retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		var errResp toolkitErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return signInResponse{}, "", fmt.Errorf("%w: status %d: %v", ErrUnexpectedResponse, resp.StatusCode, err)
		}
		code := toolkitErrorCode(errResp.Error.Message)
		if msg, ok := credentialErrors[code]; ok {
			f.logger(ctx).Info("firebase rejected credentials", zap.String("code", code))
			return signInResponse{}, msg, nil
		}
		return signInResponse{}, "", fmt.Errorf("%w: status %d: %s", ErrUnexpectedResponse, resp.StatusCode, errResp.Error.Message)
	}

	var out signInResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return signInResponse{}, "", fmt.Errorf("%w: decode sign-in response: %v", ErrUnexpectedResponse, err)
	}
	if out.IDToken == "" {
		return signInResponse{}, "", fmt.Errorf("%w: missing id token", ErrUnexpectedResponse)
	}
	return out, "", nil
}

// toolkitErrorCode extracts the code from messages such as
// "TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled".
func toolkitErrorCode(message string) string {
	code, _, _ := strings.Cut(strings.TrimSpace(message), " ")
	return strings.TrimSuffix(code, ":")
}

func (f *Firebase) logger(ctx context.Context) *zap.Logger {
	logger := f.cfg.Logger
	if logger == nil {
		logger = observability.FromContext(ctx)
	}
	return logger.With(zap.String("provider", "firebase"))
}
