package credentials

import "errors"

var (
	// ErrSubmitInFlight is returned when Submit is called while a previous submit is outstanding.
	ErrSubmitInFlight = errors.New("credentials: submit already in flight")
	// ErrClosed is returned when the controller was torn down before or during a submit.
	ErrClosed = errors.New("credentials: form closed")
)

// Display strings shown to the user.
const (
	MsgInvalidEmail          = "Введите корректный email."
	MsgLoginPasswordShort    = "Пароль слишком короткий."
	MsgRegisterPasswordShort = "Пароль должен быть не менее 6 символов."
	MsgPasswordsMismatch     = "Пароли не совпадают."
	MsgLoginRejected         = "Неверные учетные данные."
	MsgRegisterRejected      = "Ошибка регистрации."
	MsgLoginSucceeded        = "Вход выполнен."
	MsgRegisterSucceeded     = "Успешно зарегистрированы."
	MsgServerError           = "Ошибка сервера."

	// MsgFormExpired is for a submit that raced the form's teardown.
	MsgFormExpired = "Форма устарела. Попробуйте ещё раз."
)

// Kind classifies a failed submit.
type Kind string

const (
	// KindValidation means a local check failed and the provider was never called.
	KindValidation Kind = "validation"
	// KindRejected means the provider answered with Success=false.
	KindRejected Kind = "rejected"
	// KindServer means the provider call itself failed.
	KindServer Kind = "server"
)

// SubmitError describes an unsuccessful submit. Message is the text placed in
// FormState.Error; Err holds the provider failure for KindServer.
type SubmitError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
}

// Unwrap returns the underlying provider error.
func (e *SubmitError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err when it is a *SubmitError.
func KindOf(err error) (Kind, bool) {
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Kind, true
	}
	return "", false
}
