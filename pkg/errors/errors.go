package errors

import (
	stderrors "errors"
	"fmt"
)

// MonitorError представляет ошибку монитора с кодом и контекстом
type MonitorError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error реализует интерфейс error
func (e *MonitorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *MonitorError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы обернутые копии
// сентинелов распознавались через errors.Is
func (e *MonitorError) Is(target error) bool {
	t, ok := target.(*MonitorError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithError добавляет underlying ошибку
func (e *MonitorError) WithError(err error) *MonitorError {
	return &MonitorError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
		Context: e.Context,
	}
}

// WithContext добавляет контекст к ошибке
func (e *MonitorError) WithContext(ctx interface{}) *MonitorError {
	return &MonitorError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Context: ctx,
	}
}

// Предопределенные ошибки мониторинга
var (
	// Ошибки сессии
	ErrNotLoggedIn = &MonitorError{
		Code:    "NOT_LOGGED_IN",
		Message: "session is not authenticated",
	}

	ErrNoAccessToken = &MonitorError{
		Code:    "NO_ACCESS_TOKEN",
		Message: "backend reported expired access token",
	}

	ErrCredentialsMissing = &MonitorError{
		Code:    "CREDENTIALS_MISSING",
		Message: "username or password is not configured",
	}

	// Ошибки капчи
	ErrCaptchaRejected = &MonitorError{
		Code:    "CAPTCHA_REJECTED",
		Message: "backend rejected the resolved captcha",
	}

	ErrHumanTimeout = &MonitorError{
		Code:    "HUMAN_TIMEOUT",
		Message: "no human reply arrived before the deadline",
	}

	ErrStaleReply = &MonitorError{
		Code:    "STALE_REPLY",
		Message: "human reply arrived too late to be trusted",
	}

	ErrSegmentationFailed = &MonitorError{
		Code:    "SEGMENTATION_FAILED",
		Message: "captcha image segmentation failed",
	}

	// Ошибки выбора курса
	ErrNoEligibleCourse = &MonitorError{
		Code:    "NO_ELIGIBLE_COURSE",
		Message: "no course eligible for practical booking",
	}

	// Системные ошибки
	ErrTransientHTTP = &MonitorError{
		Code:    "TRANSIENT_HTTP",
		Message: "transient HTTP or network failure",
	}

	ErrInvalidResponse = &MonitorError{
		Code:    "INVALID_RESPONSE",
		Message: "backend response has unexpected format",
	}

	ErrConfigurationInvalid = &MonitorError{
		Code:    "CONFIGURATION_INVALID",
		Message: "monitor configuration is invalid",
	}
)

// New создает новую ошибку монитора
func New(code, message string) *MonitorError {
	return &MonitorError{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает обычную ошибку в MonitorError
func Wrap(err error, code, message string) *MonitorError {
	return &MonitorError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is пробрасывает stdlib errors.Is, чтобы вызывающим не нужен был второй импорт
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Code извлекает код из ошибки монитора, пустая строка для прочих ошибок
func Code(err error) string {
	var monErr *MonitorError
	if stderrors.As(err, &monErr) {
		return monErr.Code
	}
	return ""
}
