package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook signature validation failed")

	// ErrUpstream внешний платежный провайдер вернул ошибку
	ErrUpstream = errors.New("payment provider error")

	// ErrPersistence не удалось надежно сохранить эффект события
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError представляет ошибку валидации одного поля
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is позволяет сопоставлять набор ошибок валидации с ErrInvalidInput
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields возвращает список полей с ошибками
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// SignatureError представляет ошибку проверки подписи вебхука.
// Событие с такой ошибкой никогда не обрабатывается.
type SignatureError struct {
	OriginalErr error
}

// Error реализует интерфейс error
func (e *SignatureError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("webhook signature verification failed: %v", e.OriginalErr)
	}
	return "webhook signature verification failed"
}

// Unwrap возвращает оригинальную ошибку
func (e *SignatureError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой подписи
func (e *SignatureError) Is(target error) bool {
	return target == ErrWebhookValidationFailed
}

// NewSignatureError создает новую ошибку проверки подписи
func NewSignatureError(err error) *SignatureError {
	return &SignatureError{OriginalErr: err}
}

// UpstreamError представляет ошибку вызова платежного провайдера.
// Локальное состояние при такой ошибке не изменяется.
type UpstreamError struct {
	Provider    string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *UpstreamError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s error [%s]: %s: %v", e.Provider, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s error [%s]: %s", e.Provider, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *UpstreamError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой провайдера
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError создает новую ошибку внешнего провайдера
func NewUpstreamError(provider, code, message string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Provider:    provider,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// PersistenceError представляет ошибку записи в хранилище после успешной
// проверки события. Такая ошибка обязана привести к не-2xx ответу, чтобы
// провайдер повторил доставку.
type PersistenceError struct {
	Op          string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.OriginalErr)
}

// Unwrap возвращает оригинальную ошибку
func (e *PersistenceError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой хранилища
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError создает новую ошибку хранилища
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, OriginalErr: err}
}
