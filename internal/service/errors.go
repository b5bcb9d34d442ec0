// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound — ресурс не найден или архивирован.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс или параллельное изменение).
	ErrConflict = errors.New("конфликт: ресурс уже существует или изменён")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrUnauthorized — токен принят, но учётная запись не найдена.
	ErrUnauthorized = errors.New("требуется аутентификация")
	// ErrInvalidCredentials — неверный логин или пароль.
	ErrInvalidCredentials = errors.New("неверный логин или пароль")
	// ErrInactiveUser — учётная запись деактивирована.
	ErrInactiveUser = errors.New("учётная запись деактивирована")
)

// FieldError — ошибка валидации одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError содержит все найденные ошибки полей, а не только первую.
type ValidationError struct {
	Fields []FieldError
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap позволяет проверять errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// validator накапливает ошибки полей.
type validator struct {
	fields []FieldError
}

// add фиксирует ошибку поля.
func (v *validator) add(field, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: message})
}

// check фиксирует ошибку, если условие не выполнено.
func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.add(field, message)
	}
}

// err возвращает *ValidationError или nil.
func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// AccessDeniedError — отказ в доступе к записи с деталями решения.
type AccessDeniedError struct {
	// Required — уровень доступа записи
	Required string
	// UserRole — роль вызывающего
	UserRole string
	// Reason — статус согласия или причина отказа
	Reason  string
	Message string
}

// Error реализует интерфейс error.
func (e *AccessDeniedError) Error() string {
	return e.Message
}

// Unwrap позволяет проверять errors.Is(err, ErrForbidden).
func (e *AccessDeniedError) Unwrap() error { return ErrForbidden }
