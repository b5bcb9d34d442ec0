// Пакет errors — конструкторы стандартных ошибок HalamangGaling API.
// Единый формат: {"success": false, "error": "<code>", "message": "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteError или Write.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок.
const (
	CodeValidationError = "validation_error"
	CodeNotFound        = "not_found"
	CodeNoToken         = "no_token"
	CodeInvalidToken    = "invalid_token"
	CodeExpiredToken    = "expired_token"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeAccessDenied    = "access_denied"
	CodeConflict        = "conflict"
	CodeRateLimited     = "rate_limited"
	CodeInternalError   = "internal_error"
)

// FieldError — ошибка одного поля в ответе 400.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Body — тело ответа ошибки.
type Body struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	// Required, UserRole и Reason заполняются при отказе в доступе к записи
	Required string `json:"required,omitempty"`
	UserRole string `json:"userRole,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// Fields — ошибки валидации по полям
	Fields []FieldError `json:"fields,omitempty"`
	// RetryAfter — секунды до сброса окна лимита
	RetryAfter *int64 `json:"retryAfter,omitempty"`
}

// Write записывает тело ошибки с указанным статусом.
func Write(w http.ResponseWriter, statusCode int, body Body) {
	body.Success = false
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	Write(w, statusCode, Body{Error: code, Message: message})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string, fields ...FieldError) {
	Write(w, http.StatusBadRequest, Body{Error: CodeValidationError, Message: message, Fields: fields})
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
// code — no_token, invalid_token, expired_token или unauthorized.
func Unauthorized(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// AccessDenied — 403 с деталями решения о доступе к записи.
func AccessDenied(w http.ResponseWriter, message, required, userRole, reason string) {
	Write(w, http.StatusForbidden, Body{
		Error:    CodeAccessDenied,
		Message:  message,
		Required: required,
		UserRole: userRole,
		Reason:   reason,
	})
}

// Conflict — 409 конфликт (дублирующийся ресурс или параллельное изменение).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// RateLimited — 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, retryAfter int64) {
	Write(w, http.StatusTooManyRequests, Body{
		Error:      CodeRateLimited,
		Message:    "Слишком много запросов, повторите позже",
		RetryAfter: &retryAfter,
	})
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
