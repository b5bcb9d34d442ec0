// handler.go — основной обработчик API HalamangGaling.
// Объединяет health и доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Queas/HGPH-4.0/internal/api/errors"
	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// maxBodyBytes — предельный размер тела запроса.
const maxBodyBytes = 1 << 20

// KnowledgeService — операции каталога. Реализуется service.KnowledgeService.
type KnowledgeService interface {
	List(ctx context.Context, p *rbac.Principal, f service.ListFilters, page int) (service.Page[model.KnowledgeRecord], error)
	ListPublic(ctx context.Context) ([]model.KnowledgeRecord, error)
	Get(ctx context.Context, p *rbac.Principal, id, purpose string) (*model.KnowledgeRecord, error)
	ListByCommunity(ctx context.Context, p *rbac.Principal, name string, page int) (service.Page[model.KnowledgeRecord], error)
	Create(ctx context.Context, p *rbac.Principal, in service.KnowledgeInput) (*model.KnowledgeRecord, error)
	Update(ctx context.Context, p *rbac.Principal, id string, in service.UpdateInput) (*model.KnowledgeRecord, error)
	Archive(ctx context.Context, p *rbac.Principal, id, reason string) error
	RevokeConsent(ctx context.Context, p *rbac.Principal, id, reason string) (*model.KnowledgeRecord, bool, error)
	AccessLog(ctx context.Context, p *rbac.Principal, id string) (*service.AccessLogView, error)
	PendingIPRReview(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.KnowledgeRecord], error)
	ApproveIPR(ctx context.Context, p *rbac.Principal, id string, in service.IPRApprovalInput) (*model.KnowledgeRecord, error)
}

// PlantService — справочник растений. Реализуется service.PlantService.
type PlantService interface {
	List(ctx context.Context, p *rbac.Principal, f service.PlantListFilters, page int) (service.Page[model.Plant], error)
	Search(ctx context.Context, p *rbac.Principal, f service.PlantSearchFilters, page int) (service.Page[model.PlantSummary], error)
	Get(ctx context.Context, p *rbac.Principal, id string) (*model.Plant, error)
	Create(ctx context.Context, p *rbac.Principal, in service.PlantInput) (*model.Plant, error)
	Update(ctx context.Context, p *rbac.Principal, id string, in service.PlantUpdateInput) (*model.Plant, error)
	Review(ctx context.Context, p *rbac.Principal, id string, in service.PlantReviewInput) (*model.Plant, error)
	Archive(ctx context.Context, p *rbac.Principal, id string) error
	Versions(ctx context.Context, p *rbac.Principal, id string) (*service.PlantVersionsView, error)
}

// AuthService — регистрация, вход и профиль. Реализуется service.AuthService.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, login, password string) (*service.AuthResult, error)
	Profile(ctx context.Context, id string) (*model.User, error)
}

// UserService — администрирование пользователей. Реализуется service.UserService.
type UserService interface {
	ListUsers(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.User], error)
	UpdateAccess(ctx context.Context, p *rbac.Principal, id string, in service.AccessUpdateInput) (*model.User, error)
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health    *HealthHandler
	knowledge KnowledgeService
	plants    PlantService
	auth      AuthService
	users     UserService
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	knowledge KnowledgeService,
	plants PlantService,
	auth AuthService,
	users UserService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		knowledge: knowledge,
		plants:    plants,
		auth:      auth,
		users:     users,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — проверка liveness (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка readiness (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// APIHealth — краткий статус сервиса (делегируется в HealthHandler).
func (h *APIHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	h.health.APIHealth(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// pagination — блок пагинации ответа списка.
type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// envelope — тело успешного ответа.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeData записывает успешный ответ с данными.
func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// writePage записывает страницу списка с блоком пагинации.
func writePage[T any](w http.ResponseWriter, p service.Page[T]) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    items,
		Pagination: &pagination{
			Total: p.Total,
			Page:  p.Page,
			Limit: p.Limit,
			Pages: p.Pages,
		},
	})
}

// decodeJSON читает тело запроса. Неизвестные поля игнорируются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %v", err))
		return false
	}
	return true
}

// pageParam читает zero-indexed номер страницы из query-параметра page.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		apierrors.ValidationError(w, "Некорректный номер страницы",
			apierrors.FieldError{Field: "page", Message: "ожидается целое число ≥ 0"})
		return 0, false
	}
	return page, true
}

// pathParam возвращает декодированный параметр пути.
// Если у запроса задан RawPath, chi сопоставляет маршрут по нему и
// отдаёт значение в percent-кодировке; иначе значение уже декодировано.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw, true
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный параметр пути",
			apierrors.FieldError{Field: name, Message: "некорректная percent-кодировка"})
		return "", false
	}
	return value, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// op — описание операции для лога.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var validationErr *service.ValidationError
	var deniedErr *service.AccessDeniedError

	switch {
	case errors.As(err, &validationErr):
		fields := make([]apierrors.FieldError, 0, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			fields = append(fields, apierrors.FieldError{Field: f.Field, Message: f.Message})
		}
		apierrors.ValidationError(w, "Ошибка валидации", fields...)
	case errors.As(err, &deniedErr):
		apierrors.AccessDenied(w, deniedErr.Message, deniedErr.Required, deniedErr.UserRole, deniedErr.Reason)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Ресурс уже существует или был изменён")
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, apierrors.CodeUnauthorized, "Неверный логин или пароль")
	case errors.Is(err, service.ErrInactiveUser):
		apierrors.Unauthorized(w, apierrors.CodeUnauthorized, "Учётная запись деактивирована")
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, apierrors.CodeNoToken, "Требуется аутентификация")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
