// knowledge.go — обработчики /api/indigenous-knowledge.
// Решение о доступе принимает сервисный слой; обработчик только
// разбирает запрос и переводит результат в ответ.
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// reasonRequest — тело запросов с обоснованием (отзыв согласия, архивирование).
type reasonRequest struct {
	Reason string `json:"reason"`
}

// ListKnowledge — GET /api/indigenous-knowledge.
// Фильтры: community, indigenousGroup, knowledgeType, iprStatus, q, consentStatus=valid, page.
func (h *APIHandler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters := service.ListFilters{
		Community:       strings.TrimSpace(q.Get("community")),
		IndigenousGroup: strings.TrimSpace(q.Get("indigenousGroup")),
		KnowledgeType:   q.Get("knowledgeType"),
		IPRStatus:       q.Get("iprStatus"),
		Query:           strings.TrimSpace(q.Get("q")),
		ConsentValid:    q.Get("consentStatus") == "valid",
	}

	result, err := h.knowledge.List(r.Context(), middleware.PrincipalFromContext(r.Context()), filters, page)
	if err != nil {
		h.writeServiceError(w, err, "список записей")
		return
	}
	writePage(w, result)
}

// ListPublicKnowledge — GET /api/indigenous-knowledge/public.
func (h *APIHandler) ListPublicKnowledge(w http.ResponseWriter, r *http.Request) {
	items, err := h.knowledge.ListPublic(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "публичная коллекция")
		return
	}
	count := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &count})
}

// PendingIPRReview — GET /api/indigenous-knowledge/pending/ipr-review.
func (h *APIHandler) PendingIPRReview(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	result, err := h.knowledge.PendingIPRReview(r.Context(), middleware.PrincipalFromContext(r.Context()), page)
	if err != nil {
		h.writeServiceError(w, err, "очередь IPR-ревью")
		return
	}
	writePage(w, result)
}

// ListCommunityKnowledge — GET /api/indigenous-knowledge/community/{name}.
func (h *APIHandler) ListCommunityKnowledge(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	name, ok := pathParam(w, r, "name")
	if !ok {
		return
	}

	result, err := h.knowledge.ListByCommunity(r.Context(), middleware.PrincipalFromContext(r.Context()), name, page)
	if err != nil {
		h.writeServiceError(w, err, "записи общины")
		return
	}
	writePage(w, result)
}

// GetKnowledge — GET /api/indigenous-knowledge/{id}?purpose=...
// Каждый успешный просмотр дописывает запись в журнал доступа.
func (h *APIHandler) GetKnowledge(w http.ResponseWriter, r *http.Request) {
	rec, err := h.knowledge.Get(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), r.URL.Query().Get("purpose"))
	if err != nil {
		h.writeServiceError(w, err, "получение записи")
		return
	}
	writeData(w, http.StatusOK, rec, "")
}

// CreateKnowledge — POST /api/indigenous-knowledge.
func (h *APIHandler) CreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var in service.KnowledgeInput
	if !decodeJSON(w, r, &in) {
		return
	}

	rec, err := h.knowledge.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, err, "создание записи")
		return
	}
	writeData(w, http.StatusCreated, rec, "Запись традиционного знания создана")
}

// UpdateKnowledge — PUT /api/indigenous-knowledge/{id}.
// Поля consent, ipr, compliance, accessLog и id в теле игнорируются.
func (h *APIHandler) UpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	rec, err := h.knowledge.Update(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err, "изменение записи")
		return
	}
	writeData(w, http.StatusOK, rec, "Запись обновлена")
}

// ArchiveKnowledge — DELETE /api/indigenous-knowledge/{id}.
// Тело с полем reason необязательно.
func (h *APIHandler) ArchiveKnowledge(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	if err := h.knowledge.Archive(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Reason); err != nil {
		h.writeServiceError(w, err, "архивирование записи")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Запись архивирована"})
}

// RevokeConsent — POST /api/indigenous-knowledge/{id}/revoke-consent.
// Повторный отзыв возвращает 200 без изменения записи.
func (h *APIHandler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, changed, err := h.knowledge.RevokeConsent(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, err, "отзыв согласия")
		return
	}

	message := "Согласие отозвано, запись переведена в private"
	if !changed {
		message = "Согласие уже отозвано"
	}
	writeData(w, http.StatusOK, rec, message)
}

// GetAccessLog — GET /api/indigenous-knowledge/{id}/access-log.
func (h *APIHandler) GetAccessLog(w http.ResponseWriter, r *http.Request) {
	view, err := h.knowledge.AccessLog(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "журнал доступа")
		return
	}
	writeData(w, http.StatusOK, view, "")
}

// ApproveIPR — POST /api/indigenous-knowledge/{id}/approve-ipr.
func (h *APIHandler) ApproveIPR(w http.ResponseWriter, r *http.Request) {
	var in service.IPRApprovalInput
	if !decodeJSON(w, r, &in) {
		return
	}

	rec, err := h.knowledge.ApproveIPR(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err, "одобрение IPR")
		return
	}
	writeData(w, http.StatusOK, rec, "IPR-статус обновлён")
}

// decodeOptionalJSON читает тело запроса, допуская его отсутствие.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return true
	}
	return decodeJSON(w, r, dst)
}
