// users.go — обработчики /api/users (только admin).
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// ListUsers — GET /api/users?page=N.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	result, err := h.users.ListUsers(r.Context(), middleware.PrincipalFromContext(r.Context()), page)
	if err != nil {
		h.writeServiceError(w, err, "список пользователей")
		return
	}
	writePage(w, result)
}

// UpdateUserAccess — PATCH /api/users/{id}.
// Меняет роль, флаги прав, принадлежность к общине и активность.
func (h *APIHandler) UpdateUserAccess(w http.ResponseWriter, r *http.Request) {
	var in service.AccessUpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.users.UpdateAccess(r.Context(), middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err, "изменение доступа пользователя")
		return
	}
	writeData(w, http.StatusOK, user, "Доступ пользователя обновлён")
}
