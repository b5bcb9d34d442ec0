// auth.go — обработчики /api/auth: регистрация, вход, профиль.
package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/Queas/HGPH-4.0/internal/api/errors"
	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// loginRequest — тело POST /api/auth/login.
// Логином служит e-mail или username; поля email и username
// принимаются как синонимы login.
type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register — POST /api/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "регистрация")
		return
	}
	writeData(w, http.StatusCreated, result, "Регистрация выполнена")
}

// Login — POST /api/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}

	var fields []apierrors.FieldError
	if login == "" {
		fields = append(fields, apierrors.FieldError{Field: "login", Message: "обязательное поле"})
	}
	if req.Password == "" {
		fields = append(fields, apierrors.FieldError{Field: "password", Message: "обязательное поле"})
	}
	if len(fields) > 0 {
		apierrors.ValidationError(w, "Ошибка валидации", fields...)
		return
	}

	result, err := h.auth.Login(r.Context(), login, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "вход")
		return
	}
	writeData(w, http.StatusOK, result, "Вход выполнен")
}

// Profile — GET /api/auth/profile.
func (h *APIHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		apierrors.Unauthorized(w, apierrors.CodeNoToken, "Требуется аутентификация")
		return
	}

	user, err := h.auth.Profile(r.Context(), p.ID)
	if err != nil {
		h.writeServiceError(w, err, "получение профиля")
		return
	}
	writeData(w, http.StatusOK, user, "")
}
