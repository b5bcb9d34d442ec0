// auth.go — JWT middleware аутентификации и авторизации.
// Проверяет Bearer token, находит учётную запись и помещает принципала в контекст.
// Required отвергает запросы без токена, Optional пропускает их анонимно.
// Присланный, но невалидный токен отвергается в обоих режимах.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/Queas/HGPH-4.0/internal/api/errors"
	"github.com/Queas/HGPH-4.0/internal/auth"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — принципал запроса в контексте.
	ContextKeyPrincipal contextKey = "principal"
)

// TokenVerifier проверяет токен. Реализуется auth.TokenManager.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// PrincipalResolver находит принципала по claims. Реализуется service.AuthService.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, claims *auth.Claims) (*rbac.Principal, error)
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	tokens   TokenVerifier
	resolver PrincipalResolver
	logger   *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(tokens TokenVerifier, resolver PrincipalResolver, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		tokens:   tokens,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// authFailure — причина отказа в аутентификации.
type authFailure struct {
	status  int
	code    string
	message string
}

// Middleware возвращает middleware, требующий валидный токен.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return j.handler(true)
}

// Optional возвращает middleware, пропускающий запросы без токена анонимно.
func (j *JWTAuth) Optional() func(http.Handler) http.Handler {
	return j.handler(false)
}

func (j *JWTAuth) handler(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := requestInfoFrom(r.Context())
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					info.setAuthFailure(apierrors.CodeNoToken)
					apierrors.Unauthorized(w, apierrors.CodeNoToken, "Отсутствует заголовок Authorization")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			p, fail := j.authenticate(r.Context(), authHeader)
			if fail != nil {
				info.setAuthFailure(fail.code)
				if fail.status == http.StatusInternalServerError {
					apierrors.InternalError(w, fail.message)
					return
				}
				apierrors.Unauthorized(w, fail.code, fail.message)
				return
			}

			info.setPrincipal(p)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Subject возвращает sub из валидного Bearer token или "".
// Учётная запись не загружается: метод нужен лимитеру, который работает
// до аутентификации маршрута.
func (j *JWTAuth) Subject(r *http.Request) string {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return ""
	}
	claims, err := j.tokens.Verify(r.Context(), token)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// bearerToken извлекает токен из заголовка "Bearer <token>".
func bearerToken(authHeader string) (string, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// authenticate проверяет заголовок Authorization и находит принципала.
func (j *JWTAuth) authenticate(ctx context.Context, authHeader string) (*rbac.Principal, *authFailure) {
	token, ok := bearerToken(authHeader)
	if !ok {
		return nil, &authFailure{http.StatusUnauthorized, apierrors.CodeInvalidToken,
			"Неверный формат Authorization: ожидается Bearer <token>"}
	}

	claims, err := j.tokens.Verify(ctx, token)
	if err != nil {
		j.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, &authFailure{http.StatusUnauthorized, apierrors.CodeExpiredToken, "Срок действия токена истёк"}
		}
		return nil, &authFailure{http.StatusUnauthorized, apierrors.CodeInvalidToken, "Невалидный токен"}
	}

	p, err := j.resolver.ResolvePrincipal(ctx, claims)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInactiveUser):
			return nil, &authFailure{http.StatusUnauthorized, apierrors.CodeUnauthorized, "Учётная запись деактивирована"}
		case errors.Is(err, service.ErrUnauthorized):
			return nil, &authFailure{http.StatusUnauthorized, apierrors.CodeUnauthorized, "Учётная запись не найдена"}
		default:
			j.logger.Error("Ошибка получения пользователя по токену", slog.String("error", err.Error()))
			return nil, &authFailure{http.StatusInternalServerError, apierrors.CodeInternalError, "Внутренняя ошибка"}
		}
	}
	return p, nil
}

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierrors.Unauthorized(w, apierrors.CodeNoToken, "Требуется аутентификация")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
		})
	}
}

// --- Context helpers ---

// WithPrincipal помещает принципала в контекст.
func WithPrincipal(ctx context.Context, p *rbac.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext извлекает принципала из контекста запроса.
// Возвращает nil для анонимного запроса.
func PrincipalFromContext(ctx context.Context) *rbac.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*rbac.Principal)
	return p
}
