// logging.go — журнал HTTP-запросов API каталога.
// Кроме метода, маршрута и статуса в запись попадают принципал и решение
// лимитера: их заполняют внутренние middleware через requestInfo.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
)

// requestInfo — сведения о запросе, известные только внутри цепочки.
// RequestLogger кладёт пустую структуру в контекст до обработки запроса,
// JWTAuth и RateLimit дописывают в неё свои решения.
type requestInfo struct {
	userID string
	role   string
	// rateKey — ключ лимитера ("user:<id>" или "ip:<адрес>")
	rateKey       string
	rateRemaining int
	rateLimited   bool
	// authFailure — код отказа аутентификации (no_token, expired_token, ...)
	authFailure string
}

const contextKeyRequestInfo contextKey = "request_info"

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, contextKeyRequestInfo, info)
}

// requestInfoFrom возвращает requestInfo запроса или nil вне RequestLogger.
func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(contextKeyRequestInfo).(*requestInfo)
	return info
}

func (i *requestInfo) setPrincipal(p *rbac.Principal) {
	if i == nil || p == nil {
		return
	}
	i.userID = p.ID
	i.role = p.Role
}

func (i *requestInfo) setAuthFailure(code string) {
	if i != nil {
		i.authFailure = code
	}
}

// statusRecorder запоминает статус и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger пишет одну запись на запрос. Уровень: ERROR для 5xx,
// WARN для отклонённых лимитером и прочих 4xx, иначе INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(withRequestInfo(r.Context(), info)))

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("client_ip", clientIP(r)),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if info.userID != "" {
				attrs = append(attrs, slog.String("user_id", info.userID), slog.String("role", info.role))
			} else {
				attrs = append(attrs, slog.String("role", rbac.RoleAnonymous))
			}
			if info.authFailure != "" {
				attrs = append(attrs, slog.String("auth_failure", info.authFailure))
			}
			if info.rateKey != "" {
				attrs = append(attrs,
					slog.String("rate_limit_key", info.rateKey),
					slog.Int("rate_limit_remaining", info.rateRemaining),
				)
				if info.rateLimited {
					attrs = append(attrs, slog.Bool("rate_limited", true))
				}
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// routePattern возвращает шаблон маршрута chi (например
// /api/indigenous-knowledge/{id}) или "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
