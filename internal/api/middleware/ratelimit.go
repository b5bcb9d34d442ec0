// ratelimit.go — ограничение частоты запросов.
// Запросы с валидным токеном считаются по пользователю, остальные по IP клиента.
// Ответ содержит заголовки RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/Queas/HGPH-4.0/internal/api/errors"
	"github.com/Queas/HGPH-4.0/internal/ratelimit"
)

// IdentityFunc возвращает идентификатор пользователя запроса или "".
type IdentityFunc func(r *http.Request) string

// RateLimit возвращает middleware фиксированного окна.
// identify может быть nil, тогда ключом всегда служит IP.
// При ошибке лимитера запрос пропускается с предупреждением в логе.
func RateLimit(limiter ratelimit.Limiter, limit int, window time.Duration, identify IdentityFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "rate_limit"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r, identify)
			info := requestInfoFrom(r.Context())

			decision, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.Warn("Лимитер недоступен, запрос пропущен",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if info != nil {
				info.rateKey = key
				info.rateRemaining = decision.Remaining
				info.rateLimited = !decision.Allowed
			}

			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				retryAfter := int64(time.Until(decision.ResetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				apierrors.RateLimited(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey возвращает "user:<sub>" при валидном токене, иначе "ip:<адрес>".
func rateLimitKey(r *http.Request, identify IdentityFunc) string {
	if identify != nil {
		if sub := identify(r); sub != "" {
			return "user:" + sub
		}
	}
	return "ip:" + clientIP(r)
}

func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit > 0 {
		w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	}
	if d.Remaining >= 0 {
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if !d.ResetAt.IsZero() {
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// clientIP возвращает IP из RemoteAddr без порта.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
