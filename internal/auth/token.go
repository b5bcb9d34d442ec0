// Пакет auth — выпуск и проверка JWT.
// Собственные токены подписываются HS256. Токены внешнего IdP (RS256)
// проверяются по JWKS через keyfunc/jwkset, если задан HG_JWT_JWKS_URL.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

var (
	// ErrInvalidToken — подпись, формат или claims токена невалидны.
	ErrInvalidToken = errors.New("невалидный токен")
	// ErrExpiredToken — срок действия токена истёк.
	ErrExpiredToken = errors.New("срок действия токена истёк")
)

const (
	// defaultLeeway — допустимое отклонение часов при проверке exp/nbf.
	defaultLeeway = 30 * time.Second
	// jwksRefreshInterval — интервал фонового обновления JWKS.
	jwksRefreshInterval = 15 * time.Minute
	// jwksClientTimeout — таймаут HTTP-клиента JWKS.
	jwksClientTimeout = 10 * time.Second
)

// Claims — claims токена.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	// PreferredUsername — username во внешних токенах
	PreferredUsername string `json:"preferred_username,omitempty"`
	// External — токен выпущен внешним IdP и проверен по JWKS
	External bool `json:"-"`
}

// TokenManager выпускает и проверяет токены.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	jwks   keyfunc.Keyfunc
	now    func() time.Time
}

// NewTokenManager создаёт менеджер токенов с HMAC-секретом.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		leeway: defaultLeeway,
		now:    time.Now,
	}
}

// WithJWKS включает проверку RS256-токенов внешнего IdP.
// Первая загрузка JWKS не блокирует старт: сервис поднимается,
// даже если IdP ещё недоступен.
func (m *TokenManager) WithJWKS(jwksURL string, logger *slog.Logger) error {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return fmt.Errorf("создание keyfunc: %w", err)
	}
	m.jwks = k
	return nil
}

// WithKeyfunc подставляет готовую keyfunc для RS256.
// Используется в тестах вместо загрузки JWKS по HTTP.
func (m *TokenManager) WithKeyfunc(kf keyfunc.Keyfunc) {
	m.jwks = kf
}

// Issue выпускает HS256-токен для пользователя.
func (m *TokenManager) Issue(u *model.User) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, exp, nil
}

// Verify проверяет подпись и срок действия токена.
// Ошибка оборачивает ErrExpiredToken или ErrInvalidToken.
func (m *TokenManager) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if m.jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			return m.secret, nil
		case jwt.SigningMethodRS256.Alg():
			if m.jwks == nil {
				return nil, errors.New("JWKS внешнего IdP не настроен")
			}
			return m.jwks.KeyfuncCtx(ctx)(t)
		default:
			return nil, fmt.Errorf("неподдерживаемый алгоритм %s", t.Method.Alg())
		}
	},
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims.External = token.Method.Alg() == jwt.SigningMethodRS256.Alg()
	if !claims.External && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: неожиданный issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}
	if claims.Username == "" {
		claims.Username = claims.PreferredUsername
	}
	return claims, nil
}
