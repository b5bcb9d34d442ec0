// auth.go — регистрация, вход и разрешение принципала по токену.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Queas/HGPH-4.0/internal/auth"
	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

const (
	minPasswordLen = 8
	minUsernameLen = 3
	maxUsernameLen = 50
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// TokenIssuer выпускает токен для пользователя.
// Реализуется auth.TokenManager.
type TokenIssuer interface {
	Issue(u *model.User) (string, time.Time, error)
}

// RegisterInput — данные самостоятельной регистрации.
type RegisterInput struct {
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Role     string        `json:"role,omitempty"`
	Profile  model.Profile `json:"profile"`
}

// AuthResult — пользователь и выпущенный для него токен.
type AuthResult struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// AuthService — сервис учётных записей и входа.
type AuthService struct {
	users      repository.UserRepository
	tokens     TokenIssuer
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "auth_service")),
	}
}

// Register создаёт учётную запись с ролью user или professional и выпускает токен.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = rbac.RoleUser
	}

	var v validator
	v.check(len(in.Username) >= minUsernameLen && len(in.Username) <= maxUsernameLen,
		"username", fmt.Sprintf("длина от %d до %d символов", minUsernameLen, maxUsernameLen))
	v.check(in.Username == "" || usernamePattern.MatchString(in.Username),
		"username", "допустимы латинские буквы, цифры, _ . -")
	v.check(emailPattern.MatchString(in.Email), "email", "некорректный email")
	v.check(len(in.Password) >= minPasswordLen, "password", fmt.Sprintf("не короче %d символов", minPasswordLen))
	v.check(rbac.IsSelfRegistrationRole(in.Role), "role", "при регистрации доступны роли user и professional")
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Profile:      in.Profile,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: email или username уже заняты", ErrConflict)
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", u.Role),
	)
	return s.issue(u)
}

// Login проверяет пароль по email или username и выпускает токен.
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Неудачная попытка входа", slog.String("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("обновление last_login: %w", err)
	}
	u.LastLogin = &now

	return s.issue(u)
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: exp}, nil
}

// Profile возвращает учётную запись по ID.
func (s *AuthService) Profile(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	return u, nil
}

// ResolvePrincipal находит учётную запись по claims проверенного токена.
// Роль и права берутся из БД, а не из токена: изменения вступают в силу сразу.
// Для токенов внешнего IdP пользователь ищется по email.
func (s *AuthService) ResolvePrincipal(ctx context.Context, claims *auth.Claims) (*rbac.Principal, error) {
	var (
		u   *model.User
		err error
	)
	if claims.External {
		if claims.Email == "" {
			return nil, fmt.Errorf("%w: во внешнем токене нет email", ErrUnauthorized)
		}
		u, err = s.users.GetByLogin(ctx, strings.ToLower(claims.Email))
	} else {
		if _, parseErr := uuid.Parse(claims.Subject); parseErr != nil {
			return nil, fmt.Errorf("%w: некорректный sub", ErrUnauthorized)
		}
		u, err = s.users.GetByID(ctx, claims.Subject)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: учётная запись не найдена", ErrUnauthorized)
		}
		return nil, fmt.Errorf("получение пользователя по токену: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return rbac.PrincipalFromUser(u), nil
}

// EnsureAdmin создаёт администратора при первом запуске, если его ещё нет.
// Username выводится из e-mail и при занятости получает суффикс.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: некорректный e-mail администратора %q", ErrValidation, email)
	}
	if existing, err := s.users.GetByLogin(ctx, email); err == nil {
		if existing.Role != rbac.RoleAdmin {
			s.logger.Warn("Учётная запись администратора по умолчанию существует без роли admin",
				slog.String("user_id", existing.ID),
				slog.String("role", existing.Role),
			)
		}
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("поиск администратора: %w", err)
	}

	username, err := s.freeAdminUsername(ctx, adminUsername(email))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("хеширование пароля: %w", err)
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         rbac.RoleAdmin,
		Permissions: model.Permissions{
			CanReview:                    true,
			CanEdit:                      true,
			CanApprove:                   true,
			CanAccessRestrictedKnowledge: true,
			CanManageIPR:                 true,
		},
		IsActive: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("создание администратора: %w", err)
		}
		// Параллельный старт другого экземпляра уже создал администратора
		if _, getErr := s.users.GetByLogin(ctx, email); getErr == nil {
			return nil
		}
		return fmt.Errorf("создание администратора %q: %w", username, err)
	}

	s.logger.Info("Создан администратор по умолчанию",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("email", u.Email),
	)
	return nil
}

// maxUsernameAttempts — число попыток подобрать свободный username администратора.
const maxUsernameAttempts = 5

// freeAdminUsername возвращает base или base с суффиксом, не занятый другим пользователем.
func (s *AuthService) freeAdminUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 0; i < maxUsernameAttempts; i++ {
		_, err := s.users.GetByLogin(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("проверка username администратора: %w", err)
		}
		suffix := "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		candidate = truncate(base, maxUsernameLen-len(suffix)) + suffix
	}
	return "", fmt.Errorf("%w: не удалось подобрать свободный username для %q", ErrConflict, base)
}

// adminUsername выводит username из локальной части e-mail.
// Недопустимые символы заменяются на '_', короткое имя получает префикс "admin-".
func adminUsername(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	var b strings.Builder
	for _, r := range local {
		if r < 0x80 && usernamePattern.MatchString(string(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) < minUsernameLen {
		name = "admin-" + name
	}
	return truncate(name, maxUsernameLen)
}

// truncate обрезает ASCII-строку до n байт.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
