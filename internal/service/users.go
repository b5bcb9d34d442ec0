// users.go — администрирование учётных записей: роли, права, принадлежность.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

// AccessUpdateInput — изменение доступа пользователя. nil означает «не менять».
type AccessUpdateInput struct {
	Role        *string                      `json:"role,omitempty"`
	Permissions *model.Permissions           `json:"permissions,omitempty"`
	Affiliation *model.IndigenousAffiliation `json:"indigenousAffiliation,omitempty"`
	// ClearAffiliation — удалить принадлежность к общине
	ClearAffiliation bool  `json:"clearAffiliation,omitempty"`
	IsActive         *bool `json:"isActive,omitempty"`
}

// UserService — сервис администрирования пользователей. Только для admin.
type UserService struct {
	users    repository.UserRepository
	pageSize int
	logger   *slog.Logger
}

// NewUserService создаёт сервис администрирования пользователей.
func NewUserService(users repository.UserRepository, pageSize int, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

func requireAdmin(p *rbac.Principal) error {
	if p.IsAdmin() {
		return nil
	}
	return &AccessDeniedError{
		UserRole: p.RoleName(),
		Reason:   rbac.ReasonRoleNotPermitted,
		Message:  "операция доступна только администратору",
	}
}

// ListUsers возвращает страницу пользователей.
func (s *UserService) ListUsers(ctx context.Context, p *rbac.Principal, page int) (Page[model.User], error) {
	if err := requireAdmin(p); err != nil {
		return Page[model.User]{}, err
	}
	if page < 0 {
		page = 0
	}

	users, err := s.users.List(ctx, s.pageSize, page*s.pageSize)
	if err != nil {
		return Page[model.User]{}, fmt.Errorf("получение списка пользователей: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return Page[model.User]{}, fmt.Errorf("подсчёт пользователей: %w", err)
	}

	items := make([]model.User, 0, len(users))
	for _, u := range users {
		items = append(items, *u)
	}
	return newPage(items, total, page, s.pageSize), nil
}

// UpdateAccess меняет роль, права, принадлежность и активность пользователя.
// Администратор не может понизить или деактивировать сам себя.
func (s *UserService) UpdateAccess(ctx context.Context, p *rbac.Principal, id string, in AccessUpdateInput) (*model.User, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var v validator
	if in.Role != nil {
		v.check(rbac.IsValidRole(*in.Role), "role", "недопустимая роль")
		v.check(id != p.ID || *in.Role == rbac.RoleAdmin, "role", "нельзя понизить собственную роль")
	}
	if in.IsActive != nil {
		v.check(id != p.ID || *in.IsActive, "isActive", "нельзя деактивировать собственную учётную запись")
	}
	if in.Affiliation != nil {
		v.check(in.Affiliation.Community != "", "indigenousAffiliation.community", "обязательное поле")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Permissions != nil {
		u.Permissions = *in.Permissions
	}
	if in.ClearAffiliation {
		u.Affiliation = nil
	}
	if in.Affiliation != nil {
		u.Affiliation = in.Affiliation
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	if err := s.users.UpdateAccess(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление доступа пользователя: %w", err)
	}

	s.logger.Info("Доступ пользователя изменён",
		slog.String("user_id", u.ID),
		slog.String("role", u.Role),
		slog.Bool("is_active", u.IsActive),
		slog.String("admin_id", p.ID),
	)
	return u, nil
}
