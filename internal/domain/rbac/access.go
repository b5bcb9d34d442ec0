package rbac

import (
	"errors"
	"time"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

// Статусы согласия (PIC). Проверяются строго в этом порядке.
const (
	ConsentOK          = "ok"
	ConsentNotObtained = "not_obtained"
	ConsentRevoked     = "revoked"
	ConsentExpired     = "expired"
)

// Причины отказа, не связанные с согласием.
const (
	ReasonInsufficientAccess = "insufficient_access"
	ReasonRoleNotPermitted   = "role_not_permitted"
	ReasonForeignCommunity   = "foreign_community"
	ReasonNoAffiliation      = "no_affiliation"
)

// Правила, по которым выдан доступ на просмотр.
const (
	RuleAdmin                = "admin"
	RuleRestrictedPermission = "restricted_permission"
	RuleCommunityOwner       = "community_owner"
	RulePublic               = "public"
	RuleRegisteredUsers      = "registered_users"
	RuleResearchersOnly      = "researchers_only"
	RuleCommunityOnly        = "community_only"
	RuleOwnCommunity         = "own_community"
	RuleIPRManager           = "ipr_manager"
)

// ErrNoAffiliation — представитель общины без указанной принадлежности.
var ErrNoAffiliation = errors.New("не указана принадлежность к общине")

// Principal — субъект запроса. nil означает анонимный вызов.
type Principal struct {
	ID          string
	Username    string
	Role        string
	Permissions model.Permissions
	// Community — община из indigenousAffiliation (пусто, если не указана)
	Community string
	// DisplayName и Organization попадают в recordedBy новых записей
	DisplayName  string
	Organization string
}

// defaultOrganization — организация по умолчанию для recordedBy.
const defaultOrganization = "HalamangGaling"

// PrincipalFromUser строит принципала по учётной записи.
func PrincipalFromUser(u *model.User) *Principal {
	if u == nil {
		return nil
	}
	p := &Principal{
		ID:           u.ID,
		Username:     u.Username,
		Role:         u.Role,
		Permissions:  u.Permissions,
		DisplayName:  u.FullName(),
		Organization: u.Profile.Affiliation,
	}
	if u.Affiliation != nil {
		p.Community = u.Affiliation.Community
		if p.Organization == "" {
			p.Organization = u.Affiliation.Community
		}
	}
	if p.Organization == "" {
		p.Organization = defaultOrganization
	}
	return p
}

// IsAuthenticated сообщает, аутентифицирован ли принципал.
func (p *Principal) IsAuthenticated() bool {
	return p != nil
}

// RoleName возвращает роль принципала или "anonymous".
func (p *Principal) RoleName() string {
	if p == nil {
		return RoleAnonymous
	}
	return p.Role
}

// IsAdmin сообщает, является ли принципал администратором.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// canAccessRestricted — admin или флаг canAccessRestrictedKnowledge.
func (p *Principal) canAccessRestricted() bool {
	return p != nil && (p.Role == RoleAdmin || p.Permissions.CanAccessRestrictedKnowledge)
}

// representsCommunity — представитель общины с совпадающей принадлежностью.
func (p *Principal) representsCommunity(name string) bool {
	return p != nil && p.Role == RoleIndigenousRepresentative && p.Community != "" && p.Community == name
}

// affiliatedWith — принадлежность принципала совпадает с общиной (любая роль).
func (p *Principal) affiliatedWith(name string) bool {
	return p != nil && p.Community != "" && p.Community == name
}

// Decision — результат проверки доступа.
type Decision struct {
	Allowed bool
	// Rule — правило, разрешившее доступ
	Rule string
	// Reason — причина отказа (статус согласия или insufficient_access)
	Reason string
	// Required — уровень доступа записи
	Required string
	// UserRole — роль вызывающего
	UserRole string
}

func allow(rule string, rec *model.KnowledgeRecord, p *Principal) Decision {
	return Decision{Allowed: true, Rule: rule, Required: rec.AccessLevel, UserRole: p.RoleName()}
}

func deny(reason string, rec *model.KnowledgeRecord, p *Principal) Decision {
	return Decision{Reason: reason, Required: rec.AccessLevel, UserRole: p.RoleName()}
}

// ConsentStatus возвращает статус согласия записи на момент now.
// Истёкшее согласие невалидно, даже если obtained остаётся true.
func ConsentStatus(rec *model.KnowledgeRecord, now time.Time) string {
	c := rec.Consent
	switch {
	case !c.Obtained:
		return ConsentNotObtained
	case c.RevokedAt != nil:
		return ConsentRevoked
	case c.ExpiryDate != nil && now.After(*c.ExpiryDate):
		return ConsentExpired
	default:
		return ConsentOK
	}
}

// IsConsentValid — согласие получено, не отозвано и не истекло.
func IsConsentValid(rec *model.KnowledgeRecord, now time.Time) bool {
	return ConsentStatus(rec, now) == ConsentOK
}

// CanView решает, может ли принципал прочитать запись.
//
// Порядок: admin, флаг canAccessRestrictedKnowledge, проверка согласия,
// представитель собственной общины, затем правило уровня доступа.
// Первое совпавшее правило выигрывает.
func CanView(p *Principal, rec *model.KnowledgeRecord, now time.Time) Decision {
	if p.IsAdmin() {
		return allow(RuleAdmin, rec, p)
	}
	if p != nil && p.Permissions.CanAccessRestrictedKnowledge {
		return allow(RuleRestrictedPermission, rec, p)
	}

	if status := ConsentStatus(rec, now); status != ConsentOK {
		return deny(status, rec, p)
	}

	if p.representsCommunity(rec.Community.Name) {
		return allow(RuleCommunityOwner, rec, p)
	}

	switch rec.AccessLevel {
	case model.AccessPublic:
		return allow(RulePublic, rec, p)
	case model.AccessRegisteredUsers:
		if p.IsAuthenticated() {
			return allow(RuleRegisteredUsers, rec, p)
		}
	case model.AccessResearchersOnly:
		if p != nil && researcherRoles[p.Role] {
			return allow(RuleResearchersOnly, rec, p)
		}
	case model.AccessCommunityOnly:
		if p.affiliatedWith(rec.Community.Name) {
			return allow(RuleCommunityOnly, rec, p)
		}
	}
	return deny(ReasonInsufficientAccess, rec, p)
}

// CanCreate решает, может ли принципал создать запись для общины.
// Представитель общины создаёт записи только для своей общины.
func CanCreate(p *Principal, communityName string) Decision {
	d := Decision{UserRole: p.RoleName()}
	if p == nil || !creatorRoles[p.Role] {
		d.Reason = ReasonRoleNotPermitted
		return d
	}
	if p.Role == RoleIndigenousRepresentative && !p.representsCommunity(communityName) {
		d.Reason = ReasonForeignCommunity
		return d
	}
	d.Allowed = true
	d.Rule = p.Role
	return d
}

// CanEdit решает, может ли принципал изменить запись.
// Права те же, что и на создание, применительно к общине записи.
func CanEdit(p *Principal, rec *model.KnowledgeRecord) Decision {
	d := CanCreate(p, rec.Community.Name)
	d.Required = rec.AccessLevel
	return d
}

// CanArchive — архивировать записи может только admin.
func CanArchive(p *Principal) bool {
	return p.IsAdmin()
}

// CanRevokeConsent решает, может ли принципал отозвать согласие:
// admin, представитель общины записи или держатель canManageIPR.
func CanRevokeConsent(p *Principal, rec *model.KnowledgeRecord) Decision {
	d := Decision{UserRole: p.RoleName(), Required: rec.AccessLevel}
	switch {
	case p.IsAdmin():
		d.Allowed, d.Rule = true, RuleAdmin
	case p.representsCommunity(rec.Community.Name):
		d.Allowed, d.Rule = true, RuleCommunityOwner
	case p != nil && p.Permissions.CanManageIPR:
		d.Allowed, d.Rule = true, RuleIPRManager
	default:
		d.Reason = ReasonRoleNotPermitted
	}
	return d
}

// CanViewAccessLog — журнал доступа видят те же, кто может отозвать согласие.
func CanViewAccessLog(p *Principal, rec *model.KnowledgeRecord) Decision {
	return CanRevokeConsent(p, rec)
}

// CanManageIPR — admin или держатель canManageIPR.
func CanManageIPR(p *Principal) bool {
	return p.IsAdmin() || (p != nil && p.Permissions.CanManageIPR)
}

// CanViewCommunity решает, доступен ли принципалу полный список записей общины.
func CanViewCommunity(p *Principal, name string) bool {
	return p.canAccessRestricted() || p.affiliatedWith(name)
}

// Scope — базовый фильтр списка, зависящий от роли.
// Пользовательские фильтры накладываются поверх него через AND.
type Scope struct {
	// Unrestricted — базового ограничения нет
	Unrestricted bool
	// AccessLevels — допустимые уровни доступа (пусто — любые)
	AccessLevels []string
	// RequireConsent — требовать consent.obtained
	RequireConsent bool
	// Community — ограничение по общине (пусто — любые)
	Community string
}

// ListScope возвращает базовый фильтр списка для принципала.
// Для представителя общины без принадлежности возвращает ErrNoAffiliation.
func ListScope(p *Principal) (Scope, error) {
	if p.canAccessRestricted() {
		return Scope{Unrestricted: true}, nil
	}
	if p == nil {
		return Scope{AccessLevels: []string{model.AccessPublic}, RequireConsent: true}, nil
	}

	switch p.Role {
	case RoleIndigenousRepresentative:
		if p.Community == "" {
			return Scope{}, ErrNoAffiliation
		}
		return Scope{Community: p.Community}, nil
	case RoleResearcher, RoleReviewer, RoleEditor:
		return Scope{
			AccessLevels:   []string{model.AccessPublic, model.AccessRegisteredUsers, model.AccessResearchersOnly},
			RequireConsent: true,
		}, nil
	default:
		return Scope{AccessLevels: []string{model.AccessPublic}, RequireConsent: true}, nil
	}
}
