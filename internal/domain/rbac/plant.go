package rbac

import "github.com/Queas/HGPH-4.0/internal/domain/model"

// Причины отказа в доступе к карточке растения.
const (
	// ReasonAuthRequired — закрытая карточка запрошена анонимно
	ReasonAuthRequired = "authentication_required"
	// ReasonNotPublished — карточка ещё не опубликована
	ReasonNotPublished = "not_published"
)

// Правила доступа к карточкам растений.
const (
	RulePlantStaff       = "plant_staff"
	RulePlantContributor = "plant_contributor"
)

// plantStaffRoles видят черновики, историю проверки и участников.
var plantStaffRoles = toSet([]string{RoleReviewer, RoleEditor, RoleAdmin})

var plantCreatorRoles = toSet([]string{RoleResearcher, RoleEditor, RoleAdmin})

var plantEditorRoles = toSet([]string{RoleEditor, RoleAdmin})

func (p *Principal) isPlantStaff() bool {
	return p != nil && plantStaffRoles[p.Role]
}

// plantLevelAllowed сообщает, открыт ли принципалу уровень доступа карточки.
func plantLevelAllowed(p *Principal, level string) bool {
	switch level {
	case model.PlantAccessPublic:
		return true
	case model.PlantAccessRegistered:
		return p.IsAuthenticated()
	case model.PlantAccessResearcher:
		return p != nil && researcherRoles[p.Role]
	case model.PlantAccessRestricted:
		return p.canAccessRestricted()
	}
	return false
}

// PlantScope — базовый фильтр списка карточек.
type PlantScope struct {
	// AccessLevels — открытые принципалу уровни доступа
	AccessLevels []string
	// PublishedOnly — только опубликованные карточки
	PublishedOnly bool
}

// PlantListScope возвращает базовый фильтр списка для принципала.
// Уровни те же, что проверяет CanViewPlant для отдельной карточки.
func PlantListScope(p *Principal) PlantScope {
	levels := make([]string, 0, len(model.PlantAccessLevels))
	for _, level := range model.PlantAccessLevels {
		if plantLevelAllowed(p, level) {
			levels = append(levels, level)
		}
	}
	return PlantScope{AccessLevels: levels, PublishedOnly: !p.isPlantStaff()}
}

// PlantSearchScope — поиск всегда идёт только по опубликованным карточкам.
func PlantSearchScope(p *Principal) PlantScope {
	scope := PlantListScope(p)
	scope.PublishedOnly = true
	return scope
}

// CanViewPlant решает, может ли принципал открыть карточку.
// Неопубликованные карточки видны редакции и участникам подготовки.
func CanViewPlant(p *Principal, plant *model.Plant) Decision {
	d := Decision{Required: plant.AccessLevel, UserRole: p.RoleName()}
	if !plantLevelAllowed(p, plant.AccessLevel) {
		if p == nil {
			d.Reason = ReasonAuthRequired
		} else {
			d.Reason = ReasonInsufficientAccess
		}
		return d
	}

	switch {
	case p.isPlantStaff():
		d.Rule = RulePlantStaff
	case plant.ValidationStatus == model.PlantStatusPublished:
		d.Rule = plant.AccessLevel
	case p != nil && plant.HasContributor(p.ID):
		d.Rule = RulePlantContributor
	default:
		d.Reason = ReasonNotPublished
		return d
	}
	d.Allowed = true
	return d
}

// CanCreatePlant — researcher, editor или admin.
func CanCreatePlant(p *Principal) Decision {
	return roleDecision(p, plantCreatorRoles)
}

// CanEditPlant — editor или admin.
func CanEditPlant(p *Principal) Decision {
	return roleDecision(p, plantEditorRoles)
}

// CanViewPlantVersions — reviewer, editor или admin.
func CanViewPlantVersions(p *Principal) Decision {
	return roleDecision(p, plantStaffRoles)
}

// CanReviewPlant — admin или держатель canReview.
func CanReviewPlant(p *Principal) Decision {
	d := Decision{UserRole: p.RoleName()}
	switch {
	case p.IsAdmin():
		d.Allowed, d.Rule = true, RuleAdmin
	case p != nil && p.Permissions.CanReview:
		d.Allowed, d.Rule = true, "can_review"
	default:
		d.Reason = ReasonRoleNotPermitted
	}
	return d
}

func roleDecision(p *Principal, roles map[string]bool) Decision {
	d := Decision{UserRole: p.RoleName()}
	if p == nil || !roles[p.Role] {
		d.Reason = ReasonRoleNotPermitted
		return d
	}
	d.Allowed, d.Rule = true, p.Role
	return d
}

// PlantView возвращает копию карточки с полями, видимыми принципалу.
//
// История проверки и участники видны только редакции. Источники
// применений видны исследователям и выше. Применения со статусом
// restricted видны только admin и держателям canAccessRestrictedKnowledge.
func PlantView(p *Principal, plant model.Plant) model.Plant {
	if p.isPlantStaff() {
		return plant
	}
	plant.ReviewHistory = nil
	plant.Contributors = nil

	showSources := p.canAccessRestricted() || (p != nil && researcherRoles[p.Role])
	uses := make([]model.TraditionalUse, 0, len(plant.TraditionalUses))
	for _, use := range plant.TraditionalUses {
		if use.IPRStatus == model.UseIPRRestricted && !p.canAccessRestricted() {
			continue
		}
		if !showSources {
			use.Sources = nil
		}
		uses = append(uses, use)
	}
	plant.TraditionalUses = uses
	return plant
}
