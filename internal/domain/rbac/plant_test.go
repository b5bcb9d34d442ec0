package rbac

import (
	"slices"
	"testing"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

func plant(level, status string) *model.Plant {
	return &model.Plant{
		ID:               "plant-1",
		Names:            model.PlantNames{Scientific: "Vitex negundo"},
		AccessLevel:      level,
		ValidationStatus: status,
		IsActive:         true,
	}
}

func TestCanViewPlant(t *testing.T) {
	restricted := principal(RoleUser)
	restricted.Permissions.CanAccessRestrictedKnowledge = true

	tests := []struct {
		name       string
		p          *Principal
		plant      *model.Plant
		wantAllow  bool
		wantReason string
	}{
		{"аноним, public", nil, plant(model.PlantAccessPublic, model.PlantStatusPublished), true, ""},
		{"аноним, registered", nil, plant(model.PlantAccessRegistered, model.PlantStatusPublished), false, ReasonAuthRequired},
		{"аноним, черновик public", nil, plant(model.PlantAccessPublic, model.PlantStatusDraft), false, ReasonNotPublished},
		{"user, registered", principal(RoleUser), plant(model.PlantAccessRegistered, model.PlantStatusPublished), true, ""},
		{"user, researcher", principal(RoleUser), plant(model.PlantAccessResearcher, model.PlantStatusPublished), false, ReasonInsufficientAccess},
		{"professional, researcher", principal(RoleProfessional), plant(model.PlantAccessResearcher, model.PlantStatusPublished), false, ReasonInsufficientAccess},
		{"researcher, researcher", principal(RoleResearcher), plant(model.PlantAccessResearcher, model.PlantStatusPublished), true, ""},
		{"researcher, restricted", principal(RoleResearcher), plant(model.PlantAccessRestricted, model.PlantStatusPublished), false, ReasonInsufficientAccess},
		{"editor, restricted", principal(RoleEditor), plant(model.PlantAccessRestricted, model.PlantStatusPublished), false, ReasonInsufficientAccess},
		{"флаг restricted", restricted, plant(model.PlantAccessRestricted, model.PlantStatusPublished), true, ""},
		{"admin, restricted черновик", principal(RoleAdmin), plant(model.PlantAccessRestricted, model.PlantStatusDraft), true, ""},
		{"reviewer, черновик", principal(RoleReviewer), plant(model.PlantAccessPublic, model.PlantStatusUnderReview), true, ""},
		{"researcher, чужой черновик", principal(RoleResearcher), plant(model.PlantAccessPublic, model.PlantStatusDraft), false, ReasonNotPublished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanViewPlant(tt.p, tt.plant)
			if d.Allowed != tt.wantAllow {
				t.Fatalf("Allowed = %v, хотели %v (%+v)", d.Allowed, tt.wantAllow, d)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, хотели %q", d.Reason, tt.wantReason)
			}
			if d.Required != tt.plant.AccessLevel {
				t.Errorf("Required = %q", d.Required)
			}
		})
	}
}

func TestCanViewPlant_Contributor(t *testing.T) {
	p := principal(RoleResearcher)
	draft := plant(model.PlantAccessPublic, model.PlantStatusDraft)
	draft.Contributors = []model.Contributor{{UserID: p.ID, Role: model.ContributorCreator}}

	d := CanViewPlant(p, draft)
	if !d.Allowed || d.Rule != RulePlantContributor {
		t.Errorf("участник черновика: %+v", d)
	}
}

func TestPlantListScope(t *testing.T) {
	restricted := principal(RoleUser)
	restricted.Permissions.CanAccessRestrictedKnowledge = true

	tests := []struct {
		name          string
		p             *Principal
		wantLevels    []string
		wantPublished bool
	}{
		{"аноним", nil, []string{model.PlantAccessPublic}, true},
		{"user", principal(RoleUser), []string{model.PlantAccessPublic, model.PlantAccessRegistered}, true},
		{"representative", representative(tboli), []string{model.PlantAccessPublic, model.PlantAccessRegistered}, true},
		{"researcher", principal(RoleResearcher),
			[]string{model.PlantAccessPublic, model.PlantAccessRegistered, model.PlantAccessResearcher}, true},
		{"reviewer", principal(RoleReviewer),
			[]string{model.PlantAccessPublic, model.PlantAccessRegistered, model.PlantAccessResearcher}, false},
		{"флаг restricted", restricted,
			[]string{model.PlantAccessPublic, model.PlantAccessRegistered, model.PlantAccessRestricted}, true},
		{"admin", principal(RoleAdmin), model.PlantAccessLevels, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := PlantListScope(tt.p)
			if !slices.Equal(scope.AccessLevels, tt.wantLevels) {
				t.Errorf("AccessLevels = %v, хотели %v", scope.AccessLevels, tt.wantLevels)
			}
			if scope.PublishedOnly != tt.wantPublished {
				t.Errorf("PublishedOnly = %v, хотели %v", scope.PublishedOnly, tt.wantPublished)
			}
			if !PlantSearchScope(tt.p).PublishedOnly {
				t.Error("поиск должен ограничиваться опубликованными карточками")
			}
		})
	}
}

func TestPlantPermissions(t *testing.T) {
	reviewer := principal(RoleUser)
	reviewer.Permissions.CanReview = true

	tests := []struct {
		name  string
		check func(*Principal) Decision
		p     *Principal
		want  bool
	}{
		{"create researcher", CanCreatePlant, principal(RoleResearcher), true},
		{"create editor", CanCreatePlant, principal(RoleEditor), true},
		{"create reviewer", CanCreatePlant, principal(RoleReviewer), false},
		{"create аноним", CanCreatePlant, nil, false},
		{"edit researcher", CanEditPlant, principal(RoleResearcher), false},
		{"edit editor", CanEditPlant, principal(RoleEditor), true},
		{"edit admin", CanEditPlant, principal(RoleAdmin), true},
		{"versions reviewer", CanViewPlantVersions, principal(RoleReviewer), true},
		{"versions researcher", CanViewPlantVersions, principal(RoleResearcher), false},
		{"review canReview", CanReviewPlant, reviewer, true},
		{"review admin без флага", CanReviewPlant, principal(RoleAdmin), true},
		{"review reviewer без флага", CanReviewPlant, principal(RoleReviewer), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.check(tt.p)
			if d.Allowed != tt.want {
				t.Errorf("Allowed = %v, хотели %v", d.Allowed, tt.want)
			}
			if !d.Allowed && d.Reason != ReasonRoleNotPermitted {
				t.Errorf("Reason = %q", d.Reason)
			}
		})
	}
}

func TestPlantView(t *testing.T) {
	full := model.Plant{
		ID: "plant-1",
		TraditionalUses: []model.TraditionalUse{
			{Condition: "Кашель", IPRStatus: model.UseIPRPublic,
				Sources: []model.UseSource{{Community: tboli, Consent: model.SourceConsent{Obtained: true}}}},
			{Condition: "Ритуальное", IPRStatus: model.UseIPRRestricted},
		},
		ReviewHistory: []model.PlantReview{{ReviewerID: "u-reviewer", Status: model.PlantStatusPublished}},
		Contributors:  []model.Contributor{{UserID: "u-researcher", Role: model.ContributorCreator}},
	}
	restricted := principal(RoleUser)
	restricted.Permissions.CanAccessRestrictedKnowledge = true

	tests := []struct {
		name        string
		p           *Principal
		wantUses    int
		wantSources bool
		wantHistory bool
	}{
		{"аноним", nil, 1, false, false},
		{"user", principal(RoleUser), 1, false, false},
		{"researcher", principal(RoleResearcher), 1, true, false},
		{"флаг restricted", restricted, 2, true, false},
		{"editor", principal(RoleEditor), 2, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlantView(tt.p, full)
			if len(got.TraditionalUses) != tt.wantUses {
				t.Fatalf("применений = %d, хотели %d", len(got.TraditionalUses), tt.wantUses)
			}
			if has := got.TraditionalUses[0].Sources != nil; has != tt.wantSources {
				t.Errorf("источники видны = %v, хотели %v", has, tt.wantSources)
			}
			if has := got.ReviewHistory != nil && got.Contributors != nil; has != tt.wantHistory {
				t.Errorf("история видна = %v, хотели %v", has, tt.wantHistory)
			}
		})
	}

	if full.TraditionalUses[0].Sources == nil || len(full.TraditionalUses) != 2 {
		t.Error("PlantView изменил исходную карточку")
	}
}
