package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

const plantID = "0b9d7c55-1f2e-4a8b-9c3d-5e6f7a8b9c0d"

// publishedPlant создаёт опубликованную карточку с закрытым применением.
func publishedPlant(level string) *model.Plant {
	return &model.Plant{
		ID:    plantID,
		Names: model.PlantNames{Scientific: "Vitex negundo", Family: "Lamiaceae"},
		TraditionalUses: []model.TraditionalUse{
			{Condition: "Cough", Preparation: "Decoction", IPRStatus: model.UseIPRPublic,
				Sources: []model.UseSource{{Community: tboli}}},
			{Condition: "Ритуальное", Preparation: "Fresh", IPRStatus: model.UseIPRRestricted},
		},
		ValidationStatus: model.PlantStatusPublished,
		AccessLevel:      level,
		Version:          3,
		ReviewHistory:    []model.PlantReview{{ReviewerID: "u-reviewer", Status: model.PlantStatusPublished}},
		Contributors:     []model.Contributor{{UserID: "u-researcher", Role: model.ContributorCreator}},
		IsActive:         true,
	}
}

func newTestPlantService(repo repository.PlantRepository) *PlantService {
	svc := NewPlantService(repo, 20, testLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func plantRepoWith(plant *model.Plant) *mockPlantRepo {
	return &mockPlantRepo{
		getByIDFn: func(_ context.Context, id string) (*model.Plant, error) {
			if id != plant.ID {
				return nil, repository.ErrNotFound
			}
			c := *plant
			return &c, nil
		},
	}
}

func validPlantInput() PlantInput {
	return PlantInput{
		Names: model.PlantNames{
			Scientific:  "  Blumea balsamifera ",
			CommonNames: []model.CommonName{{Language: "Tagalog", Name: "Sambong"}},
		},
		TraditionalUses: []model.TraditionalUse{{Condition: "Kidney stones", Preparation: "Decoction"}},
		Distribution:    model.Distribution{Regions: []string{"Region VII"}},
	}
}

func TestPlantGet(t *testing.T) {
	tests := []struct {
		name      string
		principal *rbac.Principal
		plant     *model.Plant
		wantErr   error
		wantUses  int
	}{
		{"аноним, public", nil, publishedPlant(model.PlantAccessPublic), nil, 1},
		{"аноним, registered", nil, publishedPlant(model.PlantAccessRegistered), ErrUnauthorized, 0},
		{"user, researcher", withRole(rbac.RoleUser), publishedPlant(model.PlantAccessResearcher), ErrForbidden, 0},
		{"researcher, researcher", withRole(rbac.RoleResearcher), publishedPlant(model.PlantAccessResearcher), nil, 1},
		{"admin, restricted", withRole(rbac.RoleAdmin), publishedPlant(model.PlantAccessRestricted), nil, 2},
		{"черновик для постороннего", withRole(rbac.RoleUser), func() *model.Plant {
			p := publishedPlant(model.PlantAccessPublic)
			p.ValidationStatus = model.PlantStatusDraft
			return p
		}(), ErrNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestPlantService(plantRepoWith(tt.plant))
			got, err := svc.Get(context.Background(), tt.principal, plantID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Get() ошибка = %v, хотели %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() ошибка: %v", err)
			}
			if len(got.TraditionalUses) != tt.wantUses {
				t.Errorf("применений = %d, хотели %d", len(got.TraditionalUses), tt.wantUses)
			}
		})
	}
}

func TestPlantGet_DeniedDetails(t *testing.T) {
	svc := newTestPlantService(plantRepoWith(publishedPlant(model.PlantAccessRestricted)))
	_, err := svc.Get(context.Background(), withRole(rbac.RoleResearcher), plantID)

	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("ошибка = %v, хотели *AccessDeniedError", err)
	}
	if denied.Required != model.PlantAccessRestricted || denied.UserRole != rbac.RoleResearcher {
		t.Errorf("детали отказа = %+v", denied)
	}
}

func TestPlantGet_BadID(t *testing.T) {
	svc := newTestPlantService(&mockPlantRepo{})
	if _, err := svc.Get(context.Background(), nil, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, хотели ErrNotFound", err)
	}
}

func TestPlantList_Scope(t *testing.T) {
	tests := []struct {
		name          string
		principal     *rbac.Principal
		wantLevels    []string
		wantPublished bool
	}{
		{"аноним", nil, []string{model.PlantAccessPublic}, true},
		{"professional", withRole(rbac.RoleProfessional), []string{model.PlantAccessPublic, model.PlantAccessRegistered}, true},
		{"editor", withRole(rbac.RoleEditor),
			[]string{model.PlantAccessPublic, model.PlantAccessRegistered, model.PlantAccessResearcher}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got repository.PlantFilter
			repo := &mockPlantRepo{
				listFn: func(_ context.Context, f repository.PlantFilter, _ repository.PlantSort, _, _ int) ([]*model.Plant, error) {
					got = f
					return []*model.Plant{publishedPlant(model.PlantAccessPublic)}, nil
				},
			}
			page, err := newTestPlantService(repo).List(context.Background(), tt.principal, PlantListFilters{}, 0)
			if err != nil {
				t.Fatalf("List() ошибка: %v", err)
			}
			if !slices.Equal(got.AccessLevels, tt.wantLevels) || got.PublishedOnly != tt.wantPublished {
				t.Errorf("фильтр = %+v", got)
			}
			if hasHistory := page.Items[0].ReviewHistory != nil; hasHistory != !tt.wantPublished {
				t.Errorf("история проверки видна = %v", hasHistory)
			}
		})
	}
}

func TestPlantList_Filters(t *testing.T) {
	var gotFilter repository.PlantFilter
	var gotSort repository.PlantSort
	var gotOffset int
	repo := &mockPlantRepo{
		listFn: func(_ context.Context, f repository.PlantFilter, s repository.PlantSort, _, offset int) ([]*model.Plant, error) {
			gotFilter, gotSort, gotOffset = f, s, offset
			return nil, nil
		},
		countFn: func(context.Context, repository.PlantFilter) (int, error) { return 45, nil },
	}
	svc := newTestPlantService(repo)

	page, err := svc.List(context.Background(), nil, PlantListFilters{
		Name: "lagundi", Language: "Tagalog", Region: "NCR", Family: " ",
		Sort: repository.PlantSortFamily, Desc: true,
	}, 2)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if gotFilter.Name == nil || *gotFilter.Name != "lagundi" || gotFilter.NameLanguage == nil || *gotFilter.NameLanguage != "Tagalog" {
		t.Errorf("название = %v/%v", gotFilter.Name, gotFilter.NameLanguage)
	}
	if gotFilter.Region == nil || gotFilter.Family != nil {
		t.Errorf("регион = %v, семейство = %v", gotFilter.Region, gotFilter.Family)
	}
	if gotSort != (repository.PlantSort{Key: repository.PlantSortFamily, Desc: true}) || gotOffset != 40 {
		t.Errorf("sort = %+v, offset = %d", gotSort, gotOffset)
	}
	if page.Total != 45 || page.Pages != 3 || len(page.Items) != 0 {
		t.Errorf("страница = %+v", page)
	}

	// Язык без названия не фильтрует
	if _, err := svc.List(context.Background(), nil, PlantListFilters{Language: "Tagalog"}, 0); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if gotFilter.NameLanguage != nil {
		t.Errorf("NameLanguage = %v, хотели nil", *gotFilter.NameLanguage)
	}
}

func TestPlantList_Validation(t *testing.T) {
	svc := newTestPlantService(&mockPlantRepo{})
	_, err := svc.List(context.Background(), nil, PlantListFilters{
		Sort: "names.scientific", ToxicityLevel: "Deadly", Language: "Klingon",
	}, -1)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ошибка = %v, хотели *ValidationError", err)
	}
	if len(verr.Fields) != 4 {
		t.Errorf("полей с ошибкой = %d, хотели 4: %v", len(verr.Fields), verr.Fields)
	}
}

func TestPlantSearch(t *testing.T) {
	var gotFilter repository.PlantFilter
	var gotSort repository.PlantSort
	repo := &mockPlantRepo{
		listFn: func(_ context.Context, f repository.PlantFilter, s repository.PlantSort, _, _ int) ([]*model.Plant, error) {
			gotFilter, gotSort = f, s
			return []*model.Plant{publishedPlant(model.PlantAccessPublic)}, nil
		},
		countFn: func(context.Context, repository.PlantFilter) (int, error) { return 1, nil },
	}
	svc := newTestPlantService(repo)

	page, err := svc.Search(context.Background(), withRole(rbac.RoleAdmin), PlantSearchFilters{
		Query:            "ubo",
		Conditions:       []string{" cough ", ""},
		MinEvidenceLevel: "Level II",
	}, 0)
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if !gotFilter.PublishedOnly {
		t.Error("поиск должен идти только по опубликованным карточкам")
	}
	if !slices.Equal(gotFilter.Conditions, []string{"cough"}) {
		t.Errorf("Conditions = %v", gotFilter.Conditions)
	}
	if !slices.Equal(gotFilter.EvidenceLevels, []string{"Level I", "Level II"}) {
		t.Errorf("EvidenceLevels = %v", gotFilter.EvidenceLevels)
	}
	if gotSort.Key != repository.PlantSortRelevance {
		t.Errorf("sort = %+v", gotSort)
	}
	if len(page.Items) != 1 || page.Items[0].Names.Scientific != "Vitex negundo" {
		t.Errorf("результаты = %+v", page.Items)
	}

	if _, err := svc.Search(context.Background(), nil, PlantSearchFilters{MinEvidenceLevel: "Level IX"}, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("Search() = %v, хотели ErrValidation", err)
	}
}

func TestPlantCreate(t *testing.T) {
	var saved *model.Plant
	repo := &mockPlantRepo{createFn: func(_ context.Context, p *model.Plant) error {
		saved = p
		return nil
	}}
	svc := newTestPlantService(repo)
	researcher := withRole(rbac.RoleResearcher)

	got, err := svc.Create(context.Background(), researcher, validPlantInput())
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if saved == nil || got.ID == "" {
		t.Fatal("карточка не сохранена")
	}
	if got.ValidationStatus != model.PlantStatusDraft || got.Version != 1 || got.AccessLevel != model.PlantAccessPublic {
		t.Errorf("status = %q, version = %d, access = %q", got.ValidationStatus, got.Version, got.AccessLevel)
	}
	if got.Names.Scientific != "Blumea balsamifera" {
		t.Errorf("научное название = %q", got.Names.Scientific)
	}
	if got.TraditionalUses[0].IPRStatus != model.UseIPRPending {
		t.Errorf("IPR-статус применения = %q, хотели pending", got.TraditionalUses[0].IPRStatus)
	}
	if len(got.Contributors) != 1 || got.Contributors[0].UserID != researcher.ID ||
		got.Contributors[0].Role != model.ContributorCreator || !got.Contributors[0].ContributedAt.Equal(fixedNow) {
		t.Errorf("участники = %+v", got.Contributors)
	}
}

func TestPlantCreate_Errors(t *testing.T) {
	invalid := validPlantInput()
	invalid.Names.Scientific = " "
	invalid.Names.CommonNames[0].Language = "Latin"
	invalid.TraditionalUses[0].IPRStatus = "secret"
	invalid.Distribution.Regions = []string{"Atlantis"}
	invalid.AccessLevel = "everyone"

	tests := []struct {
		name       string
		principal  *rbac.Principal
		in         PlantInput
		wantErr    error
		wantFields int
	}{
		{"reviewer не создаёт", withRole(rbac.RoleReviewer), validPlantInput(), ErrForbidden, 0},
		{"аноним", nil, validPlantInput(), ErrForbidden, 0},
		{"все ошибки полей", withRole(rbac.RoleEditor), invalid, ErrValidation, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestPlantService(&mockPlantRepo{})
			_, err := svc.Create(context.Background(), tt.principal, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() = %v, хотели %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if tt.wantFields > 0 && (!errors.As(err, &verr) || len(verr.Fields) != tt.wantFields) {
				t.Errorf("ошибки полей = %v, хотели %d", err, tt.wantFields)
			}
		})
	}
}

func TestPlantUpdate_SnapshotsPreviousVersion(t *testing.T) {
	var gotSnapshot model.PlantVersion
	var gotPlant *model.Plant
	var gotContributor model.Contributor
	repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
	repo.updateFn = func(_ context.Context, p *model.Plant, snap model.PlantVersion, c model.Contributor) (*model.Plant, error) {
		gotPlant, gotSnapshot, gotContributor = p, snap, c
		updated := *p
		updated.Version++
		return &updated, nil
	}
	svc := newTestPlantService(repo)
	editor := withRole(rbac.RoleEditor)

	family := model.PlantNames{Scientific: "Vitex negundo L.", Family: "Verbenaceae"}
	got, err := svc.Update(context.Background(), editor, plantID, PlantUpdateInput{
		Names:     &family,
		ChangeLog: "Уточнено семейство",
	})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if got.Version != 4 || got.Names.Family != "Verbenaceae" {
		t.Errorf("version = %d, family = %q", got.Version, got.Names.Family)
	}
	if gotSnapshot.VersionNumber != 3 || gotSnapshot.Data.Names.Family != "Lamiaceae" {
		t.Errorf("снимок = %+v", gotSnapshot)
	}
	if gotSnapshot.UpdatedBy != editor.ID || gotSnapshot.ChangeLog != "Уточнено семейство" {
		t.Errorf("снимок: updatedBy = %q, changeLog = %q", gotSnapshot.UpdatedBy, gotSnapshot.ChangeLog)
	}
	if gotContributor.Role != model.ContributorEditor || gotContributor.Contribution != "Уточнено семейство" {
		t.Errorf("участник = %+v", gotContributor)
	}
	if len(gotPlant.TraditionalUses) != 2 {
		t.Errorf("неизменённые поля потеряны: %+v", gotPlant.TraditionalUses)
	}
}

func TestPlantUpdate_Errors(t *testing.T) {
	bad := "everyone"
	tests := []struct {
		name      string
		principal *rbac.Principal
		id        string
		in        PlantUpdateInput
		repoErr   error
		wantErr   error
	}{
		{"researcher не редактирует", withRole(rbac.RoleResearcher), plantID, PlantUpdateInput{}, nil, ErrForbidden},
		{"нет карточки", withRole(rbac.RoleEditor), "3c1d1b0e-0000-4000-8000-000000000000", PlantUpdateInput{}, nil, ErrNotFound},
		{"плохой уровень", withRole(rbac.RoleEditor), plantID, PlantUpdateInput{AccessLevel: &bad}, nil, ErrValidation},
		{"параллельное изменение", withRole(rbac.RoleAdmin), plantID, PlantUpdateInput{}, repository.ErrConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
			repo.updateFn = func(_ context.Context, p *model.Plant, _ model.PlantVersion, _ model.Contributor) (*model.Plant, error) {
				if tt.repoErr != nil {
					return nil, tt.repoErr
				}
				return p, nil
			}
			_, err := newTestPlantService(repo).Update(context.Background(), tt.principal, tt.id, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Update() = %v, хотели %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlantUpdate_DefaultChangeLog(t *testing.T) {
	var gotSnapshot model.PlantVersion
	repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
	repo.updateFn = func(_ context.Context, p *model.Plant, snap model.PlantVersion, _ model.Contributor) (*model.Plant, error) {
		gotSnapshot = snap
		return p, nil
	}
	if _, err := newTestPlantService(repo).Update(context.Background(), withRole(rbac.RoleEditor), plantID, PlantUpdateInput{ChangeLog: "  "}); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if gotSnapshot.ChangeLog != defaultChangeLog {
		t.Errorf("changeLog = %q", gotSnapshot.ChangeLog)
	}
}

func TestPlantReview(t *testing.T) {
	canReview := withRole(rbac.RoleReviewer)
	canReview.Permissions.CanReview = true

	var gotReview model.PlantReview
	repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
	repo.updateStatusFn = func(_ context.Context, id string, review model.PlantReview) (*model.Plant, error) {
		gotReview = review
		p := publishedPlant(model.PlantAccessPublic)
		p.ValidationStatus = review.Status
		p.ReviewHistory = append(p.ReviewHistory, review)
		return p, nil
	}
	svc := newTestPlantService(repo)

	got, err := svc.Review(context.Background(), canReview, plantID, PlantReviewInput{
		Status: model.PlantStatusArchived, Comments: " Дубликат ",
	})
	if err != nil {
		t.Fatalf("Review() ошибка: %v", err)
	}
	if got.ValidationStatus != model.PlantStatusArchived || len(got.ReviewHistory) != 2 {
		t.Errorf("status = %q, история = %d", got.ValidationStatus, len(got.ReviewHistory))
	}
	if gotReview.ReviewerID != canReview.ID || gotReview.Comments != "Дубликат" || !gotReview.ReviewedAt.Equal(fixedNow) {
		t.Errorf("запись проверки = %+v", gotReview)
	}

	if _, err := svc.Review(context.Background(), canReview, plantID, PlantReviewInput{Status: "done"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Review() с плохим статусом = %v, хотели ErrValidation", err)
	}
	if _, err := svc.Review(context.Background(), withRole(rbac.RoleEditor), plantID, PlantReviewInput{Status: model.PlantStatusApproved}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Review() без canReview = %v, хотели ErrForbidden", err)
	}
}

func TestPlantArchive(t *testing.T) {
	var archived string
	repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
	repo.archiveFn = func(_ context.Context, id string) error {
		archived = id
		return nil
	}
	svc := newTestPlantService(repo)

	if err := svc.Archive(context.Background(), withRole(rbac.RoleEditor), plantID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Archive() editor = %v, хотели ErrForbidden", err)
	}
	if err := svc.Archive(context.Background(), withRole(rbac.RoleAdmin), plantID); err != nil {
		t.Fatalf("Archive() ошибка: %v", err)
	}
	if archived != plantID {
		t.Errorf("архивирована %q", archived)
	}
}

func TestPlantVersions(t *testing.T) {
	repo := plantRepoWith(publishedPlant(model.PlantAccessPublic))
	repo.versionsFn = func(_ context.Context, id string) ([]model.PlantVersion, error) {
		return []model.PlantVersion{{VersionNumber: 2}, {VersionNumber: 1}}, nil
	}
	svc := newTestPlantService(repo)

	view, err := svc.Versions(context.Background(), withRole(rbac.RoleReviewer), plantID)
	if err != nil {
		t.Fatalf("Versions() ошибка: %v", err)
	}
	if view.CurrentVersion != 3 || view.Plant.Scientific != "Vitex negundo" || len(view.History) != 2 {
		t.Errorf("история = %+v", view)
	}

	if _, err := svc.Versions(context.Background(), withRole(rbac.RoleResearcher), plantID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Versions() researcher = %v, хотели ErrForbidden", err)
	}
}
