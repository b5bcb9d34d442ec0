// plants.go — сервис справочника лекарственных растений.
// Видимость по уровню доступа, проверка карточек, история версий.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

// defaultChangeLog — описание изменения, если редактор его не указал.
const defaultChangeLog = "Обновление карточки"

var plantAccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hg_plant_access_total",
	Help: "Решения о просмотре карточек лекарственных растений.",
}, []string{"decision", "reason"})

// PlantListFilters — фильтры списка карточек.
type PlantListFilters struct {
	// Search — полнотекстовый запрос
	Search    string
	Condition string
	Region    string
	// Name — подстрока научного или народного названия
	Name string
	// Language — язык народного названия для Name
	Language       string
	ScientificName string
	Family         string
	ToxicityLevel  string
	DOHApproved    bool
	Sort           string
	Desc           bool
}

// PlantSearchFilters — фильтры расширенного поиска.
type PlantSearchFilters struct {
	Query      string
	Conditions []string
	Regions    []string
	Families   []string
	// MinEvidenceLevel — наиболее слабый допустимый уровень доказательности
	MinEvidenceLevel string
	HasImages        bool
}

// PlantInput — входные данные создания карточки.
// Статус, история проверки, участники и версия заполняются сервером.
type PlantInput struct {
	Names            model.PlantNames         `json:"names"`
	TraditionalUses  []model.TraditionalUse   `json:"traditionalUses,omitempty"`
	Phytochemicals   []model.Phytochemical    `json:"phytochemicals,omitempty"`
	ClinicalEvidence []model.ClinicalEvidence `json:"clinicalEvidence,omitempty"`
	Dosage           []model.Dosage           `json:"dosage,omitempty"`
	Safety           model.PlantSafety        `json:"safety"`
	Distribution     model.Distribution       `json:"distribution"`
	Description      model.PlantDescription   `json:"description"`
	Images           []model.PlantImage       `json:"images,omitempty"`
	Tags             []string                 `json:"tags,omitempty"`
	AccessLevel      string                   `json:"accessLevel,omitempty"`
	RegulatoryStatus model.RegulatoryStatus   `json:"regulatoryStatus"`
}

// PlantUpdateInput — изменяемые поля карточки. nil означает «не менять».
type PlantUpdateInput struct {
	Names            *model.PlantNames         `json:"names,omitempty"`
	TraditionalUses  *[]model.TraditionalUse   `json:"traditionalUses,omitempty"`
	Phytochemicals   *[]model.Phytochemical    `json:"phytochemicals,omitempty"`
	ClinicalEvidence *[]model.ClinicalEvidence `json:"clinicalEvidence,omitempty"`
	Dosage           *[]model.Dosage           `json:"dosage,omitempty"`
	Safety           *model.PlantSafety        `json:"safety,omitempty"`
	Distribution     *model.Distribution       `json:"distribution,omitempty"`
	Description      *model.PlantDescription   `json:"description,omitempty"`
	Images           *[]model.PlantImage       `json:"images,omitempty"`
	Tags             *[]string                 `json:"tags,omitempty"`
	AccessLevel      *string                   `json:"accessLevel,omitempty"`
	RegulatoryStatus *model.RegulatoryStatus   `json:"regulatoryStatus,omitempty"`
	ChangeLog        string                    `json:"changeLog,omitempty"`
}

// PlantReviewInput — решение проверки карточки.
type PlantReviewInput struct {
	Status   string `json:"status"`
	Comments string `json:"comments,omitempty"`
}

// PlantVersionsView — история версий карточки.
type PlantVersionsView struct {
	CurrentVersion int                  `json:"currentVersion"`
	Plant          model.PlantNames     `json:"plant"`
	History        []model.PlantVersion `json:"history"`
}

// PlantService — сервис справочника растений.
type PlantService struct {
	repo     repository.PlantRepository
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// NewPlantService создаёт сервис справочника растений.
func NewPlantService(repo repository.PlantRepository, pageSize int, logger *slog.Logger) *PlantService {
	return &PlantService{
		repo:     repo,
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "plant_service")),
	}
}

// List возвращает страницу карточек, видимых принципалу.
// Редакция видит и неопубликованные карточки.
func (s *PlantService) List(ctx context.Context, p *rbac.Principal, f PlantListFilters, page int) (Page[model.Plant], error) {
	var v validator
	v.check(page >= 0, "page", "номер страницы не может быть отрицательным")
	if f.Sort != "" {
		v.check(repository.IsValidPlantSort(f.Sort), "sort", "недопустимый ключ сортировки")
	}
	if f.ToxicityLevel != "" {
		v.check(model.Contains(model.ToxicityLevels, f.ToxicityLevel), "toxicityLevel", "недопустимый уровень токсичности")
	}
	if f.Language != "" {
		v.check(model.Contains(model.CommonNameLanguages, f.Language), "language", "недопустимый язык")
	}
	if err := v.err(); err != nil {
		return Page[model.Plant]{}, err
	}

	filter := plantScopeFilter(rbac.PlantListScope(p))
	filter.Search = optional(f.Search)
	filter.Condition = optional(f.Condition)
	filter.Region = optional(f.Region)
	filter.Name = optional(f.Name)
	if filter.Name != nil {
		filter.NameLanguage = optional(f.Language)
	}
	filter.ScientificName = optional(f.ScientificName)
	filter.Family = optional(f.Family)
	filter.ToxicityLevel = optional(f.ToxicityLevel)
	filter.DOHApproved = f.DOHApproved

	plants, total, err := s.listPage(ctx, filter, repository.PlantSort{Key: f.Sort, Desc: f.Desc}, page)
	if err != nil {
		return Page[model.Plant]{}, err
	}
	items := make([]model.Plant, 0, len(plants))
	for _, plant := range plants {
		items = append(items, rbac.PlantView(p, *plant))
	}
	return newPage(items, total, page, s.pageSize), nil
}

// Search выполняет расширенный поиск по опубликованным карточкам.
// Результаты — краткие карточки, по запросу упорядоченные по релевантности.
func (s *PlantService) Search(ctx context.Context, p *rbac.Principal, f PlantSearchFilters, page int) (Page[model.PlantSummary], error) {
	var v validator
	v.check(page >= 0, "page", "номер страницы не может быть отрицательным")
	minIdx := -1
	if f.MinEvidenceLevel != "" {
		minIdx = slices.Index(model.EvidenceLevels, f.MinEvidenceLevel)
		v.check(minIdx >= 0, "minEvidenceLevel", "недопустимый уровень доказательности")
	}
	if err := v.err(); err != nil {
		return Page[model.PlantSummary]{}, err
	}

	filter := plantScopeFilter(rbac.PlantSearchScope(p))
	filter.Search = optional(f.Query)
	filter.Conditions = trimAll(f.Conditions)
	filter.Regions = trimAll(f.Regions)
	filter.Families = trimAll(f.Families)
	if minIdx >= 0 {
		filter.EvidenceLevels = model.EvidenceLevels[:minIdx+1]
	}
	filter.HasImages = f.HasImages

	plants, total, err := s.listPage(ctx, filter, repository.PlantSort{Key: repository.PlantSortRelevance}, page)
	if err != nil {
		return Page[model.PlantSummary]{}, err
	}
	items := make([]model.PlantSummary, 0, len(plants))
	for _, plant := range plants {
		items = append(items, plant.Summary())
	}
	return newPage(items, total, page, s.pageSize), nil
}

func plantScopeFilter(scope rbac.PlantScope) repository.PlantFilter {
	return repository.PlantFilter{AccessLevels: scope.AccessLevels, PublishedOnly: scope.PublishedOnly}
}

func (s *PlantService) listPage(ctx context.Context, filter repository.PlantFilter, sort repository.PlantSort, page int) ([]*model.Plant, int, error) {
	plants, err := s.repo.List(ctx, filter, sort, s.pageSize, page*s.pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка растений: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт растений: %w", err)
	}
	return plants, total, nil
}

// Get возвращает карточку с полями, видимыми принципалу.
// Анонимный запрос закрытой карточки возвращает ErrUnauthorized,
// неопубликованная карточка для посторонних не существует.
func (s *PlantService) Get(ctx context.Context, p *rbac.Principal, id string) (*model.Plant, error) {
	plant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	d := rbac.CanViewPlant(p, plant)
	if d.Allowed {
		plantAccessTotal.WithLabelValues("allow", d.Rule).Inc()
		view := rbac.PlantView(p, *plant)
		return &view, nil
	}
	plantAccessTotal.WithLabelValues("deny", d.Reason).Inc()

	switch d.Reason {
	case rbac.ReasonNotPublished:
		return nil, ErrNotFound
	case rbac.ReasonAuthRequired:
		return nil, fmt.Errorf("%w: карточка доступна только зарегистрированным пользователям", ErrUnauthorized)
	}
	s.logger.Info("Доступ к карточке растения отклонён",
		slog.String("plant_id", plant.ID),
		slog.String("role", d.UserRole),
		slog.String("required", d.Required),
	)
	return nil, deniedError(d)
}

// Create создаёт карточку в статусе draft. Создатель записывается участником.
func (s *PlantService) Create(ctx context.Context, p *rbac.Principal, in PlantInput) (*model.Plant, error) {
	if d := rbac.CanCreatePlant(p); !d.Allowed {
		return nil, deniedError(d)
	}

	now := s.now()
	plant := &model.Plant{
		ID:               uuid.New().String(),
		Names:            in.Names,
		TraditionalUses:  in.TraditionalUses,
		Phytochemicals:   in.Phytochemicals,
		ClinicalEvidence: in.ClinicalEvidence,
		Dosage:           in.Dosage,
		Safety:           in.Safety,
		Distribution:     in.Distribution,
		Description:      in.Description,
		Images:           in.Images,
		Tags:             in.Tags,
		AccessLevel:      in.AccessLevel,
		RegulatoryStatus: in.RegulatoryStatus,
		ValidationStatus: model.PlantStatusDraft,
		Version:          1,
		Contributors: []model.Contributor{{
			UserID:        p.ID,
			Role:          model.ContributorCreator,
			Contribution:  "Первичное заполнение",
			ContributedAt: now,
		}},
	}
	if plant.AccessLevel == "" {
		plant.AccessLevel = model.PlantAccessPublic
	}
	normalizePlant(plant)

	var v validator
	validatePlant(&v, plant)
	if err := v.err(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, plant); err != nil {
		return nil, mapRepoErr(err, "создание карточки растения")
	}
	s.logger.Info("Карточка растения создана",
		slog.String("plant_id", plant.ID),
		slog.String("scientific_name", plant.Names.Scientific),
		slog.String("user_id", p.ID),
	)
	return plant, nil
}

// Update изменяет карточку. Прежняя версия сохраняется снимком,
// номер версии увеличивается, редактор добавляется в участники.
func (s *PlantService) Update(ctx context.Context, p *rbac.Principal, id string, in PlantUpdateInput) (*model.Plant, error) {
	if d := rbac.CanEditPlant(p); !d.Allowed {
		return nil, deniedError(d)
	}
	plant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changeLog := strings.TrimSpace(in.ChangeLog)
	if changeLog == "" {
		changeLog = defaultChangeLog
	}
	snapshot := model.PlantVersion{
		VersionNumber: plant.Version,
		Data:          *plant,
		UpdatedBy:     p.ID,
		UpdatedAt:     now,
		ChangeLog:     changeLog,
	}

	next := *plant
	applyPlantUpdate(&next, in)
	normalizePlant(&next)

	var v validator
	validatePlant(&v, &next)
	if err := v.err(); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, &next, snapshot, model.Contributor{
		UserID:        p.ID,
		Role:          model.ContributorEditor,
		Contribution:  changeLog,
		ContributedAt: now,
	})
	if err != nil {
		return nil, mapRepoErr(err, "обновление карточки растения")
	}
	s.logger.Info("Карточка растения обновлена",
		slog.String("plant_id", updated.ID),
		slog.Int("version", updated.Version),
		slog.String("user_id", p.ID),
	)
	return updated, nil
}

func applyPlantUpdate(plant *model.Plant, in PlantUpdateInput) {
	if in.Names != nil {
		plant.Names = *in.Names
	}
	if in.TraditionalUses != nil {
		plant.TraditionalUses = *in.TraditionalUses
	}
	if in.Phytochemicals != nil {
		plant.Phytochemicals = *in.Phytochemicals
	}
	if in.ClinicalEvidence != nil {
		plant.ClinicalEvidence = *in.ClinicalEvidence
	}
	if in.Dosage != nil {
		plant.Dosage = *in.Dosage
	}
	if in.Safety != nil {
		plant.Safety = *in.Safety
	}
	if in.Distribution != nil {
		plant.Distribution = *in.Distribution
	}
	if in.Description != nil {
		plant.Description = *in.Description
	}
	if in.Images != nil {
		plant.Images = *in.Images
	}
	if in.Tags != nil {
		plant.Tags = *in.Tags
	}
	if in.AccessLevel != nil {
		plant.AccessLevel = *in.AccessLevel
	}
	if in.RegulatoryStatus != nil {
		plant.RegulatoryStatus = *in.RegulatoryStatus
	}
}

// normalizePlant обрезает пробелы в названиях и проставляет IPR-статус pending
// применениям без статуса.
func normalizePlant(plant *model.Plant) {
	plant.Names.Scientific = strings.TrimSpace(plant.Names.Scientific)
	plant.Names.Family = strings.TrimSpace(plant.Names.Family)
	plant.TraditionalUses = slices.Clone(plant.TraditionalUses)
	for i := range plant.TraditionalUses {
		if plant.TraditionalUses[i].IPRStatus == "" {
			plant.TraditionalUses[i].IPRStatus = model.UseIPRPending
		}
	}
}

// validatePlant проверяет обязательные поля и перечисления карточки.
func validatePlant(v *validator, plant *model.Plant) {
	v.check(plant.Names.Scientific != "", "names.scientific", "обязательное поле")
	v.check(model.Contains(model.PlantAccessLevels, plant.AccessLevel), "accessLevel", "недопустимый уровень доступа")
	for i, cn := range plant.Names.CommonNames {
		field := fmt.Sprintf("names.commonNames[%d]", i)
		v.check(model.Contains(model.CommonNameLanguages, cn.Language), field+".language", "недопустимый язык")
		v.check(strings.TrimSpace(cn.Name) != "", field+".name", "обязательное поле")
	}
	for i, use := range plant.TraditionalUses {
		field := fmt.Sprintf("traditionalUses[%d]", i)
		v.check(strings.TrimSpace(use.Condition) != "", field+".condition", "обязательное поле")
		v.check(strings.TrimSpace(use.Preparation) != "", field+".preparation", "обязательное поле")
		v.check(model.Contains(model.UseIPRStatuses, use.IPRStatus), field+".iprStatus", "недопустимый IPR-статус")
	}
	for i, ph := range plant.Phytochemicals {
		field := fmt.Sprintf("phytochemicals[%d]", i)
		v.check(strings.TrimSpace(ph.Compound) != "", field+".compound", "обязательное поле")
		if ph.PlantPart != "" {
			v.check(model.Contains(model.PlantParts, ph.PlantPart), field+".plantPart", "недопустимая часть растения")
		}
	}
	for i, ev := range plant.ClinicalEvidence {
		field := fmt.Sprintf("clinicalEvidence[%d]", i)
		v.check(model.Contains(model.StudyTypes, ev.StudyType), field+".studyType", "недопустимый тип исследования")
		if ev.EvidenceLevel != "" {
			v.check(model.Contains(model.EvidenceLevels, ev.EvidenceLevel), field+".evidenceLevel", "недопустимый уровень доказательности")
		}
	}
	for i, d := range plant.Dosage {
		if d.Preparation != "" {
			v.check(model.Contains(model.PreparationMethods, d.Preparation),
				fmt.Sprintf("dosage[%d].preparation", i), "недопустимый способ приготовления")
		}
	}
	if level := plant.Safety.Toxicity.Level; level != "" {
		v.check(model.Contains(model.ToxicityLevels, level), "safety.toxicity.level", "недопустимый уровень токсичности")
	}
	for _, region := range plant.Distribution.Regions {
		if !model.Contains(model.PhilippineRegions, region) {
			v.add("distribution.regions", fmt.Sprintf("недопустимый регион %q", region))
		}
	}
	for i, img := range plant.Images {
		v.check(strings.TrimSpace(img.URL) != "", fmt.Sprintf("images[%d].url", i), "обязательное поле")
	}
}

// Review меняет статус проверки и дописывает историю проверки.
func (s *PlantService) Review(ctx context.Context, p *rbac.Principal, id string, in PlantReviewInput) (*model.Plant, error) {
	if d := rbac.CanReviewPlant(p); !d.Allowed {
		return nil, deniedError(d)
	}
	if !model.Contains(model.PlantStatuses, in.Status) {
		return nil, &ValidationError{Fields: []FieldError{{
			Field:   "status",
			Message: "допустимые статусы: " + strings.Join(model.PlantStatuses, ", "),
		}}}
	}
	plant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, plant.ID, model.PlantReview{
		ReviewerID: p.ID,
		Status:     in.Status,
		Comments:   strings.TrimSpace(in.Comments),
		ReviewedAt: s.now(),
	})
	if err != nil {
		return nil, mapRepoErr(err, "смена статуса карточки")
	}
	s.logger.Info("Статус карточки растения изменён",
		slog.String("plant_id", updated.ID),
		slog.String("from", plant.ValidationStatus),
		slog.String("to", updated.ValidationStatus),
		slog.String("user_id", p.ID),
	)
	return updated, nil
}

// Archive снимает карточку с публикации. Доступно только администратору.
func (s *PlantService) Archive(ctx context.Context, p *rbac.Principal, id string) error {
	if !rbac.CanArchive(p) {
		return &AccessDeniedError{
			UserRole: p.RoleName(),
			Reason:   rbac.ReasonRoleNotPermitted,
			Message:  "деактивировать карточки может только администратор",
		}
	}
	plant, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Archive(ctx, plant.ID); err != nil {
		return mapRepoErr(err, "архивирование карточки растения")
	}
	s.logger.Info("Карточка растения деактивирована",
		slog.String("plant_id", plant.ID),
		slog.String("user_id", p.ID),
	)
	return nil
}

// Versions возвращает историю версий карточки, новые первыми.
func (s *PlantService) Versions(ctx context.Context, p *rbac.Principal, id string) (*PlantVersionsView, error) {
	if d := rbac.CanViewPlantVersions(p); !d.Allowed {
		return nil, deniedError(d)
	}
	plant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.Versions(ctx, plant.ID)
	if err != nil {
		return nil, mapRepoErr(err, "получение версий карточки")
	}
	return &PlantVersionsView{
		CurrentVersion: plant.Version,
		Plant:          plant.Names,
		History:        history,
	}, nil
}

// load возвращает активную карточку. Некорректный UUID считается отсутствующей карточкой.
func (s *PlantService) load(ctx context.Context, id string) (*model.Plant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	plant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "получение карточки растения")
	}
	return plant, nil
}

// optional возвращает nil для пустой строки.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// trimAll обрезает пробелы и отбрасывает пустые элементы.
func trimAll(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
