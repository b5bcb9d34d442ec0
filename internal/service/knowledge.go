// knowledge.go — сервис каталога традиционного знания.
// Проверка доступа, журнал доступа, отзыв согласия, IPR-ревью.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

// publicCacheKey — ключ публичной коллекции в PublicCache.
const publicCacheKey = "public"

// ncipRegistry — орган регистрации при одобрении IPR.
const ncipRegistry = "National Commission on Indigenous Peoples"

// Prometheus-метрики доступа к записям.
var (
	knowledgeAccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hg_knowledge_access_total",
		Help: "Решения о просмотре записей традиционного знания.",
	}, []string{"decision", "reason"})
	consentRevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hg_consent_revocations_total",
		Help: "Количество отозванных согласий (повторные отзывы не учитываются).",
	})
)

// Page — страница результатов списка. Номер страницы начинается с 0.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
	Pages int
}

func newPage[T any](items []T, total, page, limit int) Page[T] {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page[T]{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}

// ListFilters — пользовательские фильтры списка. Накладываются на
// базовую область видимости роли через AND.
type ListFilters struct {
	// Community — подстрока имени общины
	Community string
	// IndigenousGroup — подстрока названия народа
	IndigenousGroup string
	KnowledgeType   string
	IPRStatus       string
	// Query — подстрока в имени общины или описании
	Query string
	// ConsentValid — только записи с действующим согласием
	ConsentValid bool
}

// ConsentInput — согласие во входных данных создания записи.
type ConsentInput struct {
	Obtained     bool       `json:"obtained"`
	ConsentDate  *time.Time `json:"consentDate,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	ScopeOfUse   []string   `json:"scopeOfUse,omitempty"`
	Document     *string    `json:"consentDocument,omitempty"`
	Restrictions *string    `json:"restrictions,omitempty"`
	Revocable    *bool      `json:"revocable,omitempty"`
}

// KnowledgeInput — входные данные создания записи.
// recordedBy, ipr, compliance и accessLog заполняет сервер.
type KnowledgeInput struct {
	Community            model.Community            `json:"community"`
	KnowledgeType        string                     `json:"knowledgeType"`
	Plants               []string                   `json:"plants,omitempty"`
	RelatedStudies       []string                   `json:"relatedStudies,omitempty"`
	TraditionalKnowledge model.TraditionalKnowledge `json:"traditionalKnowledge"`
	Consent              ConsentInput               `json:"consent"`
	AccessLevel          string                     `json:"accessLevel,omitempty"`
	Sensitivity          model.Sensitivity          `json:"sensitivity"`
	Media                []model.Media              `json:"media,omitempty"`
	RecordingDate        *time.Time                 `json:"recordingDate,omitempty"`
}

// UpdateInput — изменяемые поля записи. nil означает «не менять».
// Согласие, IPR, compliance, журнал доступа и ID здесь не меняются.
type UpdateInput struct {
	Community            *model.Community            `json:"community,omitempty"`
	KnowledgeType        *string                     `json:"knowledgeType,omitempty"`
	Plants               *[]string                   `json:"plants,omitempty"`
	RelatedStudies       *[]string                   `json:"relatedStudies,omitempty"`
	TraditionalKnowledge *model.TraditionalKnowledge `json:"traditionalKnowledge,omitempty"`
	AccessLevel          *string                     `json:"accessLevel,omitempty"`
	Sensitivity          *model.Sensitivity          `json:"sensitivity,omitempty"`
	Media                *[]model.Media              `json:"media,omitempty"`
}

// IPRApprovalInput — решение IPR-ревью.
type IPRApprovalInput struct {
	Status             string  `json:"status"`
	RegistrationNumber *string `json:"registrationNumber,omitempty"`
	ProtectionLevel    *string `json:"protectionLevel,omitempty"`
	// NCIPApproved — по умолчанию true
	NCIPApproved *bool `json:"ncipApproved,omitempty"`
}

// AccessLogView — журнал доступа записи.
type AccessLogView struct {
	Community     string                 `json:"community"`
	AccessLog     []model.AccessLogEntry `json:"accessLog"`
	TotalAccesses int                    `json:"totalAccesses"`
}

// KnowledgeService — сервис записей традиционного знания.
type KnowledgeService struct {
	repo        repository.KnowledgeRepository
	cache       *PublicCache
	pageSize    int
	publicLimit int
	now         func() time.Time
	logger      *slog.Logger
}

// NewKnowledgeService создаёт сервис каталога.
func NewKnowledgeService(
	repo repository.KnowledgeRepository,
	cache *PublicCache,
	pageSize, publicLimit int,
	logger *slog.Logger,
) *KnowledgeService {
	return &KnowledgeService{
		repo:        repo,
		cache:       cache,
		pageSize:    pageSize,
		publicLimit: publicLimit,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With(slog.String("component", "knowledge_service")),
	}
}

// List возвращает страницу видимых принципалу записей.
// Журнал доступа и медиа в списке не отдаются.
func (s *KnowledgeService) List(ctx context.Context, p *rbac.Principal, f ListFilters, page int) (Page[model.KnowledgeRecord], error) {
	var v validator
	v.check(page >= 0, "page", "номер страницы не может быть отрицательным")
	if f.KnowledgeType != "" {
		v.check(model.Contains(model.KnowledgeTypes, f.KnowledgeType), "knowledgeType", "недопустимый тип знания")
	}
	if f.IPRStatus != "" {
		v.check(model.Contains(model.IPRStatuses, f.IPRStatus), "iprStatus", "недопустимый IPR-статус")
	}
	if err := v.err(); err != nil {
		return Page[model.KnowledgeRecord]{}, err
	}

	scope, err := rbac.ListScope(p)
	if err != nil {
		if errors.Is(err, rbac.ErrNoAffiliation) {
			return Page[model.KnowledgeRecord]{}, &AccessDeniedError{
				UserRole: p.RoleName(),
				Reason:   rbac.ReasonNoAffiliation,
				Message:  "не указана принадлежность к общине",
			}
		}
		return Page[model.KnowledgeRecord]{}, err
	}

	filter := scopeFilter(scope)
	if f.Community != "" {
		filter.CommunityLike = &f.Community
	}
	if f.IndigenousGroup != "" {
		filter.IndigenousGroupLike = &f.IndigenousGroup
	}
	if f.KnowledgeType != "" {
		filter.KnowledgeType = &f.KnowledgeType
	}
	if f.IPRStatus != "" {
		filter.IPRStatus = &f.IPRStatus
	}
	if f.Query != "" {
		filter.Query = &f.Query
	}
	if f.ConsentValid {
		now := s.now()
		filter.ConsentValidAt = &now
	}

	return s.listPage(ctx, filter, page)
}

// scopeFilter переводит область видимости роли в фильтр репозитория.
func scopeFilter(scope rbac.Scope) repository.KnowledgeFilter {
	if scope.Unrestricted {
		return repository.KnowledgeFilter{}
	}
	filter := repository.KnowledgeFilter{
		AccessLevels:   scope.AccessLevels,
		RequireConsent: scope.RequireConsent,
	}
	if scope.Community != "" {
		community := scope.Community
		filter.Community = &community
	}
	return filter
}

// listPage читает страницу записей и общее количество по фильтру.
func (s *KnowledgeService) listPage(ctx context.Context, filter repository.KnowledgeFilter, page int) (Page[model.KnowledgeRecord], error) {
	records, err := s.repo.List(ctx, filter, s.pageSize, page*s.pageSize)
	if err != nil {
		return Page[model.KnowledgeRecord]{}, fmt.Errorf("получение списка записей: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return Page[model.KnowledgeRecord]{}, fmt.Errorf("подсчёт записей: %w", err)
	}

	items := make([]model.KnowledgeRecord, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Redacted())
	}
	return newPage(items, total, page, s.pageSize), nil
}

// ListPublic возвращает анонимную публичную коллекцию.
// Результат кэшируется. При чтении из кэша записи с истёкшим
// за время TTL согласием отбрасываются.
func (s *KnowledgeService) ListPublic(ctx context.Context) ([]model.KnowledgeRecord, error) {
	now := s.now()
	if cached, ok := s.cache.Get(publicCacheKey); ok {
		items := make([]model.KnowledgeRecord, 0, len(cached))
		for i := range cached {
			if rbac.IsConsentValid(&cached[i], now) {
				items = append(items, cached[i])
			}
		}
		return items, nil
	}

	filter := repository.KnowledgeFilter{
		AccessLevels:   []string{model.AccessPublic},
		ConsentValidAt: &now,
		IPRStatuses:    []string{model.IPRPublicDomain, model.IPRProtected},
	}
	records, err := s.repo.List(ctx, filter, s.publicLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("получение публичной коллекции: %w", err)
	}

	items := make([]model.KnowledgeRecord, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.PublicView())
	}
	s.cache.Set(publicCacheKey, items)
	return items, nil
}

// Get возвращает запись, если принципалу разрешён просмотр, и дописывает
// ровно одну запись в журнал доступа. Каждый успешный вызов пишет новую
// запись журнала. Журнал доступа в ответе виден только тем, кто вправе
// его просматривать.
func (s *KnowledgeService) Get(ctx context.Context, p *rbac.Principal, id, purpose string) (*model.KnowledgeRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := rbac.CanView(p, rec, now)
	recordDecision(d)
	if !d.Allowed {
		s.logger.Info("Доступ к записи отклонён",
			slog.String("record_id", rec.ID),
			slog.String("role", d.UserRole),
			slog.String("required", d.Required),
			slog.String("reason", d.Reason),
		)
		return nil, deniedError(d)
	}

	if strings.TrimSpace(purpose) == "" {
		purpose = model.DefaultAccessPurpose
	}
	entry := model.AccessLogEntry{
		Username:   rbac.RoleAnonymous,
		AccessDate: now,
		Purpose:    purpose,
		Approved:   true,
	}
	if p != nil {
		userID := p.ID
		entry.UserID = &userID
		entry.Username = p.Username
	}

	updated, err := s.repo.AppendAccessLog(ctx, rec.ID, entry)
	if err != nil {
		return nil, mapRepoErr(err, "запись в журнал доступа")
	}

	if !rbac.CanViewAccessLog(p, updated).Allowed {
		updated.AccessLog = nil
	}
	return updated, nil
}

// ListByCommunity возвращает все активные записи общины.
// Доступно членам общины и держателям canAccessRestrictedKnowledge.
func (s *KnowledgeService) ListByCommunity(ctx context.Context, p *rbac.Principal, name string, page int) (Page[model.KnowledgeRecord], error) {
	if page < 0 {
		return Page[model.KnowledgeRecord]{}, &ValidationError{Fields: []FieldError{
			{Field: "page", Message: "номер страницы не может быть отрицательным"},
		}}
	}
	if !rbac.CanViewCommunity(p, name) {
		return Page[model.KnowledgeRecord]{}, &AccessDeniedError{
			UserRole: p.RoleName(),
			Reason:   rbac.ReasonForeignCommunity,
			Message:  "записи общины доступны только её членам",
		}
	}
	return s.listPage(ctx, repository.KnowledgeFilter{Community: &name}, page)
}

// Create создаёт запись. Ошибки валидации возвращаются списком по всем полям.
func (s *KnowledgeService) Create(ctx context.Context, p *rbac.Principal, in KnowledgeInput) (*model.KnowledgeRecord, error) {
	// Роль проверяется до валидации: недопустимой роли не сообщаем о полях
	if d := rbac.CanCreate(p, ""); !d.Allowed && d.Reason == rbac.ReasonRoleNotPermitted {
		return nil, deniedError(d)
	}

	now := s.now()
	in.Community.Name = strings.TrimSpace(in.Community.Name)
	in.Community.IndigenousGroup = strings.TrimSpace(in.Community.IndigenousGroup)

	var v validator
	v.check(in.Community.Name != "", "community.name", "обязательное поле")
	v.check(in.Community.IndigenousGroup != "", "community.indigenousGroup", "обязательное поле")
	v.check(model.Contains(model.KnowledgeTypes, in.KnowledgeType), "knowledgeType", "недопустимый тип знания")
	v.check(strings.TrimSpace(in.TraditionalKnowledge.Description) != "",
		"traditionalKnowledge.description", "обязательное поле")
	v.check(in.Consent.Obtained, "consent.obtained", "без предварительного информированного согласия запись не создаётся")
	for _, scope := range in.Consent.ScopeOfUse {
		if !model.Contains(model.ScopesOfUse, scope) {
			v.add("consent.scopeOfUse", fmt.Sprintf("недопустимая область использования %q", scope))
		}
	}
	consentDate := now
	if in.Consent.ConsentDate != nil {
		consentDate = in.Consent.ConsentDate.UTC()
	}
	if in.Consent.ExpiryDate != nil {
		v.check(in.Consent.ExpiryDate.After(consentDate), "consent.expiryDate", "должна быть позже даты согласия")
		v.check(in.Consent.ExpiryDate.After(now), "consent.expiryDate", "согласие уже истекло")
	}
	if in.AccessLevel != "" {
		v.check(model.Contains(model.AccessLevels, in.AccessLevel), "accessLevel", "недопустимый уровень доступа")
	}
	if in.Sensitivity.Level != "" {
		v.check(model.Contains(model.SensitivityLevels, in.Sensitivity.Level), "sensitivity.level", "недопустимый уровень чувствительности")
	}
	validateMedia(&v, in.Media)
	validateLocation(&v, in.Community.Location)
	if err := v.err(); err != nil {
		return nil, err
	}

	if d := rbac.CanCreate(p, in.Community.Name); !d.Allowed {
		return nil, deniedError(d)
	}

	revocable := true
	if in.Consent.Revocable != nil {
		revocable = *in.Consent.Revocable
	}
	consentID := newConsentID(now)
	rec := &model.KnowledgeRecord{
		ID:                   uuid.New().String(),
		Community:            in.Community,
		KnowledgeType:        in.KnowledgeType,
		Plants:               in.Plants,
		RelatedStudies:       in.RelatedStudies,
		TraditionalKnowledge: in.TraditionalKnowledge,
		Consent: model.Consent{
			Obtained:     true,
			ConsentID:    &consentID,
			ConsentDate:  &consentDate,
			ExpiryDate:   in.Consent.ExpiryDate,
			ScopeOfUse:   in.Consent.ScopeOfUse,
			Document:     in.Consent.Document,
			Restrictions: in.Consent.Restrictions,
			Revocable:    revocable,
		},
		IPR:         model.IPR{Status: model.IPRPendingAssessment},
		AccessLevel: in.AccessLevel,
		Sensitivity: in.Sensitivity,
		Media:       in.Media,
		RecordedBy: model.Recorder{
			UserID:      p.ID,
			Name:        p.DisplayName,
			Affiliation: p.Organization,
			Role:        p.Role,
		},
		RecordingDate: now,
		Compliance:    model.Compliance{LastReviewDate: &now},
	}
	if rec.AccessLevel == "" {
		rec.AccessLevel = model.AccessRestricted
	}
	if rec.Sensitivity.Level == "" {
		rec.Sensitivity.Level = "Medium"
	}
	if in.RecordingDate != nil {
		rec.RecordingDate = in.RecordingDate.UTC()
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, mapRepoErr(err, "создание записи")
	}
	s.cache.Purge()

	s.logger.Info("Запись традиционного знания создана",
		slog.String("record_id", rec.ID),
		slog.String("community", rec.Community.Name),
		slog.String("access_level", rec.AccessLevel),
		slog.String("user_id", p.ID),
	)
	return rec, nil
}

// newConsentID генерирует идентификатор согласия вида PIC-<unix ms>-<9 символов>.
func newConsentID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:9]
	return fmt.Sprintf("PIC-%d-%s", now.UnixMilli(), suffix)
}

func validateMedia(v *validator, media []model.Media) {
	for i, m := range media {
		field := fmt.Sprintf("media[%d]", i)
		v.check(strings.TrimSpace(m.Type) != "", field+".type", "обязательное поле")
		v.check(strings.TrimSpace(m.URL) != "", field+".url", "обязательное поле")
	}
}

func validateLocation(v *validator, loc model.Location) {
	if loc.Coordinates == nil {
		return
	}
	v.check(loc.Coordinates.Latitude >= -90 && loc.Coordinates.Latitude <= 90,
		"community.location.coordinates.latitude", "должна быть в диапазоне [-90, 90]")
	v.check(loc.Coordinates.Longitude >= -180 && loc.Coordinates.Longitude <= 180,
		"community.location.coordinates.longitude", "должна быть в диапазоне [-180, 180]")
}

// Update изменяет запись. Параллельное изменение той же записи
// возвращает ErrConflict.
func (s *KnowledgeService) Update(ctx context.Context, p *rbac.Principal, id string, in UpdateInput) (*model.KnowledgeRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := rbac.CanEdit(p, rec); !d.Allowed {
		return nil, deniedError(d)
	}
	expected := rec.UpdatedAt

	var v validator
	if in.Community != nil {
		community := *in.Community
		community.Name = strings.TrimSpace(community.Name)
		community.IndigenousGroup = strings.TrimSpace(community.IndigenousGroup)
		v.check(community.Name != "", "community.name", "обязательное поле")
		v.check(community.IndigenousGroup != "", "community.indigenousGroup", "обязательное поле")
		validateLocation(&v, community.Location)
		if community.Name != "" && community.Name != rec.Community.Name {
			if d := rbac.CanCreate(p, community.Name); !d.Allowed {
				d.Required = rec.AccessLevel
				return nil, deniedError(d)
			}
		}
		rec.Community = community
	}
	if in.KnowledgeType != nil {
		v.check(model.Contains(model.KnowledgeTypes, *in.KnowledgeType), "knowledgeType", "недопустимый тип знания")
		rec.KnowledgeType = *in.KnowledgeType
	}
	if in.Plants != nil {
		rec.Plants = *in.Plants
	}
	if in.RelatedStudies != nil {
		rec.RelatedStudies = *in.RelatedStudies
	}
	if in.TraditionalKnowledge != nil {
		v.check(strings.TrimSpace(in.TraditionalKnowledge.Description) != "",
			"traditionalKnowledge.description", "обязательное поле")
		rec.TraditionalKnowledge = *in.TraditionalKnowledge
	}
	if in.AccessLevel != nil {
		v.check(model.Contains(model.AccessLevels, *in.AccessLevel), "accessLevel", "недопустимый уровень доступа")
		rec.AccessLevel = *in.AccessLevel
	}
	if in.Sensitivity != nil {
		v.check(model.Contains(model.SensitivityLevels, in.Sensitivity.Level), "sensitivity.level", "недопустимый уровень чувствительности")
		rec.Sensitivity = *in.Sensitivity
	}
	if in.Media != nil {
		validateMedia(&v, *in.Media)
		rec.Media = *in.Media
	}
	// Запись без согласия (в том числе отозванного) остаётся private
	if !rec.Consent.Obtained && rec.AccessLevel != model.AccessPrivate {
		v.add("accessLevel", "запись без действующего согласия может быть только private")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, rec, expected)
	if err != nil {
		return nil, mapRepoErr(err, "обновление записи")
	}
	s.cache.Purge()

	s.logger.Info("Запись традиционного знания обновлена",
		slog.String("record_id", updated.ID),
		slog.String("user_id", p.ID),
	)
	updated.AccessLog = nil
	return updated, nil
}

// Archive переводит запись в архив. Доступно только администратору.
func (s *KnowledgeService) Archive(ctx context.Context, p *rbac.Principal, id, reason string) error {
	if !rbac.CanArchive(p) {
		return &AccessDeniedError{
			UserRole: p.RoleName(),
			Reason:   rbac.ReasonRoleNotPermitted,
			Message:  "архивировать записи может только администратор",
		}
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Archive(ctx, rec.ID, strings.TrimSpace(reason), s.now()); err != nil {
		return mapRepoErr(err, "архивирование записи")
	}
	s.cache.Purge()

	s.logger.Info("Запись традиционного знания архивирована",
		slog.String("record_id", rec.ID),
		slog.String("user_id", p.ID),
	)
	return nil
}

// RevokeConsent отзывает согласие общины. Запись становится private.
// Повторный отзыв ничего не меняет и возвращает changed = false.
func (s *KnowledgeService) RevokeConsent(ctx context.Context, p *rbac.Principal, id, reason string) (*model.KnowledgeRecord, bool, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if d := rbac.CanRevokeConsent(p, rec); !d.Allowed {
		return nil, false, deniedError(d)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, false, &ValidationError{Fields: []FieldError{
			{Field: "reason", Message: "укажите причину отзыва согласия"},
		}}
	}

	updated, changed, err := s.repo.RevokeConsent(ctx, rec.ID, reason, s.now())
	if err != nil {
		return nil, false, mapRepoErr(err, "отзыв согласия")
	}
	if changed {
		consentRevocationsTotal.Inc()
		s.cache.Purge()
		s.logger.Warn("Согласие отозвано",
			slog.String("record_id", updated.ID),
			slog.String("community", updated.Community.Name),
			slog.String("user_id", p.ID),
		)
	}
	updated.AccessLog = nil
	return updated, changed, nil
}

// AccessLog возвращает журнал доступа записи.
func (s *KnowledgeService) AccessLog(ctx context.Context, p *rbac.Principal, id string) (*AccessLogView, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := rbac.CanViewAccessLog(p, rec); !d.Allowed {
		return nil, deniedError(d)
	}
	log := rec.AccessLog
	if log == nil {
		log = []model.AccessLogEntry{}
	}
	return &AccessLogView{
		Community:     rec.Community.Name,
		AccessLog:     log,
		TotalAccesses: len(log),
	}, nil
}

// PendingIPRReview возвращает записи, ожидающие IPR-оценки.
func (s *KnowledgeService) PendingIPRReview(ctx context.Context, p *rbac.Principal, page int) (Page[model.KnowledgeRecord], error) {
	if !rbac.CanManageIPR(p) {
		return Page[model.KnowledgeRecord]{}, &AccessDeniedError{
			UserRole: p.RoleName(),
			Reason:   rbac.ReasonRoleNotPermitted,
			Message:  "требуется право canManageIPR",
		}
	}
	if page < 0 {
		page = 0
	}
	status := model.IPRPendingAssessment
	return s.listPage(ctx, repository.KnowledgeFilter{IPRStatus: &status, RequireConsent: true}, page)
}

// ApproveIPR фиксирует результат IPR-ревью и флаги соответствия.
// Следующий пересмотр назначается через год.
func (s *KnowledgeService) ApproveIPR(ctx context.Context, p *rbac.Principal, id string, in IPRApprovalInput) (*model.KnowledgeRecord, error) {
	if !rbac.CanManageIPR(p) {
		return nil, &AccessDeniedError{
			UserRole: p.RoleName(),
			Reason:   rbac.ReasonRoleNotPermitted,
			Message:  "требуется право canManageIPR",
		}
	}

	var v validator
	v.check(model.Contains(model.IPRStatuses, in.Status) && in.Status != model.IPRPendingAssessment,
		"status", "недопустимый IPR-статус")
	if in.ProtectionLevel != nil {
		v.check(model.Contains(model.ProtectionLevels, *in.ProtectionLevel), "protectionLevel", "недопустимый уровень защиты")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	registry := ncipRegistry
	nextReview := now.AddDate(1, 0, 0)
	ipr := model.IPR{
		Status:             in.Status,
		RegistrationNumber: in.RegistrationNumber,
		RegisteredWith:     &registry,
		RegistrationDate:   &now,
		ProtectionLevel:    in.ProtectionLevel,
	}
	compliance := rec.Compliance
	compliance.IPRACompliant = true
	compliance.NagoyaCompliant = true
	compliance.NCIPApproved = true
	if in.NCIPApproved != nil {
		compliance.NCIPApproved = *in.NCIPApproved
	}
	compliance.LastReviewDate = &now
	compliance.NextReviewDate = &nextReview

	updated, err := s.repo.UpdateIPR(ctx, rec.ID, ipr, compliance)
	if err != nil {
		return nil, mapRepoErr(err, "обновление IPR")
	}
	s.cache.Purge()

	s.logger.Info("IPR-статус записи утверждён",
		slog.String("record_id", updated.ID),
		slog.String("ipr_status", in.Status),
		slog.String("user_id", p.ID),
	)
	updated.AccessLog = nil
	return updated, nil
}

// load возвращает активную запись. Некорректный UUID считается отсутствующей записью.
func (s *KnowledgeService) load(ctx context.Context, id string) (*model.KnowledgeRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "получение записи")
	}
	return rec, nil
}

// recordDecision учитывает решение о просмотре в метриках.
func recordDecision(d rbac.Decision) {
	if d.Allowed {
		knowledgeAccessTotal.WithLabelValues("allow", d.Rule).Inc()
		return
	}
	knowledgeAccessTotal.WithLabelValues("deny", d.Reason).Inc()
}

// deniedError строит ошибку отказа по решению.
func deniedError(d rbac.Decision) *AccessDeniedError {
	return &AccessDeniedError{
		Required: d.Required,
		UserRole: d.UserRole,
		Reason:   d.Reason,
		Message:  denyMessage(d),
	}
}

func denyMessage(d rbac.Decision) string {
	switch d.Reason {
	case rbac.ConsentNotObtained:
		return "согласие общины не получено"
	case rbac.ConsentRevoked:
		return "согласие общины отозвано"
	case rbac.ConsentExpired:
		return "срок действия согласия истёк"
	case rbac.ReasonRoleNotPermitted:
		return "роль не позволяет выполнить операцию"
	case rbac.ReasonForeignCommunity:
		return "операция разрешена только для собственной общины"
	default:
		return fmt.Sprintf("недостаточно прав для уровня доступа %s", d.Required)
	}
}

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
