package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

// KnowledgeRepository — интерфейс доступа к таблице indigenous_knowledge.
// Все методы, кроме Create, видят только активные записи.
type KnowledgeRepository interface {
	// Create сохраняет новую запись.
	Create(ctx context.Context, rec *model.KnowledgeRecord) error
	// GetByID возвращает активную запись по UUID.
	GetByID(ctx context.Context, id string) (*model.KnowledgeRecord, error)
	// List возвращает записи по фильтру, новые первыми.
	List(ctx context.Context, filter KnowledgeFilter, limit, offset int) ([]*model.KnowledgeRecord, error)
	// Count возвращает количество записей по фильтру.
	Count(ctx context.Context, filter KnowledgeFilter) (int, error)
	// Update сохраняет изменяемые поля записи. expectedUpdatedAt защищает
	// от параллельного изменения: при несовпадении возвращается ErrConflict.
	Update(ctx context.Context, rec *model.KnowledgeRecord, expectedUpdatedAt time.Time) (*model.KnowledgeRecord, error)
	// AppendAccessLog дописывает запись в журнал доступа одним UPDATE.
	AppendAccessLog(ctx context.Context, id string, entry model.AccessLogEntry) (*model.KnowledgeRecord, error)
	// RevokeConsent отзывает согласие и переводит запись в private.
	// Для уже отозванной записи возвращает её без изменений и revoked = false.
	RevokeConsent(ctx context.Context, id, reason string, at time.Time) (rec *model.KnowledgeRecord, revoked bool, err error)
	// UpdateIPR сохраняет IPR-статус и флаги соответствия.
	UpdateIPR(ctx context.Context, id string, ipr model.IPR, compliance model.Compliance) (*model.KnowledgeRecord, error)
	// Archive переводит запись в терминальное состояние is_active = false.
	Archive(ctx context.Context, id, reason string, at time.Time) error
}

// KnowledgeFilter — условия выборки. Все заданные условия объединяются через AND.
type KnowledgeFilter struct {
	// AccessLevels — допустимые уровни доступа (пусто — любые)
	AccessLevels []string
	// RequireConsent — consent_obtained = true
	RequireConsent bool
	// ConsentValidAt — согласие получено, не отозвано и не истекло на момент
	ConsentValidAt *time.Time
	// Community — точное совпадение имени общины
	Community *string
	// CommunityLike — подстрока имени общины без учёта регистра
	CommunityLike *string
	// IndigenousGroupLike — подстрока названия народа без учёта регистра
	IndigenousGroupLike *string
	KnowledgeType       *string
	IPRStatus           *string
	// IPRStatuses — допустимые IPR-статусы (пусто — любые)
	IPRStatuses []string
	// Query — подстрока в имени общины или описании знания
	Query *string
}

// knowledgeRepo — реализация KnowledgeRepository.
type knowledgeRepo struct {
	db DBTX
}

// NewKnowledgeRepository создаёт репозиторий записей традиционного знания.
func NewKnowledgeRepository(db DBTX) KnowledgeRepository {
	return &knowledgeRepo{db: db}
}

const knowledgeColumns = `id, community_name, indigenous_group, location, knowledge_type,
	plants, related_studies, traditional_knowledge,
	consent_obtained, consent_id, consent_date, consent_expiry_date, consent_scope,
	consent_document, consent_restrictions, consent_revocable, consent_revoked_at, consent_revoked_reason,
	ipr_status, ipr_registration_number, ipr_registered_with, ipr_registration_date, ipr_protection_level,
	access_level, sensitivity_level, sensitivity_reason, media, recorded_by, recording_date, access_log,
	ipra_compliant, nagoya_compliant, ncip_approved, last_review_date, next_review_date,
	is_active, archived_at, archive_reason, created_at, updated_at`

// scanKnowledge читает строку в модель. Порядок полей — knowledgeColumns.
func scanKnowledge(row pgx.Row) (*model.KnowledgeRecord, error) {
	r := &model.KnowledgeRecord{}
	err := row.Scan(
		&r.ID, &r.Community.Name, &r.Community.IndigenousGroup, &r.Community.Location, &r.KnowledgeType,
		&r.Plants, &r.RelatedStudies, &r.TraditionalKnowledge,
		&r.Consent.Obtained, &r.Consent.ConsentID, &r.Consent.ConsentDate, &r.Consent.ExpiryDate, &r.Consent.ScopeOfUse,
		&r.Consent.Document, &r.Consent.Restrictions, &r.Consent.Revocable, &r.Consent.RevokedAt, &r.Consent.RevokedReason,
		&r.IPR.Status, &r.IPR.RegistrationNumber, &r.IPR.RegisteredWith, &r.IPR.RegistrationDate, &r.IPR.ProtectionLevel,
		&r.AccessLevel, &r.Sensitivity.Level, &r.Sensitivity.Reason, &r.Media, &r.RecordedBy, &r.RecordingDate, &r.AccessLog,
		&r.Compliance.IPRACompliant, &r.Compliance.NagoyaCompliant, &r.Compliance.NCIPApproved,
		&r.Compliance.LastReviewDate, &r.Compliance.NextReviewDate,
		&r.IsActive, &r.ArchivedAt, &r.ArchiveReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *knowledgeRepo) Create(ctx context.Context, rec *model.KnowledgeRecord) error {
	query := `
		INSERT INTO indigenous_knowledge (id, community_name, indigenous_group, location, knowledge_type,
			plants, related_studies, traditional_knowledge,
			consent_obtained, consent_id, consent_date, consent_expiry_date, consent_scope,
			consent_document, consent_restrictions, consent_revocable,
			ipr_status, access_level, sensitivity_level, sensitivity_reason, media,
			recorded_by, recording_date,
			ipra_compliant, nagoya_compliant, ncip_approved, last_review_date, next_review_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		RETURNING is_active, created_at, updated_at`

	media := rec.Media
	if media == nil {
		media = []model.Media{}
	}

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.Community.Name, rec.Community.IndigenousGroup, rec.Community.Location, rec.KnowledgeType,
		nonNil(rec.Plants), nonNil(rec.RelatedStudies), rec.TraditionalKnowledge,
		rec.Consent.Obtained, rec.Consent.ConsentID, rec.Consent.ConsentDate, rec.Consent.ExpiryDate,
		nonNil(rec.Consent.ScopeOfUse), rec.Consent.Document, rec.Consent.Restrictions, rec.Consent.Revocable,
		rec.IPR.Status, rec.AccessLevel, rec.Sensitivity.Level, rec.Sensitivity.Reason, media,
		rec.RecordedBy, rec.RecordingDate,
		rec.Compliance.IPRACompliant, rec.Compliance.NagoyaCompliant, rec.Compliance.NCIPApproved,
		rec.Compliance.LastReviewDate, rec.Compliance.NextReviewDate,
	).Scan(&rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись с таким ID или consentId уже существует", ErrConflict)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return fmt.Errorf("ошибка создания записи знания: %w", err)
	}
	if rec.AccessLog == nil {
		rec.AccessLog = []model.AccessLogEntry{}
	}
	return nil
}

func (r *knowledgeRepo) GetByID(ctx context.Context, id string) (*model.KnowledgeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM indigenous_knowledge WHERE id = $1 AND is_active`, knowledgeColumns)

	rec, err := scanKnowledge(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи знания: %w", err)
	}
	return rec, nil
}

// buildKnowledgeWhere строит WHERE-условие и аргументы для фильтрации записей.
func buildKnowledgeWhere(f KnowledgeFilter, startArg int) (string, []any) {
	conditions := []string{"is_active"}
	var args []any
	argNum := startArg

	if len(f.AccessLevels) > 0 {
		conditions = append(conditions, fmt.Sprintf("access_level = ANY($%d)", argNum))
		args = append(args, f.AccessLevels)
		argNum++
	}
	if f.RequireConsent {
		conditions = append(conditions, "consent_obtained")
	}
	if f.ConsentValidAt != nil {
		conditions = append(conditions, fmt.Sprintf(
			"consent_obtained AND consent_revoked_at IS NULL AND (consent_expiry_date IS NULL OR consent_expiry_date >= $%d)",
			argNum))
		args = append(args, *f.ConsentValidAt)
		argNum++
	}
	if f.Community != nil {
		conditions = append(conditions, fmt.Sprintf("community_name = $%d", argNum))
		args = append(args, *f.Community)
		argNum++
	}
	if f.CommunityLike != nil {
		conditions = append(conditions, fmt.Sprintf("community_name ILIKE $%d", argNum))
		args = append(args, likePattern(*f.CommunityLike))
		argNum++
	}
	if f.IndigenousGroupLike != nil {
		conditions = append(conditions, fmt.Sprintf("indigenous_group ILIKE $%d", argNum))
		args = append(args, likePattern(*f.IndigenousGroupLike))
		argNum++
	}
	if f.KnowledgeType != nil {
		conditions = append(conditions, fmt.Sprintf("knowledge_type = $%d", argNum))
		args = append(args, *f.KnowledgeType)
		argNum++
	}
	if f.IPRStatus != nil {
		conditions = append(conditions, fmt.Sprintf("ipr_status = $%d", argNum))
		args = append(args, *f.IPRStatus)
		argNum++
	}
	if len(f.IPRStatuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("ipr_status = ANY($%d)", argNum))
		args = append(args, f.IPRStatuses)
		argNum++
	}
	if f.Query != nil {
		conditions = append(conditions, fmt.Sprintf(
			"(community_name ILIKE $%d OR traditional_knowledge->>'description' ILIKE $%d)", argNum, argNum))
		args = append(args, likePattern(*f.Query))
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *knowledgeRepo) List(ctx context.Context, filter KnowledgeFilter, limit, offset int) ([]*model.KnowledgeRecord, error) {
	where, args := buildKnowledgeWhere(filter, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM indigenous_knowledge
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, knowledgeColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей знания: %w", err)
	}
	defer rows.Close()

	var result []*model.KnowledgeRecord
	for rows.Next() {
		rec, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи знания: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей знания: %w", err)
	}
	return result, nil
}

func (r *knowledgeRepo) Count(ctx context.Context, filter KnowledgeFilter) (int, error) {
	where, args := buildKnowledgeWhere(filter, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM indigenous_knowledge %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей знания: %w", err)
	}
	return count, nil
}

func (r *knowledgeRepo) Update(ctx context.Context, rec *model.KnowledgeRecord, expectedUpdatedAt time.Time) (*model.KnowledgeRecord, error) {
	media := rec.Media
	if media == nil {
		media = []model.Media{}
	}

	query := fmt.Sprintf(`
		UPDATE indigenous_knowledge SET
			community_name = $2, indigenous_group = $3, location = $4, knowledge_type = $5,
			plants = $6, related_studies = $7, traditional_knowledge = $8,
			access_level = $9, sensitivity_level = $10, sensitivity_reason = $11, media = $12,
			updated_at = NOW()
		WHERE id = $1 AND is_active AND updated_at = $13
		RETURNING %s`, knowledgeColumns)

	updated, err := scanKnowledge(r.db.QueryRow(ctx, query,
		rec.ID, rec.Community.Name, rec.Community.IndigenousGroup, rec.Community.Location, rec.KnowledgeType,
		nonNil(rec.Plants), nonNil(rec.RelatedStudies), rec.TraditionalKnowledge,
		rec.AccessLevel, rec.Sensitivity.Level, rec.Sensitivity.Reason, media,
		expectedUpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, rec.ID); errors.Is(getErr, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: запись изменена параллельно", ErrConflict)
		}
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("ошибка обновления записи знания: %w", err)
	}
	return updated, nil
}

func (r *knowledgeRepo) AppendAccessLog(ctx context.Context, id string, entry model.AccessLogEntry) (*model.KnowledgeRecord, error) {
	// Конкатенация jsonb выполняется атомарно в пределах строки:
	// параллельные чтения дописывают записи, не теряя друг друга.
	query := fmt.Sprintf(`
		UPDATE indigenous_knowledge
		SET access_log = access_log || $2::jsonb
		WHERE id = $1 AND is_active
		RETURNING %s`, knowledgeColumns)

	rec, err := scanKnowledge(r.db.QueryRow(ctx, query, id, []model.AccessLogEntry{entry}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка записи в журнал доступа: %w", err)
	}
	return rec, nil
}

func (r *knowledgeRepo) RevokeConsent(ctx context.Context, id, reason string, at time.Time) (*model.KnowledgeRecord, bool, error) {
	query := fmt.Sprintf(`
		UPDATE indigenous_knowledge SET
			consent_obtained = FALSE,
			consent_revoked_at = $2,
			consent_revoked_reason = $3,
			access_level = 'private',
			updated_at = NOW()
		WHERE id = $1 AND is_active AND consent_revoked_at IS NULL
		RETURNING %s`, knowledgeColumns)

	rec, err := scanKnowledge(r.db.QueryRow(ctx, query, id, at, reason))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("ошибка отзыва согласия: %w", err)
	}

	// Строка не обновлена: записи нет или согласие уже отозвано
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

func (r *knowledgeRepo) UpdateIPR(ctx context.Context, id string, ipr model.IPR, c model.Compliance) (*model.KnowledgeRecord, error) {
	query := fmt.Sprintf(`
		UPDATE indigenous_knowledge SET
			ipr_status = $2, ipr_registration_number = $3, ipr_registered_with = $4,
			ipr_registration_date = $5, ipr_protection_level = $6,
			ipra_compliant = $7, nagoya_compliant = $8, ncip_approved = $9,
			last_review_date = $10, next_review_date = $11,
			updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING %s`, knowledgeColumns)

	rec, err := scanKnowledge(r.db.QueryRow(ctx, query, id,
		ipr.Status, ipr.RegistrationNumber, ipr.RegisteredWith, ipr.RegistrationDate, ipr.ProtectionLevel,
		c.IPRACompliant, c.NagoyaCompliant, c.NCIPApproved, c.LastReviewDate, c.NextReviewDate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("ошибка обновления IPR: %w", err)
	}
	return rec, nil
}

func (r *knowledgeRepo) Archive(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE indigenous_knowledge
		SET is_active = FALSE, archived_at = $2, archive_reason = $3, updated_at = NOW()
		WHERE id = $1 AND is_active`, id, at, reason)
	if err != nil {
		return fmt.Errorf("ошибка архивирования записи знания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
