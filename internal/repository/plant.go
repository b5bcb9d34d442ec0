package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

// PlantRepository — доступ к таблицам medicinal_plants и medicinal_plant_versions.
// Методы чтения и изменения видят только активные карточки.
type PlantRepository interface {
	// Create сохраняет новую карточку.
	Create(ctx context.Context, plant *model.Plant) error
	// GetByID возвращает активную карточку по UUID.
	GetByID(ctx context.Context, id string) (*model.Plant, error)
	// List возвращает карточки по фильтру в заданном порядке.
	List(ctx context.Context, filter PlantFilter, sort PlantSort, limit, offset int) ([]*model.Plant, error)
	// Count возвращает количество карточек по фильтру.
	Count(ctx context.Context, filter PlantFilter) (int, error)
	// Update сохраняет снимок прежней версии и новые поля одним запросом.
	// snapshot.VersionNumber — ожидаемая текущая версия: при несовпадении
	// возвращается ErrConflict.
	Update(ctx context.Context, plant *model.Plant, snapshot model.PlantVersion, contributor model.Contributor) (*model.Plant, error)
	// UpdateStatus меняет статус проверки и дописывает историю проверки.
	UpdateStatus(ctx context.Context, id string, review model.PlantReview) (*model.Plant, error)
	// Archive снимает карточку с публикации (is_active = false).
	Archive(ctx context.Context, id string) error
	// Versions возвращает снимки карточки, новые первыми.
	Versions(ctx context.Context, id string) ([]model.PlantVersion, error)
}

// PlantFilter — условия выборки карточек. Заданные условия объединяются через AND.
type PlantFilter struct {
	// AccessLevels — допустимые уровни доступа (пусто — любые)
	AccessLevels []string
	// PublishedOnly — validation_status = published
	PublishedOnly bool
	// Search — полнотекстовый запрос по названиям, применениям и описанию
	Search *string
	// Condition — подстрока состояния в традиционных применениях
	Condition *string
	// Conditions — любое из состояний (подстроки)
	Conditions []string
	// Region — точный регион распространения
	Region *string
	// Regions — любой из регионов
	Regions []string
	// Name — подстрока научного или народного названия
	Name *string
	// NameLanguage — язык народного названия, применяется вместе с Name
	NameLanguage   *string
	ScientificName *string
	// Family — подстрока семейства
	Family *string
	// Families — точное совпадение с одним из семейств
	Families      []string
	ToxicityLevel *string
	DOHApproved   bool
	// EvidenceLevels — хотя бы одно исследование с одним из уровней
	EvidenceLevels []string
	HasImages      bool
}

// Ключи сортировки списка карточек.
const (
	PlantSortScientificName = "scientificName"
	PlantSortFamily         = "family"
	PlantSortCreatedAt      = "createdAt"
	PlantSortUpdatedAt      = "updatedAt"
	// PlantSortRelevance — по рангу полнотекстового поиска, требует Search
	PlantSortRelevance = "relevance"
)

var plantSortColumns = map[string]string{
	PlantSortScientificName: "lower(scientific_name)",
	PlantSortFamily:         "family",
	PlantSortCreatedAt:      "created_at",
	PlantSortUpdatedAt:      "updated_at",
}

// PlantSort — порядок выдачи списка.
type PlantSort struct {
	Key  string
	Desc bool
}

// IsValidPlantSort проверяет ключ сортировки.
func IsValidPlantSort(key string) bool {
	_, ok := plantSortColumns[key]
	return ok || key == PlantSortRelevance
}

// plantRepo — реализация PlantRepository.
type plantRepo struct {
	db DBTX
}

// NewPlantRepository создаёт репозиторий справочника растений.
func NewPlantRepository(db DBTX) PlantRepository {
	return &plantRepo{db: db}
}

const plantColumns = `id, names, traditional_uses, phytochemicals, clinical_evidence, dosage,
	safety, distribution, description, images, validation_status, review_history,
	contributors, tags, access_level, version, regulatory_status, is_active, created_at, updated_at`

// scanPlant читает строку в модель. Порядок полей — plantColumns.
func scanPlant(row pgx.Row) (*model.Plant, error) {
	p := &model.Plant{}
	err := row.Scan(
		&p.ID, &p.Names, &p.TraditionalUses, &p.Phytochemicals, &p.ClinicalEvidence, &p.Dosage,
		&p.Safety, &p.Distribution, &p.Description, &p.Images, &p.ValidationStatus, &p.ReviewHistory,
		&p.Contributors, &p.Tags, &p.AccessLevel, &p.Version, &p.RegulatoryStatus, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// emptyJSONArray заменяет nil-срез пустым: колонки JSONB-массивов NOT NULL.
func emptyJSONArray[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *plantRepo) Create(ctx context.Context, p *model.Plant) error {
	query := `
		INSERT INTO medicinal_plants (id, scientific_name, family, names, traditional_uses, phytochemicals,
			clinical_evidence, dosage, safety, distribution, description, images,
			validation_status, review_history, contributors, tags, access_level, version, regulatory_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING is_active, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Names.Scientific, p.Names.Family, p.Names, emptyJSONArray(p.TraditionalUses),
		emptyJSONArray(p.Phytochemicals), emptyJSONArray(p.ClinicalEvidence), emptyJSONArray(p.Dosage),
		p.Safety, p.Distribution, p.Description, emptyJSONArray(p.Images),
		p.ValidationStatus, emptyJSONArray(p.ReviewHistory), emptyJSONArray(p.Contributors),
		nonNil(p.Tags), p.AccessLevel, p.Version, p.RegulatoryStatus,
	).Scan(&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: карточка с таким ID уже существует", ErrConflict)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return fmt.Errorf("ошибка создания карточки растения: %w", err)
	}
	return nil
}

func (r *plantRepo) GetByID(ctx context.Context, id string) (*model.Plant, error) {
	query := fmt.Sprintf(`SELECT %s FROM medicinal_plants WHERE id = $1 AND is_active`, plantColumns)

	p, err := scanPlant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения карточки растения: %w", err)
	}
	return p, nil
}

// buildPlantWhere строит WHERE-условие и аргументы для фильтрации карточек.
func buildPlantWhere(f PlantFilter, startArg int) (string, []any) {
	conditions := []string{"is_active"}
	var args []any
	argNum := startArg

	add := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argNum))
		args = append(args, arg)
		argNum++
	}

	if len(f.AccessLevels) > 0 {
		add("access_level = ANY($%d)", f.AccessLevels)
	}
	if f.PublishedOnly {
		conditions = append(conditions, "validation_status = 'published'")
	}
	if f.Search != nil {
		add("search_vector @@ plainto_tsquery('simple', $%d)", *f.Search)
	}
	if f.Condition != nil {
		add(`EXISTS (SELECT 1 FROM jsonb_array_elements(traditional_uses) u
			WHERE u->>'condition' ILIKE $%d)`, likePattern(*f.Condition))
	}
	if len(f.Conditions) > 0 {
		patterns := make([]string, 0, len(f.Conditions))
		for _, c := range f.Conditions {
			patterns = append(patterns, likePattern(c))
		}
		add(`EXISTS (SELECT 1 FROM jsonb_array_elements(traditional_uses) u
			WHERE u->>'condition' ILIKE ANY($%d))`, patterns)
	}
	if f.Region != nil {
		add("distribution->'regions' ? $%d", *f.Region)
	}
	if len(f.Regions) > 0 {
		add("distribution->'regions' ?| $%d", f.Regions)
	}
	if f.Name != nil {
		if f.NameLanguage != nil {
			conditions = append(conditions, fmt.Sprintf(
				`EXISTS (SELECT 1 FROM jsonb_array_elements(names->'commonNames') cn
					WHERE cn->>'language' = $%d AND cn->>'name' ILIKE $%d)`, argNum, argNum+1))
			args = append(args, *f.NameLanguage, likePattern(*f.Name))
			argNum += 2
		} else {
			add(`(scientific_name ILIKE $%[1]d OR EXISTS (
				SELECT 1 FROM jsonb_array_elements(names->'commonNames') cn WHERE cn->>'name' ILIKE $%[1]d))`,
				likePattern(*f.Name))
		}
	}
	if f.ScientificName != nil {
		add("scientific_name ILIKE $%d", likePattern(*f.ScientificName))
	}
	if f.Family != nil {
		add("family ILIKE $%d", likePattern(*f.Family))
	}
	if len(f.Families) > 0 {
		add("family = ANY($%d)", f.Families)
	}
	if f.ToxicityLevel != nil {
		add("safety->'toxicity'->>'level' = $%d", *f.ToxicityLevel)
	}
	if f.DOHApproved {
		conditions = append(conditions, `regulatory_status @> '{"dohApproved": true}'`)
	}
	if len(f.EvidenceLevels) > 0 {
		add(`EXISTS (SELECT 1 FROM jsonb_array_elements(clinical_evidence) e
			WHERE e->>'evidenceLevel' = ANY($%d))`, f.EvidenceLevels)
	}
	if f.HasImages {
		conditions = append(conditions, "jsonb_array_length(images) > 0")
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// plantOrderBy строит ORDER BY. Ранг поиска использует аргумент argNum.
func plantOrderBy(f PlantFilter, sort PlantSort, argNum int) (string, []any) {
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	if sort.Key == PlantSortRelevance && f.Search != nil {
		return fmt.Sprintf("ORDER BY ts_rank(search_vector, plainto_tsquery('simple', $%d)) DESC, lower(scientific_name), id", argNum),
			[]any{*f.Search}
	}
	column, ok := plantSortColumns[sort.Key]
	if !ok {
		column = plantSortColumns[PlantSortScientificName]
	}
	return fmt.Sprintf("ORDER BY %s %s, id", column, dir), nil
}

func (r *plantRepo) List(ctx context.Context, filter PlantFilter, sort PlantSort, limit, offset int) ([]*model.Plant, error) {
	where, args := buildPlantWhere(filter, 1)
	orderBy, orderArgs := plantOrderBy(filter, sort, len(args)+1)
	args = append(args, orderArgs...)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM medicinal_plants
		%s
		%s
		LIMIT $%d OFFSET $%d`, plantColumns, where, orderBy, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка растений: %w", err)
	}
	defer rows.Close()

	var result []*model.Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования карточки растения: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации карточек растений: %w", err)
	}
	return result, nil
}

func (r *plantRepo) Count(ctx context.Context, filter PlantFilter) (int, error) {
	where, args := buildPlantWhere(filter, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM medicinal_plants %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта карточек растений: %w", err)
	}
	return count, nil
}

func (r *plantRepo) Update(ctx context.Context, p *model.Plant, snapshot model.PlantVersion, contributor model.Contributor) (*model.Plant, error) {
	// Снимок и изменение выполняются одним оператором: параллельное
	// обновление той же версии упирается в PRIMARY KEY снимков.
	query := fmt.Sprintf(`
		WITH snapshot AS (
			INSERT INTO medicinal_plant_versions (plant_id, version_number, data, updated_by, updated_at, change_log)
			SELECT id, version, $2::jsonb, $3::uuid, $4::timestamptz, $5::text
			FROM medicinal_plants
			WHERE id = $1 AND is_active AND version = $6
			RETURNING plant_id
		)
		UPDATE medicinal_plants SET
			scientific_name = $7, family = $8, names = $9, traditional_uses = $10,
			phytochemicals = $11, clinical_evidence = $12, dosage = $13, safety = $14,
			distribution = $15, description = $16, images = $17, tags = $18,
			access_level = $19, regulatory_status = $20,
			contributors = contributors || $21::jsonb,
			version = version + 1,
			updated_at = NOW()
		WHERE id = (SELECT plant_id FROM snapshot)
		RETURNING %s`, plantColumns)

	updated, err := scanPlant(r.db.QueryRow(ctx, query,
		p.ID, snapshot.Data, snapshot.UpdatedBy, snapshot.UpdatedAt, snapshot.ChangeLog, snapshot.VersionNumber,
		p.Names.Scientific, p.Names.Family, p.Names, emptyJSONArray(p.TraditionalUses),
		emptyJSONArray(p.Phytochemicals), emptyJSONArray(p.ClinicalEvidence), emptyJSONArray(p.Dosage), p.Safety,
		p.Distribution, p.Description, emptyJSONArray(p.Images), nonNil(p.Tags),
		p.AccessLevel, p.RegulatoryStatus,
		[]model.Contributor{contributor},
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, p.ID); errors.Is(getErr, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: карточка изменена параллельно", ErrConflict)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: версия %d уже сохранена", ErrConflict, snapshot.VersionNumber)
		}
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("ошибка обновления карточки растения: %w", err)
	}
	return updated, nil
}

func (r *plantRepo) UpdateStatus(ctx context.Context, id string, review model.PlantReview) (*model.Plant, error) {
	query := fmt.Sprintf(`
		UPDATE medicinal_plants SET
			validation_status = $2,
			review_history = review_history || $3::jsonb,
			updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING %s`, plantColumns)

	p, err := scanPlant(r.db.QueryRow(ctx, query, id, review.Status, []model.PlantReview{review}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("ошибка смены статуса карточки: %w", err)
	}
	return p, nil
}

func (r *plantRepo) Archive(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE medicinal_plants SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("ошибка архивирования карточки растения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *plantRepo) Versions(ctx context.Context, id string) ([]model.PlantVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT version_number, data, updated_by, updated_at, change_log
		FROM medicinal_plant_versions
		WHERE plant_id = $1
		ORDER BY version_number DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения версий карточки: %w", err)
	}
	defer rows.Close()

	versions := []model.PlantVersion{}
	for rows.Next() {
		var v model.PlantVersion
		if err := rows.Scan(&v.VersionNumber, &v.Data, &v.UpdatedBy, &v.UpdatedAt, &v.ChangeLog); err != nil {
			return nil, fmt.Errorf("ошибка сканирования версии карточки: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации версий карточки: %w", err)
	}
	return versions, nil
}
