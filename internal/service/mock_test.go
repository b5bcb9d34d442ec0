package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/repository"
)

// mockKnowledgeRepo — мок KnowledgeRepository на функциональных полях.
type mockKnowledgeRepo struct {
	createFn          func(ctx context.Context, rec *model.KnowledgeRecord) error
	getByIDFn         func(ctx context.Context, id string) (*model.KnowledgeRecord, error)
	listFn            func(ctx context.Context, f repository.KnowledgeFilter, limit, offset int) ([]*model.KnowledgeRecord, error)
	countFn           func(ctx context.Context, f repository.KnowledgeFilter) (int, error)
	updateFn          func(ctx context.Context, rec *model.KnowledgeRecord, expected time.Time) (*model.KnowledgeRecord, error)
	appendAccessLogFn func(ctx context.Context, id string, entry model.AccessLogEntry) (*model.KnowledgeRecord, error)
	revokeConsentFn   func(ctx context.Context, id, reason string, at time.Time) (*model.KnowledgeRecord, bool, error)
	updateIPRFn       func(ctx context.Context, id string, ipr model.IPR, c model.Compliance) (*model.KnowledgeRecord, error)
	archiveFn         func(ctx context.Context, id, reason string, at time.Time) error
}

func (m *mockKnowledgeRepo) Create(ctx context.Context, rec *model.KnowledgeRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return nil
}

func (m *mockKnowledgeRepo) GetByID(ctx context.Context, id string) (*model.KnowledgeRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockKnowledgeRepo) List(ctx context.Context, f repository.KnowledgeFilter, limit, offset int) ([]*model.KnowledgeRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f, limit, offset)
	}
	return nil, nil
}

func (m *mockKnowledgeRepo) Count(ctx context.Context, f repository.KnowledgeFilter) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

func (m *mockKnowledgeRepo) Update(ctx context.Context, rec *model.KnowledgeRecord, expected time.Time) (*model.KnowledgeRecord, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, rec, expected)
	}
	return rec, nil
}

func (m *mockKnowledgeRepo) AppendAccessLog(ctx context.Context, id string, entry model.AccessLogEntry) (*model.KnowledgeRecord, error) {
	if m.appendAccessLogFn != nil {
		return m.appendAccessLogFn(ctx, id, entry)
	}
	return nil, repository.ErrNotFound
}

func (m *mockKnowledgeRepo) RevokeConsent(ctx context.Context, id, reason string, at time.Time) (*model.KnowledgeRecord, bool, error) {
	if m.revokeConsentFn != nil {
		return m.revokeConsentFn(ctx, id, reason, at)
	}
	return nil, false, repository.ErrNotFound
}

func (m *mockKnowledgeRepo) UpdateIPR(ctx context.Context, id string, ipr model.IPR, c model.Compliance) (*model.KnowledgeRecord, error) {
	if m.updateIPRFn != nil {
		return m.updateIPRFn(ctx, id, ipr, c)
	}
	return nil, repository.ErrNotFound
}

func (m *mockKnowledgeRepo) Archive(ctx context.Context, id, reason string, at time.Time) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, id, reason, at)
	}
	return nil
}

// memKnowledgeRepo — мок с хранением записей в памяти: журнал доступа
// и отзыв согласия ведут себя как в PostgreSQL.
func memKnowledgeRepo(records ...*model.KnowledgeRecord) *mockKnowledgeRepo {
	store := make(map[string]*model.KnowledgeRecord, len(records))
	for _, r := range records {
		store[r.ID] = r
	}
	clone := func(r *model.KnowledgeRecord) *model.KnowledgeRecord {
		c := *r
		c.AccessLog = append([]model.AccessLogEntry(nil), r.AccessLog...)
		return &c
	}
	return &mockKnowledgeRepo{
		getByIDFn: func(_ context.Context, id string) (*model.KnowledgeRecord, error) {
			r, ok := store[id]
			if !ok || !r.IsActive {
				return nil, repository.ErrNotFound
			}
			return clone(r), nil
		},
		appendAccessLogFn: func(_ context.Context, id string, entry model.AccessLogEntry) (*model.KnowledgeRecord, error) {
			r, ok := store[id]
			if !ok || !r.IsActive {
				return nil, repository.ErrNotFound
			}
			r.AccessLog = append(r.AccessLog, entry)
			return clone(r), nil
		},
		revokeConsentFn: func(_ context.Context, id, reason string, at time.Time) (*model.KnowledgeRecord, bool, error) {
			r, ok := store[id]
			if !ok || !r.IsActive {
				return nil, false, repository.ErrNotFound
			}
			if r.Consent.RevokedAt != nil {
				return clone(r), false, nil
			}
			r.Consent.Obtained = false
			r.Consent.RevokedAt = &at
			r.Consent.RevokedReason = &reason
			r.AccessLevel = model.AccessPrivate
			return clone(r), true, nil
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockPlantRepo — мок PlantRepository на функциональных полях.
type mockPlantRepo struct {
	createFn       func(ctx context.Context, plant *model.Plant) error
	getByIDFn      func(ctx context.Context, id string) (*model.Plant, error)
	listFn         func(ctx context.Context, f repository.PlantFilter, sort repository.PlantSort, limit, offset int) ([]*model.Plant, error)
	countFn        func(ctx context.Context, f repository.PlantFilter) (int, error)
	updateFn       func(ctx context.Context, plant *model.Plant, snapshot model.PlantVersion, c model.Contributor) (*model.Plant, error)
	updateStatusFn func(ctx context.Context, id string, review model.PlantReview) (*model.Plant, error)
	archiveFn      func(ctx context.Context, id string) error
	versionsFn     func(ctx context.Context, id string) ([]model.PlantVersion, error)
}

func (m *mockPlantRepo) Create(ctx context.Context, plant *model.Plant) error {
	if m.createFn != nil {
		return m.createFn(ctx, plant)
	}
	return nil
}

func (m *mockPlantRepo) GetByID(ctx context.Context, id string) (*model.Plant, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockPlantRepo) List(ctx context.Context, f repository.PlantFilter, sort repository.PlantSort, limit, offset int) ([]*model.Plant, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f, sort, limit, offset)
	}
	return nil, nil
}

func (m *mockPlantRepo) Count(ctx context.Context, f repository.PlantFilter) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

func (m *mockPlantRepo) Update(ctx context.Context, plant *model.Plant, snapshot model.PlantVersion, c model.Contributor) (*model.Plant, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, plant, snapshot, c)
	}
	return plant, nil
}

func (m *mockPlantRepo) UpdateStatus(ctx context.Context, id string, review model.PlantReview) (*model.Plant, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, review)
	}
	return nil, repository.ErrNotFound
}

func (m *mockPlantRepo) Archive(ctx context.Context, id string) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, id)
	}
	return nil
}

func (m *mockPlantRepo) Versions(ctx context.Context, id string) ([]model.PlantVersion, error) {
	if m.versionsFn != nil {
		return m.versionsFn(ctx, id)
	}
	return []model.PlantVersion{}, nil
}
