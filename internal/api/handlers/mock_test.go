package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/service"
)

var errNotMocked = errors.New("не замокано")

// mockKnowledge — мок KnowledgeService на функциональных полях.
type mockKnowledge struct {
	listFn            func(ctx context.Context, p *rbac.Principal, f service.ListFilters, page int) (service.Page[model.KnowledgeRecord], error)
	listPublicFn      func(ctx context.Context) ([]model.KnowledgeRecord, error)
	getFn             func(ctx context.Context, p *rbac.Principal, id, purpose string) (*model.KnowledgeRecord, error)
	listByCommunityFn func(ctx context.Context, p *rbac.Principal, name string, page int) (service.Page[model.KnowledgeRecord], error)
	createFn          func(ctx context.Context, p *rbac.Principal, in service.KnowledgeInput) (*model.KnowledgeRecord, error)
	updateFn          func(ctx context.Context, p *rbac.Principal, id string, in service.UpdateInput) (*model.KnowledgeRecord, error)
	archiveFn         func(ctx context.Context, p *rbac.Principal, id, reason string) error
	revokeConsentFn   func(ctx context.Context, p *rbac.Principal, id, reason string) (*model.KnowledgeRecord, bool, error)
	accessLogFn       func(ctx context.Context, p *rbac.Principal, id string) (*service.AccessLogView, error)
	pendingIPRFn      func(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.KnowledgeRecord], error)
	approveIPRFn      func(ctx context.Context, p *rbac.Principal, id string, in service.IPRApprovalInput) (*model.KnowledgeRecord, error)
}

func (m *mockKnowledge) List(ctx context.Context, p *rbac.Principal, f service.ListFilters, page int) (service.Page[model.KnowledgeRecord], error) {
	if m.listFn != nil {
		return m.listFn(ctx, p, f, page)
	}
	return service.Page[model.KnowledgeRecord]{}, errNotMocked
}

func (m *mockKnowledge) ListPublic(ctx context.Context) ([]model.KnowledgeRecord, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx)
	}
	return nil, errNotMocked
}

func (m *mockKnowledge) Get(ctx context.Context, p *rbac.Principal, id, purpose string) (*model.KnowledgeRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, p, id, purpose)
	}
	return nil, errNotMocked
}

func (m *mockKnowledge) ListByCommunity(ctx context.Context, p *rbac.Principal, name string, page int) (service.Page[model.KnowledgeRecord], error) {
	if m.listByCommunityFn != nil {
		return m.listByCommunityFn(ctx, p, name, page)
	}
	return service.Page[model.KnowledgeRecord]{}, errNotMocked
}

func (m *mockKnowledge) Create(ctx context.Context, p *rbac.Principal, in service.KnowledgeInput) (*model.KnowledgeRecord, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p, in)
	}
	return nil, errNotMocked
}

func (m *mockKnowledge) Update(ctx context.Context, p *rbac.Principal, id string, in service.UpdateInput) (*model.KnowledgeRecord, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, p, id, in)
	}
	return nil, errNotMocked
}

func (m *mockKnowledge) Archive(ctx context.Context, p *rbac.Principal, id, reason string) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, p, id, reason)
	}
	return errNotMocked
}

func (m *mockKnowledge) RevokeConsent(ctx context.Context, p *rbac.Principal, id, reason string) (*model.KnowledgeRecord, bool, error) {
	if m.revokeConsentFn != nil {
		return m.revokeConsentFn(ctx, p, id, reason)
	}
	return nil, false, errNotMocked
}

func (m *mockKnowledge) AccessLog(ctx context.Context, p *rbac.Principal, id string) (*service.AccessLogView, error) {
	if m.accessLogFn != nil {
		return m.accessLogFn(ctx, p, id)
	}
	return nil, errNotMocked
}

func (m *mockKnowledge) PendingIPRReview(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.KnowledgeRecord], error) {
	if m.pendingIPRFn != nil {
		return m.pendingIPRFn(ctx, p, page)
	}
	return service.Page[model.KnowledgeRecord]{}, errNotMocked
}

func (m *mockKnowledge) ApproveIPR(ctx context.Context, p *rbac.Principal, id string, in service.IPRApprovalInput) (*model.KnowledgeRecord, error) {
	if m.approveIPRFn != nil {
		return m.approveIPRFn(ctx, p, id, in)
	}
	return nil, errNotMocked
}

// mockAuth — мок AuthService.
type mockAuth struct {
	registerFn func(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	loginFn    func(ctx context.Context, login, password string) (*service.AuthResult, error)
	profileFn  func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockAuth) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, errNotMocked
}

func (m *mockAuth) Login(ctx context.Context, login, password string) (*service.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, login, password)
	}
	return nil, errNotMocked
}

func (m *mockAuth) Profile(ctx context.Context, id string) (*model.User, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, id)
	}
	return nil, errNotMocked
}

// mockUsers — мок UserService.
type mockUsers struct {
	listFn   func(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.User], error)
	updateFn func(ctx context.Context, p *rbac.Principal, id string, in service.AccessUpdateInput) (*model.User, error)
}

func (m *mockUsers) ListUsers(ctx context.Context, p *rbac.Principal, page int) (service.Page[model.User], error) {
	if m.listFn != nil {
		return m.listFn(ctx, p, page)
	}
	return service.Page[model.User]{}, errNotMocked
}

func (m *mockUsers) UpdateAccess(ctx context.Context, p *rbac.Principal, id string, in service.AccessUpdateInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, p, id, in)
	}
	return nil, errNotMocked
}

// mockChecker — мок ReadinessChecker.
type mockChecker struct {
	status  string
	message string
}

func (m *mockChecker) CheckReady() (string, string) {
	return m.status, m.message
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockPlants — мок PlantService на функциональных полях.
type mockPlants struct {
	listFn     func(ctx context.Context, p *rbac.Principal, f service.PlantListFilters, page int) (service.Page[model.Plant], error)
	searchFn   func(ctx context.Context, p *rbac.Principal, f service.PlantSearchFilters, page int) (service.Page[model.PlantSummary], error)
	getFn      func(ctx context.Context, p *rbac.Principal, id string) (*model.Plant, error)
	createFn   func(ctx context.Context, p *rbac.Principal, in service.PlantInput) (*model.Plant, error)
	updateFn   func(ctx context.Context, p *rbac.Principal, id string, in service.PlantUpdateInput) (*model.Plant, error)
	reviewFn   func(ctx context.Context, p *rbac.Principal, id string, in service.PlantReviewInput) (*model.Plant, error)
	archiveFn  func(ctx context.Context, p *rbac.Principal, id string) error
	versionsFn func(ctx context.Context, p *rbac.Principal, id string) (*service.PlantVersionsView, error)
}

func (m *mockPlants) List(ctx context.Context, p *rbac.Principal, f service.PlantListFilters, page int) (service.Page[model.Plant], error) {
	if m.listFn != nil {
		return m.listFn(ctx, p, f, page)
	}
	return service.Page[model.Plant]{}, errNotMocked
}

func (m *mockPlants) Search(ctx context.Context, p *rbac.Principal, f service.PlantSearchFilters, page int) (service.Page[model.PlantSummary], error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, p, f, page)
	}
	return service.Page[model.PlantSummary]{}, errNotMocked
}

func (m *mockPlants) Get(ctx context.Context, p *rbac.Principal, id string) (*model.Plant, error) {
	if m.getFn != nil {
		return m.getFn(ctx, p, id)
	}
	return nil, errNotMocked
}

func (m *mockPlants) Create(ctx context.Context, p *rbac.Principal, in service.PlantInput) (*model.Plant, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p, in)
	}
	return nil, errNotMocked
}

func (m *mockPlants) Update(ctx context.Context, p *rbac.Principal, id string, in service.PlantUpdateInput) (*model.Plant, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, p, id, in)
	}
	return nil, errNotMocked
}

func (m *mockPlants) Review(ctx context.Context, p *rbac.Principal, id string, in service.PlantReviewInput) (*model.Plant, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, p, id, in)
	}
	return nil, errNotMocked
}

func (m *mockPlants) Archive(ctx context.Context, p *rbac.Principal, id string) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, p, id)
	}
	return errNotMocked
}

func (m *mockPlants) Versions(ctx context.Context, p *rbac.Principal, id string) (*service.PlantVersionsView, error) {
	if m.versionsFn != nil {
		return m.versionsFn(ctx, p, id)
	}
	return nil, errNotMocked
}
