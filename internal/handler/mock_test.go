package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/middleware"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	createFn           func(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error)
	createFirstUserFn  func(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error)
	getByIDFn          func(ctx context.Context, id string) (*model.User, error)
	getByCodeFn        func(ctx context.Context, orgID, code string) (*model.User, error)
	listFn             func(ctx context.Context, orgID string, status model.UserStatus) ([]*model.User, error)
	emailAvailableFn   func(ctx context.Context, email string) (bool, error)
	countSuperAdminsFn func(ctx context.Context) (int, error)
	updateFn           func(ctx context.Context, id string, req user.UpdateUserRequest) (*model.User, error)
	changeStatusFn     func(ctx context.Context, id string, status model.UserStatus, actor string) (*model.User, error)
	softDeleteFn       func(ctx context.Context, id, actor string) (*model.User, error)
	restoreFn          func(ctx context.Context, id, actor string) (*model.User, error)
	hardDeleteFn       func(ctx context.Context, id, actor string) error
}

func (m *mockUserService) Create(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, nil
}

func (m *mockUserService) CreateFirstUser(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error) {
	if m.createFirstUserFn != nil {
		return m.createFirstUserFn(ctx, req)
	}
	return nil, nil
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return testUser(), nil
}

func (m *mockUserService) GetByCode(ctx context.Context, orgID, code string) (*model.User, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, orgID, code)
	}
	return testUser(), nil
}

func (m *mockUserService) ListByOrganizationAndStatus(ctx context.Context, orgID string, status model.UserStatus) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orgID, status)
	}
	return []*model.User{}, nil
}

func (m *mockUserService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	if m.emailAvailableFn != nil {
		return m.emailAvailableFn(ctx, email)
	}
	return true, nil
}

func (m *mockUserService) CountSuperAdmins(ctx context.Context) (int, error) {
	if m.countSuperAdminsFn != nil {
		return m.countSuperAdminsFn(ctx)
	}
	return 0, nil
}

func (m *mockUserService) Update(ctx context.Context, id string, req user.UpdateUserRequest) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, req)
	}
	return testUser(), nil
}

func (m *mockUserService) ChangeStatus(ctx context.Context, id string, status model.UserStatus, actor string) (*model.User, error) {
	if m.changeStatusFn != nil {
		return m.changeStatusFn(ctx, id, status, actor)
	}
	return testUser(), nil
}

func (m *mockUserService) SoftDelete(ctx context.Context, id, actor string) (*model.User, error) {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id, actor)
	}
	return testUser(), nil
}

func (m *mockUserService) Restore(ctx context.Context, id, actor string) (*model.User, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, id, actor)
	}
	return testUser(), nil
}

func (m *mockUserService) HardDelete(ctx context.Context, id, actor string) error {
	if m.hardDeleteFn != nil {
		return m.hardDeleteFn(ctx, id, actor)
	}
	return nil
}

// mockCodeService はCodeServiceInterfaceのモック実装。
type mockCodeService struct {
	nextCodeFn func(ctx context.Context, orgID string) (string, error)
	lastCodeFn func(ctx context.Context, orgID string) (string, bool, error)
	resetFn    func(ctx context.Context, orgID, actor string) error
}

func (m *mockCodeService) NextCode(ctx context.Context, orgID string) (string, error) {
	if m.nextCodeFn != nil {
		return m.nextCodeFn(ctx, orgID)
	}
	return "USR00001", nil
}

func (m *mockCodeService) LastCode(ctx context.Context, orgID string) (string, bool, error) {
	if m.lastCodeFn != nil {
		return m.lastCodeFn(ctx, orgID)
	}
	return "", false, nil
}

func (m *mockCodeService) Reset(ctx context.Context, orgID, actor string) error {
	if m.resetFn != nil {
		return m.resetFn(ctx, orgID, actor)
	}
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() *model.User {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.User{
		ID:             "6f1c2f3e-0000-4000-8000-000000000001",
		UserCode:       "USR00001",
		Username:       "juan.perez.g@jass.gob.pe",
		OrganizationID: "org-1",
		PersonalInfo: model.PersonalInfo{
			DocumentType:   model.DocumentTypeDNI,
			DocumentNumber: "12345678",
			FirstName:      "Juan",
			LastName:       "Pérez García",
		},
		Contact: model.Contact{
			Email: "juan@example.com",
			Phone: "987654321",
			Address: model.Address{
				FullAddress: "Jr. Lima 123",
				StreetID:    "street-1",
				ZoneID:      "zone-1",
			},
		},
		Roles:            []model.Role{model.RoleClient},
		Status:           model.UserStatusActive,
		RegistrationDate: created,
		CreatedAt:        created,
		UpdatedAt:        created,
		CreatedBy:        "admin-1",
		UpdatedBy:        "admin-1",
	}
}

// withActor はリクエストに操作者ヘッダーを付与する。
func withActor(req *http.Request, id string, roles string) *http.Request {
	req.Header.Set(middleware.HeaderUserID, id)
	req.Header.Set(middleware.HeaderUserRoles, roles)
	return req
}

// newTestRouter はモックサービスでルーターを構成する。
func newTestRouter(t *testing.T, users UserServiceInterface, codes CodeServiceInterface) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(600, 600), discardLogger())
	t.Cleanup(rl.Stop)
	return NewRouter(&RouterDeps{
		Logger:            discardLogger(),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		HealthChecker:     &mockHealthChecker{},
		UserService:       users,
		CodeService:       codes,
	})
}
