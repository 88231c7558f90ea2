package user

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/authclient"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/security"
)

// --- モック ---

// memoryUserRepo はテスト用のインメモリUserRepository。
// *Fn フィールドを設定すると該当メソッドの挙動を差し替える。
type memoryUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	saveFn           func(ctx context.Context, u *model.User) error
	updateUsernameFn func(ctx context.Context, id, username string) (bool, error)

	// uniqueCodes が真のとき ux_users_org_user_code と同じく
	// 論理削除済みを含めて組織内のコード重複をErrConflictにする。
	uniqueCodes bool
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[string]*model.User{}}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Roles = append([]model.Role(nil), u.Roles...)
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (m *memoryUserRepo) put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
}

func (m *memoryUserRepo) get(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (m *memoryUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.get(id), nil
}

func (m *memoryUserRepo) FindByOrganizationAndCode(ctx context.Context, organizationID, userCode string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.OrganizationID == organizationID && u.UserCode == userCode && !u.IsDeleted() {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (m *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Contact.Email != "" && strings.EqualFold(u.Contact.Email, email) && !u.IsDeleted() {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (m *memoryUserRepo) ExistsByDocumentNumber(ctx context.Context, documentNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PersonalInfo.DocumentNumber == documentNumber && !u.IsDeleted() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, _ := m.FindByEmail(ctx, email)
	return u != nil, nil
}

func (m *memoryUserRepo) Save(ctx context.Context, u *model.User) error {
	if m.saveFn != nil {
		if err := m.saveFn(ctx, u); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		m.nextID++
		u.ID = fmt.Sprintf("user-%d", m.nextID)
	}
	if m.uniqueCodes {
		for id, other := range m.users {
			if id != u.ID && other.OrganizationID == u.OrganizationID && other.UserCode == u.UserCode {
				return fmt.Errorf("failed to save user: %w", repository.ErrConflict)
			}
		}
	}
	// PostgresUserRepoと同様に既存行のユーザー名は維持する
	if existing, ok := m.users[u.ID]; ok {
		u.Username = existing.Username
	}
	u.UpdatedAt = time.Now()
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memoryUserRepo) UpdateUsername(ctx context.Context, id, username string) (bool, error) {
	if m.updateUsernameFn != nil {
		return m.updateUsernameFn(ctx, id, username)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Username != "" {
		return false, nil
	}
	u.Username = username
	return true, nil
}

func (m *memoryUserRepo) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	delete(m.users, id)
	return nil
}

func (m *memoryUserRepo) ListByOrganizationAndStatus(ctx context.Context, organizationID string, status model.UserStatus) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		if u.OrganizationID == organizationID && u.Status == status && !u.IsDeleted() {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m *memoryUserRepo) ListPendingUsername(ctx context.Context, afterID string, limit int) ([]*model.User, error) {
	return nil, nil
}

func (m *memoryUserRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.HasRole(role) && !u.IsDeleted() {
			n++
		}
	}
	return n, nil
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)

type mockAllocator struct {
	mu         sync.Mutex
	calls      int
	allocateFn func(ctx context.Context, organizationID string) (string, error)
}

func (m *mockAllocator) Allocate(ctx context.Context, organizationID string) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if m.allocateFn != nil {
		return m.allocateFn(ctx, organizationID)
	}
	return fmt.Sprintf("USR%05d", n), nil
}

type mockRegistrar struct {
	available       bool
	registerGenFn   func(ctx context.Context, p authclient.Profile) (*authclient.Registration, error)
	registerFn      func(ctx context.Context, p authclient.Profile, password string) (*authclient.Registration, error)
	registerGenHits int
	registerHits    int
}

func (m *mockRegistrar) IsAvailable(ctx context.Context) bool {
	return m.available
}

func (m *mockRegistrar) RegisterWithGeneratedCredential(ctx context.Context, p authclient.Profile) (*authclient.Registration, error) {
	m.registerGenHits++
	if m.registerGenFn != nil {
		return m.registerGenFn(ctx, p)
	}
	return &authclient.Registration{Username: "generated@jass.gob.pe", TemporaryPassword: "Remote#Pass1", AccountEnabled: true}, nil
}

func (m *mockRegistrar) Register(ctx context.Context, p authclient.Profile, password string) (*authclient.Registration, error) {
	m.registerHits++
	if m.registerFn != nil {
		return m.registerFn(ctx, p, password)
	}
	return &authclient.Registration{Username: "plain@jass.gob.pe", AccountEnabled: true}, nil
}

// recordingCollector はプロビジョニング結果のみを記録するMetricsCollector。
type recordingCollector struct {
	metrics.NopCollector
	outcomes []string
}

func (r *recordingCollector) RecordUserProvisioned(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

// --- テスト用ヘルパー ---

type testEnv struct {
	svc       *Service
	users     *memoryUserRepo
	allocator *mockAllocator
	auth      *mockRegistrar
	collector *recordingCollector
	logs      *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:     newMemoryUserRepo(),
		allocator: &mockAllocator{},
		auth:      &mockRegistrar{available: true},
		collector: &recordingCollector{},
		logs:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(env.logs, nil))
	env.svc = NewService(env.users, env.allocator, env.auth, security.NewTextSanitizer(), env.collector, logger, PasswordModeRemote)
	env.svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return env
}

func validCreateRequest() CreateUserRequest {
	return CreateUserRequest{
		OrganizationID: "org-1",
		DocumentType:   model.DocumentTypeDNI,
		DocumentNumber: "70123456",
		FirstName:      "Victoria Rosalina",
		LastName:       "De La Cruz Laura",
		Email:          "victoria@example.com",
		Phone:          "987654321",
		Address:        "Jr. Los Andes 120",
		StreetID:       "street-1",
		ZoneID:         "zone-1",
		Roles:          []model.Role{model.RoleClient},
		Actor:          "admin-1",
	}
}

func seedUser(t *testing.T, repo *memoryUserRepo, mutate func(u *model.User)) *model.User {
	t.Helper()
	u := &model.User{
		UserCode:       "USR00001",
		Username:       "ana.lopez@jass.gob.pe",
		OrganizationID: "org-1",
		PersonalInfo: model.PersonalInfo{
			DocumentType:   model.DocumentTypeDNI,
			DocumentNumber: "40111222",
			FirstName:      "Ana",
			LastName:       "Lopez Garcia",
		},
		Contact: model.Contact{Email: "ana@example.com"},
		Roles:   []model.Role{model.RoleClient},
		Status:  model.UserStatusActive,
	}
	if mutate != nil {
		mutate(u)
	}
	if err := repo.Save(context.Background(), u); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return u
}
