package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// mockCounterCmdable はcounterCmdableのインメモリ実装。
type mockCounterCmdable struct {
	mu      sync.Mutex
	data    map[string]string
	incrErr error
}

func newMockCounterCmdable() *mockCounterCmdable {
	return &mockCounterCmdable{data: make(map[string]string)}
}

func (m *mockCounterCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCounterCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCounterCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCounterCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrErr != nil {
		return redis.NewIntResult(0, m.incrErr)
	}
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

// RedisCounterRepoはCounterRepositoryインターフェースを満たすことを検証
func TestRedisCounterRepo_ImplementsInterface(t *testing.T) {
	var _ CounterRepository = (*RedisCounterRepo)(nil)
}

func TestRedisCounterRepo_FindByOrganization_NotFound(t *testing.T) {
	repo := newRedisCounterRepo(newMockCounterCmdable(), "")

	c, err := repo.FindByOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("エラーは返らないはず: %v", err)
	}
	if c != nil {
		t.Errorf("未作成のカウンタはnilのはず: %+v", c)
	}
}

func TestRedisCounterRepo_IncrementAndGet(t *testing.T) {
	store := newMockCounterCmdable()
	repo := newRedisCounterRepo(store, "USR")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		c, err := repo.IncrementAndGet(ctx, "org-1")
		if err != nil {
			t.Fatalf("IncrementAndGet に失敗: %v", err)
		}
		if c.LastIssued != want {
			t.Errorf("LastIssued = %d, want %d", c.LastIssued, want)
		}
		if c.Prefix != "USR" {
			t.Errorf("Prefix = %q, want %q", c.Prefix, "USR")
		}
	}

	found, err := repo.FindByOrganization(ctx, "org-1")
	if err != nil || found == nil {
		t.Fatalf("採番後はカウンタが取得できるはず: c=%v err=%v", found, err)
	}
	if found.LastIssued != 3 {
		t.Errorf("FindByOrganization の LastIssued = %d, want 3", found.LastIssued)
	}
}

func TestRedisCounterRepo_SaveKeepsCustomPrefix(t *testing.T) {
	store := newMockCounterCmdable()
	repo := newRedisCounterRepo(store, "USR")
	ctx := context.Background()

	if err := repo.Save(ctx, &model.CodeCounter{OrganizationID: "org-2", LastIssued: 10, Prefix: "JAS"}); err != nil {
		t.Fatalf("Save に失敗: %v", err)
	}

	c, err := repo.IncrementAndGet(ctx, "org-2")
	if err != nil {
		t.Fatalf("IncrementAndGet に失敗: %v", err)
	}
	if c.LastIssued != 11 || c.Prefix != "JAS" {
		t.Errorf("counter = %+v, want LastIssued=11 Prefix=JAS", c)
	}
}

func TestRedisCounterRepo_IncrementError(t *testing.T) {
	store := newMockCounterCmdable()
	store.incrErr = fmt.Errorf("connection reset")
	repo := newRedisCounterRepo(store, "USR")

	if _, err := repo.IncrementAndGet(context.Background(), "org-1"); err == nil {
		t.Error("INCR の失敗はエラーとして返るべき")
	}
}
