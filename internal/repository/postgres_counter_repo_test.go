package repository

import (
	"context"
	"sync"
	"testing"
)

// PostgresCounterRepoはCounterRepositoryインターフェースを満たすことを検証
func TestPostgresCounterRepo_ImplementsInterface(t *testing.T) {
	var _ CounterRepository = (*PostgresCounterRepo)(nil)
}

// プレフィックス未指定時に既定値 "USR" が使われることを検証
func TestNewPostgresCounterRepo_DefaultPrefix(t *testing.T) {
	repo := NewPostgresCounterRepo(nil, "")
	if repo.defaultPrefix != "USR" {
		t.Errorf("defaultPrefix = %q, want %q", repo.defaultPrefix, "USR")
	}
}

func TestPostgresCounterRepo_IncrementAndGet_CreatesLazily(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresCounterRepo(db, "USR")
	ctx := context.Background()

	before, err := repo.FindByOrganization(ctx, "org-lazy")
	if err != nil {
		t.Fatalf("FindByOrganization に失敗: %v", err)
	}
	if before != nil {
		t.Fatalf("採番前はカウンタが存在しないはず: %+v", before)
	}

	c, err := repo.IncrementAndGet(ctx, "org-lazy")
	if err != nil {
		t.Fatalf("IncrementAndGet に失敗: %v", err)
	}
	if c.LastIssued != 1 || c.Prefix != "USR" {
		t.Errorf("counter = %+v, want LastIssued=1 Prefix=USR", c)
	}
}

// 同一組織への同時採番で値が重複せず、1..Nが過不足なく払い出されることを検証
func TestPostgresCounterRepo_IncrementAndGet_Concurrent(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresCounterRepo(db, "USR")
	ctx := context.Background()

	const n = 50
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := repo.IncrementAndGet(ctx, "org-concurrent")
			if err != nil {
				t.Errorf("IncrementAndGet に失敗: %v", err)
				return
			}
			results <- c.LastIssued
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for v := range results {
		if seen[v] {
			t.Errorf("値 %d が重複して払い出された", v)
		}
		seen[v] = true
	}
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Errorf("値 %d が払い出されていない", i)
		}
	}
}

func TestPostgresCounterRepo_SaveResets(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresCounterRepo(db, "USR")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.IncrementAndGet(ctx, "org-reset"); err != nil {
			t.Fatalf("IncrementAndGet に失敗: %v", err)
		}
	}

	c, _ := repo.FindByOrganization(ctx, "org-reset")
	c.LastIssued = 0
	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save に失敗: %v", err)
	}

	next, err := repo.IncrementAndGet(ctx, "org-reset")
	if err != nil {
		t.Fatalf("IncrementAndGet に失敗: %v", err)
	}
	if next.LastIssued != 1 {
		t.Errorf("リセット後の採番 = %d, want 1", next.LastIssued)
	}
}
