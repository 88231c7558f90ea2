package user

import (
	"context"
	"testing"
	"time"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

func TestChangeStatus_InactiveStampsDeletedAt(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, nil)

	got, err := env.svc.ChangeStatus(context.Background(), u.ID, model.UserStatusInactive, "admin-2")
	if err != nil {
		t.Fatalf("ChangeStatus がエラーを返した: %v", err)
	}
	if got.Status != model.UserStatusInactive {
		t.Errorf("Status = %s, want INACTIVE", got.Status)
	}
	if got.DeletedAt == nil {
		t.Fatal("INACTIVE への変更で DeletedAt が設定されるべき")
	}
	if got.DeletedBy != "admin-2" {
		t.Errorf("DeletedBy = %q, want admin-2", got.DeletedBy)
	}
	if !env.users.get(u.ID).IsDeleted() {
		t.Error("保存されたユーザーが論理削除状態になっていない")
	}
}

func TestChangeStatus_ActiveClearsDeletedAt(t *testing.T) {
	env := newTestEnv(t)
	deletedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u := seedUser(t, env.users, func(u *model.User) {
		u.Status = model.UserStatusInactive
		u.DeletedAt = &deletedAt
		u.DeletedBy = "admin-1"
	})

	got, err := env.svc.ChangeStatus(context.Background(), u.ID, "active", "admin-2")
	if err != nil {
		t.Fatalf("ChangeStatus がエラーを返した: %v", err)
	}
	if got.Status != model.UserStatusActive {
		t.Errorf("Status = %s, want ACTIVE", got.Status)
	}
	if got.DeletedAt != nil || got.DeletedBy != "" {
		t.Errorf("ACTIVE への変更で削除情報が解除されるべき: %v %q", got.DeletedAt, got.DeletedBy)
	}
}

func TestChangeStatus_SuspendedKeepsVisibility(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, nil)

	got, err := env.svc.ChangeStatus(context.Background(), u.ID, model.UserStatusSuspended, "admin-2")
	if err != nil {
		t.Fatalf("ChangeStatus がエラーを返した: %v", err)
	}
	if got.Status != model.UserStatusSuspended {
		t.Errorf("Status = %s, want SUSPENDED", got.Status)
	}
	if got.DeletedAt != nil {
		t.Error("SUSPENDED への変更で DeletedAt を設定してはならない")
	}
}

func TestChangeStatus_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, nil)

	_, err := env.svc.ChangeStatus(context.Background(), u.ID, "ARCHIVED", "admin-2")
	if !model.HasErrorCode(err, model.ErrCodeInvalidStatus) {
		t.Errorf("エラー = %v, want INVALID_STATUS", err)
	}
}

func TestChangeStatus_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ChangeStatus(context.Background(), "missing", model.UserStatusActive, "admin-2")
	if !model.HasErrorCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("エラー = %v, want USER_NOT_FOUND", err)
	}
}

func TestSoftDelete_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, nil)

	first, err := env.svc.SoftDelete(context.Background(), u.ID, "admin-1")
	if err != nil {
		t.Fatalf("1回目の SoftDelete がエラーを返した: %v", err)
	}

	env.svc.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }
	second, err := env.svc.SoftDelete(context.Background(), u.ID, "admin-2")
	if err != nil {
		t.Fatalf("2回目の SoftDelete がエラーを返した: %v", err)
	}

	if second.Status != model.UserStatusInactive {
		t.Errorf("Status = %s, want INACTIVE", second.Status)
	}
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Errorf("2回目で DeletedAt が変わった: %v -> %v", first.DeletedAt, second.DeletedAt)
	}
	if second.DeletedBy != "admin-1" {
		t.Errorf("DeletedBy = %q, want 最初の削除者 admin-1", second.DeletedBy)
	}
}

func TestSoftDelete_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SoftDelete(context.Background(), "missing", "admin-1")
	if !model.HasErrorCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("エラー = %v, want USER_NOT_FOUND", err)
	}
}

func TestRestore_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, nil)
	if _, err := env.svc.SoftDelete(context.Background(), u.ID, "admin-1"); err != nil {
		t.Fatalf("SoftDelete がエラーを返した: %v", err)
	}

	for i := 1; i <= 2; i++ {
		got, err := env.svc.Restore(context.Background(), u.ID, "admin-1")
		if err != nil {
			t.Fatalf("%d回目の Restore がエラーを返した: %v", i, err)
		}
		if got.Status != model.UserStatusActive {
			t.Errorf("%d回目: Status = %s, want ACTIVE", i, got.Status)
		}
		if got.DeletedAt != nil {
			t.Errorf("%d回目: DeletedAt = %v, want nil", i, got.DeletedAt)
		}
		stored := env.users.get(u.ID)
		if stored.IsDeleted() || stored.Status != model.UserStatusActive {
			t.Errorf("%d回目: 保存された状態 = %s deleted=%v", i, stored.Status, stored.IsDeleted())
		}
	}
}

func TestRestore_NotDeletedUserSucceeds(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env.users, func(u *model.User) { u.Status = model.UserStatusPending })

	got, err := env.svc.Restore(context.Background(), u.ID, "admin-1")
	if err != nil {
		t.Fatalf("Restore がエラーを返した: %v", err)
	}
	if got.Status != model.UserStatusActive {
		t.Errorf("Status = %s, want ACTIVE", got.Status)
	}
}

func TestRestore_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Restore(context.Background(), "missing", "admin-1")
	if !model.HasErrorCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("エラー = %v, want USER_NOT_FOUND", err)
	}
}

func TestHardDelete_RemovesRowRegardlessOfState(t *testing.T) {
	env := newTestEnv(t)
	live := seedUser(t, env.users, nil)
	deleted := seedUser(t, env.users, func(u *model.User) {
		now := time.Now()
		u.DeletedAt = &now
	})

	for _, id := range []string{live.ID, deleted.ID} {
		if err := env.svc.HardDelete(context.Background(), id, "admin-1"); err != nil {
			t.Fatalf("HardDelete(%s) がエラーを返した: %v", id, err)
		}
		if env.users.get(id) != nil {
			t.Errorf("HardDelete(%s) 後もユーザーが残っている", id)
		}
	}
}

func TestHardDelete_NotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.HardDelete(context.Background(), "missing", "admin-1")
	if !model.HasErrorCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("エラー = %v, want USER_NOT_FOUND", err)
	}
}
