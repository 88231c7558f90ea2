package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
)

// ChangeStatus はユーザーの状態を変更する。
//
// INACTIVEへの変更は論理削除を兼ね、deletedAtを設定する。
// ACTIVEへの変更はdeletedAtを解除する。SUSPENDEDとPENDINGは状態のみ変更する。
func (s *Service) ChangeStatus(ctx context.Context, id string, status model.UserStatus, actor string) (*model.User, error) {
	status = model.UserStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.IsValid() {
		return nil, model.NewInvalidStatusError(string(status))
	}

	u, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := u.Status
	switch status {
	case model.UserStatusInactive:
		s.markDeleted(u, actor)
	case model.UserStatusActive:
		u.DeletedAt = nil
		u.DeletedBy = ""
	}
	u.Status = status
	u.UpdatedBy = actor

	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザー状態の保存に失敗しました: %w", err)
	}

	s.logger.Info("ユーザー状態を変更しました",
		slog.String("user_id", u.ID),
		slog.String("from", string(previous)),
		slog.String("to", string(status)),
		slog.String("actor", actor),
	)
	return u, nil
}

// SoftDelete はユーザーを論理削除する。既に削除済みの場合も成功し、削除日時は変更しない。
func (s *Service) SoftDelete(ctx context.Context, id, actor string) (*model.User, error) {
	u, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	s.markDeleted(u, actor)
	u.Status = model.UserStatusInactive
	u.UpdatedBy = actor

	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの論理削除に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを論理削除しました",
		slog.String("user_id", u.ID),
		slog.String("actor", actor),
	)
	return u, nil
}

// Restore は論理削除を解除してACTIVEに戻す。
// 削除されていないユーザーに対しても成功する。
func (s *Service) Restore(ctx context.Context, id, actor string) (*model.User, error) {
	u, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	u.DeletedAt = nil
	u.DeletedBy = ""
	u.Status = model.UserStatusActive
	u.UpdatedBy = actor

	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの復元に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを復元しました",
		slog.String("user_id", u.ID),
		slog.String("actor", actor),
	)
	return u, nil
}

// HardDelete はユーザーを物理削除する。論理削除の有無は問わず、取り消せない。
// 採番済みのユーザーコードはカウンタを戻さないため再利用されない。
func (s *Service) HardDelete(ctx context.Context, id, actor string) error {
	if err := s.users.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(id)
		}
		return fmt.Errorf("ユーザーの物理削除に失敗しました: %w", err)
	}

	s.logger.Warn("ユーザーを物理削除しました",
		slog.String("user_id", id),
		slog.String("actor", actor),
	)
	return nil
}

// findExisting は論理削除済みも含めてユーザーを取得する。存在しない場合はUserNotFoundErrorを返す。
func (s *Service) findExisting(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return u, nil
}

// markDeleted は削除日時が未設定の場合に限り現在時刻と操作者を記録する。
func (s *Service) markDeleted(u *model.User, actor string) {
	if u.DeletedAt != nil {
		return
	}
	now := s.now()
	u.DeletedAt = &now
	u.DeletedBy = actor
}
