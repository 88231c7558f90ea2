package user

import (
	"context"
	"log/slog"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// bootstrapActor は初期ユーザー作成時にcreatedByへ記録する値。
const bootstrapActor = "system:setup"

// CreateFirstUser はSUPER_ADMINが1人も存在しない場合に限り、最初のSUPER_ADMINを作成する。
// ロールは指定値にかかわらずSUPER_ADMINのみとし、作成処理はCreateと同じ手順で行う。
// 既にSUPER_ADMINが存在する場合はAlreadyInitializedエラーを返す。
//
// 同一プロセス内の同時呼び出しは直列化する。
func (s *Service) CreateFirstUser(ctx context.Context, req CreateUserRequest) (*ProvisioningResult, error) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()

	count, err := s.CountSuperAdmins(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.logger.Warn("SUPER_ADMINが既に存在するため初期ユーザーを作成しませんでした",
			slog.Int("super_admins", count),
		)
		return nil, model.NewAlreadyInitializedError()
	}

	req.Roles = []model.Role{model.RoleSuperAdmin}
	if req.Actor == "" {
		req.Actor = bootstrapActor
	}

	result, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("初期SUPER_ADMINを作成しました",
		slog.String("user_id", result.User.ID),
		slog.String("user_code", result.User.UserCode),
		slog.Bool("remote_succeeded", result.RemoteSucceeded),
	)
	return result, nil
}
