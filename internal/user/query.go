package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// GetByID はユーザーを取得する。論理削除済みのユーザーも返す。
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findExisting(ctx, id)
}

// GetByCode は組織とユーザーコードで有効ユーザーを取得する。
func (s *Service) GetByCode(ctx context.Context, organizationID, userCode string) (*model.User, error) {
	u, err := s.users.FindByOrganizationAndCode(ctx, organizationID, strings.ToUpper(strings.TrimSpace(userCode)))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(userCode)
	}
	return u, nil
}

// ListByOrganizationAndStatus は組織内の指定状態の有効ユーザーを返す。
func (s *Service) ListByOrganizationAndStatus(ctx context.Context, organizationID string, status model.UserStatus) ([]*model.User, error) {
	if organizationID == "" {
		return nil, model.NewValidationError("organizationId は必須です")
	}
	if !status.IsValid() {
		return nil, model.NewInvalidStatusError(string(status))
	}

	users, err := s.users.ListByOrganizationAndStatus(ctx, organizationID, status)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// IsEmailAvailable はメールアドレスが有効ユーザーに未使用かどうかを返す。
func (s *Service) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return false, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	}
	return !exists, nil
}

// CountSuperAdmins はSUPER_ADMINロールを持つ有効ユーザー数を返す。
func (s *Service) CountSuperAdmins(ctx context.Context) (int, error) {
	count, err := s.users.CountByRole(ctx, model.RoleSuperAdmin)
	if err != nil {
		return 0, fmt.Errorf("SUPER_ADMIN数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Update はユーザーの連絡先とロールを部分更新する。
// メールアドレスを変更する場合は他の有効ユーザーとの重複を確認する。
func (s *Service) Update(ctx context.Context, id string, req UpdateUserRequest) (*model.User, error) {
	req = s.normalizeUpdate(req)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	u, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsDeleted() {
		return nil, model.NewUserNotFoundError(id)
	}

	if req.Email != nil && *req.Email != "" && !strings.EqualFold(*req.Email, u.Contact.Email) {
		exists, err := s.users.ExistsByEmail(ctx, *req.Email)
		if err != nil {
			return nil, fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
		}
		if exists {
			return nil, model.NewDuplicateEmailError(*req.Email)
		}
	}

	if req.Email != nil {
		u.Contact.Email = *req.Email
	}
	if req.Phone != nil {
		u.Contact.Phone = *req.Phone
	}
	if req.Address != nil {
		u.Contact.Address.FullAddress = *req.Address
	}
	if req.StreetID != nil {
		u.Contact.Address.StreetID = *req.StreetID
	}
	if req.ZoneID != nil {
		u.Contact.Address.ZoneID = *req.ZoneID
	}
	if req.Roles != nil {
		u.Roles = uniqueRoles(req.Roles)
	}
	u.UpdatedBy = req.Actor

	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを更新しました",
		slog.String("user_id", u.ID),
		slog.String("actor", req.Actor),
	)
	return u, nil
}

func (s *Service) normalizeUpdate(req UpdateUserRequest) UpdateUserRequest {
	trim := func(p *string, f func(string) string) *string {
		if p == nil {
			return nil
		}
		v := f(*p)
		return &v
	}
	req.Email = trim(req.Email, func(v string) string { return strings.ToLower(strings.TrimSpace(v)) })
	req.Phone = trim(req.Phone, strings.TrimSpace)
	req.Address = trim(req.Address, s.sanitizer.Sanitize)
	req.StreetID = trim(req.StreetID, strings.TrimSpace)
	req.ZoneID = trim(req.ZoneID, strings.TrimSpace)
	return req
}
