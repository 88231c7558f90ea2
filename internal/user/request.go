package user

import "github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"

// SentinelCredential は認証サービスへの登録に失敗した場合に一時パスワードの代わりに返す値。
const SentinelCredential = "ERROR_MS_AUTH"

// CreateUserRequest はユーザー作成の入力。
type CreateUserRequest struct {
	OrganizationID string             `json:"organizationId" validate:"required,max=64"`
	DocumentType   model.DocumentType `json:"documentType" validate:"required,oneof=DNI CNE RUC"`
	DocumentNumber string             `json:"documentNumber" validate:"required,alphanum,min=8,max=12"`
	FirstName      string             `json:"firstName" validate:"required,min=2,max=50"`
	LastName       string             `json:"lastName" validate:"required,min=2,max=50"`
	Email          string             `json:"email" validate:"omitempty,email,max=254"`
	Phone          string             `json:"phone" validate:"omitempty,numeric,min=9,max=15"`
	Address        string             `json:"address" validate:"max=200"`
	StreetID       string             `json:"streetId" validate:"max=64"`
	ZoneID         string             `json:"zoneId" validate:"max=64"`
	Roles          []model.Role       `json:"roles" validate:"required,min=1,dive,oneof=SUPER_ADMIN ADMIN OPERATOR CLIENT"`

	// Actor は操作者のユーザーID。createdBy/updatedByに記録する。
	Actor string `json:"-"`
}

// UpdateUserRequest はユーザーの部分更新の入力。nilのフィールドは変更しない。
// ユーザーコードとユーザー名は更新対象に含めない。
type UpdateUserRequest struct {
	Email    *string      `json:"email" validate:"omitnil,omitempty,email,max=254"`
	Phone    *string      `json:"phone" validate:"omitnil,omitempty,numeric,min=9,max=15"`
	Address  *string      `json:"address" validate:"omitnil,max=200"`
	StreetID *string      `json:"streetId" validate:"omitnil,max=64"`
	ZoneID   *string      `json:"zoneId" validate:"omitnil,max=64"`
	Roles    []model.Role `json:"roles" validate:"omitnil,min=1,dive,oneof=SUPER_ADMIN ADMIN OPERATOR CLIENT"`

	Actor string `json:"-"`
}

// ProvisioningResult はユーザー作成の結果。永続化しない。
//
// RemoteSucceeded がfalseの場合、ユーザーは作成済みだがユーザー名は未確定で、
// TemporaryPassword には SentinelCredential が入る。
// RequiresFollowUp がtrueの場合、呼び出し元は作成を再試行せず運用者の対応を待つ。
type ProvisioningResult struct {
	User              *model.User
	RequestedUsername string
	Username          string
	TemporaryPassword string
	RemoteSucceeded   bool
	RequiresFollowUp  bool
	Message           string
}
