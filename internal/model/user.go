// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// Role はユーザーに付与されるロールを表す。
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleOperator   Role = "OPERATOR"
	RoleClient     Role = "CLIENT"
)

// IsValid は定義済みのロールかどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleOperator, RoleClient:
		return true
	}
	return false
}

// UserStatus はユーザーの業務上の状態を表す。
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusPending   UserStatus = "PENDING"
)

// IsValid は定義済みの状態かどうかを返す。
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusPending:
		return true
	}
	return false
}

// DocumentType は本人確認書類の種別を表す。
type DocumentType string

const (
	DocumentTypeDNI DocumentType = "DNI"
	DocumentTypeCNE DocumentType = "CNE"
	DocumentTypeRUC DocumentType = "RUC"
)

// PersonalInfo は氏名と本人確認書類の情報を表す。
// LastName は父方・母方の姓を空白区切りで保持する。
type PersonalInfo struct {
	DocumentType   DocumentType
	DocumentNumber string
	FirstName      string
	LastName       string
}

// Address は住所と組織内の街路・地区の参照を表す。
// StreetID, ZoneID は外部の組織サービスが管理する識別子。
type Address struct {
	FullAddress string
	StreetID    string
	ZoneID      string
}

// Contact は連絡先情報を表す。
type Contact struct {
	Email   string
	Phone   string
	Address Address
}

// User は組織に所属するプロビジョニング済みアカウントを表す。
//
// UserCode は採番後に変更されない。Username は空文字列から最終値へ一度だけ遷移する。
// DeletedAt が非nilのレコードは有効ユーザーを対象とする全ての検索から除外される。
type User struct {
	ID               string
	UserCode         string
	Username         string
	OrganizationID   string
	PersonalInfo     PersonalInfo
	Contact          Contact
	Roles            []Role
	Status           UserStatus
	RegistrationDate time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CreatedBy        string
	UpdatedBy        string
	DeletedAt        *time.Time
	DeletedBy        string
}

// IsDeleted は論理削除済みかどうかを返す。
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// HasRole は指定ロールを保持しているかどうかを返す。
func (u *User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// NeedsUsername は認証サービスへの登録が未完了（ユーザー名未確定）かどうかを返す。
func (u *User) NeedsUsername() bool {
	return u.Username == ""
}
