// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しない場合に返される。
	ErrNotFound = errors.New("record not found")

	// ErrConflict は一意制約違反やシリアライゼーション失敗など、
	// ストアが同時更新の競合を報告した場合に返される。
	ErrConflict = errors.New("write conflict")
)

// UserRepository はユーザーデータの永続化インターフェース。
// 「有効」とは deleted_at が NULL のレコードを指す。
type UserRepository interface {
	// FindByID は指定IDのユーザーを論理削除済みも含めて取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByOrganizationAndCode は組織とユーザーコードで有効ユーザーを取得する。見つからない場合はnilを返す。
	FindByOrganizationAndCode(ctx context.Context, organizationID, userCode string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）で有効ユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ExistsByDocumentNumber は文書番号を持つ有効ユーザーが存在するかを返す。
	ExistsByDocumentNumber(ctx context.Context, documentNumber string) (bool, error)

	// ExistsByEmail はメールアドレスを持つ有効ユーザーが存在するかを返す。
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Save はユーザーを挿入または更新する。IDが空の場合は新規IDを採番する。
	// organization_id と user_code は更新しない。
	Save(ctx context.Context, user *model.User) error

	// UpdateUsername はユーザー名が空の場合に限り設定する。
	// 既に設定済みで更新しなかった場合はfalseを返す。
	UpdateUsername(ctx context.Context, id, username string) (bool, error)

	// DeleteByID は指定IDのユーザーを物理削除する。存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error

	// ListByOrganizationAndStatus は組織内の指定状態の有効ユーザーをユーザーコード順に返す。
	ListByOrganizationAndStatus(ctx context.Context, organizationID string, status model.UserStatus) ([]*model.User, error)

	// ListPendingUsername はユーザー名未確定の有効ユーザーをID順に最大limit件返す。
	// afterIDより大きいIDのみを対象とし、キーセットページングに使う。
	ListPendingUsername(ctx context.Context, afterID string, limit int) ([]*model.User, error)

	// CountByRole は指定ロールを持つ有効ユーザー数を返す。
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

// CounterRepository はユーザーコード採番カウンタの永続化インターフェース。
type CounterRepository interface {
	// FindByOrganization は組織のカウンタを取得する。見つからない場合はnilを返す。
	FindByOrganization(ctx context.Context, organizationID string) (*model.CodeCounter, error)

	// IncrementAndGet はカウンタを原子的に1増やし、更新後のカウンタを返す。
	// カウンタが無い場合は last_issued=0 として作成してから増やす。
	IncrementAndGet(ctx context.Context, organizationID string) (*model.CodeCounter, error)

	// Save はカウンタを挿入または上書きする。
	Save(ctx context.Context, counter *model.CodeCounter) error
}
