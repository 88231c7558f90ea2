package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// userColumns はusersテーブルのSELECT列。scanUserの順序と一致させる。
const userColumns = `id, user_code, username, organization_id,
	document_type, document_number, first_name, last_name,
	email, phone, full_address, street_id, zone_id,
	roles, status, registration_date,
	created_at, updated_at, created_by, updated_by, deleted_at, deleted_by`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	u := &model.User{}
	var (
		docType   string
		status    string
		roles     []string
		deletedAt sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.UserCode, &u.Username, &u.OrganizationID,
		&docType, &u.PersonalInfo.DocumentNumber, &u.PersonalInfo.FirstName, &u.PersonalInfo.LastName,
		&u.Contact.Email, &u.Contact.Phone, &u.Contact.Address.FullAddress, &u.Contact.Address.StreetID, &u.Contact.Address.ZoneID,
		pq.Array(&roles), &status, &u.RegistrationDate,
		&u.CreatedAt, &u.UpdatedAt, &u.CreatedBy, &u.UpdatedBy, &deletedAt, &u.DeletedBy,
	)
	if err != nil {
		return nil, err
	}

	u.PersonalInfo.DocumentType = model.DocumentType(docType)
	u.Status = model.UserStatus(status)
	u.Roles = make([]model.Role, len(roles))
	for i, r := range roles {
		u.Roles[i] = model.Role(r)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresUserRepo) findMany(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// FindByID は指定IDのユーザーを論理削除済みも含めて取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// UUID形式でないIDはキャストエラーではなく未検出として扱う
		return nil, nil
	}
	u, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// FindByOrganizationAndCode は組織とユーザーコードで有効ユーザーを取得する。
func (r *PostgresUserRepo) FindByOrganizationAndCode(ctx context.Context, organizationID, userCode string) (*model.User, error) {
	u, err := r.findOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE organization_id = $1 AND user_code = $2 AND deleted_at IS NULL`,
		organizationID, userCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by code: %w", err)
	}
	return u, nil
}

// FindByEmail はメールアドレスで有効ユーザーを取得する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.findOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) = lower($1) AND email <> '' AND deleted_at IS NULL
		 LIMIT 1`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

// ExistsByDocumentNumber は文書番号を持つ有効ユーザーが存在するかを返す。
func (r *PostgresUserRepo) ExistsByDocumentNumber(ctx context.Context, documentNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE document_number = $1 AND deleted_at IS NULL)`,
		documentNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document number: %w", err)
	}
	return exists, nil
}

// ExistsByEmail はメールアドレスを持つ有効ユーザーが存在するかを返す。
func (r *PostgresUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND email <> '' AND deleted_at IS NULL)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// Save はユーザーを挿入または更新する。
// IDが空の場合は新規IDを採番し、CreatedAtが未設定の場合は現在時刻を設定する。
// 既存行のユーザー名は上書きせず、保存後の値をuser.Usernameに反映する。
// ユーザー名を変更できるのはUpdateUsernameのみ。
func (r *PostgresUserRepo) Save(ctx context.Context, user *model.User) error {
	now := time.Now()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.RegistrationDate.IsZero() {
		user.RegistrationDate = now
	}
	user.UpdatedAt = now

	roles := make([]string, len(user.Roles))
	for i, role := range user.Roles {
		roles[i] = string(role)
	}

	var deletedAt sql.NullTime
	if user.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *user.DeletedAt, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 ON CONFLICT (id) DO UPDATE SET
			document_type = EXCLUDED.document_type,
			document_number = EXCLUDED.document_number,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			full_address = EXCLUDED.full_address,
			street_id = EXCLUDED.street_id,
			zone_id = EXCLUDED.zone_id,
			roles = EXCLUDED.roles,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by,
			deleted_at = EXCLUDED.deleted_at,
			deleted_by = EXCLUDED.deleted_by
		 RETURNING username`,
		user.ID, user.UserCode, user.Username, user.OrganizationID,
		string(user.PersonalInfo.DocumentType), user.PersonalInfo.DocumentNumber, user.PersonalInfo.FirstName, user.PersonalInfo.LastName,
		user.Contact.Email, user.Contact.Phone, user.Contact.Address.FullAddress, user.Contact.Address.StreetID, user.Contact.Address.ZoneID,
		pq.Array(roles), string(user.Status), user.RegistrationDate,
		user.CreatedAt, user.UpdatedAt, user.CreatedBy, user.UpdatedBy, deletedAt, user.DeletedBy,
	).Scan(&user.Username)
	if err != nil {
		return wrapPQError("failed to save user", err)
	}
	return nil
}

// UpdateUsername はユーザー名が空の場合に限り設定する。
func (r *PostgresUserRepo) UpdateUsername(ctx context.Context, id, username string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = $2, updated_at = now()
		 WHERE id = $1 AND username = ''`,
		id, username,
	)
	if err != nil {
		return false, wrapPQError("failed to update username", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID は指定IDのユーザーを物理削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListByOrganizationAndStatus は組織内の指定状態の有効ユーザーをユーザーコード順に返す。
func (r *PostgresUserRepo) ListByOrganizationAndStatus(ctx context.Context, organizationID string, status model.UserStatus) ([]*model.User, error) {
	users, err := r.findMany(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE organization_id = $1 AND status = $2 AND deleted_at IS NULL
		 ORDER BY user_code`,
		organizationID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by status: %w", err)
	}
	return users, nil
}

// ListPendingUsername はユーザー名未確定の有効ユーザーをID順に返す。
func (r *PostgresUserRepo) ListPendingUsername(ctx context.Context, afterID string, limit int) ([]*model.User, error) {
	if afterID == "" {
		afterID = uuid.Nil.String()
	}
	users, err := r.findMany(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username = '' AND deleted_at IS NULL AND id > $1
		 ORDER BY id
		 LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users pending username: %w", err)
	}
	return users, nil
}

// CountByRole は指定ロールを持つ有効ユーザー数を返す。
func (r *PostgresUserRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE $1 = ANY(roles) AND deleted_at IS NULL`,
		string(role),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
