package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// PostgresCounterRepo はPostgreSQLを使用したユーザーコード採番カウンタのリポジトリ。
// 採番は INSERT ... ON CONFLICT DO UPDATE ... RETURNING の1文で行い、
// 同一組織への同時採番は行ロックで直列化される。
type PostgresCounterRepo struct {
	db            *sql.DB
	defaultPrefix string
}

// NewPostgresCounterRepo はPostgresCounterRepoを生成する。
// defaultPrefixはカウンタを新規作成する際のプレフィックス。空の場合は "USR"。
func NewPostgresCounterRepo(db *sql.DB, defaultPrefix string) *PostgresCounterRepo {
	if defaultPrefix == "" {
		defaultPrefix = model.DefaultCodePrefix
	}
	return &PostgresCounterRepo{db: db, defaultPrefix: defaultPrefix}
}

// FindByOrganization は組織のカウンタを取得する。見つからない場合はnilを返す。
func (r *PostgresCounterRepo) FindByOrganization(ctx context.Context, organizationID string) (*model.CodeCounter, error) {
	c := &model.CodeCounter{}
	err := r.db.QueryRowContext(ctx,
		`SELECT organization_id, last_issued, prefix, created_at, updated_at
		 FROM user_code_counters WHERE organization_id = $1`,
		organizationID,
	).Scan(&c.OrganizationID, &c.LastIssued, &c.Prefix, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find code counter: %w", err)
	}
	return c, nil
}

// IncrementAndGet はカウンタを原子的に1増やし、更新後のカウンタを返す。
func (r *PostgresCounterRepo) IncrementAndGet(ctx context.Context, organizationID string) (*model.CodeCounter, error) {
	c := &model.CodeCounter{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_code_counters (organization_id, last_issued, prefix, created_at, updated_at)
		 VALUES ($1, 1, $2, now(), now())
		 ON CONFLICT (organization_id) DO UPDATE
			SET last_issued = user_code_counters.last_issued + 1,
				updated_at = now()
		 RETURNING organization_id, last_issued, prefix, created_at, updated_at`,
		organizationID, r.defaultPrefix,
	).Scan(&c.OrganizationID, &c.LastIssued, &c.Prefix, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapPQError("failed to increment code counter", err)
	}
	return c, nil
}

// Save はカウンタを挿入または上書きする。
func (r *PostgresCounterRepo) Save(ctx context.Context, counter *model.CodeCounter) error {
	now := time.Now()
	if counter.Prefix == "" {
		counter.Prefix = r.defaultPrefix
	}
	if counter.CreatedAt.IsZero() {
		counter.CreatedAt = now
	}
	counter.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_code_counters (organization_id, last_issued, prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (organization_id) DO UPDATE
			SET last_issued = EXCLUDED.last_issued,
				prefix = EXCLUDED.prefix,
				updated_at = EXCLUDED.updated_at`,
		counter.OrganizationID, counter.LastIssued, counter.Prefix, counter.CreatedAt, counter.UpdatedAt,
	)
	if err != nil {
		return wrapPQError("failed to save code counter", err)
	}
	return nil
}

// compile-time interface check
var _ CounterRepository = (*PostgresCounterRepo)(nil)
