package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

const redisCounterNamespace = "usercode"

// counterCmdable はRedisCounterRepoが使用するコマンドの部分集合。
// テストではモックに差し替える。
type counterCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisCounterRepo はRedisを使用したユーザーコード採番カウンタのリポジトリ。
// 採番はINCRで行うため、同一組織への同時採番でも同じ値が返ることはない。
// 再起動後も採番を継続するにはRedis側でAOFなどの永続化を有効にしておく必要がある。
type RedisCounterRepo struct {
	store         counterCmdable
	defaultPrefix string
}

// NewRedisCounterRepo はRedisCounterRepoを生成する。
func NewRedisCounterRepo(client *redis.Client, defaultPrefix string) *RedisCounterRepo {
	return newRedisCounterRepo(client, defaultPrefix)
}

func newRedisCounterRepo(store counterCmdable, defaultPrefix string) *RedisCounterRepo {
	if defaultPrefix == "" {
		defaultPrefix = model.DefaultCodePrefix
	}
	return &RedisCounterRepo{store: store, defaultPrefix: defaultPrefix}
}

// NewRedisClient はURLからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func lastIssuedKey(organizationID string) string {
	return fmt.Sprintf("%s:%s:last_issued", redisCounterNamespace, organizationID)
}

func prefixKey(organizationID string) string {
	return fmt.Sprintf("%s:%s:prefix", redisCounterNamespace, organizationID)
}

// FindByOrganization は組織のカウンタを取得する。見つからない場合はnilを返す。
func (r *RedisCounterRepo) FindByOrganization(ctx context.Context, organizationID string) (*model.CodeCounter, error) {
	raw, err := r.store.Get(ctx, lastIssuedKey(organizationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code counter: %w", err)
	}

	lastIssued, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid code counter value %q: %w", raw, err)
	}

	prefix, err := r.prefix(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	return &model.CodeCounter{
		OrganizationID: organizationID,
		LastIssued:     lastIssued,
		Prefix:         prefix,
	}, nil
}

// IncrementAndGet はINCRでカウンタを原子的に1増やし、更新後のカウンタを返す。
func (r *RedisCounterRepo) IncrementAndGet(ctx context.Context, organizationID string) (*model.CodeCounter, error) {
	if err := r.store.SetNX(ctx, prefixKey(organizationID), r.defaultPrefix, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to initialize code prefix: %w", err)
	}

	lastIssued, err := r.store.Incr(ctx, lastIssuedKey(organizationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment code counter: %w", err)
	}

	prefix, err := r.prefix(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	return &model.CodeCounter{
		OrganizationID: organizationID,
		LastIssued:     lastIssued,
		Prefix:         prefix,
		UpdatedAt:      time.Now(),
	}, nil
}

// Save はカウンタを上書きする。
func (r *RedisCounterRepo) Save(ctx context.Context, counter *model.CodeCounter) error {
	if counter.Prefix == "" {
		counter.Prefix = r.defaultPrefix
	}
	if err := r.store.Set(ctx, prefixKey(counter.OrganizationID), counter.Prefix, 0).Err(); err != nil {
		return fmt.Errorf("failed to save code prefix: %w", err)
	}
	if err := r.store.Set(ctx, lastIssuedKey(counter.OrganizationID), counter.LastIssued, 0).Err(); err != nil {
		return fmt.Errorf("failed to save code counter: %w", err)
	}
	counter.UpdatedAt = time.Now()
	return nil
}

func (r *RedisCounterRepo) prefix(ctx context.Context, organizationID string) (string, error) {
	prefix, err := r.store.Get(ctx, prefixKey(organizationID)).Result()
	if errors.Is(err, redis.Nil) {
		return r.defaultPrefix, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get code prefix: %w", err)
	}
	return prefix, nil
}

// compile-time interface check
var _ CounterRepository = (*RedisCounterRepo)(nil)
