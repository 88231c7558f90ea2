package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/authclient"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/config"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/database"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/usercode"
)

// components はserveとreconcileで共有する依存関係。
type components struct {
	db        *sql.DB
	registry  *prometheus.Registry
	collector *metrics.Collector
	users     *repository.PostgresUserRepo
	codes     *usercode.Allocator
	auth      *authclient.Client
	closers   []func() error
}

// buildComponents はDB接続、採番カウンタ、認証サービスクライアントを初期化する。
// 失敗した場合は初期化済みのリソースを解放してから返す。
func buildComponents(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
		}
	}()

	// 1. DB接続
	c.db, err = database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.closers = append(c.closers, c.db.Close)

	if err = c.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.collector = metrics.NewCollector(c.registry)

	// 3. リポジトリと採番
	c.users = repository.NewPostgresUserRepo(c.db)
	counters, err := c.newCounterRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.codes = usercode.NewAllocator(counters, c.collector, log, cfg.UserCodePrefix)

	// 4. 認証サービスクライアント
	c.auth = authclient.NewClient(
		&http.Client{Timeout: cfg.AuthTimeout},
		log,
		c.collector,
		authclient.Config{
			BaseURL:       cfg.AuthServiceURL,
			Timeout:       cfg.AuthTimeout,
			HealthTimeout: cfg.AuthHealthTimeout,
			Retry: authclient.RetryPolicy{
				MaxAttempts: cfg.AuthMaxAttempts,
				BaseDelay:   cfg.AuthBackoffBase,
				MaxDelay:    cfg.AuthBackoffMax,
			},
			RatePerSecond: cfg.AuthRateLimit,
		},
	)

	return c, nil
}

// newCounterRepository はCOUNTER_STOREに応じた採番カウンタのリポジトリを生成する。
func (c *components) newCounterRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.CounterRepository, error) {
	switch cfg.CounterStore {
	case config.CounterStoreRedis:
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		log.Info("user code counter store selected", slog.String("store", config.CounterStoreRedis))
		return repository.NewRedisCounterRepo(client, cfg.UserCodePrefix), nil
	default:
		log.Info("user code counter store selected", slog.String("store", config.CounterStorePostgres))
		return repository.NewPostgresCounterRepo(c.db, cfg.UserCodePrefix), nil
	}
}

// Close は保持しているリソースを生成と逆順に解放する。
func (c *components) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i]())
	}
	c.closers = nil
	return err
}
