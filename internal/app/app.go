// Package app はコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/config"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/database"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/handler"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/logger"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/middleware"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/security"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/user"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/worker/reconcile"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, "info")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, cfg.LogLevel), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("counter_store", cfg.CounterStore),
		slog.String("password_mode", cfg.AuthPasswordMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandReconcile:
		return runReconcile(ctx, w, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			log.Error("failed to release resources", slog.String("error", cerr.Error()))
		}
	}()

	userService := user.NewService(
		c.users,
		c.codes,
		c.auth,
		security.NewTextSanitizer(),
		c.collector,
		log,
		user.PasswordMode(cfg.AuthPasswordMode),
	)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitProvisioning),
		log,
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     c.db,
		Gatherer:          c.registry,
		UserService:       userService,
		CodeService:       c.codes,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 認証サービスの再試行を含むユーザー作成が完了するまで待つ
		WriteTimeout: cfg.AuthTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runReconcile はユーザー名未確定ユーザーの再登録を実行する。
// RECONCILE_INTERVALが正の場合はシグナルを受信するまで定期実行する。
// 認証サービスが払い出した一時パスワードはログではなくwに1行1件のJSONで書き出す。
func runReconcile(ctx context.Context, w io.Writer, cfg *config.Config, log *slog.Logger) error {
	if w == nil {
		w = os.Stdout
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			log.Error("failed to release resources", slog.String("error", cerr.Error()))
		}
	}()

	job := reconcile.NewJob(c.users, c.auth, c.collector, log, reconcile.Config{
		BatchSize:        cfg.ReconcileBatchSize,
		Concurrency:      cfg.ReconcileConcurrency,
		MinAge:           cfg.ReconcileMinAge,
		CredentialOutput: w,
	})

	if cfg.ReconcileInterval > 0 {
		job.Start(ctx, cfg.ReconcileInterval)
		return nil
	}

	summary, err := job.RunOnce(ctx)
	log.Info("reconcile finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("registered", summary.Registered),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
	if werr := reconcile.WriteCredentials(w, summary.Credentials); werr != nil {
		err = multierr.Append(err, werr)
	}
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
