// Package reconcile は認証サービスへの登録が未完了のユーザーを再登録する処理を提供する。
//
// ユーザー作成時に認証サービスへの登録に失敗したユーザーはユーザー名が空のまま残る。
// Job はそれらをID順にページングし、並列数を制限しながら再登録して
// ユーザー名が空の場合に限り反映する。
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/authclient"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/username"
)

// 再登録結果のラベル値
const (
	ResultRegistered = "registered"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

// Registrar は認証サービスへの再登録インターフェース。
type Registrar interface {
	IsAvailable(ctx context.Context) bool
	RegisterWithGeneratedCredential(ctx context.Context, profile authclient.Profile) (*authclient.Registration, error)
}

// Config は再登録処理の設定。
type Config struct {
	// BatchSize は1ページあたりの取得件数（デフォルト: 50）。
	BatchSize int
	// Concurrency は同時に再登録するユーザー数の上限（デフォルト: 4）。
	Concurrency int
	// MinAge は対象とするユーザーの作成からの最小経過時間（デフォルト: 5分）。
	// 作成処理が登録中のユーザーを二重に登録しないために使う。
	MinAge time.Duration
	// CredentialOutput は定期実行時に払い出された資格情報の書き出し先。nilの場合は書き出さない。
	CredentialOutput io.Writer
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		Concurrency: 4,
		MinAge:      5 * time.Minute,
	}
}

// IssuedCredential は再登録で認証サービスが払い出した一時的な資格情報。
// 認証サービスは一時パスワードを一度しか返さないため、運用者に引き渡す必要がある。
type IssuedCredential struct {
	UserID            string `json:"userId"`
	UserCode          string `json:"userCode"`
	OrganizationID    string `json:"organizationId"`
	Username          string `json:"username"`
	TemporaryPassword string `json:"temporaryPassword"`
}

// Summary は1回の再登録処理の集計。
type Summary struct {
	Scanned    int
	Registered int
	Skipped    int
	Failed     int
	// Credentials は再登録に成功したユーザーの資格情報。順序は不定。
	Credentials []IssuedCredential
}

// WriteCredentials は資格情報を1行1件のJSONとしてwに書き出す。
func WriteCredentials(w io.Writer, credentials []IssuedCredential) error {
	enc := json.NewEncoder(w)
	for _, c := range credentials {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to write issued credential: %w", err)
		}
	}
	return nil
}

// Job はユーザー名未確定ユーザーの再登録処理。
type Job struct {
	users   repository.UserRepository
	auth    Registrar
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	config  Config
	now     func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
// BatchSizeまたはConcurrencyが0以下の場合はデフォルト値を使用する。
func NewJob(
	users repository.UserRepository,
	auth Registrar,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Job {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MinAge < 0 {
		config.MinAge = 0
	}
	return &Job{
		users:   users,
		auth:    auth,
		metrics: collector,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Start は指定間隔で再登録処理を定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("再登録ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", j.config.BatchSize),
		slog.Int("concurrency", j.config.Concurrency),
	)

	// 起動直後に1回実行
	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("再登録ジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	summary, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("再登録処理の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	if j.config.CredentialOutput == nil || len(summary.Credentials) == 0 {
		return
	}
	if err := WriteCredentials(j.config.CredentialOutput, summary.Credentials); err != nil {
		j.logger.Error("資格情報の書き出しに失敗しました",
			slog.Int("count", len(summary.Credentials)),
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はユーザー名未確定の全ユーザーを1回走査して再登録する。
// 認証サービスに接続できない場合は何も変更せずに終了する。
// 個々のユーザーの失敗はまとめて返し、残りのユーザーの処理は継続する。
func (j *Job) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	if !j.auth.IsAvailable(ctx) {
		j.logger.Warn("認証サービスに接続できないため再登録処理をスキップします")
		return summary, nil
	}

	var (
		mu   sync.Mutex
		errs error
	)
	record := func(result string, cred *IssuedCredential, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch result {
		case ResultRegistered:
			summary.Registered++
			if cred != nil {
				summary.Credentials = append(summary.Credentials, *cred)
			}
		case ResultSkipped:
			summary.Skipped++
		case ResultFailed:
			summary.Failed++
			errs = multierr.Append(errs, err)
		}
		j.metrics.RecordReconciled(result)
	}

	cutoff := j.now().Add(-j.config.MinAge)
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}

		users, err := j.users.ListPendingUsername(ctx, afterID, j.config.BatchSize)
		if err != nil {
			return summary, multierr.Append(errs, fmt.Errorf("再登録対象ユーザーの取得に失敗しました: %w", err))
		}
		if len(users) == 0 {
			break
		}
		afterID = users[len(users)-1].ID
		summary.Scanned += len(users)

		// semaphoreパターンで並列数を制御
		sem := make(chan struct{}, j.config.Concurrency)
		var wg sync.WaitGroup
		for _, u := range users {
			if u.CreatedAt.After(cutoff) {
				record(ResultSkipped, nil, nil)
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(u *model.User) {
				defer wg.Done()
				defer func() { <-sem }()
				record(j.reconcileUser(ctx, u))
			}(u)
		}
		wg.Wait()

		if len(users) < j.config.BatchSize {
			break
		}
	}

	j.logger.Info("再登録処理が完了しました",
		slog.Int("scanned", summary.Scanned),
		slog.Int("registered", summary.Registered),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return summary, errs
}

// reconcileUser は1ユーザーを認証サービスに登録し、ユーザー名を反映する。
// 反映できた場合は払い出された資格情報を返す。
func (j *Job) reconcileUser(ctx context.Context, u *model.User) (string, *IssuedCredential, error) {
	requested := username.FromFullName(u.PersonalInfo.FirstName, u.PersonalInfo.LastName)
	email := u.Contact.Email
	if email == "" {
		email = requested
	}

	reg, err := j.auth.RegisterWithGeneratedCredential(ctx, authclient.Profile{
		FirstName:      u.PersonalInfo.FirstName,
		LastName:       u.PersonalInfo.LastName,
		Email:          email,
		OrganizationID: u.OrganizationID,
		Roles:          u.Roles,
	})
	if err != nil {
		j.logger.Warn("ユーザーの再登録に失敗しました",
			slog.String("user_id", u.ID),
			slog.String("user_code", u.UserCode),
			slog.String("error", err.Error()),
		)
		return ResultFailed, nil, fmt.Errorf("user %s: %w", u.ID, err)
	}

	updated, err := j.users.UpdateUsername(context.WithoutCancel(ctx), u.ID, reg.Username)
	if err != nil {
		j.logger.Error("再登録したユーザー名の保存に失敗しました",
			slog.String("user_id", u.ID),
			slog.String("username", reg.Username),
			slog.String("error", err.Error()),
		)
		return ResultFailed, nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	if !updated {
		j.logger.Warn("ユーザー名が既に設定されていたため更新しませんでした",
			slog.String("user_id", u.ID),
			slog.String("username", reg.Username),
		)
		return ResultSkipped, nil, nil
	}

	j.logger.Info("ユーザーを再登録しました",
		slog.String("user_id", u.ID),
		slog.String("user_code", u.UserCode),
		slog.String("username", reg.Username),
	)
	return ResultRegistered, &IssuedCredential{
		UserID:            u.ID,
		UserCode:          u.UserCode,
		OrganizationID:    u.OrganizationID,
		Username:          reg.Username,
		TemporaryPassword: reg.TemporaryPassword,
	}, nil
}
