// Package authclient は認証サービスへのアカウント登録クライアントを提供する。
//
// 認証サービスは最終的なユーザー名と一時パスワードを決定する権限を持つ。
// 全ての呼び出しは時間制限と指数バックオフ付きの再試行を伴い、
// 再試行を使い切った場合はUPSTREAM_UNAVAILABLEのAPIErrorを返す。
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

const (
	accountsPath = "/accounts"
	healthPath   = "/health"

	// maxResponseSize はレスポンスボディの読み取り上限（1MB）。
	maxResponseSize = 1 << 20

	userAgent = "vg-ms-users/1.0"
)

// 呼び出し操作のラベル値
const (
	opHealth            = "health"
	opRegister          = "register"
	opRegisterGenerated = "register_generated"
)

// ErrRejected は認証サービスが登録要求を拒否した場合の原因エラー。
var ErrRejected = errors.New("auth service rejected the request")

// Profile は認証サービスに登録するアカウント情報。
type Profile struct {
	FirstName      string
	LastName       string
	Email          string
	OrganizationID string
	Roles          []model.Role
}

// Registration は認証サービスが返した登録結果。
type Registration struct {
	Username          string
	TemporaryPassword string
	AccountEnabled    bool
}

// Config はClientの設定。
type Config struct {
	// BaseURL は認証サービスのベースURL（例: "http://ms-auth:8080/api/auth"）。
	BaseURL string
	// Timeout は登録1件あたりの時間上限（再試行と待機を含む）。
	Timeout time.Duration
	// HealthTimeout は疎通確認の時間上限。
	HealthTimeout time.Duration
	// Retry は再試行ポリシー。
	Retry RetryPolicy
	// RatePerSecond は認証サービスへの送信レート上限。0以下の場合は制限しない。
	RatePerSecond float64
}

// Client は認証サービスのクライアント。
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	retry         RetryPolicy
	limiter       *rate.Limiter
	sleep         func(ctx context.Context, d time.Duration) error // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// Timeoutが0以下の場合は10秒、HealthTimeoutが0以下の場合は2秒、
// Retry.MaxAttemptsが0以下の場合はDefaultRetryPolicyを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		httpClient:    httpClient,
		logger:        logger,
		metrics:       collector,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		retry:         cfg.Retry,
		limiter:       limiter,
		sleep:         sleepContext,
	}
}

// IsAvailable は認証サービスの疎通を確認する。
// 失敗した場合はエラーを返さずfalseを返す。
func (c *Client) IsAvailable(ctx context.Context) bool {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		c.logger.Warn("認証サービスの疎通確認リクエストを作成できませんでした",
			slog.String("error", err.Error()),
		)
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAuthRequest(opHealth, "error", time.Since(start))
		c.logger.Warn("認証サービスに接続できません",
			slog.String("error", err.Error()),
		)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	available := classifyStatus(resp.StatusCode) == attemptOK
	if available {
		c.metrics.RecordAuthRequest(opHealth, "success", time.Since(start))
	} else {
		c.metrics.RecordAuthRequest(opHealth, "failure", time.Since(start))
		c.logger.Warn("認証サービスが正常なステータスを返しませんでした",
			slog.Int("http_status", resp.StatusCode),
		)
	}
	return available
}

// RegisterWithGeneratedCredential は一時パスワードを認証サービスに生成させてアカウントを登録する。
// 認証サービスは要求と異なるユーザー名を返すことがある。
func (c *Client) RegisterWithGeneratedCredential(ctx context.Context, profile Profile) (*Registration, error) {
	return c.register(ctx, opRegisterGenerated, profile, "")
}

// Register は呼び出し元が用意した一時パスワードでアカウントを登録する。
// レスポンスに一時パスワードが含まれない場合は指定したパスワードを結果に設定する。
func (c *Client) Register(ctx context.Context, profile Profile, temporaryPassword string) (*Registration, error) {
	if temporaryPassword == "" {
		return nil, model.NewValidationError("temporaryPassword は必須です")
	}
	reg, err := c.register(ctx, opRegister, profile, temporaryPassword)
	if err != nil {
		return nil, err
	}
	if reg.TemporaryPassword == "" {
		reg.TemporaryPassword = temporaryPassword
	}
	return reg, nil
}

// accountRequest はPOST /accountsのリクエストボディ。
type accountRequest struct {
	FirstName         string   `json:"firstName"`
	LastName          string   `json:"lastName"`
	Email             string   `json:"email"`
	OrganizationID    string   `json:"organizationId"`
	TemporaryPassword string   `json:"temporaryPassword,omitempty"`
	Roles             []string `json:"roles"`
}

// accountPayload は登録結果の本体。
type accountPayload struct {
	Username          string `json:"username"`
	TemporaryPassword string `json:"temporaryPassword"`
	AccountEnabled    bool   `json:"accountEnabled"`
}

// accountResponse はPOST /accountsのレスポンス。
// 結果をそのまま返す形式と {success, message, data} で包む形式の両方を受け付ける。
type accountResponse struct {
	accountPayload
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    *accountPayload `json:"data"`
}

// register は再試行付きでPOST /accountsを呼び出す。
// 呼び出し元のキャンセルとは独立した時間上限を持つ。
func (c *Client) register(ctx context.Context, op string, profile Profile, temporaryPassword string) (*Registration, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	roles := make([]string, len(profile.Roles))
	for i, r := range profile.Roles {
		roles[i] = string(r)
	}
	payload, err := json.Marshal(accountRequest{
		FirstName:         profile.FirstName,
		LastName:          profile.LastName,
		Email:             profile.Email,
		OrganizationID:    profile.OrganizationID,
		TemporaryPassword: temporaryPassword,
		Roles:             roles,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retry.Backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		reg, result, err := c.postAccount(ctx, payload)
		if err == nil {
			c.metrics.RecordAuthRequest(op, "success", time.Since(start))
			return reg, nil
		}

		lastErr = err
		c.logger.Warn("認証サービスへのアカウント登録に失敗しました",
			slog.String("operation", op),
			slog.String("organization_id", profile.OrganizationID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", c.retry.MaxAttempts),
			slog.String("error", err.Error()),
		)
		if result != attemptRetry {
			break
		}
	}

	c.metrics.RecordAuthRequest(op, "failure", time.Since(start))
	return nil, model.NewUpstreamUnavailableError(
		fmt.Sprintf("%d回の試行で登録できませんでした", attempts),
		lastErr,
	)
}

// postAccount はPOST /accountsを1回呼び出す。
func (c *Client) postAccount(ctx context.Context, payload []byte) (*Registration, attemptResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+accountsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, attemptReject, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 通信エラーは一時的な障害として再試行する
		return nil, attemptRetry, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, attemptRetry, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch classifyStatus(resp.StatusCode) {
	case attemptRetry:
		return nil, attemptRetry, fmt.Errorf("認証サービスがステータス %d を返しました", resp.StatusCode)
	case attemptReject:
		return nil, attemptReject, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(string(body), 200))
	}

	var decoded accountResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, attemptReject, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if decoded.Success != nil && !*decoded.Success {
		return nil, attemptReject, fmt.Errorf("%w: %s", ErrRejected, decoded.Message)
	}

	result := decoded.accountPayload
	if decoded.Data != nil {
		result = *decoded.Data
	}
	if result.Username == "" {
		return nil, attemptReject, errors.New("認証サービスのレスポンスにユーザー名が含まれていません")
	}

	return &Registration{
		Username:          result.Username,
		TemporaryPassword: result.TemporaryPassword,
		AccountEnabled:    result.AccountEnabled,
	}, attemptOK, nil
}

// truncate はsを最大nバイトに切り詰める。マルチバイト文字の途中では切らない。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
