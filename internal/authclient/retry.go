package authclient

import (
	"context"
	"net/http"
	"time"
)

// attemptResult はHTTPステータスコードに基づく1回の呼び出し結果の分類。
type attemptResult int

const (
	// attemptOK は成功（2xx）。
	attemptOK attemptResult = iota
	// attemptRetry は再試行で回復しうる失敗（408/429/5xx）。
	attemptRetry
	// attemptReject は再試行しても結果が変わらない失敗（その他の4xxなど）。
	attemptReject
)

// classifyStatus はHTTPステータスコードを呼び出し結果に分類する。
func classifyStatus(statusCode int) attemptResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return attemptOK
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return attemptRetry
	case statusCode >= 500:
		return attemptRetry
	default:
		return attemptReject
	}
}

// RetryPolicy は指数バックオフによる再試行の設定。
type RetryPolicy struct {
	// MaxAttempts は初回を含む最大試行回数。
	MaxAttempts int
	// BaseDelay は初回再試行前の待機時間。以降2倍ずつ増加する。
	BaseDelay time.Duration
	// MaxDelay は待機時間の上限。
	MaxDelay time.Duration
}

// DefaultRetryPolicy は最大3回、500msから2倍ずつ、上限5秒のポリシーを返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Backoff はretry回目（0始まり）の再試行前の待機時間を返す。
func (p RetryPolicy) Backoff(retry int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// sleepContext はdの間待機する。コンテキストが先に終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
