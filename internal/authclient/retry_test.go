package authclient

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   attemptResult
	}{
		{http.StatusOK, attemptOK},
		{http.StatusCreated, attemptOK},
		{http.StatusRequestTimeout, attemptRetry},
		{http.StatusTooManyRequests, attemptRetry},
		{http.StatusInternalServerError, attemptRetry},
		{http.StatusBadGateway, attemptRetry},
		{http.StatusServiceUnavailable, attemptRetry},
		{http.StatusBadRequest, attemptReject},
		{http.StatusUnauthorized, attemptReject},
		{http.StatusConflict, attemptReject},
		{http.StatusMovedPermanently, attemptReject},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // 上限
		{10, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetryPolicy_Backoff_BaseAboveMax(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: 10 * time.Second, MaxDelay: time.Second}
	if got := p.Backoff(0); got != time.Second {
		t.Errorf("Backoff(0) = %v, want 1s", got)
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); err == nil {
		t.Error("キャンセル済みコンテキストではエラーを返すべき")
	}
}
