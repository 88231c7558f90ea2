// Package usercode は組織ごとのユーザーコード採番を提供する。
//
// コードは プレフィックス + 5桁ゼロ埋めの連番（例: USR00042）。
// 連番の増加はストアの原子的なインクリメントに委ね、プロセス内でカウンタ値を保持しない。
package usercode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
)

// FormatCode はプレフィックスと連番からユーザーコードを組み立てる。
func FormatCode(prefix string, sequence int64) string {
	return fmt.Sprintf("%s%05d", prefix, sequence)
}

// Allocator は組織ごとのユーザーコードを採番する。
type Allocator struct {
	counters      repository.CounterRepository
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	defaultPrefix string
}

// NewAllocator はAllocatorを生成する。
// defaultPrefixはカウンタ未作成の組織に対するプレビューで使用する。空の場合は "USR"。
func NewAllocator(
	counters repository.CounterRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	defaultPrefix string,
) *Allocator {
	if defaultPrefix == "" {
		defaultPrefix = model.DefaultCodePrefix
	}
	return &Allocator{
		counters:      counters,
		metrics:       collector,
		logger:        logger,
		defaultPrefix: defaultPrefix,
	}
}

// Allocate は組織の次のユーザーコードを払い出す。
// カウンタが無ければ作成する。ストアが競合を報告した場合は1回だけ再試行し、
// 再度競合した場合はCodeConflictエラーを返す。
func (a *Allocator) Allocate(ctx context.Context, organizationID string) (string, error) {
	if organizationID == "" {
		return "", model.NewValidationError("organizationId は必須です")
	}

	counter, err := a.counters.IncrementAndGet(ctx, organizationID)
	if errors.Is(err, repository.ErrConflict) {
		a.metrics.RecordCodeConflict(organizationID)
		a.logger.Warn("ユーザーコード採番が競合したため再試行します",
			slog.String("organization_id", organizationID),
			slog.String("error", err.Error()),
		)

		counter, err = a.counters.IncrementAndGet(ctx, organizationID)
		if errors.Is(err, repository.ErrConflict) {
			a.metrics.RecordCodeConflict(organizationID)
			return "", model.NewCodeConflictError(organizationID, err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to allocate user code: %w", err)
	}

	a.metrics.RecordCodeAllocated(organizationID)
	return FormatCode(counter.Prefix, counter.LastIssued), nil
}

// NextCode は次回のAllocateが返すコードを状態を変更せずに返す。
// 画面のプレビュー用であり、予約ではない。
func (a *Allocator) NextCode(ctx context.Context, organizationID string) (string, error) {
	counter, err := a.counters.FindByOrganization(ctx, organizationID)
	if err != nil {
		return "", fmt.Errorf("failed to peek next user code: %w", err)
	}
	if counter == nil {
		return FormatCode(a.defaultPrefix, 1), nil
	}
	return FormatCode(counter.Prefix, counter.LastIssued+1), nil
}

// LastCode は最後に払い出したコードを返す。まだ払い出していない場合はfalseを返す。
func (a *Allocator) LastCode(ctx context.Context, organizationID string) (string, bool, error) {
	counter, err := a.counters.FindByOrganization(ctx, organizationID)
	if err != nil {
		return "", false, fmt.Errorf("failed to get last user code: %w", err)
	}
	if counter == nil || counter.LastIssued == 0 {
		return "", false, nil
	}
	return FormatCode(counter.Prefix, counter.LastIssued), true, nil
}

// Reset は組織のカウンタを0に戻す。
// リセット後の採番は以前の系列のコードを再び返すが、users の (organization_id, user_code) 一意索引により
// 既存ユーザーと重複したコードでの保存は競合として失敗する。失敗した作成でもカウンタは進むため、
// 使用済みの範囲は作成の失敗を繰り返しながら読み飛ばされる。
func (a *Allocator) Reset(ctx context.Context, organizationID, actor string) error {
	counter, err := a.counters.FindByOrganization(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to load code counter: %w", err)
	}
	if counter == nil {
		counter = &model.CodeCounter{
			OrganizationID: organizationID,
			Prefix:         a.defaultPrefix,
		}
	}

	previous := counter.LastIssued
	counter.LastIssued = 0
	if err := a.counters.Save(ctx, counter); err != nil {
		return fmt.Errorf("failed to reset code counter: %w", err)
	}

	a.metrics.RecordCodeReset(organizationID)
	a.logger.Warn("ユーザーコード採番カウンタをリセットしました。以前の系列のコードが再度払い出される可能性があります",
		slog.String("organization_id", organizationID),
		slog.Int64("previous_last_issued", previous),
		slog.String("actor", actor),
	)
	return nil
}
