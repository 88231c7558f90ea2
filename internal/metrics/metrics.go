// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// プロビジョニング結果のラベル値
const (
	OutcomeRegistered = "registered"
	OutcomeDegraded   = "degraded"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、認証クライアント、ワーカーから利用する。
type MetricsCollector interface {
	RecordUserProvisioned(outcome string)
	RecordCodeAllocated(organizationID string)
	RecordCodeConflict(organizationID string)
	RecordCodeReset(organizationID string)
	RecordAuthRequest(operation string, result string, duration time.Duration)
	RecordReconciled(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	usersProvisioned *prometheus.CounterVec
	codesAllocated   prometheus.Counter
	codeConflicts    prometheus.Counter
	codeResets       prometheus.Counter
	authRequests     *prometheus.CounterVec
	authLatency      *prometheus.HistogramVec
	reconciled       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		usersProvisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vgusers_users_provisioned_total",
			Help: "作成したユーザー数（認証サービス登録結果別）",
		}, []string{"outcome"}),
		codesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vgusers_user_codes_allocated_total",
			Help: "払い出したユーザーコードの合計数",
		}),
		codeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vgusers_user_code_conflicts_total",
			Help: "ユーザーコード採番で発生した競合の合計数",
		}),
		codeResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vgusers_user_code_resets_total",
			Help: "採番カウンタのリセット回数",
		}),
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vgusers_auth_requests_total",
			Help: "認証サービスへのリクエスト数（操作・結果別）",
		}, []string{"operation", "result"}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vgusers_auth_request_latency_seconds",
			Help:    "認証サービス呼び出しのレイテンシ（秒、リトライを含む）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vgusers_reconciled_users_total",
			Help: "再登録処理の対象ユーザー数（結果別）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.usersProvisioned,
		c.codesAllocated,
		c.codeConflicts,
		c.codeResets,
		c.authRequests,
		c.authLatency,
		c.reconciled,
	)

	return c
}

// RecordUserProvisioned はユーザー作成の結果を記録する。
func (c *Collector) RecordUserProvisioned(outcome string) {
	c.usersProvisioned.WithLabelValues(outcome).Inc()
}

// RecordCodeAllocated はユーザーコードの払い出しを記録する。
// 組織IDはカーディナリティを抑えるためラベルにしない。
func (c *Collector) RecordCodeAllocated(organizationID string) {
	c.codesAllocated.Inc()
}

// RecordCodeConflict は採番時の競合を記録する。
func (c *Collector) RecordCodeConflict(organizationID string) {
	c.codeConflicts.Inc()
}

// RecordCodeReset は採番カウンタのリセットを記録する。
func (c *Collector) RecordCodeReset(organizationID string) {
	c.codeResets.Inc()
}

// RecordAuthRequest は認証サービス呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAuthRequest(operation string, result string, duration time.Duration) {
	c.authRequests.WithLabelValues(operation, result).Inc()
	c.authLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconciled は再登録処理の結果を記録する。
func (c *Collector) RecordReconciled(result string) {
	c.reconciled.WithLabelValues(result).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを公開しないコマンドやテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordUserProvisioned(string) {}
func (NopCollector) RecordCodeAllocated(string) {}
func (NopCollector) RecordCodeConflict(string) {}
func (NopCollector) RecordCodeReset(string) {}
func (NopCollector) RecordAuthRequest(string, string, time.Duration) {}
func (NopCollector) RecordReconciled(string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
