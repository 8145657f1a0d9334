// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 外部APIクライアント、レコードリゾルバ、管理画面コントローラーから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(resource, method string, statusCode int, duration time.Duration)
	RecordUpstreamFailure(resource, method string)
	RecordResolution(outcome string, pagesScanned int)
	RecordDuplicateMember()
	RecordSubmission(screen, mode, outcome string)
	RecordRemoval(screen, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	resolutions      *prometheus.CounterVec
	pagesScanned     prometheus.Histogram
	duplicateMembers prometheus.Counter
	submissions      *prometheus.CounterVec
	removals         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_upstream_requests_total",
			Help: "外部APIへのリクエスト数（ステータスコード別）",
		}, []string{"resource", "method", "status_code"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_upstream_failures_total",
			Help: "外部APIへの通信失敗数（応答なし）",
		}, []string{"resource", "method"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_upstream_latency_seconds",
			Help:    "外部APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_member_resolutions_total",
			Help: "組合員レコード解決の結果別件数",
		}, []string{"outcome"}),
		pagesScanned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backoffice_member_resolution_pages",
			Help:    "1回の解決で走査した一覧ページ数",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		duplicateMembers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_member_duplicates_total",
			Help: "同一user_idを持つ組合員レコードの検出数",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_crud_submissions_total",
			Help: "管理画面フォーム送信の件数",
		}, []string{"screen", "mode", "outcome"}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_crud_removals_total",
			Help: "管理画面の削除操作の件数",
		}, []string{"screen", "outcome"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamFailures,
		c.upstreamLatency,
		c.resolutions,
		c.pagesScanned,
		c.duplicateMembers,
		c.submissions,
		c.removals,
	)

	return c
}

// RecordUpstreamRequest は応答を受け取った外部APIリクエストを記録する。
func (c *Collector) RecordUpstreamRequest(resource, method string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(resource, method, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(resource, method).Observe(duration.Seconds())
}

// RecordUpstreamFailure は応答を得られなかった外部APIリクエストを記録する。
func (c *Collector) RecordUpstreamFailure(resource, method string) {
	c.upstreamFailures.WithLabelValues(resource, method).Inc()
}

// RecordResolution は組合員レコード解決の結果と走査ページ数を記録する。
func (c *Collector) RecordResolution(outcome string, pagesScanned int) {
	c.resolutions.WithLabelValues(outcome).Inc()
	if pagesScanned > 0 {
		c.pagesScanned.Observe(float64(pagesScanned))
	}
}

// RecordDuplicateMember は重複したuser_idの検出を記録する。
func (c *Collector) RecordDuplicateMember() {
	c.duplicateMembers.Inc()
}

// RecordSubmission はフォーム送信を記録する。
func (c *Collector) RecordSubmission(screen, mode, outcome string) {
	c.submissions.WithLabelValues(screen, mode, outcome).Inc()
}

// RecordRemoval は削除操作を記録する。
func (c *Collector) RecordRemoval(screen, outcome string) {
	c.removals.WithLabelValues(screen, outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, string, int, time.Duration) {}
func (Nop) RecordUpstreamFailure(string, string)                     {}
func (Nop) RecordResolution(string, int)                             {}
func (Nop) RecordDuplicateMember()                                   {}
func (Nop) RecordSubmission(string, string, string)                  {}
func (Nop) RecordRemoval(string, string)                             {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
