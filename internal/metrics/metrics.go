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
// 登録フロー、ハンドラー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(linked bool)
	RecordLogin(method string, success bool)
	RecordSocialLoginUnresolved(provider string)
	RecordConnectionCreated(provider string)
	RecordStatusPost(provider string, success bool)
	RecordHTTPRequest(statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations    *prometheus.CounterVec
	logins           *prometheus.CounterVec
	socialUnresolved *prometheus.CounterVec
	connections      *prometheus.CounterVec
	statusPosts      *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	httpLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_registrations_total",
			Help: "ローカル登録の合計数（保留中のソーシャルログインを紐付けたかどうか別）",
		}, []string{"linked"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_logins_total",
			Help: "ログイン試行の合計数（方式・結果別）",
		}, []string{"method", "result"}),
		socialUnresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_social_login_unresolved_total",
			Help: "既存アカウントに解決できなかったソーシャルログインの合計数",
		}, []string{"provider"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_connections_created_total",
			Help: "作成されたソーシャル紐付けの合計数",
		}, []string{"provider"}),
		statusPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_status_posts_total",
			Help: "プロバイダーへのステータス投稿数（結果別）",
		}, []string{"provider", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialhub_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialhub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.socialUnresolved,
		c.connections,
		c.statusPosts,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRegistration は登録完了を記録する。
func (c *Collector) RecordRegistration(linked bool) {
	c.registrations.WithLabelValues(strconv.FormatBool(linked)).Inc()
}

// RecordLogin はログイン試行を記録する。methodは"password"またはプロバイダーID。
func (c *Collector) RecordLogin(method string, success bool) {
	c.logins.WithLabelValues(method, resultLabel(success)).Inc()
}

// RecordSocialLoginUnresolved は未解決のソーシャルログインを記録する。
func (c *Collector) RecordSocialLoginUnresolved(provider string) {
	c.socialUnresolved.WithLabelValues(provider).Inc()
}

// RecordConnectionCreated は紐付けの作成を記録する。
func (c *Collector) RecordConnectionCreated(provider string) {
	c.connections.WithLabelValues(provider).Inc()
}

// RecordStatusPost はステータス投稿を記録する。
func (c *Collector) RecordStatusPost(provider string, success bool) {
	c.statusPosts.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordHTTPRequest はHTTPレスポンスのステータスと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRegistration(bool) {}
func (Nop) RecordLogin(string, bool) {}
func (Nop) RecordSocialLoginUnresolved(string) {}
func (Nop) RecordConnectionCreated(string) {}
func (Nop) RecordStatusPost(string, bool) {}
func (Nop) RecordHTTPRequest(int, time.Duration) {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
