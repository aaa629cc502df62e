// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memberboard"

// Collector はPrometheusメトリクスを収集する実装。
// 認証フロー、投稿ストア、HTTPミドルウェア、セッションクリーンアップから利用する。
type Collector struct {
	loginResults     *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	postsAppended    prometheus.Counter
	persistenceFail  prometheus.Counter
	corruptStore     prometheus.Counter
	httpStatus       *prometheus.CounterVec
	httpLatency      prometheus.Histogram
	sessionsExpired  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_results_total",
			Help:      "ログイン結果別の認証フロー完了数",
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "IdP呼び出しのレイテンシ（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_call_failures_total",
			Help:      "IdP呼び出しの失敗数",
		}, []string{"step"}),
		postsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_appended_total",
			Help:      "保存された投稿の合計数",
		}),
		persistenceFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_persistence_failures_total",
			Help:      "投稿の保存失敗の合計数",
		}),
		corruptStore: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_store_corrupt_reads_total",
			Help:      "解析できない投稿ファイルを読み込んだ回数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTPメソッド・ステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_deleted_total",
			Help:      "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.loginResults,
		c.providerLatency,
		c.providerFailures,
		c.postsAppended,
		c.persistenceFail,
		c.corruptStore,
		c.httpStatus,
		c.httpLatency,
		c.sessionsExpired,
	)

	return c
}

// RecordLoginResult は認証フローの結果を記録する。
func (c *Collector) RecordLoginResult(result string) {
	c.loginResults.WithLabelValues(result).Inc()
}

// RecordProviderCall はIdP呼び出しのレイテンシと失敗を記録する。
func (c *Collector) RecordProviderCall(step string, duration time.Duration, err error) {
	c.providerLatency.WithLabelValues(step).Observe(duration.Seconds())
	if err != nil {
		c.providerFailures.WithLabelValues(step).Inc()
	}
}

// RecordPostAppended は投稿の保存成功を記録する。
func (c *Collector) RecordPostAppended() {
	c.postsAppended.Inc()
}

// RecordPersistenceFailure は投稿の保存失敗を記録する。
func (c *Collector) RecordPersistenceFailure() {
	c.persistenceFail.Inc()
}

// RecordCorruptStore は投稿ファイルが解析できなかったことを記録する。
func (c *Collector) RecordCorruptStore() {
	c.corruptStore.Inc()
}

// ObserveHTTPRequest はHTTPレスポンスのステータスコードと処理時間を記録する。
func (c *Collector) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordSessionsExpired はクリーンアップで削除したセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
