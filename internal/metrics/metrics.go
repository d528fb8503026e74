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
// セッションマネージャー、ゲーム進行、APIクライアント周辺から利用する。
type MetricsCollector interface {
	RecordAuthOutcome(operation string, success bool)
	RecordAnswer(correct bool)
	RecordStreakBonus()
	RecordAPIStatus(statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordUploadBytes(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcome *prometheus.CounterVec
	answers     *prometheus.CounterVec
	streakBonus prometheus.Counter
	apiStatus   *prometheus.CounterVec
	apiLatency  prometheus.Histogram
	uploadBytes prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelplay_auth_operations_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelplay_answers_total",
			Help: "正誤別のタスク回答数",
		}, []string{"outcome"}),
		streakBonus: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labelplay_streak_bonus_total",
			Help: "発火したストリークボーナスの合計数",
		}),
		apiStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelplay_api_status_total",
			Help: "HTTPステータスコード別のAPIレスポンス数",
		}, []string{"status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labelplay_api_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labelplay_upload_bytes_total",
			Help: "アップロードされたデータセットの合計バイト数",
		}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.answers,
		c.streakBonus,
		c.apiStatus,
		c.apiLatency,
		c.uploadBytes,
	)

	return c
}

// RecordAuthOutcome は認証操作の結果を記録する。
func (c *Collector) RecordAuthOutcome(operation string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.authOutcome.WithLabelValues(operation, outcome).Inc()
}

// RecordAnswer はタスク回答の正誤を記録する。
func (c *Collector) RecordAnswer(correct bool) {
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	c.answers.WithLabelValues(outcome).Inc()
}

// RecordStreakBonus はストリークボーナスの発火を記録する。
func (c *Collector) RecordStreakBonus() {
	c.streakBonus.Inc()
}

// RecordAPIStatus はAPIレスポンスのステータスコードを記録する。
func (c *Collector) RecordAPIStatus(statusCode int) {
	c.apiStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordUploadBytes はアップロードされたバイト数を記録する。
func (c *Collector) RecordUploadBytes(count int64) {
	c.uploadBytes.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
