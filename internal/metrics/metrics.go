// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 記事取得結果のラベル値
const (
	FetchResultOK      = "ok"
	FetchResultBlocked = "blocked"
	FetchResultNetwork = "network_error"
	FetchResultStatus  = "http_error"
	FetchResultParse   = "parse_error"
)

// 記事の追加経路のラベル値
const (
	SourceSingle = "single"
	SourceImport = "import"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 抽出、記事追加、インポート、バックログ処理、タグGCから利用する。
type MetricsCollector interface {
	RecordFetch(result string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordEntriesAdded(source string, count int)
	RecordDuplicateResolved()
	RecordDuplicateCleanupFailure()
	RecordBacklogProcessed(count int)
	RecordTagsCollected(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchTotal       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	entriesAdded     *prometheus.CounterVec
	duplicates       prometheus.Counter
	duplicateCleanup prometheus.Counter
	backlogProcessed prometheus.Counter
	tagsCollected    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readlater_fetch_total",
			Help: "記事ページ取得の結果別合計数",
		}, []string{"result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readlater_fetch_latency_seconds",
			Help:    "記事ページ取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readlater_fetch_http_status_total",
			Help: "記事ページ取得のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		entriesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readlater_entries_added_total",
			Help: "追加経路別の記事追加数",
		}, []string{"source"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readlater_duplicates_resolved_total",
			Help: "重複URLの統合処理の合計数",
		}),
		duplicateCleanup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readlater_duplicate_cleanup_failures_total",
			Help: "重複統合後の古い記事の削除失敗数",
		}),
		backlogProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readlater_backlog_processed_total",
			Help: "バックログ処理で本文を取得した記事数",
		}),
		tagsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readlater_tags_collected_total",
			Help: "関連付けがなくなり削除されたタグ数",
		}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.fetchLatency,
		c.httpStatus,
		c.entriesAdded,
		c.duplicates,
		c.duplicateCleanup,
		c.backlogProcessed,
		c.tagsCollected,
	)

	return c
}

// RecordFetch は記事ページ取得の結果とレイテンシを記録する。
func (c *Collector) RecordFetch(result string, duration time.Duration) {
	c.fetchTotal.WithLabelValues(result).Inc()
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEntriesAdded は追加された記事数を記録する。
func (c *Collector) RecordEntriesAdded(source string, count int) {
	c.entriesAdded.WithLabelValues(source).Add(float64(count))
}

func (c *Collector) RecordDuplicateResolved() {
	c.duplicates.Inc()
}

func (c *Collector) RecordDuplicateCleanupFailure() {
	c.duplicateCleanup.Inc()
}

func (c *Collector) RecordBacklogProcessed(count int) {
	c.backlogProcessed.Add(float64(count))
}

func (c *Collector) RecordTagsCollected(count int) {
	c.tagsCollected.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを必要としない実行経路で使う。
type Nop struct{}

func (Nop) RecordFetch(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordEntriesAdded(string, int)    {}
func (Nop) RecordDuplicateResolved()          {}
func (Nop) RecordDuplicateCleanupFailure()    {}
func (Nop) RecordBacklogProcessed(int)        {}
func (Nop) RecordTagsCollected(int)           {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
