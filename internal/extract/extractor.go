// Package extract は保存対象URLのページを取得し、タイトルと本文を抽出する。
//
// 取得したドキュメントがRSS/AtomフィードであればgofeedでItem単位に解析し、
// HTMLページであればgo-readabilityで本文領域を抜き出す。
// いずれの場合も抽出結果は未サニタイズであり、保存前に呼び出し側で
// security.ContentSanitizerService を通す必要がある。
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
)

// defaultUserAgent はFETCH_USER_AGENT未設定時に送信するUser-Agent。
const defaultUserAgent = "readlater/1.0 (+https://github.com/hitoshi/readlater)"

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテストでhttptestサーバーへ接続できるようにする。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Options は取得処理の設定値。
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
}

// Extractor はページ取得と抽出を行う。
// 単体追加とバックログ処理の両方から同期的に呼び出される。
type Extractor struct {
	ssrfGuard   SSRFValidator
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	userAgent   string
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(ssrfGuard SSRFValidator, collector metrics.MetricsCollector, logger *slog.Logger, opts Options) *Extractor {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Extractor{
		ssrfGuard:   ssrfGuard,
		metrics:     collector,
		logger:      logger,
		timeout:     opts.Timeout,
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
	}
}

// Fetch は指定URLのページを取得してタイトルと本文を抽出する。
// 取得・解析に失敗した場合は model.ErrFetch をラップしたエラーを返す。
// SSRF検証で拒否された場合は security.ErrBlockedDestination も併せてラップされる。
// タイトルが得られない場合は "Untitled"、本文が得られない場合は空文字を返す。
func (e *Extractor) Fetch(ctx context.Context, rawURL string) (*model.ExtractedContent, error) {
	start := time.Now()

	if err := e.ssrfGuard.ValidateURL(rawURL); err != nil {
		e.metrics.RecordFetch(metrics.FetchResultBlocked, time.Since(start))
		e.logger.Warn("SSRF検証により取得を拒否しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", model.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: リクエスト作成に失敗: %v", model.ErrFetch, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	client := e.ssrfGuard.NewSafeClient(e.timeout)
	resp, err := client.Do(req)
	if err != nil {
		e.metrics.RecordFetch(metrics.FetchResultNetwork, time.Since(start))
		e.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: HTTPリクエスト失敗: %v", model.ErrFetch, err)
	}
	defer resp.Body.Close()

	e.metrics.RecordHTTPStatus(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		e.metrics.RecordFetch(metrics.FetchResultStatus, time.Since(start))
		e.logger.Warn("予期しないHTTPステータスコード",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
			slog.String("status_class", classifyStatus(resp.StatusCode)),
		)
		return nil, fmt.Errorf("%w: HTTPステータス %d", model.ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		e.metrics.RecordFetch(metrics.FetchResultNetwork, time.Since(start))
		return nil, fmt.Errorf("%w: レスポンス読み取り失敗: %v", model.ErrFetch, err)
	}

	// リダイレクト後のURLを相対リンク解決の基準にする
	pageURL := resp.Request.URL
	contentType := resp.Header.Get("Content-Type")

	var extracted *model.ExtractedContent
	if isFeedDocument(contentType, body) {
		extracted, err = extractFromFeed(body)
	} else {
		extracted, err = extractFromHTML(body, contentType, pageURL)
	}
	if err != nil {
		e.metrics.RecordFetch(metrics.FetchResultParse, time.Since(start))
		e.logger.Warn("ページの解析に失敗しました",
			slog.String("url", rawURL),
			slog.String("content_type", contentType),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", model.ErrFetch, err)
	}

	if extracted.Title == "" {
		extracted.Title = model.UntitledTitle
	}

	duration := time.Since(start)
	e.metrics.RecordFetch(metrics.FetchResultOK, duration)
	e.logger.Debug("ページを取得しました",
		slog.String("url", rawURL),
		slog.Int("body_bytes", len(extracted.Body)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return extracted, nil
}

// classifyStatus はHTTPステータスコードをログ用の分類に変換する。
func classifyStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return "gone"
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return "retryable"
	case statusCode >= 300 && statusCode < 400:
		return "redirect"
	default:
		return "unexpected"
	}
}
