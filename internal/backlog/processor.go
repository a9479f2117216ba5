// Package backlog は本文未取得の記事を少しずつ取得するバックログ処理を提供する。
//
// 処理はクライアントからの呼び出しごとに1バッチずつ進む。進捗は記事の本文の有無として
// データベースにのみ保持されるため、中断しても次の呼び出しで続きから再開できる。
package backlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
	"github.com/hitoshi/readlater/internal/security"
)

const (
	defaultBatchSize = 5
	defaultDelay     = 5 * time.Second
)

// ContentFetcher はURLからタイトルと本文を取得するインターフェース。
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.ExtractedContent, error)
}

// Options はバックログ処理の設定。
type Options struct {
	BatchSize int           // 1回の呼び出しで取得する最大件数
	Delay     time.Duration // クライアントに返す次回呼び出しまでの待機時間
}

// Processor はバックログ処理を行う。
type Processor struct {
	entryRepo repository.EntryRepository
	fetcher   ContentFetcher
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	batchSize int
	delay     time.Duration
}

// NewProcessor はProcessorの新しいインスタンスを生成する。
func NewProcessor(
	entryRepo repository.EntryRepository,
	fetcher ContentFetcher,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	return &Processor{
		entryRepo: entryRepo,
		fetcher:   fetcher,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		batchSize: opts.BatchSize,
		delay:     opts.Delay,
	}
}

// ProcessNextBatch は本文未取得の記事を最大BatchSize件、1件ずつ順に取得して更新する。
//
// justUploadedがtrueの場合はアップロード直後の呼び出しとして件数だけを返し、取得は行わない。
// 戻り値のRemainingが0になるまで、呼び出し側はDelayMs後に再度呼び出す。
func (p *Processor) ProcessNextBatch(ctx context.Context, ownerID string, justUploaded bool) (*model.BacklogStatus, error) {
	remaining, err := p.entryRepo.CountPendingContent(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("本文未取得の記事数の取得に失敗: %w", err)
	}

	status := &model.BacklogStatus{
		Remaining: remaining,
		BatchSize: p.batchSize,
		DelayMs:   int(p.delay.Milliseconds()),
	}
	if remaining == 0 || justUploaded {
		return status, nil
	}

	pending, err := p.entryRepo.ListPendingContent(ctx, ownerID, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("本文未取得の記事一覧の取得に失敗: %w", err)
	}

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			p.metrics.RecordBacklogProcessed(status.Processed)
			return nil, fmt.Errorf("バックログ処理が中断されました: %w", err)
		}
		if p.process(ctx, e) {
			status.Processed++
		}
	}
	p.metrics.RecordBacklogProcessed(status.Processed)

	remaining, err = p.entryRepo.CountPendingContent(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("本文未取得の記事数の取得に失敗: %w", err)
	}
	status.Remaining = remaining

	p.logger.Info("バックログを処理しました",
		slog.String("owner_id", ownerID),
		slog.Int("processed", status.Processed),
		slog.Int("remaining", status.Remaining),
	)
	return status, nil
}

// process は記事1件の本文を取得して更新する。
// 取得に失敗した場合も本文を "Undefined" として更新し、記事をバックログから外す。
func (p *Processor) process(ctx context.Context, e *model.Entry) bool {
	title, body := e.Title, model.UndefinedContent
	if e.HasPlaceholderTitle() {
		title = model.UntitledTitle
	}

	extracted, err := p.fetcher.Fetch(ctx, e.URL)
	if err != nil {
		p.logger.Warn("記事の本文を取得できませんでした",
			slog.String("owner_id", e.OwnerID),
			slog.Int64("entry_id", e.ID),
			slog.String("url", e.URL),
			slog.String("error", err.Error()),
		)
	} else {
		if t := p.sanitizer.Sanitize(extracted.Title); !model.IsPlaceholderTitle(t) {
			title = t
		}
		if b := model.NormalizeContent(p.sanitizer.Sanitize(extracted.Body)); b != "" {
			body = b
		}
	}

	if err := p.entryRepo.UpdateContent(ctx, e.ID, e.OwnerID, title, body); err != nil {
		p.logger.Error("記事の本文の更新に失敗しました",
			slog.String("owner_id", e.OwnerID),
			slog.Int64("entry_id", e.ID),
			slog.String("url", e.URL),
			slog.String("error", err.Error()),
		)
		return false
	}

	p.logger.Debug("記事の本文を更新しました",
		slog.Int64("entry_id", e.ID),
		slog.String("url", e.URL),
	)
	return true
}
