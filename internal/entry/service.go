// Package entry は記事の追加、重複統合、状態変更、エクスポートを提供する。
package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
	"github.com/hitoshi/readlater/internal/security"
)

// ContentFetcher はURLからタイトルと本文を取得するインターフェース。
// extract.Extractorが実装する。
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.ExtractedContent, error)
}

// TagCollector は関連付けの無くなったタグを削除するインターフェース。
// tag.Managerが実装する。
type TagCollector interface {
	CollectIfOrphaned(ctx context.Context, tagID int64)
}

// Service は記事単位の操作を提供する。
type Service struct {
	entryRepo repository.EntryRepository
	tagRepo   repository.TagRepository
	fetcher   ContentFetcher
	sanitizer security.ContentSanitizerService
	resolver  *Resolver
	tags      TagCollector
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	entryRepo repository.EntryRepository,
	tagRepo repository.TagRepository,
	fetcher ContentFetcher,
	sanitizer security.ContentSanitizerService,
	resolver *Resolver,
	tags TagCollector,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		entryRepo: entryRepo,
		tagRepo:   tagRepo,
		fetcher:   fetcher,
		sanitizer: sanitizer,
		resolver:  resolver,
		tags:      tags,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Add はURLのページを取得して記事として保存する。
//
// ページの取得に失敗した場合もタイトル "Untitled"、本文なしで保存し、
// 本文はバックログ処理で後から取得される。SSRF検証で拒否されたURLは保存しない。
// 同じURLの記事が既にあれば、保存後にタグとお気に入り状態を引き継いで古い記事を削除する。
func (s *Service) Add(ctx context.Context, ownerID, rawURL string) (*model.Entry, error) {
	url, err := model.CanonicalURL(rawURL)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	extracted, err := s.fetcher.Fetch(ctx, url)
	switch {
	case errors.Is(err, security.ErrBlockedDestination):
		return nil, model.NewSSRFBlockedError()
	case err != nil:
		s.logger.Warn("ページを取得できなかったためタイトルなしで保存します",
			slog.String("owner_id", ownerID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		extracted = &model.ExtractedContent{Title: model.UntitledTitle}
	}

	entry := &model.Entry{
		OwnerID: ownerID,
		URL:     url,
		Title:   s.sanitizeTitle(extracted.Title),
		Content: model.NormalizeContent(s.sanitizer.Sanitize(extracted.Body)),
	}

	stale, err := s.entryRepo.FindByURL(ctx, ownerID, url)
	if err != nil {
		// 重複確認ができなくても保存は続ける。重複は次回の追加で解消される
		s.logger.Warn("既存記事の確認に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		stale = nil
	}

	id, err := s.entryRepo.Insert(ctx, entry)
	if err != nil {
		s.logger.Error("記事の保存に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInsertFailedError()
	}
	s.metrics.RecordEntriesAdded(metrics.SourceSingle, 1)

	if err := s.resolver.Resolve(ctx, ownerID, id, stale); err != nil {
		s.logger.Warn("重複記事の統合に失敗しました",
			slog.String("owner_id", ownerID),
			slog.Int64("entry_id", id),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}

	saved, err := s.entryRepo.FindByID(ctx, id, ownerID)
	if err != nil || saved == nil {
		return entry, nil
	}
	return saved, nil
}

// sanitizeTitle はタイトルをサニタイズし、空になった場合はフォールバックタイトルを返す。
func (s *Service) sanitizeTitle(title string) string {
	if t := s.sanitizer.Sanitize(title); t != "" {
		return t
	}
	return model.UntitledTitle
}

// Delete は記事を削除し、その記事にだけ付いていたタグを削除する。
func (s *Service) Delete(ctx context.Context, ownerID string, entryID int64) error {
	tags, err := s.tagRepo.ListForEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("記事のタグ一覧の取得に失敗: %w", err)
	}

	deleted, err := s.entryRepo.Delete(ctx, entryID, ownerID)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗: %w", err)
	}
	if !deleted {
		return model.NewEntryNotFoundError(entryID)
	}

	for _, t := range tags {
		s.tags.CollectIfOrphaned(ctx, t.ID)
	}

	s.logger.Info("記事を削除しました",
		slog.String("owner_id", ownerID),
		slog.Int64("entry_id", entryID),
	)
	return nil
}

// ToggleFavorite はお気に入り状態を反転する。
func (s *Service) ToggleFavorite(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error) {
	entry, err := s.entryRepo.ToggleFavorite(ctx, entryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り状態の更新に失敗: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

// ToggleArchive は既読状態を反転する。
func (s *Service) ToggleArchive(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error) {
	entry, err := s.entryRepo.ToggleArchive(ctx, entryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("既読状態の更新に失敗: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

// ArchiveAll は未読の記事をすべて既読にし、更新件数を返す。
func (s *Service) ArchiveAll(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.entryRepo.ArchiveAll(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("一括既読化に失敗: %w", err)
	}
	return n, nil
}
