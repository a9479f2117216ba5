package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
	"github.com/hitoshi/readlater/internal/security"
)

// DuplicateResolver は挿入した記事と同じURLの既存記事を統合するインターフェース。
// entry.Resolverが実装する。
type DuplicateResolver interface {
	Resolve(ctx context.Context, ownerID string, newEntryID int64, stale *model.Entry) error
}

// Service はインポートファイルの記事を一括で挿入する。
// 本文はこの時点では取得せず、本文の無い記事はバックログ処理で取得される。
type Service struct {
	entryRepo  repository.EntryRepository
	resolver   DuplicateResolver
	sanitizer  security.ContentSanitizerService
	normalizer *Normalizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	newID      func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	entryRepo repository.EntryRepository,
	resolver DuplicateResolver,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		entryRepo:  entryRepo,
		resolver:   resolver,
		sanitizer:  sanitizer,
		normalizer: NewNormalizer(),
		metrics:    collector,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Import はインポートファイルを正規化し、レコードを出現順に挿入する。
//
// 同じファイル内で既に挿入したURLのレコードは捨てる。
// 既存の記事と同じURLの場合は挿入後に重複統合を行う。
// 個々のレコードの挿入失敗はログに記録して次のレコードへ進む。
func (s *Service) Import(ctx context.Context, ownerID string, payload []byte) (*model.ImportResult, error) {
	importID := s.newID()

	normalized, err := s.normalizer.Normalize(payload)
	if err != nil {
		s.logger.Warn("インポートファイルを解釈できませんでした",
			slog.String("owner_id", ownerID),
			slog.String("import_id", importID),
			slog.Int("size", len(payload)),
		)
		return nil, err
	}

	s.logger.Info("インポートを開始します",
		slog.String("owner_id", ownerID),
		slog.String("import_id", importID),
		slog.String("format", string(normalized.Format)),
		slog.Int("records", len(normalized.Records)),
		slog.Int("skipped", normalized.Skipped),
	)

	result := &model.ImportResult{
		ImportID: importID,
		Format:   normalized.Format,
		Records:  len(normalized.Records),
	}
	inserted := make(map[string]struct{}, len(normalized.Records))
	tagsIgnored := 0

	for _, rec := range normalized.Records {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordEntriesAdded(metrics.SourceImport, result.Inserted)
			return nil, fmt.Errorf("インポートが中断されました: %w", err)
		}

		url, err := model.CanonicalURL(rec.URL)
		if err != nil {
			s.logger.Debug("不正なURLのレコードをスキップします",
				slog.String("import_id", importID),
				slog.String("url", rec.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, dup := inserted[url]; dup {
			continue
		}

		id, ok := s.insert(ctx, ownerID, importID, url, rec)
		if !ok {
			continue
		}
		inserted[url] = struct{}{}
		result.Inserted++
		if len(rec.Tags) > 0 {
			tagsIgnored++
		}
		s.logger.Debug("記事をインポートしました",
			slog.String("import_id", importID),
			slog.Int64("entry_id", id),
			slog.String("url", url),
		)
	}

	s.metrics.RecordEntriesAdded(metrics.SourceImport, result.Inserted)
	if tagsIgnored > 0 {
		s.logger.Info("インポートファイルのタグは記事に適用されません",
			slog.String("import_id", importID),
			slog.Int("records", tagsIgnored),
		)
	}
	s.logger.Info("インポートが完了しました",
		slog.String("owner_id", ownerID),
		slog.String("import_id", importID),
		slog.Int("inserted", result.Inserted),
	)
	return result, nil
}

// insert はレコード1件を挿入し、既存の同じURLの記事を統合する。
func (s *Service) insert(ctx context.Context, ownerID, importID, url string, rec model.ImportRecord) (int64, bool) {
	entry := &model.Entry{
		OwnerID:    ownerID,
		URL:        url,
		Title:      s.title(rec.Title),
		Content:    model.NormalizeContent(s.sanitizer.Sanitize(rec.Body)),
		IsRead:     rec.IsRead,
		IsFavorite: rec.IsFavorite,
	}

	stale, err := s.entryRepo.FindByURL(ctx, ownerID, url)
	if err != nil {
		s.logger.Warn("既存記事の確認に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("import_id", importID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		stale = nil
	}

	id, err := s.entryRepo.Insert(ctx, entry)
	if err != nil {
		s.logger.Error("インポート記事の保存に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("import_id", importID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	if err := s.resolver.Resolve(ctx, ownerID, id, stale); err != nil {
		s.logger.Warn("重複記事の統合に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("import_id", importID),
			slog.Int64("entry_id", id),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
	return id, true
}

// title はインポート記事のタイトルを決める。タイトルが無い場合は
// インポートの続きを促すリンク付きの仮タイトルにする。
func (s *Service) title(raw string) string {
	if raw == "" {
		return model.ImportPlaceholderTitle
	}
	if t := s.sanitizer.Sanitize(raw); t != "" {
		return t
	}
	return model.ImportPlaceholderTitle
}
