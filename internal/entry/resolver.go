package entry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
)

// Resolver は同一URLの記事が再追加されたときに、古い記事のタグとお気に入り状態を
// 新しい記事へ移してから古い記事を削除する。
//
// 古い記事は新しい記事の挿入前に FindByURL で取得しておくこと。
// トランザクションは使わず、タグとお気に入りの引き継ぎを済ませてから古い記事を削除する。
// 途中で失敗しても状態は必ずどちらかの記事に残る。
type Resolver struct {
	entryRepo repository.EntryRepository
	tagRepo   repository.TagRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(
	entryRepo repository.EntryRepository,
	tagRepo repository.TagRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		entryRepo: entryRepo,
		tagRepo:   tagRepo,
		metrics:   collector,
		logger:    logger,
	}
}

// Resolve は古い記事staleの状態を新しい記事newEntryIDへ統合する。
// staleがnilの場合は何もしない。
// 付け替えかお気に入り設定に失敗した場合は古い記事を削除せずにエラーを返す。
// 古い記事の削除失敗はログに記録するのみで、エラーにはしない。
func (r *Resolver) Resolve(ctx context.Context, ownerID string, newEntryID int64, stale *model.Entry) error {
	if stale == nil || stale.ID == newEntryID {
		return nil
	}

	if err := r.tagRepo.ReassignTags(ctx, stale.ID, newEntryID); err != nil {
		return fmt.Errorf("重複記事 %d のタグの付け替えに失敗: %w", stale.ID, err)
	}

	if stale.IsFavorite {
		if err := r.entryRepo.SetFavorite(ctx, newEntryID, ownerID); err != nil {
			return fmt.Errorf("重複記事 %d のお気に入り状態の引き継ぎに失敗: %w", stale.ID, err)
		}
	}

	r.metrics.RecordDuplicateResolved()

	if _, err := r.entryRepo.Delete(ctx, stale.ID, ownerID); err != nil {
		r.metrics.RecordDuplicateCleanupFailure()
		r.logger.Warn("重複した古い記事の削除に失敗しました",
			slog.String("owner_id", ownerID),
			slog.Int64("entry_id", newEntryID),
			slog.Int64("stale_entry_id", stale.ID),
			slog.String("url", stale.URL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	r.logger.Info("重複した記事を統合しました",
		slog.String("owner_id", ownerID),
		slog.Int64("entry_id", newEntryID),
		slog.Int64("stale_entry_id", stale.ID),
		slog.String("url", stale.URL),
	)
	return nil
}
