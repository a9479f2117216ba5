// Package tag は記事へのタグ付けとタグのガベージコレクションを提供する。
package tag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/model"
	"github.com/hitoshi/readlater/internal/repository"
)

// Manager はタグの正規化、検索または作成、関連付けを行う。
type Manager struct {
	entryRepo repository.EntryRepository
	tagRepo   repository.TagRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(
	entryRepo repository.EntryRepository,
	tagRepo repository.TagRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		entryRepo: entryRepo,
		tagRepo:   tagRepo,
		metrics:   collector,
		logger:    logger,
	}
}

// ApplyTags は記事にタグを付与し、新たに関連付けたタグを返す。
// 前後の空白を除いた値が空のもの、記事に既に付いている値（大文字小文字を区別）は無視する。
// 記事が存在しない場合は ENTRY_NOT_FOUND を返し、何も変更しない。
func (m *Manager) ApplyTags(ctx context.Context, ownerID string, entryID int64, rawTags []string) ([]*model.Tag, error) {
	entry, err := m.entryRepo.FindByID(ctx, entryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}

	current, err := m.tagRepo.ListForEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("記事のタグ一覧の取得に失敗: %w", err)
	}
	applied := make(map[string]bool, len(current))
	for _, t := range current {
		applied[t.Value] = true
	}

	var added []*model.Tag
	for _, raw := range rawTags {
		value := strings.TrimSpace(raw)
		if value == "" || applied[value] {
			continue
		}

		tag, err := m.lookupOrCreate(ctx, value)
		if err != nil {
			return added, err
		}
		if err := m.tagRepo.Link(ctx, tag.ID, entryID); err != nil {
			return added, fmt.Errorf("タグ %q の関連付けに失敗: %w", value, err)
		}
		applied[value] = true
		added = append(added, tag)
	}

	if len(added) > 0 {
		m.logger.Info("タグを付与しました",
			slog.String("owner_id", ownerID),
			slog.Int64("entry_id", entryID),
			slog.Int("added", len(added)),
		)
	}
	return added, nil
}

// lookupOrCreate は値が一致するタグを返し、無ければ作成する。
// Createは一意制約の競合時に既存行を返すため、同時作成でも重複しない。
func (m *Manager) lookupOrCreate(ctx context.Context, value string) (*model.Tag, error) {
	tag, err := m.tagRepo.FindByValue(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("タグ %q の検索に失敗: %w", value, err)
	}
	if tag != nil {
		return tag, nil
	}
	tag, err = m.tagRepo.Create(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("タグ %q の作成に失敗: %w", value, err)
	}
	return tag, nil
}

// ApplyTagToSearchResults は検索語に一致する記事すべてに、検索語そのものをタグとして付与する。
// タグ付けした記事数を返す。検索語が空の場合は何もしない。
func (m *Manager) ApplyTagToSearchResults(ctx context.Context, ownerID, term string) (int, error) {
	value := strings.TrimSpace(term)
	if value == "" {
		return 0, nil
	}

	ids, err := m.entryRepo.Search(ctx, ownerID, value)
	if err != nil {
		return 0, fmt.Errorf("記事の検索に失敗: %w", err)
	}

	tagged := 0
	for _, id := range ids {
		added, err := m.ApplyTags(ctx, ownerID, id, []string{value})
		if err != nil {
			return tagged, err
		}
		if len(added) > 0 {
			tagged++
		}
	}

	m.logger.Info("検索結果にタグを付与しました",
		slog.String("owner_id", ownerID),
		slog.String("tag", value),
		slog.Int("matched", len(ids)),
		slog.Int("tagged", tagged),
	)
	return tagged, nil
}

// RemoveTag は記事からタグを外し、どの記事にも付いていなければタグ自体を削除する。
func (m *Manager) RemoveTag(ctx context.Context, ownerID string, entryID, tagID int64) error {
	entry, err := m.entryRepo.FindByID(ctx, entryID, ownerID)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗: %w", err)
	}
	if entry == nil {
		return model.NewEntryNotFoundError(entryID)
	}

	removed, err := m.tagRepo.Unlink(ctx, entryID, tagID)
	if err != nil {
		return fmt.Errorf("タグの関連付け解除に失敗: %w", err)
	}
	if !removed {
		return model.NewTagNotFoundError(tagID)
	}

	m.CollectIfOrphaned(ctx, tagID)
	return nil
}

// CollectIfOrphaned は関連付けが残っていないタグを削除する。
// 削除の失敗はログに記録するのみで、呼び出し元には返さない。
func (m *Manager) CollectIfOrphaned(ctx context.Context, tagID int64) {
	links, err := m.tagRepo.CountLinks(ctx, tagID)
	if err != nil {
		m.logger.Error("タグの関連付け数の取得に失敗しました",
			slog.Int64("tag_id", tagID),
			slog.String("error", err.Error()),
		)
		return
	}
	if links > 0 {
		return
	}

	deleted, err := m.tagRepo.Delete(ctx, tagID)
	if err != nil {
		m.logger.Error("未使用タグの削除に失敗しました",
			slog.Int64("tag_id", tagID),
			slog.String("error", err.Error()),
		)
		return
	}
	if deleted {
		m.metrics.RecordTagsCollected(1)
		m.logger.Debug("未使用タグを削除しました", slog.Int64("tag_id", tagID))
	}
}
