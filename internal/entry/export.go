package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExportRecord はエクスポートファイル内の記事1件を表す。
// キー名はインポート時のエイリアス表と一致するため、そのまま再インポートできる。
type ExportRecord struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsRead     int       `json:"is_read"`
	IsFavorite int       `json:"is_fav"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
}

// Export はユーザーの全記事をJSON配列として書き出し、添付ファイル名とともに返す。
func (s *Service) Export(ctx context.Context, ownerID string) ([]byte, string, error) {
	entries, err := s.entryRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("記事一覧の取得に失敗: %w", err)
	}

	records := make([]ExportRecord, 0, len(entries))
	for _, e := range entries {
		tags, err := s.tagRepo.ListForEntry(ctx, e.ID)
		if err != nil {
			return nil, "", fmt.Errorf("記事 %d のタグ一覧の取得に失敗: %w", e.ID, err)
		}
		values := make([]string, 0, len(tags))
		for _, t := range tags {
			values = append(values, t.Value)
		}
		records = append(records, ExportRecord{
			ID:         e.ID,
			URL:        e.URL,
			Title:      e.Title,
			Content:    e.Content,
			IsRead:     boolToInt(e.IsRead),
			IsFavorite: boolToInt(e.IsFavorite),
			Tags:       values,
			CreatedAt:  e.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("エクスポートのJSON変換に失敗: %w", err)
	}

	filename := fmt.Sprintf("readlater-export-%s-%s.json", ownerID, s.now().Format("2006-01-02"))
	return data, filename, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
