package model

// ImportFormat はアップロードされたインポートファイルの形式を表す。
type ImportFormat string

const (
	// ImportFormatRecordList はJSONのレコード配列形式。
	ImportFormatRecordList ImportFormat = "record_list"
	// ImportFormatBookmarkList はol/ulのリンクリストを含むHTML形式。
	ImportFormatBookmarkList ImportFormat = "bookmark_list"
)

// ImportRecord はインポートファイルから正規化された1件分の記事データを表す。
// 永続化されず、そのまま記事の挿入に使われる。
type ImportRecord struct {
	URL        string
	Title      string // 空の場合はタイトルなし
	Body       string // 空の場合は本文未取得
	IsRead     bool
	IsFavorite bool
	Tags       []string // 現時点では記事に適用されない
}

// ImportResult はインポートファイル1件の取り込み結果を表す。
type ImportResult struct {
	ImportID string
	Format   ImportFormat
	Records  int // 正規化されたレコード数
	Inserted int // 挿入された記事数
}
