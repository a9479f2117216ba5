// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

const (
	// UntitledTitle はタイトルを抽出できなかった場合のフォールバックタイトル。
	UntitledTitle = "Untitled"

	// UndefinedContent はバックログ処理で本文を取得できなかった記事に設定する本文。
	// 空でない本文を設定することで記事をバックログから外す。
	UndefinedContent = "Undefined"

	// ImportPlaceholderPrefix はインポート時にタイトルが無い記事のタイトル接頭辞。
	ImportPlaceholderPrefix = "Untitled - Import - "

	// ImportPlaceholderTitle はインポート時にタイトルが無い記事に設定するタイトル。
	// インポートの続きを実行するためのリンクを含む。
	ImportPlaceholderTitle = ImportPlaceholderPrefix + `<a href="/import">click to finish import</a>`
)

// Entry は保存された記事を表す。
type Entry struct {
	ID         int64
	OwnerID    string
	URL        string // 正規化済みURL
	Title      string // サニタイズ済み
	Content    string // サニタイズ済みHTML。空の場合は本文未取得
	IsFavorite bool
	IsRead     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ContentPending は本文が未取得かどうかを返す。
// 永続化層の本文未取得条件（NULLまたは空文字）と一致させるため、空白の除去は保存前に行う。
func (e *Entry) ContentPending() bool {
	return e.Content == ""
}

// NormalizeContent は保存する本文の前後の空白を除去する。
// 空白のみの本文は空文字となり、本文未取得として扱われる。
func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// HasPlaceholderTitle はインポート時の仮タイトルのままかどうかを返す。
func (e *Entry) HasPlaceholderTitle() bool {
	return IsPlaceholderTitle(e.Title)
}

// IsPlaceholderTitle はタイトルが意味を持たないフォールバック値かどうかを返す。
func IsPlaceholderTitle(title string) bool {
	t := strings.TrimSpace(title)
	return t == "" || t == UntitledTitle || strings.HasPrefix(t, ImportPlaceholderPrefix)
}

// ExtractedContent はContent Extractorがページから抽出したタイトルと本文を表す。
// いずれも未サニタイズ。
type ExtractedContent struct {
	Title string
	Body  string
}

// BacklogStatus はバックログ処理1回分の結果を表す。
// 呼び出し側はDelayMs後に再度バックログ処理を呼び出す。
type BacklogStatus struct {
	Remaining int // 処理後に残っている本文未取得の記事数
	BatchSize int // 1回の呼び出しで処理する最大件数
	DelayMs   int // 次回呼び出しまでの推奨待機時間（ミリ秒）
	Processed int // 今回の呼び出しで処理した件数
}

// Done は本文未取得の記事が残っていないかを返す。
func (s *BacklogStatus) Done() bool {
	return s.Remaining == 0
}
