// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entry, import, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrFetch はページの取得・抽出に失敗したことを表す。
// 呼び出し側はフォールバックのタイトルと本文で処理を継続する。
var ErrFetch = errors.New("content fetch failed")

// 定義済みエラーコード
const (
	ErrCodeEntryNotFound     = "ENTRY_NOT_FOUND"
	ErrCodeTagNotFound       = "TAG_NOT_FOUND"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeInsertFailed      = "INSERT_FAILED"
	ErrCodeImportParseFailed = "IMPORT_PARSE_FAILED"
	ErrCodeImportFileMissing = "IMPORT_FILE_MISSING"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeCSRFInvalid       = "CSRF_INVALID"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// NewEntryNotFoundError は記事未検出エラーを生成する。
func NewEntryNotFoundError(entryID int64) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("Article not found: %d", entryID),
		Category: "entry",
		Action:   "記事IDを確認してください。",
	}
}

// NewTagNotFoundError は記事に付与されていないタグが指定されたエラーを生成する。
func NewTagNotFoundError(tagID int64) *APIError {
	return &APIError{
		Code:     ErrCodeTagNotFound,
		Message:  fmt.Sprintf("Tag not found: %d", tagID),
		Category: "entry",
		Action:   "記事に付与されているタグを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はページ取得の失敗エラーを生成する。
func NewFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  "ページの取得に失敗しました。",
		Category: "entry",
		Action:   "URLが公開されているか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInsertFailedError は記事の挿入失敗エラーを生成する。
func NewInsertFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeInsertFailed,
		Message:  "error during insertion : the link wasn't added",
		Category: "entry",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewImportParseFailedError はインポートファイルの解析失敗エラーを生成する。
func NewImportParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeImportParseFailed,
		Message:  "インポートファイルを解析できませんでした。",
		Category: "import",
		Action:   "JSONのレコード配列、またはリンクのリストを含むHTMLファイルを指定してください。",
	}
}

// NewImportFileMissingError はインポートファイル未指定エラーを生成する。
func NewImportFileMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeImportFileMissing,
		Message:  "インポートファイルが指定されていません。",
		Category: "import",
		Action:   "fileフィールドにファイルを添付してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出力する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
