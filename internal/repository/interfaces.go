// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/readlater/internal/model"
)

// EntryRepository は記事データの永続化インターフェース。
// すべての操作は所有ユーザーIDで絞り込まれる。
type EntryRepository interface {
	// Insert は記事を挿入し、採番されたIDを返す。
	// 本文が空の場合はNULLとして保存され、本文未取得の扱いになる。
	Insert(ctx context.Context, entry *model.Entry) (int64, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64, ownerID string) (*model.Entry, error)

	// FindByURL は正規化済みURLで記事を検索する。
	// 一時的に複数存在する場合は最も新しい記事を返す。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, ownerID, url string) (*model.Entry, error)

	// Delete は記事を削除する。削除対象が無い場合はfalseを返す。
	// タグとの関連付けはCASCADE削除される。
	Delete(ctx context.Context, id int64, ownerID string) (bool, error)

	// SetFavorite は記事をお気に入りにする。
	SetFavorite(ctx context.Context, id int64, ownerID string) error

	// ToggleFavorite はお気に入り状態を反転し、更新後の記事を返す。見つからない場合はnilを返す。
	ToggleFavorite(ctx context.Context, id int64, ownerID string) (*model.Entry, error)

	// ToggleArchive は既読（アーカイブ）状態を反転し、更新後の記事を返す。見つからない場合はnilを返す。
	ToggleArchive(ctx context.Context, id int64, ownerID string) (*model.Entry, error)

	// ArchiveAll は未読の記事をすべて既読にし、更新件数を返す。
	ArchiveAll(ctx context.Context, ownerID string) (int64, error)

	// CountPendingContent は本文未取得の記事数を返す。
	CountPendingContent(ctx context.Context, ownerID string) (int, error)

	// ListPendingContent は本文未取得の記事をID昇順で最大limit件返す。
	ListPendingContent(ctx context.Context, ownerID string, limit int) ([]*model.Entry, error)

	// UpdateContent は記事のタイトルと本文を更新する。
	UpdateContent(ctx context.Context, id int64, ownerID, title, content string) error

	// Search はタイトルまたは本文に検索語を含む記事のIDをID昇順で返す。
	Search(ctx context.Context, ownerID, term string) ([]int64, error)

	// ListByOwner はユーザーの全記事をID昇順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Entry, error)
}

// TagRepository はタグと記事との関連付けの永続化インターフェース。
type TagRepository interface {
	// FindByValue は完全一致でタグを検索する。見つからない場合はnilを返す。
	FindByValue(ctx context.Context, value string) (*model.Tag, error)

	// Create はタグを作成し、採番されたIDを含むタグを返す。
	// 同じ値のタグが既に存在する場合は既存のタグを返す。
	Create(ctx context.Context, value string) (*model.Tag, error)

	// Link はタグを記事に関連付ける。既に関連付け済みの場合は何もしない。
	Link(ctx context.Context, tagID, entryID int64) error

	// Unlink は関連付けを削除する。関連付けが無かった場合はfalseを返す。
	Unlink(ctx context.Context, entryID, tagID int64) (bool, error)

	// CountLinks はタグに関連付けられた記事数を返す。
	CountLinks(ctx context.Context, tagID int64) (int, error)

	// Delete は関連付けが1件も無い場合に限りタグを削除する。
	// 削除した場合はtrueを返す。
	Delete(ctx context.Context, tagID int64) (bool, error)

	// ListForEntry は記事に関連付けられたタグをID昇順で返す。
	ListForEntry(ctx context.Context, entryID int64) ([]*model.Tag, error)

	// ReassignTags はfromの記事の関連付けをtoの記事へ移す。
	// toに既に付いているタグはfrom側に残り、from記事の削除時に消える。
	ReassignTags(ctx context.Context, fromEntryID, toEntryID int64) error

	// DeleteOrphans はどの記事にも関連付けられていないタグを一括削除し、削除件数を返す。
	DeleteOrphans(ctx context.Context) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの発行は外部の認証基盤が行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
