package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/readlater/internal/model"
)

// entryColumns はentriesテーブルのSELECT対象カラム。scanEntryと順序を合わせる。
const entryColumns = `id, user_id, url, title, content, is_fav, is_read, created_at, updated_at`

// pendingCondition は本文未取得の記事を表す条件。部分インデックスの条件と一致させる。
const pendingCondition = `(content IS NULL OR content = '')`

// PostgresEntryRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*model.Entry, error) {
	entry := &model.Entry{}
	var content sql.NullString
	if err := s.Scan(
		&entry.ID, &entry.OwnerID, &entry.URL, &entry.Title, &content,
		&entry.IsFavorite, &entry.IsRead, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.Content = nullStringValue(content)
	return entry, nil
}

// Insert は記事を挿入し、採番されたIDを返す。
func (r *PostgresEntryRepo) Insert(ctx context.Context, entry *model.Entry) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO entries (user_id, url, title, content, is_fav, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		entry.OwnerID, entry.URL, entry.Title, nullString(entry.Content), entry.IsFavorite, entry.IsRead,
	).Scan(&id, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}
	entry.ID = id
	return id, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByID(ctx context.Context, id int64, ownerID string) (*model.Entry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return entry, nil
}

// FindByURL は正規化済みURLで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByURL(ctx context.Context, ownerID, url string) (*model.Entry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE user_id = $1 AND url = $2
		 ORDER BY id DESC
		 LIMIT 1`,
		ownerID, url,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによる記事の検索に失敗しました: %w", err)
	}
	return entry, nil
}

// Delete は記事を削除する。
func (r *PostgresEntryRepo) Delete(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// SetFavorite は記事をお気に入りにする。
func (r *PostgresEntryRepo) SetFavorite(ctx context.Context, id int64, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET is_fav = true, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("お気に入りの設定に失敗しました: %w", err)
	}
	return nil
}

// ToggleFavorite はお気に入り状態を反転する。
func (r *PostgresEntryRepo) ToggleFavorite(ctx context.Context, id int64, ownerID string) (*model.Entry, error) {
	return r.toggle(ctx, "is_fav", id, ownerID)
}

// ToggleArchive は既読状態を反転する。
func (r *PostgresEntryRepo) ToggleArchive(ctx context.Context, id int64, ownerID string) (*model.Entry, error) {
	return r.toggle(ctx, "is_read", id, ownerID)
}

// toggle はbooleanカラムを反転して更新後の記事を返す。columnは定数のみ渡すこと。
func (r *PostgresEntryRepo) toggle(ctx context.Context, column string, id int64, ownerID string) (*model.Entry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx,
		`UPDATE entries SET `+column+` = NOT `+column+`, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+entryColumns,
		id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事状態の更新に失敗しました (%s): %w", column, err)
	}
	return entry, nil
}

// ArchiveAll は未読の記事をすべて既読にする。
func (r *PostgresEntryRepo) ArchiveAll(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET is_read = true, updated_at = now() WHERE user_id = $1 AND is_read = false`,
		ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("一括既読化に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// CountPendingContent は本文未取得の記事数を返す。
func (r *PostgresEntryRepo) CountPendingContent(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM entries WHERE user_id = $1 AND `+pendingCondition,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("本文未取得の記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListPendingContent は本文未取得の記事をID昇順で最大limit件返す。
func (r *PostgresEntryRepo) ListPendingContent(ctx context.Context, ownerID string, limit int) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE user_id = $1 AND `+pendingCondition+`
		 ORDER BY id ASC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("本文未取得の記事一覧の取得に失敗しました: %w", err)
	}
	return collectEntries(rows)
}

// UpdateContent は記事のタイトルと本文を更新する。
func (r *PostgresEntryRepo) UpdateContent(ctx context.Context, id int64, ownerID, title, content string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET title = $3, content = $4, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, ownerID, title, nullString(content),
	)
	if err != nil {
		return fmt.Errorf("記事本文の更新に失敗しました: %w", err)
	}
	return nil
}

// Search はタイトルまたは本文に検索語を含む記事のIDを返す。
// 大文字小文字は区別せず、検索語中の % と _ はワイルドカードとして扱わない。
func (r *PostgresEntryRepo) Search(ctx context.Context, ownerID, term string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM entries
		 WHERE user_id = $1
		   AND (title ILIKE $2 ESCAPE '\' OR content ILIKE $2 ESCAPE '\')
		 ORDER BY id ASC`,
		ownerID, "%"+escapeLike(term)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("検索結果の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("検索結果の読み取りに失敗しました: %w", err)
	}
	return ids, nil
}

// ListByOwner はユーザーの全記事をID昇順で返す。
func (r *PostgresEntryRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE user_id = $1 ORDER BY id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*model.Entry, error) {
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンの特殊文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ EntryRepository = (*PostgresEntryRepo)(nil)
