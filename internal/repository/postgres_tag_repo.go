package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/readlater/internal/model"
)

// PostgresTagRepo はPostgreSQLを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// FindByValue は完全一致でタグを検索する。見つからない場合はnilを返す。
func (r *PostgresTagRepo) FindByValue(ctx context.Context, value string) (*model.Tag, error) {
	tag := &model.Tag{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, value FROM tags WHERE value = $1`,
		value,
	).Scan(&tag.ID, &tag.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タグの検索に失敗しました: %w", err)
	}
	return tag, nil
}

// Create はタグを作成する。
// 同じ値を同時に作成した場合でも一意制約の競合時に既存行を返すため、重複行はできない。
func (r *PostgresTagRepo) Create(ctx context.Context, value string) (*model.Tag, error) {
	tag := &model.Tag{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tags (value) VALUES ($1)
		 ON CONFLICT (value) DO UPDATE SET value = EXCLUDED.value
		 RETURNING id, value`,
		value,
	).Scan(&tag.ID, &tag.Value)
	if err != nil {
		return nil, fmt.Errorf("タグの作成に失敗しました: %w", err)
	}
	return tag, nil
}

// Link はタグを記事に関連付ける。
func (r *PostgresTagRepo) Link(ctx context.Context, tagID, entryID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries_tags (entry_id, tag_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		entryID, tagID,
	)
	if err != nil {
		return fmt.Errorf("タグの関連付けに失敗しました: %w", err)
	}
	return nil
}

// Unlink は関連付けを削除する。
func (r *PostgresTagRepo) Unlink(ctx context.Context, entryID, tagID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries_tags WHERE entry_id = $1 AND tag_id = $2`,
		entryID, tagID,
	)
	if err != nil {
		return false, fmt.Errorf("タグの関連付け解除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// CountLinks はタグに関連付けられた記事数を返す。
func (r *PostgresTagRepo) CountLinks(ctx context.Context, tagID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM entries_tags WHERE tag_id = $1`,
		tagID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("タグの関連付け数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Delete は関連付けが残っていない場合に限りタグを削除する。
// 削除までの間に別の記事へ関連付けられたタグはCASCADEで巻き込まれない。
func (r *PostgresTagRepo) Delete(ctx context.Context, tagID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tags t
		 WHERE t.id = $1
		   AND NOT EXISTS (SELECT 1 FROM entries_tags et WHERE et.tag_id = t.id)`,
		tagID,
	)
	if err != nil {
		return false, fmt.Errorf("タグの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ListForEntry は記事に関連付けられたタグを返す。
func (r *PostgresTagRepo) ListForEntry(ctx context.Context, entryID int64) ([]*model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.value FROM tags t
		 JOIN entries_tags et ON et.tag_id = t.id
		 WHERE et.entry_id = $1
		 ORDER BY t.id ASC`,
		entryID,
	)
	if err != nil {
		return nil, fmt.Errorf("記事のタグ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	for rows.Next() {
		tag := &model.Tag{}
		if err := rows.Scan(&tag.ID, &tag.Value); err != nil {
			return nil, fmt.Errorf("タグの読み取りに失敗しました: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タグの読み取りに失敗しました: %w", err)
	}
	return tags, nil
}

// ReassignTags はfromの記事の関連付けをtoの記事へ移す。
func (r *PostgresTagRepo) ReassignTags(ctx context.Context, fromEntryID, toEntryID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries_tags SET entry_id = $2
		 WHERE entry_id = $1
		   AND tag_id NOT IN (SELECT tag_id FROM entries_tags WHERE entry_id = $2)`,
		fromEntryID, toEntryID,
	)
	if err != nil {
		return fmt.Errorf("タグの付け替えに失敗しました: %w", err)
	}
	return nil
}

// DeleteOrphans はどの記事にも関連付けられていないタグを一括削除する。
func (r *PostgresTagRepo) DeleteOrphans(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tags t
		 WHERE NOT EXISTS (SELECT 1 FROM entries_tags et WHERE et.tag_id = t.id)`,
	)
	if err != nil {
		return 0, fmt.Errorf("未使用タグの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

var _ TagRepository = (*PostgresTagRepo)(nil)
