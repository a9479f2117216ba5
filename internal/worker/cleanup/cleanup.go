// Package cleanup は関連付けの無くなったタグと期限切れセッションを削除する一括ジョブを提供する。
//
// 通常、タグは記事から外された時点で削除されるが、同時実行による取りこぼしや
// サービス層を経由しない記事のCASCADE削除で残ったタグをこのジョブで回収する。
// cleanupサブコマンドから1回だけ実行される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/readlater/internal/metrics"
)

// OrphanTagDeleter は関連付けの無いタグを一括削除するインターフェース。
// repository.TagRepositoryが実装する。
type OrphanTagDeleter interface {
	DeleteOrphans(ctx context.Context) (int64, error)
}

// ExpiredSessionDeleter は期限切れセッションを一括削除するインターフェース。
// repository.SessionRepositoryが実装する。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Result はジョブ1回分の削除件数。
type Result struct {
	DeletedTags     int64
	DeletedSessions int64
}

// CleanupJob は孤立タグと期限切れセッションの削除ジョブ。
// 冪等であり、削除対象が無くてもエラーにならない。
type CleanupJob struct {
	tags     OrphanTagDeleter
	sessions ExpiredSessionDeleter
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
// sessionsがnilの場合はセッションの削除を行わない。
func NewCleanupJob(tags OrphanTagDeleter, sessions ExpiredSessionDeleter, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tags:     tags,
		sessions: sessions,
		metrics:  collector,
		logger:   logger,
	}
}

// Run は孤立タグを削除し、続けて期限切れセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	deleted, err := j.tags.DeleteOrphans(ctx)
	if err != nil {
		j.logger.Error("孤立タグの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("孤立タグの削除に失敗: %w", err)
	}
	result.DeletedTags = deleted
	j.metrics.RecordTagsCollected(int(deleted))

	if j.sessions != nil {
		deleted, err := j.sessions.DeleteExpired(ctx)
		if err != nil {
			j.logger.Error("期限切れセッションの削除に失敗しました",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
		}
		result.DeletedSessions = deleted
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_tags", result.DeletedTags),
		slog.Int64("deleted_sessions", result.DeletedSessions),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}
