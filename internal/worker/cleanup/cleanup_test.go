package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/readlater/internal/metrics"
	"github.com/hitoshi/readlater/internal/repository/repotest"
)

type mockSessions struct {
	called  bool
	deleted int64
	err     error
}

func (m *mockSessions) DeleteExpired(_ context.Context) (int64, error) {
	m.called = true
	return m.deleted, m.err
}

type mockTags struct {
	deleted int64
	err     error
}

func (m *mockTags) DeleteOrphans(_ context.Context) (int64, error) {
	return m.deleted, m.err
}

type collectedMetrics struct {
	metrics.Nop
	collected int
}

func (m *collectedMetrics) RecordTagsCollected(n int) { m.collected += n }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行から指定キーの値を探す。
func findLogField(buf *bytes.Buffer, key string) (interface{}, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestCleanupJob_Run_DeletesOrphanTags(t *testing.T) {
	var buf bytes.Buffer
	store := repotest.NewStore()
	store.SeedTag("orphan-1")
	store.SeedTag("orphan-2")
	m := &collectedMetrics{}
	sessions := &mockSessions{deleted: 3}

	job := NewCleanupJob(store.Tags(), sessions, m, newTestLogger(&buf))
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if result.DeletedTags != 2 || result.DeletedSessions != 3 {
		t.Errorf("result = %+v, want DeletedTags=2 DeletedSessions=3", result)
	}
	if store.TagCount() != 0 {
		t.Errorf("TagCount = %d, want 0", store.TagCount())
	}
	if m.collected != 2 {
		t.Errorf("RecordTagsCollected = %d, want 2", m.collected)
	}
	if v, ok := findLogField(&buf, "deleted_tags"); !ok || v != float64(2) {
		t.Errorf("ログに deleted_tags=2 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockTags{}, nil, metrics.Nop{}, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		result, err := job.Run(context.Background())
		if err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
		if result.DeletedTags != 0 {
			t.Errorf("DeletedTags = %d, want 0", result.DeletedTags)
		}
	}

	if v, ok := findLogField(&buf, "deleted_tags"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_tags=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnTagFailure(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessions{}
	job := NewCleanupJob(&mockTags{err: sql.ErrConnDone}, sessions, metrics.Nop{}, newTestLogger(&buf))

	_, err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("error = %v, want sql.ErrConnDone", err)
	}
	if sessions.called {
		t.Error("タグの削除に失敗した場合はセッションの削除を行わない")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnSessionFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockTags{deleted: 1}, &mockSessions{err: sql.ErrConnDone}, metrics.Nop{}, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("error = %v, want sql.ErrConnDone", err)
	}
}
