package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

const (
	testUserID    = "user-123"
	testSessionID = "valid-session"
	testCSRFToken = "csrf-token-for-tests"
)

// --- モック定義 ---

type mockSessionFinder struct{}

func (mockSessionFinder) FindByID(_ context.Context, id string) (*model.Session, error) {
	if id != testSessionID {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: testUserID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type mockEntryService struct {
	addFn            func(ctx context.Context, ownerID, rawURL string) (*model.Entry, error)
	deleteFn         func(ctx context.Context, ownerID string, entryID int64) error
	toggleFavoriteFn func(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error)
	toggleArchiveFn  func(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error)
	archiveAllFn     func(ctx context.Context, ownerID string) (int64, error)
	exportFn         func(ctx context.Context, ownerID string) ([]byte, string, error)
}

func (m *mockEntryService) Add(ctx context.Context, ownerID, rawURL string) (*model.Entry, error) {
	if m.addFn != nil {
		return m.addFn(ctx, ownerID, rawURL)
	}
	return &model.Entry{ID: 1, OwnerID: ownerID, URL: rawURL, Title: model.UntitledTitle}, nil
}

func (m *mockEntryService) Delete(ctx context.Context, ownerID string, entryID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, entryID)
	}
	return nil
}

func (m *mockEntryService) ToggleFavorite(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error) {
	if m.toggleFavoriteFn != nil {
		return m.toggleFavoriteFn(ctx, ownerID, entryID)
	}
	return &model.Entry{ID: entryID, OwnerID: ownerID, IsFavorite: true}, nil
}

func (m *mockEntryService) ToggleArchive(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error) {
	if m.toggleArchiveFn != nil {
		return m.toggleArchiveFn(ctx, ownerID, entryID)
	}
	return &model.Entry{ID: entryID, OwnerID: ownerID, IsRead: true}, nil
}

func (m *mockEntryService) ArchiveAll(ctx context.Context, ownerID string) (int64, error) {
	if m.archiveAllFn != nil {
		return m.archiveAllFn(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockEntryService) Export(ctx context.Context, ownerID string) ([]byte, string, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx, ownerID)
	}
	return []byte("[]"), "export.json", nil
}

type mockTagService struct {
	applyTagsFn func(ctx context.Context, ownerID string, entryID int64, rawTags []string) ([]*model.Tag, error)
	removeTagFn func(ctx context.Context, ownerID string, entryID, tagID int64) error
	searchFn    func(ctx context.Context, ownerID, term string) (int, error)
}

func (m *mockTagService) ApplyTags(ctx context.Context, ownerID string, entryID int64, rawTags []string) ([]*model.Tag, error) {
	if m.applyTagsFn != nil {
		return m.applyTagsFn(ctx, ownerID, entryID, rawTags)
	}
	return nil, nil
}

func (m *mockTagService) RemoveTag(ctx context.Context, ownerID string, entryID, tagID int64) error {
	if m.removeTagFn != nil {
		return m.removeTagFn(ctx, ownerID, entryID, tagID)
	}
	return nil
}

func (m *mockTagService) ApplyTagToSearchResults(ctx context.Context, ownerID, term string) (int, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, ownerID, term)
	}
	return 0, nil
}

type mockImportService struct {
	importFn func(ctx context.Context, ownerID string, payload []byte) (*model.ImportResult, error)
}

func (m *mockImportService) Import(ctx context.Context, ownerID string, payload []byte) (*model.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, ownerID, payload)
	}
	return &model.ImportResult{ImportID: "import-1", Format: model.ImportFormatRecordList}, nil
}

type mockBacklog struct {
	calls []bool // justUploaded
	fn    func(ctx context.Context, ownerID string, justUploaded bool) (*model.BacklogStatus, error)
}

func (m *mockBacklog) ProcessNextBatch(ctx context.Context, ownerID string, justUploaded bool) (*model.BacklogStatus, error) {
	m.calls = append(m.calls, justUploaded)
	if m.fn != nil {
		return m.fn(ctx, ownerID, justUploaded)
	}
	return &model.BacklogStatus{BatchSize: 5, DelayMs: 5000}, nil
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }

// --- ヘルパー ---

type testDeps struct {
	entries *mockEntryService
	tags    *mockTagService
	imports *mockImportService
	backlog *mockBacklog
	db      mockPinger
	limits  *middleware.RateLimiterConfig
}

func newTestRouter(t *testing.T, d testDeps) http.Handler {
	t.Helper()
	if d.entries == nil {
		d.entries = &mockEntryService{}
	}
	if d.tags == nil {
		d.tags = &mockTagService{}
	}
	if d.imports == nil {
		d.imports = &mockImportService{}
	}
	if d.backlog == nil {
		d.backlog = &mockBacklog{}
	}
	limits := middleware.DefaultRateLimiterConfig()
	if d.limits != nil {
		limits = *d.limits
	}
	rl := middleware.NewRateLimiter(limits)
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionFinder:  mockSessionFinder{},
		RateLimiter:    rl,
		DB:             d.db,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "# metrics\n") }),
		EntryService:   d.entries,
		TagService:     d.tags,
		ImportService:  d.imports,
		Backlog:        d.backlog,
		MaxUploadSize:  1 << 20,
	})
}

// newAuthedRequest はセッションCookieとCSRFトークンを付けたリクエストを生成する。
func newAuthedRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: testSessionID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v (raw %q)", err, w.Body.String())
	}
	return body.Code
}

var errBoom = errors.New("boom")
