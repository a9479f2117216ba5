package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/hitoshi/readlater/internal/model"
)

// newUploadRequest はfileフィールドにpayloadを持つmultipartリクエストを生成する。
func newUploadRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "export.json")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(payload)
	}
	mw.Close()

	req := newAuthedRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportHandler_Upload_InProgress(t *testing.T) {
	var gotPayload string
	imports := &mockImportService{
		importFn: func(_ context.Context, ownerID string, payload []byte) (*model.ImportResult, error) {
			if ownerID != testUserID {
				t.Errorf("ownerID = %q", ownerID)
			}
			gotPayload = string(payload)
			return &model.ImportResult{ImportID: "import-9", Records: 12, Inserted: 12}, nil
		},
	}
	backlog := &mockBacklog{
		fn: func(context.Context, string, bool) (*model.BacklogStatus, error) {
			return &model.BacklogStatus{Remaining: 12, BatchSize: 5, DelayMs: 5000}, nil
		},
	}
	router := newTestRouter(t, testDeps{imports: imports, backlog: backlog})

	w := serve(router, newUploadRequest(t, "file", []byte(`[{"url":"https://a.test"}]`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	if gotPayload != `[{"url":"https://a.test"}]` {
		t.Errorf("payload = %q", gotPayload)
	}
	if len(backlog.calls) != 1 || !backlog.calls[0] {
		t.Errorf("backlog calls = %v, want [true]", backlog.calls)
	}

	var resp importProgressResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "in_progress" || resp.RecordsDownloadRequired != 12 || resp.RecordsUnderDownload != 5 || resp.DelayMs != 5000 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ImportID != "import-9" || resp.Inserted == nil || *resp.Inserted != 12 {
		t.Errorf("import fields = %q / %v", resp.ImportID, resp.Inserted)
	}
}

func TestImportHandler_Upload_FinishedWhenNothingPending(t *testing.T) {
	router := newTestRouter(t, testDeps{})

	w := serve(router, newUploadRequest(t, "file", []byte(`[]`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp importFinishedResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "finished" || resp.Message != "Import finished." {
		t.Errorf("resp = %+v", resp)
	}
}

func TestImportHandler_Upload_Errors(t *testing.T) {
	t.Run("ファイルなし", func(t *testing.T) {
		backlog := &mockBacklog{}
		router := newTestRouter(t, testDeps{backlog: backlog})

		w := serve(router, newUploadRequest(t, "", nil))
		if w.Code != http.StatusBadRequest || decodeErrorCode(t, w) != model.ErrCodeImportFileMissing {
			t.Errorf("status = %d, want 400 IMPORT_FILE_MISSING", w.Code)
		}
		if len(backlog.calls) != 0 {
			t.Errorf("backlog should not be called")
		}
	})

	t.Run("別名のフィールド", func(t *testing.T) {
		router := newTestRouter(t, testDeps{})

		w := serve(router, newUploadRequest(t, "upload", []byte(`[]`)))
		if w.Code != http.StatusBadRequest || decodeErrorCode(t, w) != model.ErrCodeImportFileMissing {
			t.Errorf("status = %d, want 400 IMPORT_FILE_MISSING", w.Code)
		}
	})

	t.Run("解析失敗", func(t *testing.T) {
		imports := &mockImportService{
			importFn: func(context.Context, string, []byte) (*model.ImportResult, error) {
				return nil, model.NewImportParseFailedError()
			},
		}
		router := newTestRouter(t, testDeps{imports: imports})

		w := serve(router, newUploadRequest(t, "file", []byte("garbage")))
		if w.Code != http.StatusUnprocessableEntity || decodeErrorCode(t, w) != model.ErrCodeImportParseFailed {
			t.Errorf("status = %d, want 422 IMPORT_PARSE_FAILED", w.Code)
		}
	})

	t.Run("サイズ超過", func(t *testing.T) {
		router := newTestRouter(t, testDeps{})

		w := serve(router, newUploadRequest(t, "file", bytes.Repeat([]byte("x"), 2<<20)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestImportHandler_Next(t *testing.T) {
	backlog := &mockBacklog{
		fn: func(context.Context, string, bool) (*model.BacklogStatus, error) {
			return &model.BacklogStatus{Remaining: 3, BatchSize: 5, DelayMs: 5000, Processed: 5}, nil
		},
	}
	router := newTestRouter(t, testDeps{backlog: backlog})

	w := serve(router, newAuthedRequest(http.MethodPost, "/api/import/next", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(backlog.calls) != 1 || backlog.calls[0] {
		t.Errorf("backlog calls = %v, want [false]", backlog.calls)
	}

	var raw map[string]any
	json.NewDecoder(w.Body).Decode(&raw)
	if _, ok := raw["import_id"]; ok {
		t.Error("import_id should be omitted for /next")
	}
	if raw["records_download_required"] != float64(3) {
		t.Errorf("records_download_required = %v", raw["records_download_required"])
	}
}

func TestImportHandler_Next_Error(t *testing.T) {
	backlog := &mockBacklog{
		fn: func(context.Context, string, bool) (*model.BacklogStatus, error) {
			return nil, errBoom
		},
	}
	router := newTestRouter(t, testDeps{backlog: backlog})

	w := serve(router, newAuthedRequest(http.MethodPost, "/api/import/next", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
