package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

// ImportServiceInterface はインポートファイルの取り込みを行うサービスインターフェース。
// importer.Serviceが実装する。
type ImportServiceInterface interface {
	Import(ctx context.Context, ownerID string, payload []byte) (*model.ImportResult, error)
}

// BacklogProcessorInterface はバックログ処理のインターフェース。
// backlog.Processorが実装する。
type BacklogProcessorInterface interface {
	ProcessNextBatch(ctx context.Context, ownerID string, justUploaded bool) (*model.BacklogStatus, error)
}

// ImportHandler はインポートとバックログ処理のHTTPハンドラー。
type ImportHandler struct {
	importer      ImportServiceInterface
	backlog       BacklogProcessorInterface
	maxUploadSize int64
}

// NewImportHandler はImportHandlerを生成する。
func NewImportHandler(importer ImportServiceInterface, backlog BacklogProcessorInterface, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{
		importer:      importer,
		backlog:       backlog,
		maxUploadSize: maxUploadSize,
	}
}

// importProgressResponse はバックログが残っている場合の継続レスポンス。
// クライアントはDelayMsミリ秒後にPOST /api/import/nextを呼び出す。
type importProgressResponse struct {
	Status                  string `json:"status"`
	RecordsDownloadRequired int    `json:"records_download_required"`
	RecordsUnderDownload    int    `json:"records_under_download"`
	DelayMs                 int    `json:"delay_ms"`
	ImportID                string `json:"import_id,omitempty"`
	Inserted                *int   `json:"inserted,omitempty"`
}

type importFinishedResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ImportID string `json:"import_id,omitempty"`
	Inserted *int   `json:"inserted,omitempty"`
}

// Upload はmultipartのfileフィールドのインポートファイルを取り込む。
// アップロード直後は本文の取得を行わず、残件数のみを返す。
// POST /api/import
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	payload, err := h.readUpload(w, r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	result, err := h.importer.Import(r.Context(), userID, payload)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	status, err := h.backlog.ProcessNextBatch(r.Context(), userID, true)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeBacklogStatus(w, status, result)
}

// Next はバックログを1バッチ処理する。
// POST /api/import/next
func (h *ImportHandler) Next(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.backlog.ProcessNextBatch(r.Context(), userID, false)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeBacklogStatus(w, status, nil)
}

// readUpload はアップロードされたファイルを上限サイズまで読み込む。
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewInvalidRequestError("インポートファイルが大きすぎます。")
		}
		return nil, model.NewImportFileMissingError()
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, model.NewImportFileMissingError()
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		slog.Warn("failed to read import file", slog.String("error", err.Error()))
		return nil, model.NewImportFileMissingError()
	}
	return payload, nil
}

// writeBacklogStatus は残件数に応じて継続レスポンス(202)または完了レスポンス(200)を書き込む。
func writeBacklogStatus(w http.ResponseWriter, status *model.BacklogStatus, result *model.ImportResult) {
	var importID string
	var inserted *int
	if result != nil {
		importID = result.ImportID
		n := result.Inserted
		inserted = &n
	}

	if status.Done() {
		writeJSON(w, http.StatusOK, importFinishedResponse{
			Status:   "finished",
			Message:  "Import finished.",
			ImportID: importID,
			Inserted: inserted,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, importProgressResponse{
		Status:                  "in_progress",
		RecordsDownloadRequired: status.Remaining,
		RecordsUnderDownload:    status.BatchSize,
		DelayMs:                 status.DelayMs,
		ImportID:                importID,
		Inserted:                inserted,
	})
}
