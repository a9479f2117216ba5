package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

// EntryServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
// entry.Serviceが実装する。
type EntryServiceInterface interface {
	Add(ctx context.Context, ownerID, rawURL string) (*model.Entry, error)
	Delete(ctx context.Context, ownerID string, entryID int64) error
	ToggleFavorite(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error)
	ToggleArchive(ctx context.Context, ownerID string, entryID int64) (*model.Entry, error)
	ArchiveAll(ctx context.Context, ownerID string) (int64, error)
	Export(ctx context.Context, ownerID string) ([]byte, string, error)
}

// EntryHandler は記事管理のHTTPハンドラー。
type EntryHandler struct {
	service EntryServiceInterface
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(service EntryServiceInterface) *EntryHandler {
	return &EntryHandler{service: service}
}

type addEntryRequest struct {
	URL string `json:"url" validate:"max=2048"`
}

type addEntryResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Redirect string        `json:"redirect"`
	Entry    entryResponse `json:"entry"`
}

// Add はURLを記事として保存する。
// POST /api/entries
func (h *EntryHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		middleware.WriteError(w, r, model.NewInvalidURLError("URLを指定してください"))
		return
	}

	entry, err := h.service.Add(r.Context(), userID, req.URL)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, addEntryResponse{
		Status:   "success",
		Message:  "記事を保存しました。",
		Redirect: "/",
		Entry:    toEntryResponse(entry),
	})
}

// Delete は記事を削除する。
// DELETE /api/entries/{id}
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite はお気に入り状態を反転する。
// POST /api/entries/{id}/favorite
func (h *EntryHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleFavorite)
}

// ToggleArchive は既読状態を反転する。
// POST /api/entries/{id}/archive
func (h *EntryHandler) ToggleArchive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleArchive)
}

func (h *EntryHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int64) (*model.Entry, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, err := fn(r.Context(), userID, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// ArchiveAll は未読の記事をすべて既読にする。
// POST /api/entries/archive
func (h *EntryHandler) ArchiveAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.ArchiveAll(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"archived": n})
}

// Export は全記事をJSONファイルとしてダウンロードさせる。
// GET /api/entries/export
func (h *EntryHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	data, filename, err := h.service.Export(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
