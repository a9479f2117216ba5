package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

// TagServiceInterface はタグハンドラーが必要とするサービスインターフェース。
// tag.Managerが実装する。
type TagServiceInterface interface {
	ApplyTags(ctx context.Context, ownerID string, entryID int64, rawTags []string) ([]*model.Tag, error)
	RemoveTag(ctx context.Context, ownerID string, entryID, tagID int64) error
	ApplyTagToSearchResults(ctx context.Context, ownerID, term string) (int, error)
}

// TagHandler はタグ付けのHTTPハンドラー。
type TagHandler struct {
	service TagServiceInterface
}

// NewTagHandler はTagHandlerを生成する。
func NewTagHandler(service TagServiceInterface) *TagHandler {
	return &TagHandler{service: service}
}

type applyTagsRequest struct {
	Tags string `json:"tags" validate:"max=1024"` // カンマ区切り
}

type searchTagRequest struct {
	Search string `json:"search" validate:"required,max=255"`
}

// ApplyTags は記事にカンマ区切りのタグを付与し、新たに付いたタグを返す。
// POST /api/entries/{id}/tags
func (h *TagHandler) ApplyTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	entryID, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var req applyTagsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	applied, err := h.service.ApplyTags(r.Context(), userID, entryID, model.SplitTags(req.Tags))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": toTagResponses(applied)})
}

// RemoveTag は記事からタグを外す。
// DELETE /api/entries/{id}/tags/{tagID}
func (h *TagHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	entryID, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	tagID, err := int64Param(r, "tagID")
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.RemoveTag(r.Context(), userID, entryID, tagID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TagSearchResults は検索語に一致する記事すべてに検索語をタグとして付与する。
// POST /api/tags/search
func (h *TagHandler) TagSearchResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req searchTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	n, err := h.service.ApplyTagToSearchResults(r.Context(), userID, req.Search)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tagged": n})
}
