// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限サイズ。
const maxJSONBodySize = 64 << 10

// entryResponse は記事のレスポンス。
type entryResponse struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"` // サニタイズ済みHTML
	IsFavorite bool      `json:"is_fav"`
	IsRead     bool      `json:"is_read"`
	Pending    bool      `json:"content_pending"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toEntryResponse(e *model.Entry) entryResponse {
	return entryResponse{
		ID:         e.ID,
		URL:        e.URL,
		Title:      e.Title,
		Content:    e.Content,
		IsFavorite: e.IsFavorite,
		IsRead:     e.IsRead,
		Pending:    e.ContentPending(),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// tagResponse はタグのレスポンス。
type tagResponse struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

func toTagResponses(tags []*model.Tag) []tagResponse {
	out := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagResponse{ID: t.ID, Value: t.Value})
	}
	return out
}

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードし、validateタグで検証する。
// 不正なJSONや上限サイズ超過、検証違反はINVALID_REQUESTとする。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.NewInvalidRequestError("リクエストボディが大きすぎます。")
		}
		if errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("リクエストボディが空です。")
		}
		return model.NewInvalidRequestError("リクエストボディのJSONが不正です。")
	}
	return validateRequest(v)
}

// requireUserID はセッションミドルウェアが設定したユーザーIDを返す。
// 取得できない場合は401を書き込み、okにfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// int64Param はURLパラメータを正のint64として解釈する。
func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidRequestError("IDが不正です: " + raw)
	}
	return id, nil
}
