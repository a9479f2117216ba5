package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/readlater/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はエラーコードに対応するHTTPステータス。
var statusByCode = map[string]int{
	model.ErrCodeEntryNotFound:     http.StatusNotFound,
	model.ErrCodeTagNotFound:       http.StatusNotFound,
	model.ErrCodeInvalidURL:        http.StatusBadRequest,
	model.ErrCodeSSRFBlocked:       http.StatusBadRequest,
	model.ErrCodeFetchFailed:       http.StatusBadGateway,
	model.ErrCodeInsertFailed:      http.StatusInternalServerError,
	model.ErrCodeImportParseFailed: http.StatusUnprocessableEntity,
	model.ErrCodeImportFileMissing: http.StatusBadRequest,
	model.ErrCodeInvalidRequest:    http.StatusBadRequest,
	model.ErrCodeUnauthorized:      http.StatusUnauthorized,
	model.ErrCodeCSRFInvalid:       http.StatusForbidden,
	model.ErrCodeRateLimited:       http.StatusTooManyRequests,
	model.ErrCodeInternal:          http.StatusInternalServerError,
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
// 未知のコードは500とする。
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はerrを統一エラーフォーマットで書き込む。
// *model.APIErrorはコードに対応するステータスで返し、それ以外は詳細をログにのみ記録して500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
