package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/memberboard/internal/model"
)

// ErrorResponseBody はエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでJSONエラーレスポンスを書き込む。
// ミドルウェアで打ち切ったリクエストに使う。画面を返すハンドラーはビューでエラーを表示する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
