package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/repository"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 401の場合はWWW-Authenticate: Bearerを付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError は任意のエラーをAPIErrorに変換し、対応するステータスコードで書き込む。
// APIError以外の原因はログにのみ記録する。
func WriteError(w http.ResponseWriter, err error) {
	apiErr := ToAPIError(err)
	WriteErrorResponse(w, HTTPStatus(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// ToAPIError はエラーをAPIErrorに変換する。
// ストア障害とタイムアウトはSTORE_ERROR、それ以外はINTERNAL_ERRORとする。
func ToAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, repository.ErrStore) || errors.Is(err, context.DeadlineExceeded) {
		slog.Error("store error", slog.String("error", err.Error()))
		return model.NewStoreError()
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	return model.NewInternalError()
}

// HTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func HTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeInactiveAccount, model.ErrCodeUserAlreadyExists, model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeStationNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
