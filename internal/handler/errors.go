package handler

import (
	"net/http"

	"github.com/josemqu/precio-nafta-api/internal/middleware"
	"github.com/josemqu/precio-nafta-api/internal/model"
)

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーはSTORE_ERRORまたはINTERNAL_ERRORとして扱い、原因はログのみに残す。
func handleServiceError(w http.ResponseWriter, err error) {
	writeAPIErrorResponse(w, middleware.ToAPIError(err))
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// ミドルウェアと同じ対応表を使う。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	return middleware.HTTPStatus(apiErr)
}
