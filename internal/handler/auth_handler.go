// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// maxCredentialsBody は /token・/users のリクエストボディの上限（バイト）。
const maxCredentialsBody = 64 << 10

// TokenServiceInterface はトークンハンドラーが必要とするサービスインターフェース。
type TokenServiceInterface interface {
	// Login は資格情報を検証してアクセストークンを発行する。
	Login(ctx context.Context, username, password string) (string, error)
}

// AuthHandler はアクセストークン発行のHTTPハンドラー。
type AuthHandler struct {
	service TokenServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service TokenServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// tokenRequest はJSON形式のトークン要求。
type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token はユーザー名とパスワードからアクセストークンを発行する。
// OAuth2パスワードフローのフォーム（application/x-www-form-urlencoded）とJSONの両方を受け付ける。
// POST /api/v1/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBody)

	username, password, err := readCredentials(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if username == "" || password == "" {
		writeAPIErrorResponse(w, model.NewValidationError("username y password son obligatorios"))
		return
	}

	token, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// readCredentials はContent-Typeに応じてフォームまたはJSONから資格情報を読み取る。
func readCredentials(r *http.Request) (string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", model.NewValidationError("cuerpo JSON inválido")
		}
		return req.Username, req.Password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", model.NewValidationError("formulario inválido")
	}
	return r.PostForm.Get("username"), r.PostForm.Get("password"), nil
}
