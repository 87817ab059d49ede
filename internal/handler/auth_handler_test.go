package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// --- モック定義 ---

// mockTokenService はTokenServiceInterfaceのモック実装。
type mockTokenService struct {
	loginFn func(ctx context.Context, username, password string) (string, error)
}

func (m *mockTokenService) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", model.NewInvalidCredentialsError()
}

func acceptingTokenService() *mockTokenService {
	return &mockTokenService{
		loginFn: func(ctx context.Context, username, password string) (string, error) {
			if username == "jose" && password == "s3cret" {
				return "signed-token", nil
			}
			return "", model.NewInvalidCredentialsError()
		},
	}
}

// --- テスト ---

func TestAuthHandler_Token_Form(t *testing.T) {
	h := NewAuthHandler(acceptingTokenService())

	form := url.Values{"username": {"jose"}, "password": {"s3cret"}, "grant_type": {"password"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var body tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "signed-token" || body.TokenType != "bearer" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuthHandler_Token_JSON(t *testing.T) {
	h := NewAuthHandler(acceptingTokenService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/token",
		strings.NewReader(`{"username":"jose","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

// 資格情報の不一致が401とWWW-Authenticateになることを検証
func TestAuthHandler_Token_BadCredentials(t *testing.T) {
	h := NewAuthHandler(acceptingTokenService())

	form := url.Values{"username": {"jose"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Token(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
	if body := decodeAPIError(t, w); body["code"] != model.ErrCodeUnauthenticated {
		t.Errorf("code = %q", body["code"])
	}
}

func TestAuthHandler_Token_MalformedRequests(t *testing.T) {
	called := false
	svc := &mockTokenService{
		loginFn: func(ctx context.Context, username, password string) (string, error) {
			called = true
			return "x", nil
		},
	}
	h := NewAuthHandler(svc)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"missing password", "application/x-www-form-urlencoded", "username=jose"},
		{"empty form", "application/x-www-form-urlencoded", ""},
		{"broken json", "application/json", `{"username":`},
		{"json without username", "application/json", `{"password":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			h.Token(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if called {
				t.Error("Login should not be called")
			}
		})
	}
}
