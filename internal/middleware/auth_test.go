package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/repository"
)

// --- モック定義 ---

// mockAuthorizer はAuthorizerのモック実装。
type mockAuthorizer struct {
	authorizeFn     func(ctx context.Context, token string) (*model.User, error)
	requireActiveFn func(user *model.User) (*model.User, error)
}

func (m *mockAuthorizer) Authorize(ctx context.Context, token string) (*model.User, error) {
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx, token)
	}
	return nil, model.NewUnauthenticatedError()
}

func (m *mockAuthorizer) RequireActive(user *model.User) (*model.User, error) {
	if m.requireActiveFn != nil {
		return m.requireActiveFn(user)
	}
	if user.Disabled {
		return nil, model.NewInactiveAccountError()
	}
	return user, nil
}

// tokenAuthorizer は "good" と "disabled" だけを受け付ける。
func tokenAuthorizer() *mockAuthorizer {
	return &mockAuthorizer{
		authorizeFn: func(ctx context.Context, token string) (*model.User, error) {
			switch token {
			case "good":
				return &model.User{Username: "jose"}, nil
			case "disabled":
				return &model.User{Username: "old", Disabled: true}, nil
			case "store-down":
				return nil, repository.ErrStore
			}
			return nil, model.NewUnauthenticatedError()
		},
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

// 有効なトークンでユーザーがコンテキストに注入されることを検証
func TestBearerAuthMiddleware_ValidToken(t *testing.T) {
	var captured string
	handler := NewBearerAuthMiddleware(tokenAuthorizer())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("user should be in context")
			return
		}
		captured = user.Username
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "jose" {
		t.Errorf("subject = %q, want %q", captured, "jose")
	}
}

func TestBearerAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	handler := NewBearerAuthMiddleware(tokenAuthorizer())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestBearerAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"basic scheme", "Basic am9zZTpwdw==", http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"empty token", "Bearer ", http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"disabled account", "Bearer disabled", http.StatusBadRequest, model.ErrCodeInactiveAccount},
		{"store failure", "Bearer store-down", http.StatusInternalServerError, model.ErrCodeStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewBearerAuthMiddleware(tokenAuthorizer())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if called {
				t.Error("next handler should not be called")
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeErrorBody(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}

			gotChallenge := w.Header().Get("WWW-Authenticate")
			if tt.wantStatus == http.StatusUnauthorized && gotChallenge != "Bearer" {
				t.Errorf("WWW-Authenticate = %q, want Bearer", gotChallenge)
			}
			if tt.wantStatus != http.StatusUnauthorized && gotChallenge != "" {
				t.Errorf("WWW-Authenticate should not be set for %d", tt.wantStatus)
			}
		})
	}
}

// Authorizeの後にRequireActiveが呼ばれることを検証
func TestBearerAuthMiddleware_RequireActiveAfterAuthorize(t *testing.T) {
	var order []string
	authz := &mockAuthorizer{
		authorizeFn: func(ctx context.Context, token string) (*model.User, error) {
			order = append(order, "authorize")
			return &model.User{Username: "jose"}, nil
		},
		requireActiveFn: func(user *model.User) (*model.User, error) {
			order = append(order, "requireActive")
			return nil, errors.New("unexpected")
		},
	}
	handler := NewBearerAuthMiddleware(authz)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(order) != 2 || order[0] != "authorize" || order[1] != "requireActive" {
		t.Errorf("call order = %v", order)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("expected no user in empty context")
	}
	if s := SubjectFromContext(context.Background()); s != "" {
		t.Errorf("subject = %q, want empty", s)
	}

	ctx := ContextWithUser(context.Background(), &model.User{Username: "ana"})
	if s := SubjectFromContext(ctx); s != "ana" {
		t.Errorf("subject = %q, want ana", s)
	}
}
