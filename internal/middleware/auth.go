// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// subjectHolderKey はロギングミドルウェアへsubjectを書き戻すためのホルダーのキー。
	subjectHolderKey = contextKey("subject_holder")
)

// subjectHolder は外側のミドルウェアが内側で確定したsubjectを受け取るための入れ物。
type subjectHolder struct {
	subject string
}

func contextWithSubjectHolder(ctx context.Context, h *subjectHolder) context.Context {
	return context.WithValue(ctx, subjectHolderKey, h)
}

func recordSubject(ctx context.Context, subject string) {
	if h, ok := ctx.Value(subjectHolderKey).(*subjectHolder); ok {
		h.subject = subject
	}
}

// Authorizer はベアラートークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*model.User, error)
	RequireActive(user *model.User) (*model.User, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 有効かつ無効化されていないユーザーをリクエストコンテキストに注入するミドルウェアを返す。
//
// トークンなし・不正・期限切れは401（WWW-Authenticate: Bearer付き）、
// 無効化されたユーザーは400 INACTIVE_ACCOUNTを返す。
func NewBearerAuthMiddleware(authz Authorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token, ok := bearerToken(r)
			if !ok {
				WriteError(w, model.NewUnauthenticatedError())
				return
			}

			// 2. トークンを検証してユーザーを解決
			user, err := authz.Authorize(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			// 3. 無効化されたアカウントを拒否
			user, err = authz.RequireActive(user)
			if err != nil {
				WriteError(w, err)
				return
			}

			recordSubject(r.Context(), user.Username)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// bearerToken は "Authorization: Bearer <token>" からトークンを取り出す。スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// ベアラー認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// SubjectFromContext は認証済みユーザーのsubject（ユーザー名）を返す。未認証の場合は空文字列。
func SubjectFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.Username
	}
	return ""
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
