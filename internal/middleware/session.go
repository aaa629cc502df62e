// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memberboard/internal/model"
	"github.com/hitoshi/memberboard/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey   = contextKey("session")
	requestIDContextKey = contextKey("request_id")
	csrfTokenContextKey = contextKey("csrf_token")
)

// NewSessionMiddleware はセッションストアからセッションを読み込み、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストも拒否しない。閲覧可否の判定はハンドラーが行う。
func NewSessionMiddleware(store session.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Load(r)
			if err != nil {
				// ストアの障害時は未ログインとして扱う
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				sess = nil
			}

			if sess != nil {
				r = r.WithContext(ContextWithSession(r.Context(), sess))
				if fields, ok := r.Context().Value(logFieldsContextKey).(*logFields); ok && sess.IsAuthenticated() {
					fields.userID = sess.ExternalUserID
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 未ログインの場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionContextKey).(*model.Session)
	return sess
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// UserIDFromContext は検証済みセッションのユーザーIDを返す。
// 未ログインまたはメンバー未確認の場合は空文字列とfalseを返す。
func UserIDFromContext(ctx context.Context) (string, bool) {
	sess := SessionFromContext(ctx)
	if !sess.IsAuthenticated() {
		return "", false
	}
	return sess.ExternalUserID, true
}
