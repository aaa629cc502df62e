// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/model"
	"github.com/hitoshi/memberboard/internal/session"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	BeginLogin(state string) string
	CompleteLogin(ctx context.Context, code string) (*model.Session, error)
	Logout(sess *model.Session)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthService
	store   session.Store
	views   *Views
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, store session.Store, views *Views, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		store:   store,
		views:   views,
		config:  config,
	}
}

// Login はDiscord OAuthフローを開始する。
// GET /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		h.views.RenderError(w, r, "ログインエラー", model.NewInternalError())
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, oauthStateMaxAge))

	http.Redirect(w, r, h.service.BeginLogin(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /callback?code=xxx&state=yyy
//
// 失敗種別ごとに異なるエラーページを返す。いずれの失敗も終端であり、
// 再試行はユーザーが /login からやり直す。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// stateクッキーは1回限り
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)
	http.SetCookie(w, h.stateCookie("", -1))

	// 1. IdP側でのエラー（同意の拒否など）
	if providerErr := query.Get("error"); providerErr != "" {
		h.fail(w, r, fmt.Errorf("%w: %s", model.ErrProviderDenied, providerErr))
		return
	}

	// 2. 認可コードの存在確認。外部呼び出しは行われない。
	code := query.Get("code")
	if code == "" {
		// サービスに判定させ、結果をメトリクスに残す
		if _, err := h.service.CompleteLogin(r.Context(), ""); err != nil {
			h.fail(w, r, err)
			return
		}
		h.fail(w, r, model.ErrMissingCode)
		return
	}

	// 3. stateの検証（CSRF対策）
	state := query.Get("state")
	if cookieErr != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		h.fail(w, r, model.ErrInvalidState)
		return
	}

	// 4. 認証処理
	sess, err := h.service.CompleteLogin(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// 5. セッションを保存
	if err := h.store.Save(w, r, sess); err != nil {
		slog.Error("failed to save session",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID(r)),
		)
		h.views.RenderError(w, r, "ログインエラー", model.NewInternalError())
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(middleware.SessionFromContext(r.Context()))

	if err := h.store.Clear(w, r); err != nil {
		// 削除に失敗してもCookieはクリア済み
		slog.Error("failed to clear session", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("oauth callback failed",
		slog.String("error", err.Error()),
		slog.String("request_id", requestID(r)),
	)
	h.views.RenderError(w, r, "ログインできませんでした", model.NewAuthFailureError(err))
}

func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
