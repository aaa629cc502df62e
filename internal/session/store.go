// Package session はログイン後のセッションをリクエスト間で保持するストアを提供する。
//
// 2種類の実装がある。
//   - CookieStore: セッション内容を署名付きJWTとしてCookieに保存する（デフォルト）
//   - ServerStore: PostgreSQLに保存し、CookieにはランダムなIDのみを持たせる
package session

import (
	"net/http"
	"time"

	"github.com/hitoshi/memberboard/internal/model"
)

// DefaultCookieName はセッションCookieの名前。
const DefaultCookieName = "memberboard_session"

// Store はリクエストごとのセッションの読み書きを行う。
// ハンドラーはこのインターフェースを介してのみセッションにアクセスする。
type Store interface {
	// Load はリクエストに紐づくセッションを返す。
	// セッションが存在しない、改ざんされている、期限切れの場合はnilを返す。
	Load(r *http.Request) (*model.Session, error)
	// Save はセッションを保存し、レスポンスにCookieを設定する。
	Save(w http.ResponseWriter, r *http.Request, sess *model.Session) error
	// Clear はセッションを破棄し、Cookieを削除する。
	Clear(w http.ResponseWriter, r *http.Request) error
}

// CookieOptions はセッションCookieの属性。
type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 24 * time.Hour
	}
	return o
}

func (o CookieOptions) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		MaxAge:   int(o.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) expired() *http.Cookie {
	c := o.cookie("")
	c.MaxAge = -1
	return c
}
