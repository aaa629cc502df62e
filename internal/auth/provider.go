// Package auth はOAuth2認可コードフロー、グループ所属の検証、セッションの生成を提供する。
package auth

import "context"

// Group はIdP上のグループ（Discordではサーバー/ギルド）を表す。
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile はIdPから取得したユーザー情報を表す。
type Profile struct {
	UserID    string
	Username  string
	AvatarRef string // アバターハッシュ。未設定の場合は空文字列。
}

// IdentityProvider はOAuth2 IdPとの通信を抽象化するインターフェース。
// 各メソッドは1回の外部呼び出しに対応し、リトライは行わない。
type IdentityProvider interface {
	// GetLoginURL はIdPの認可エンドポイントへのリダイレクトURLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchGroups はアクセストークンの持ち主が所属するグループ一覧を取得する。
	FetchGroups(ctx context.Context, accessToken string) ([]Group, error)
	// FetchProfile はアクセストークンの持ち主のプロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}
