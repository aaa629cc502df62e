// Package model はドメインモデルを定義する。
package model

import "time"

// Session は認証済みかつグループ所属が確認されたプリンシパルを表す。
// サーバー側ではリクエスト/セッションの範囲を超えて永続化しない。
type Session struct {
	// IdPが発行するユーザー識別子。一度設定したら変更しない。
	ExternalUserID string
	// 表示名。再認証でのみ更新される。
	DisplayName string
	// アバターの参照（IdP上のアバターハッシュ）。未設定の場合は空文字列。
	AvatarRef string
	// メンバーシップ確認を通過した場合のみtrue。
	IsVerifiedMember bool
	// セッションの有効期限。セッションストアが設定する。
	ExpiresAt time.Time
}

// IsAuthenticated はセッションが掲示板への読み書きを許可されているかを判定する。
// nilセッションおよびメンバー未確認のセッションはfalseを返す。
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.IsVerifiedMember && s.ExternalUserID != ""
}
