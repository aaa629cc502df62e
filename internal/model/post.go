package model

import "time"

// Post は掲示板の1件の投稿を表す。
// 作成後は不変であり、編集・削除の操作は存在しない。
type Post struct {
	// 書き込み時点のセッション表示名。後から名前が変わっても更新されない。
	Author string
	// 書き込み時点のアバターURL。未設定の場合は空文字列。
	AvatarRef string
	Body      string
	CreatedAt time.Time
}
