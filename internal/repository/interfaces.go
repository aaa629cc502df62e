// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/memberboard/internal/model"
)

// SessionRepository はサーバーサイドセッションの永続化インターフェース。
// セッションIDはCookieに保存される不透明な値で、model.Sessionには含めない。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, id string, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
