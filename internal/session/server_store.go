package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/memberboard/internal/model"
)

// Repository はServerStoreが必要とするセッション永続化の操作。
// repository.SessionRepositoryの部分集合として定義する。
type Repository interface {
	Create(ctx context.Context, id string, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// ServerStore はセッションをリポジトリに保存し、CookieにはセッションIDのみを設定する。
type ServerStore struct {
	repo    Repository
	options CookieOptions
	now     func() time.Time
	newID   func() string
}

// NewServerStore はServerStoreを生成する。
func NewServerStore(repo Repository, options CookieOptions) *ServerStore {
	return &ServerStore{
		repo:    repo,
		options: options.withDefaults(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Load はCookieのセッションIDでリポジトリを検索する。
func (s *ServerStore) Load(r *http.Request) (*model.Session, error) {
	id, ok := s.sessionID(r)
	if !ok {
		return nil, nil
	}

	sess, err := s.repo.FindByID(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// Save は新しいセッションIDでセッションを保存する。
// 既存のセッションIDがあれば削除し、ログインのたびにIDを更新する。
func (s *ServerStore) Save(w http.ResponseWriter, r *http.Request, sess *model.Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}

	if oldID, ok := s.sessionID(r); ok {
		if err := s.repo.DeleteByID(r.Context(), oldID); err != nil {
			slog.Warn("failed to delete previous session", slog.String("error", err.Error()))
		}
	}

	id := s.newID()
	sess.ExpiresAt = s.now().Add(s.options.MaxAge)
	if err := s.repo.Create(r.Context(), id, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, s.options.cookie(id))
	return nil
}

// Clear はセッションを削除してCookieを無効化する。
// リポジトリからの削除に失敗してもCookieは削除する。
func (s *ServerStore) Clear(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, s.options.expired())

	id, ok := s.sessionID(r)
	if !ok {
		return nil
	}
	if err := s.repo.DeleteByID(r.Context(), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// sessionID はCookieからセッションIDを取り出す。UUID形式でない値は無視する。
func (s *ServerStore) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.options.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

var _ Store = (*ServerStore)(nil)
