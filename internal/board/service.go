package board

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/memberboard/internal/model"
	"github.com/hitoshi/memberboard/internal/security"
)

// PostStore は投稿の永続化に必要なインターフェース。
type PostStore interface {
	ListNewestFirst(ctx context.Context) ([]model.Post, error)
	Append(ctx context.Context, post model.Post) error
}

// ServiceConfig は掲示板サービスの設定。
type ServiceConfig struct {
	// アバター画像のCDNベースURL（例: https://cdn.discordapp.com）
	AvatarBaseURL string
	// 本文の最大文字数（rune単位）。0以下の場合は制限しない。
	MaxMessageLength int
	// 投稿時刻の取得に使う。nilの場合はtime.Now。
	Clock func() time.Time
}

// Service は検証済みセッションに対する掲示板の閲覧と投稿を扱う。
type Service struct {
	store         PostStore
	markup        security.MarkupDetector
	avatarBaseURL string
	maxLength     int
	clock         func() time.Time
}

// NewService はServiceを生成する。
func NewService(store PostStore, markup security.MarkupDetector, config ServiceConfig) *Service {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:         store,
		markup:        markup,
		avatarBaseURL: strings.TrimRight(config.AvatarBaseURL, "/"),
		maxLength:     config.MaxMessageLength,
		clock:         clock,
	}
}

// List は投稿を新しい順に返す。検証済みメンバーのセッションが必要。
func (s *Service) List(ctx context.Context, sess *model.Session) ([]model.Post, error) {
	if !sess.IsAuthenticated() {
		return nil, model.ErrNotMember
	}
	return s.store.ListNewestFirst(ctx)
}

// Submit はメッセージを投稿として保存する。
//
// 投稿者名とアバターは書き込み時点のセッションから取得し、以後は更新しない。
// 本文は前後の空白のみを取り除き、入力されたとおりに保存する。
// 投稿時刻は保存形式に合わせて秒単位に切り捨てたローカル時刻とし、返す値と保存される値を一致させる。
func (s *Service) Submit(ctx context.Context, sess *model.Session, message string) (*model.Post, error) {
	if !sess.IsAuthenticated() {
		return nil, model.ErrNotMember
	}

	body := strings.TrimSpace(message)
	if body == "" {
		return nil, model.ErrEmptyMessage
	}
	if s.maxLength > 0 && utf8.RuneCountInString(body) > s.maxLength {
		return nil, fmt.Errorf("%w: %d > %d", model.ErrMessageTooLong, utf8.RuneCountInString(body), s.maxLength)
	}

	post := model.Post{
		Author:    sess.DisplayName,
		AvatarRef: s.avatarURL(sess),
		Body:      body,
		CreatedAt: normalizeTime(s.clock()),
	}

	if err := s.store.Append(ctx, post); err != nil {
		return nil, err
	}

	slog.Info("post created",
		slog.String("user_id", sess.ExternalUserID),
		slog.Int("length", utf8.RuneCountInString(body)),
		slog.Bool("contains_markup", s.markup != nil && s.markup.ContainsMarkup(body)),
	)
	return &post, nil
}

// avatarURL はセッションのアバター参照からCDNのURLを組み立てる。
// アバターが未設定の場合は空文字列を返す。
func (s *Service) avatarURL(sess *model.Session) string {
	if sess.AvatarRef == "" || s.avatarBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", s.avatarBaseURL, sess.ExternalUserID, sess.AvatarRef)
}
