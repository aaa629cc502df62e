package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/model"
)

const (
	boardTitle = "メンバー掲示板"

	// messageField は投稿フォームの本文フィールド名。
	messageField = "message"
)

// BoardService は掲示板ハンドラーが必要とするサービスインターフェース。
type BoardService interface {
	List(ctx context.Context, sess *model.Session) ([]model.Post, error)
	Submit(ctx context.Context, sess *model.Session, message string) (*model.Post, error)
}

// BoardHandlerConfig は掲示板ハンドラーの設定。
type BoardHandlerConfig struct {
	MaxMessageLength int
}

// BoardHandler は掲示板の閲覧・投稿のHTTPハンドラー。
type BoardHandler struct {
	service BoardService
	views   *Views
	config  BoardHandlerConfig
}

// NewBoardHandler はBoardHandlerを生成する。
func NewBoardHandler(service BoardService, views *Views, config BoardHandlerConfig) *BoardHandler {
	return &BoardHandler{
		service: service,
		views:   views,
		config:  config,
	}
}

// Show は投稿一覧を新しい順に表示する。
// 未ログインの場合はログインを促すページを返す。
// GET /
func (h *BoardHandler) Show(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if !sess.IsAuthenticated() {
		h.views.Render(w, http.StatusOK, pageLoginRequired, pageData{
			Title:     boardTitle,
			RequestID: requestID(r),
		})
		return
	}

	h.renderBoard(w, r, http.StatusOK, "")
}

// Post はメッセージを投稿し、一覧にリダイレクトする。
// 空のメッセージは保存せずにリダイレクトする。
// POST /
func (h *BoardHandler) Post(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	_, err := h.service.Submit(r.Context(), sess, r.PostFormValue(messageField))
	switch {
	case err == nil, errors.Is(err, model.ErrEmptyMessage):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, model.ErrNotMember):
		h.views.RenderError(w, r, "閲覧権限がありません", model.NewBoardError(err))
	default:
		apiErr := model.NewBoardError(err)
		if apiErr.Code == model.ErrCodeInternal || apiErr.Code == model.ErrCodePersistenceFailed {
			slog.Error("failed to submit post",
				slog.String("error", err.Error()),
				slog.String("request_id", requestID(r)),
			)
		}
		h.renderBoard(w, r, apiErr.Status, apiErr.Message+apiErr.Action)
	}
}

// renderBoard は投稿一覧とフォームを描画する。noticeは一覧の上に表示する。
func (h *BoardHandler) renderBoard(w http.ResponseWriter, r *http.Request, status int, notice string) {
	sess := middleware.SessionFromContext(r.Context())

	posts, err := h.service.List(r.Context(), sess)
	if err != nil {
		slog.Error("failed to list posts",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID(r)),
		)
		h.views.RenderError(w, r, boardTitle, model.NewBoardError(err))
		return
	}

	h.views.Render(w, status, pageBoard, pageData{
		Title:            boardTitle,
		Session:          sess,
		CSRFToken:        middleware.CSRFTokenFromContext(r.Context()),
		RequestID:        requestID(r),
		Posts:            posts,
		MaxMessageLength: h.config.MaxMessageLength,
		Notice:           notice,
	})
}
