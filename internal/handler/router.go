package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/session"
)

// maxFormBytes は投稿フォームのリクエストボディ上限。
const maxFormBytes = 64 << 10

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger          *slog.Logger
	StatusObserver  middleware.StatusObserver
	SessionStore    session.Store
	RateLimiter     *middleware.RateLimiter
	SecurityHeaders middleware.SecurityHeadersConfig
	CSRF            middleware.CSRFConfig

	// 認証
	AuthService AuthService
	AuthConfig  AuthHandlerConfig

	// 掲示板
	BoardService BoardService
	BoardConfig  BoardHandlerConfig

	// 運用
	HealthPinger   Pinger       // nilの場合はDBの疎通確認を行わない
	MetricsHandler http.Handler // nilの場合は /metrics を公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → Session → CSRF → RateLimit(POST /)
//
// /health と /metrics はセッションとCSRFの外に配置する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	views, err := NewViews()
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))

	// --- 運用エンドポイント ---
	r.Get("/health", HealthHandler(deps.HealthPinger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionStore, views, deps.AuthConfig)
	boardHandler := NewBoardHandler(deps.BoardService, views, deps.BoardConfig)

	// --- セッションを参照するルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore))
		r.Use(chimw.RequestSize(maxFormBytes))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// OAuthフロー
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)

		// 掲示板
		r.Get("/", boardHandler.Show)
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.PostMiddleware()).Post("/", boardHandler.Post)
		} else {
			r.Post("/", boardHandler.Post)
		}
	})

	return r, nil
}
