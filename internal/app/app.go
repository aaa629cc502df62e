package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/memberboard/internal/auth"
	"github.com/hitoshi/memberboard/internal/board"
	"github.com/hitoshi/memberboard/internal/config"
	"github.com/hitoshi/memberboard/internal/database"
	"github.com/hitoshi/memberboard/internal/handler"
	"github.com/hitoshi/memberboard/internal/logger"
	"github.com/hitoshi/memberboard/internal/metrics"
	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/repository"
	"github.com/hitoshi/memberboard/internal/security"
	"github.com/hitoshi/memberboard/internal/session"
	"github.com/hitoshi/memberboard/internal/tracing"
	"github.com/hitoshi/memberboard/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコンテキストをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// server はserveコマンドで組み立てる依存関係の集合。
type server struct {
	handler     http.Handler
	db          *sql.DB              // PostgreSQLセッションストア使用時のみ
	cleanupJob  *cleanup.CleanupJob  // PostgreSQLセッションストア使用時のみ
	rateLimiter *middleware.RateLimiter
}

func (s *server) Close() {
	s.rateLimiter.Stop()
	if s.db != nil {
		s.db.Close()
	}
}

// buildServer は設定から全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func buildServer(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*server, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. 掲示板ストア（起動時に保存ファイルを用意する）
	store := board.NewFileStore(cfg.PostsFile, collector)
	if err := store.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare posts file: %w", err)
	}

	boardService := board.NewService(store, security.NewMarkupDetector(), board.ServiceConfig{
		AvatarBaseURL:    cfg.DiscordCDNBaseURL,
		MaxMessageLength: cfg.BoardMaxMessageLength,
	})

	// 3. 認証
	provider := auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURL,
		APIBaseURL:   cfg.DiscordAPIBaseURL,
		Timeout:      cfg.ProviderTimeout,
	})
	authService := auth.NewService(provider, auth.ServiceConfig{
		AllowedGroupIDs: cfg.AllowedGuildIDs,
	}, collector)

	// 4. セッションストア
	srv := &server{
		rateLimiter: middleware.NewRateLimiter(middleware.PostRateLimiterConfig(cfg.RateLimitPosts)),
	}
	cookieOpts := session.CookieOptions{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
	}

	var sessionStore session.Store
	var pinger handler.Pinger
	if cfg.UsesDatabase() {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			srv.Close()
			return nil, err
		}
		srv.db = db
		if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		repo := repository.NewPostgresSessionRepo(db)
		sessionStore = session.NewServerStore(repo, cookieOpts)
		srv.cleanupJob = cleanup.NewCleanupJob(repo, slog.Default(), collector)
		pinger = db
	} else {
		cookieStore, err := session.NewCookieStore(cfg.SessionSecret, cookieOpts)
		if err != nil {
			srv.Close()
			return nil, err
		}
		sessionStore = cookieStore
	}

	// 5. ルーター
	router, err := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		StatusObserver: collector,
		SessionStore:   sessionStore,
		RateLimiter:    srv.rateLimiter,
		SecurityHeaders: middleware.SecurityHeadersConfig{
			ImageOrigins: []string{cfg.DiscordCDNBaseURL},
			HSTS:         cfg.CookieSecure,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		BoardService:   boardService,
		BoardConfig:    handler.BoardHandlerConfig{MaxMessageLength: cfg.BoardMaxMessageLength},
		HealthPinger:   pinger,
		MetricsHandler: metrics.Handler(reg),
	})
	if err != nil {
		srv.Close()
		return nil, err
	}
	srv.handler = router

	return srv, nil
}

// runServe はWebサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting application",
		slog.String("command", CommandServe),
		slog.String("version", Version),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("server_side_sessions", cfg.UsesDatabase()),
	)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:       cfg.TracesExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ServiceName:    "memberboard",
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("failed to shut down tracing", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := buildServer(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 期限切れセッションの定期削除
	if srv.cleanupJob != nil {
		go srv.cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout*3 + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// migrateOptions はmigrateコマンドのオプション。
type migrateOptions struct {
	Down        int  // 0より大きい場合はロールバック
	ShowVersion bool // trueの場合はバージョン表示のみ
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(out io.Writer, cfg *config.Config, opts migrateOptions) error {
	if !cfg.UsesDatabase() {
		return errors.New("DATABASE_URL is not set; migrations are only needed for server-side sessions")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("down", opts.Down),
	)

	switch {
	case opts.ShowVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
		return nil

	case opts.Down > 0:
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Down); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", opts.Down))
		return nil

	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}
}

// runCleanup は期限切れセッションを1回削除する。
// cronなど外部スケジューラからの実行を想定している。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesDatabase() {
		slog.Info("DATABASE_URL is not set; cookie sessions expire on their own")
		return nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), nil)
	return job.Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}

// Main はコマンドを実行し、プロセスの終了コードを返す。
func Main() int {
	if err := Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
