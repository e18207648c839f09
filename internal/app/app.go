// Package app はsocialhubの起動処理（設定読み込み、依存関係のワイヤリング、サブコマンド）を提供する。
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
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/socialhub/internal/auth"
	"github.com/hitoshi/socialhub/internal/config"
	"github.com/hitoshi/socialhub/internal/database"
	"github.com/hitoshi/socialhub/internal/handler"
	"github.com/hitoshi/socialhub/internal/logger"
	"github.com/hitoshi/socialhub/internal/metrics"
	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/registration"
	"github.com/hitoshi/socialhub/internal/repository"
	"github.com/hitoshi/socialhub/internal/security"
	"github.com/hitoshi/socialhub/internal/session"
	"github.com/hitoshi/socialhub/internal/social"
	"github.com/hitoshi/socialhub/internal/user"
	"github.com/hitoshi/socialhub/internal/web"
)

// shutdownTimeout はグレースフルシャットダウンの猶予。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、環境に応じたレベルでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 環境に応じたログレベルで再設定
	logger.SetupDefault(w, logger.LevelFor(cfg.Env, cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコマンドのコンテキストがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// serve は設定を読み込んでWebサーバーを起動する。
func serve(ctx context.Context, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("env", cfg.Env),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)
	return runServe(ctx, cfg)
}

// runServe はDB接続を開き、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. ビジターセッションのストア
	store, closeStore, err := newVisitorStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 依存関係を組み立ててルーターを構築
	router, err := buildRouter(cfg, db, store, collector, metrics.Handler(registry))
	if err != nil {
		return err
	}

	// 5. HTTPサーバーを起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down web server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("web server stopped gracefully")
	return nil
}

// buildRouter はリポジトリからハンドラーまでを組み立て、ルーターを返す。
func buildRouter(cfg *config.Config, db *sql.DB, store session.Store, collector metrics.MetricsCollector, metricsHandler http.Handler) (http.Handler, error) {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	connRepo := repository.NewPostgresConnectionRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. ドメインサービス
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:  cfg.SessionMaxAge,
		RememberMaxAge: cfg.RememberMaxAge,
	})
	visitors := session.NewManager(store, cfg.VisitorSessionTTL)
	gateway := social.NewGateway(
		social.NewRegistry(newProviders(cfg)...),
		connRepo,
		security.NewProfileSanitizer(),
		cfg.BaseURL,
	)
	regService := registration.NewService(authService, gateway, visitors, collector, registration.Config{
		AutoActivate: cfg.RegistrationAutoActivate,
	})
	userService := user.NewService(userRepo)

	renderer, err := web.NewRenderer(cfg.GoogleAnalyticsID)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 3. ハンドラーとルーター
	cookie := middleware.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}
	h := handler.NewHandler(handler.HandlerDeps{
		Sessions:     authService,
		Registration: regService,
		Social:       handler.NewGatewayAdapter(gateway),
		Visitors:     visitors,
		Admin:        userService,
		Renderer:     renderer,
		Metrics:      collector,
		Cookie:       cookie,
	})

	return handler.NewRouter(&handler.RouterDeps{
		Handler:     h,
		CurrentUser: authService,
		Visitor: middleware.VisitorConfig{
			Secret: []byte(cfg.SessionSecret),
			TTL:    cfg.VisitorSessionTTL,
			Cookie: cookie,
		},
		Cookie:         cookie,
		Logger:         slog.Default(),
		Metrics:        collector,
		Analytics:      cfg.GoogleAnalyticsID != "",
		AdminUser:      cfg.AdminUser,
		AdminPassword:  cfg.AdminPassword,
		DB:             db,
		MetricsHandler: metricsHandler,
	}), nil
}

// newProviders は資格情報が設定されているプロバイダーだけを生成する。
// API呼び出しはSSRF対策済みのHTTPクライアントで行う。
func newProviders(cfg *config.Config) []social.Provider {
	client := security.NewProviderClient(cfg.ProviderTimeout)

	var providers []social.Provider
	if cfg.TwitterClientID != "" && cfg.TwitterClientSecret != "" {
		providers = append(providers, social.NewTwitterProvider(social.ProviderConfig{
			ClientID:     cfg.TwitterClientID,
			ClientSecret: cfg.TwitterClientSecret,
		}, client))
	}
	if cfg.FacebookClientID != "" && cfg.FacebookClientSecret != "" {
		providers = append(providers, social.NewFacebookProvider(social.ProviderConfig{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
		}, client))
	}
	if len(providers) == 0 {
		slog.Warn("no social providers configured")
	}
	return providers
}

// newVisitorStore は設定に応じてビジターセッションのストアを生成する。
// 返す関数でストアを閉じる。
func newVisitorStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStore(cfg.VisitorSessionTTL), func() {}, nil
	}

	store, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established", slog.String("redis", redactURL(cfg.RedisURL)))
	return store, func() { store.Close() }, nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(databaseURL string) error {
	slog.Info("running database migrations",
		slog.String("database_url", redactURL(databaseURL)),
	)

	if err := database.RunMigrations(databaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runMigrateDown は直近stepsバージョン分のマイグレーションを取り消す。
func runMigrateDown(databaseURL string, steps int) error {
	slog.Info("rolling back database migrations",
		slog.String("database_url", redactURL(databaseURL)),
		slog.Int("steps", steps),
	)

	if err := database.RollbackMigrations(databaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	slog.Info("database rollback completed successfully")
	return nil
}

// runMigrateStatus は現在のスキーマバージョンを出力する。
func runMigrateStatus(out io.Writer, databaseURL string) error {
	version, dirty, err := database.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
	return nil
}

// runHealthcheck は/healthエンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// redactURL は接続URLの認証情報をマスクする。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// Main はRunを実行し、失敗した場合はエラーを標準エラーに出力して終了コード1を返す。
func Main() int {
	if err := Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
