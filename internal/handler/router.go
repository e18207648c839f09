package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/socialhub/internal/metrics"
	"github.com/hitoshi/socialhub/internal/middleware"
)

// adminRealm はBasic認証のチャレンジに使うrealm。
const adminRealm = "Login Required"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Handler *Handler

	// ミドルウェア依存
	CurrentUser middleware.CurrentUserFinder
	Visitor     middleware.VisitorConfig
	Cookie      middleware.CookieConfig
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector
	Analytics   bool

	// 管理画面のBasic認証
	AdminUser     string
	AdminPassword string

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → MethodOverride → Visitor → CurrentUser → CSRF
//
// /health と /metrics はビジター以降のチェーンの外、/admin はCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	h := deps.Handler
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(h.ErrorPage))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Analytics))
	r.NotFound(h.NotFound)

	// --- 運用エンドポイント ---
	if deps.DB != nil {
		r.Get("/health", NewHealthHandler(deps.DB))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewMethodOverrideMiddleware())
		r.Use(middleware.NewVisitorMiddleware(deps.Visitor))
		r.Use(middleware.NewCurrentUserMiddleware(deps.CurrentUser))

		// 管理画面（静的な資格情報によるBasic認証）
		r.With(chimw.BasicAuth(adminRealm, map[string]string{
			deps.AdminUser: deps.AdminPassword,
		})).Get("/admin", h.Admin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.Cookie, h.CSRFFailed))

			// --- 認証不要のルート ---
			r.Get("/", h.Index)

			r.Get("/login", h.LoginPage)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Delete("/logout", h.Logout)

			r.Get("/register", h.RegisterPage)
			r.Post("/register", h.Register)
			r.Get("/register/{provider_id}", h.RegisterPage)

			// ソーシャルログイン
			r.Post("/login/{provider_id}", h.BeginLogin)
			r.Get("/login/{provider_id}/callback", h.LoginCallback)

			// --- ログインが必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewRequireAuthMiddleware("/login"))

				r.Post("/connect/{provider_id}", h.BeginConnect)
				r.Get("/connect/{provider_id}/callback", h.ConnectCallback)

				r.Get("/profile", h.Profile)
				r.Post("/profile/{provider_id}/post", h.PostStatus)
			})
		})
	})

	return r
}
