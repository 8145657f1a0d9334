package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backoffice/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 画面
	Screens        ScreenLister
	Workspaces     Workspaces
	ProfileService ProfileServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS
//	  → (認証が必要なルート) Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）とヘルスチェックはセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Workspaces, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Workspaces)
	screenHandler := NewScreenHandler(deps.Screens, deps.Workspaces)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Get("/status", profileHandler.Status)
			r.Put("/", profileHandler.Update)
			r.Put("/password", profileHandler.ChangePassword)
			r.Get("/photo", profileHandler.Photo)
		})

		r.Get("/api/screens", screenHandler.List)
		r.Route("/api/screens/{screen}", func(r chi.Router) {
			r.Get("/", screenHandler.Load)
			r.Get("/state", screenHandler.State)

			r.Route("/modal", func(r chi.Router) {
				r.Delete("/", screenHandler.Cancel)
				r.Post("/create", screenHandler.OpenCreate)
				r.Post("/edit/{id}", screenHandler.OpenEdit)
				r.Post("/detail/{id}", screenHandler.OpenDetail)
				r.Patch("/draft", screenHandler.UpdateDraft)
				r.Post("/submit", screenHandler.Submit)
			})

			r.Post("/items/{id}/removal", screenHandler.RequestRemoval)
			r.Delete("/items/{id}", screenHandler.ConfirmRemoval)

			// インポート・エクスポートは専用のレート制限を追加
			r.With(deps.RateLimiter.BulkTransferMiddleware()).Post("/import", screenHandler.Import)
			r.With(deps.RateLimiter.BulkTransferMiddleware()).Post("/export", screenHandler.Export)
		})
	})

	return r
}
