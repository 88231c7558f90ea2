package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/middleware"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 疎通確認とメトリクス
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	UserService UserServiceInterface
	CodeService CodeServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Actor → Logging → RateLimit(General)
//
// /health と /metrics はレート制限とロール検査の外に配置する。
// /api/admin はSUPER_ADMINまたはADMIN、/api/management はSUPER_ADMINのみ許可する。
// /api/setup/first-user はロール検査を行わず、SUPER_ADMINが未登録の間だけ成功する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewActorMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	userHandler := NewUserHandler(deps.UserService, deps.Logger)
	codeHandler := NewCodeHandler(deps.CodeService, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/setup/first-user - 初期SUPER_ADMINの作成
		r.With(deps.RateLimiter.ProvisioningMiddleware()).Post("/api/setup/first-user", userHandler.CreateFirstUser)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(model.RoleSuperAdmin, model.RoleAdmin))

			r.Route("/users", func(r chi.Router) {
				// POST /api/admin/users - ユーザー作成（作成専用レート制限を追加）
				r.With(deps.RateLimiter.ProvisioningMiddleware()).Post("/", userHandler.CreateUser)
				r.Get("/email-availability", userHandler.EmailAvailability)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", userHandler.GetUser)
					r.Patch("/", userHandler.UpdateUser)
					r.Delete("/", userHandler.DeleteUser)
					r.Patch("/status", userHandler.ChangeStatus)
					r.Put("/restore", userHandler.RestoreUser)
					r.Delete("/permanent", userHandler.PurgeUser)
				})
			})

			r.Route("/organizations/{orgID}", func(r chi.Router) {
				r.Get("/users", userHandler.ListUsers)
				r.Get("/users/by-code/{code}", userHandler.GetUserByCode)
				r.Get("/user-codes/next", codeHandler.NextCode)
				r.Get("/user-codes/last", codeHandler.LastCode)
			})
		})

		r.Route("/api/management", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(model.RoleSuperAdmin))

			r.Get("/users/super-admins/count", userHandler.CountSuperAdmins)
			r.Delete("/organizations/{orgID}/user-codes", codeHandler.ResetCounter)
		})
	})

	return r
}
