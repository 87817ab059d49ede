package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/josemqu/precio-nafta-api/internal/middleware"
)

// APIPrefix は公開APIのパスプレフィックス。
const APIPrefix = "/api/v1"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authorizer        middleware.Authorizer
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger                   // nilの場合はslog.Default()
	HTTPMetrics       middleware.HTTPMetricsRecorder // nilの場合は記録しない

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は /metrics を公開しない

	// 給油所
	StationService StationServiceInterface

	// 認証・ユーザー
	TokenService TokenServiceInterface
	UserService  UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Metrics → Logging
//	  /api/v1/stations, /api/v1/last-prices: → BearerAuth → RateLimit(General)
//	  /api/v1/token, /api/v1/users:          → RateLimit(Credentials)
//
// /health と /metrics は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	stationHandler := NewStationHandler(deps.StationService)
	authHandler := NewAuthHandler(deps.TokenService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		// 資格情報系: クライアントIP単位のレート制限
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.CredentialsMiddleware())
			r.Post("/token", authHandler.Token)
			r.Post("/users", userHandler.Register)
		})

		// 給油所参照: ベアラー認証 → subject単位のレート制限
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.Authorizer))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/stations", stationHandler.ListStations)
			r.Get("/stations/{id}", stationHandler.GetStation)
			r.Get("/last-prices", stationHandler.ListLatestPrices)
			r.Get("/last-prices/{id}", stationHandler.GetLatestPrices)
		})
	})

	return r
}
