// Package app は設定の読み込み、依存関係のワイヤリング、サブコマンドの実行を担う。
package app

import (
	"context"
	"database/sql"
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
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/josemqu/precio-nafta-api/internal/auth"
	"github.com/josemqu/precio-nafta-api/internal/config"
	"github.com/josemqu/precio-nafta-api/internal/database"
	"github.com/josemqu/precio-nafta-api/internal/handler"
	"github.com/josemqu/precio-nafta-api/internal/logger"
	"github.com/josemqu/precio-nafta-api/internal/metrics"
	"github.com/josemqu/precio-nafta-api/internal/middleware"
	"github.com/josemqu/precio-nafta-api/internal/repository"
	"github.com/josemqu/precio-nafta-api/internal/station"
)

// storeConnectTimeout は起動時のストア疎通確認の上限時間。
const storeConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// store はバックエンドごとのリポジトリと後始末をまとめる。
type store struct {
	stations repository.StationRepository
	users    repository.UserRepository
	close    func(ctx context.Context) error
}

// openStore はSTORE_BACKENDに応じてストアに接続し、疎通を確認する。
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := connectMongo(ctx, cfg.MongoURI, connectRetry(cfg))
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.DBName)
		stations := db.Collection(cfg.StationsCollection)
		users := db.Collection(cfg.UsersCollection)

		// 一意インデックスが無いと登録の重複を検出できないため、起動時にも作成を試みる
		if err := database.EnsureMongoIndexes(ctx, stations, users); err != nil {
			slog.Warn("failed to ensure mongodb indexes", slog.String("error", err.Error()))
		}

		slog.Info("mongodb connection established",
			slog.String("database", cfg.DBName),
			slog.String("stations_collection", cfg.StationsCollection),
		)
		return &store{
			stations: repository.NewMongoStationRepo(stations),
			users:    repository.NewMongoUserRepo(users),
			close:    client.Disconnect,
		}, nil

	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL, connectRetry(cfg))
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return &store{
			stations: repository.NewPostgresStationRepo(db),
			users:    repository.NewPostgresUserRepo(db),
			close:    func(context.Context) error { return db.Close() },
		}, nil

	case config.BackendMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return &store{
			stations: repository.NewMemoryStationRepo(),
			users:    repository.NewMemoryUserRepo(),
			close:    func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}

// connectRetry はSTORE_CONNECT_RETRIESを反映した再試行方針を返す。
func connectRetry(cfg *config.Config) retryPolicy {
	p := defaultConnectRetry
	p.attempts = cfg.StoreConnectRetries
	return p
}

func connectMongo(ctx context.Context, uri string, retry retryPolicy) (*mongo.Client, error) {
	client, err := database.ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}

	err = retry.do(ctx, "mongodb", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx, nil)
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	return client, nil
}

func openPostgres(ctx context.Context, databaseURL string, retry retryPolicy) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = retry.do(ctx, "postgres", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// buildRouter はサービス・メトリクス・レート制限を組み立ててルーターを返す。
// 返されたRateLimiterは呼び出し側がStopすること。
func buildRouter(cfg *config.Config, st *store, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter, error) {
	collector := metrics.NewCollector(reg)

	codec, err := auth.NewTokenCodec(cfg.SecretKey, cfg.Algorithm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	authService := auth.NewService(
		st.users,
		auth.NewBcryptHasher(cfg.BcryptCost),
		codec,
		auth.ServiceConfig{AccessTokenTTL: cfg.AccessTokenTTL},
		collector,
	)

	stationService := station.NewService(st.stations, station.Config{
		QueryTimeout:             cfg.QueryTimeout,
		AllowDiskUse:             cfg.QueryAllowDiskUse,
		BatchSize:                cfg.QueryBatchSize,
		LimitBeforeProductFilter: cfg.LimitBeforeProductFilter,
	}, collector)

	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCredentials),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Authorizer:        authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Logger:            slog.Default(),
		HTTPMetrics:       collector,

		HealthChecker:  st.stations,
		MetricsHandler: metrics.Handler(reg),

		StationService: stationService,

		TokenService: authService,
		UserService:  authService,
	})

	return router, limiter, nil
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
// プロセスとGoランタイムの標準メトリクスも登録する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストア接続
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(ctx); err != nil {
			slog.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	// 2. ルーターの構築
	router, limiter, err := buildRouter(cfg, st, newRegistry())
	if err != nil {
		return err
	}
	defer limiter.Stop()

	// 3. HTTPサーバーの起動
	// WriteTimeoutはクエリの上限時間より長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.QueryTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はストアのスキーマを準備する。
// postgresはマイグレーションを適用し、mongoはインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.BackendMongo:
		slog.Info("ensuring mongodb indexes",
			slog.String("mongo_uri", maskDatabaseURL(cfg.MongoURI)),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client, err := connectMongo(ctx, cfg.MongoURI, connectRetry(cfg))
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())

		db := client.Database(cfg.DBName)
		if err := database.EnsureMongoIndexes(ctx,
			db.Collection(cfg.StationsCollection),
			db.Collection(cfg.UsersCollection),
		); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	default:
		slog.Info("nothing to migrate", slog.String("backend", cfg.StoreBackend))
		return nil
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL は接続URLのパスワードをマスクする。解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
