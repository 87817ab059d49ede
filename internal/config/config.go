package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアバックエンド
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreBackend       string
	MongoURI           string
	DBName             string
	StationsCollection string
	UsersCollection    string
	DatabaseURL        string
	// StoreConnectRetries は起動時のストア接続の試行回数。
	StoreConnectRetries int

	// Token
	SecretKey      string
	Algorithm      string
	AccessTokenTTL time.Duration
	BcryptCost     int

	// Query
	QueryTimeout             time.Duration
	QueryBatchSize           int32
	QueryAllowDiskUse        bool
	LimitBeforeProductFilter bool

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral     int
	RateLimitCredentials int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合、またはバックエンド・署名アルゴリズムが不明な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendMongo))
	switch cfg.StoreBackend {
	case BackendMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			uri, absent := mongoURIFromParts()
			cfg.MongoURI = uri
			missing = append(missing, absent...)
		}
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND: %q", cfg.StoreBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.Algorithm = strings.ToUpper(getEnvString("ALGORITHM", "HS256"))
	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("unsupported ALGORITHM: %q", cfg.Algorithm)
	}

	// Optional fields with defaults
	cfg.DBName = getEnvString("DB_NAME", "precio_nafta")
	cfg.StationsCollection = getEnvString("STATIONS_COLLECTION", "stations2")
	cfg.UsersCollection = getEnvString("USERS_COLLECTION", "users")
	cfg.StoreConnectRetries = getEnvInt("STORE_CONNECT_RETRIES", 5)
	cfg.AccessTokenTTL = time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60)) * time.Minute
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.QueryTimeout = getEnvDuration("QUERY_TIMEOUT", 30*time.Second)
	cfg.QueryBatchSize = int32(getEnvInt("QUERY_BATCH_SIZE", 100))
	cfg.QueryAllowDiskUse = getEnvBool("QUERY_ALLOW_DISK_USE", true)
	cfg.LimitBeforeProductFilter = getEnvBool("LIMIT_BEFORE_PRODUCT_FILTER", true)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCredentials = getEnvInt("RATE_LIMIT_CREDENTIALS", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// mongoURIFromParts はDB_USER・DB_PASS・DB_HOSTからAtlas形式の接続URIを組み立てる。
// 未設定の変数名を2つ目の戻り値で返す。
func mongoURIFromParts() (string, []string) {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASS")
	host := os.Getenv("DB_HOST")

	var absent []string
	if user == "" {
		absent = append(absent, "DB_USER")
	}
	if pass == "" {
		absent = append(absent, "DB_PASS")
	}
	if host == "" {
		absent = append(absent, "DB_HOST")
	}
	if len(absent) > 0 {
		// MONGO_URIかDB_*のどちらかがあればよい
		return "", append([]string{"MONGO_URI"}, absent...)
	}

	return "mongodb+srv://" + url.UserPassword(user, pass).String() + "@" + host +
		"/?retryWrites=true&w=majority", nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
