// Package config はviperで設定を読み込みます。
// 優先順位は 環境変数 > 設定ファイル > デフォルト値 です。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	Server     ServerConfig
	TwelveData TwelveDataConfig
	RateLimit  RateLimitConfig
	Ingest     IngestConfig
	Fetch      FetchConfig
	DB         DBConfig
	Redis      RedisConfig
	Jobs       JobsConfig
	Log        LogConfig
	Auth       AuthConfig
}

// ServerConfig はHTTPサーバーの設定です。
type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerMinute int
	Burst             int
}

// TwelveDataConfig はTwelve Data APIの接続設定です。
type TwelveDataConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// RateLimitConfig はTwelve Dataの呼び出し枠です。
type RateLimitConfig struct {
	PerMinute int
	PerDay    int
}

// IngestConfig は取り込みパイプラインの設定です。
type IngestConfig struct {
	MaxBarsPerCall int
	ChunkDays      float64
	Symbols        []string
	Timeframes     []string
	MinRecords     int
}

// FetchConfig は1チャンク取得のリトライ設定です。
type FetchConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DBConfig はデータベース接続設定です。Driver は sqlite / mysql / postgres のいずれかです。
type DBConfig struct {
	Driver         string
	DSN            string
	User           string
	Password       string
	Name           string
	Host           string
	Port           string
	InstanceName   string
	RunMigrations  bool
	ConnectTimeout time.Duration
}

// RedisConfig はキャッシュ用Redisの設定です。
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// JobsConfig は非同期ジョブの設定です。Workers はバックテストだけに効き、取り込みジョブは常に1ワーカーです。
type JobsConfig struct {
	Workers   int
	QueueSize int
	MaxJobs   int // 保持する終了済みジョブの上限。0 なら無制限
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig はAPIのJWT認証設定です。
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	TokenTTL  time.Duration
}

// 既存のデプロイで使われている環境変数名との対応表です。
var envAliases = map[string]string{
	"twelvedata.apikey":  "TWELVE_DATA_API_KEY",
	"twelvedata.baseurl": "TWELVE_DATA_BASE_URL",
	"db.driver":          "DB_DRIVER",
	"db.dsn":             "DB_DSN",
	"db.user":            "DB_USER",
	"db.password":        "DB_PASSWORD",
	"db.name":            "DB_NAME",
	"db.host":            "DB_HOST",
	"db.port":            "DB_PORT",
	"db.instancename":    "INSTANCE_CONNECTION_NAME",
	"db.runmigrations":   "RUN_MIGRATIONS",
	"redis.host":         "REDIS_HOST",
	"redis.port":         "REDIS_PORT",
	"redis.password":     "REDIS_PASSWORD",
	"auth.jwtsecret":     "JWT_SECRET",
	"server.port":        "PORT",
}

// Load は .env.local / .env を環境変数に取り込み、path の設定ファイル(任意)と合わせて読み込みます。
// path が空なら設定ファイルは使いません。
func Load(path string) (*Config, error) {
	loadDotEnv(".env.local", ".env")

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は起動できない設定を検出します。
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerDay <= 0 {
		errs = append(errs, errors.New("ratelimit: perMinute and perDay must be positive"))
	}
	if c.Ingest.MaxBarsPerCall <= 0 {
		errs = append(errs, errors.New("ingest: maxBarsPerCall must be positive"))
	}
	switch c.DB.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db: unsupported driver %q", c.DB.Driver))
	}
	if c.Jobs.Workers <= 0 || c.Jobs.QueueSize <= 0 {
		errs = append(errs, errors.New("jobs: workers and queueSize must be positive"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth: JWT_SECRET is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// loadDotEnv は既に設定済みの環境変数を上書きしません。存在しないファイルは無視します。
func loadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// setDefaults は設定のデフォルト値を登録します。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.requestsPerMinute", 120)
	v.SetDefault("server.burst", 20)

	v.SetDefault("twelvedata.apiKey", "")
	v.SetDefault("twelvedata.baseURL", "https://api.twelvedata.com")
	v.SetDefault("twelvedata.timeout", "10s")

	v.SetDefault("ratelimit.perMinute", 8)
	v.SetDefault("ratelimit.perDay", 800)

	v.SetDefault("ingest.maxBarsPerCall", 5000)
	v.SetDefault("ingest.chunkDays", 3.5)
	v.SetDefault("ingest.symbols", []string{"EUR/USD"})
	v.SetDefault("ingest.timeframes", []string{"5min", "15min", "30min", "1h", "4h", "1day"})
	v.SetDefault("ingest.minRecords", 70)

	v.SetDefault("fetch.maxAttempts", 3)
	v.SetDefault("fetch.initialBackoff", "2s")
	v.SetDefault("fetch.maxBackoff", "30s")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "forex_data.db")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "")
	v.SetDefault("db.instanceName", "")
	v.SetDefault("db.runMigrations", true)
	v.SetDefault("db.connectTimeout", "60s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5m")

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queueSize", 16)
	v.SetDefault("jobs.maxJobs", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenTTL", "24h")
}
