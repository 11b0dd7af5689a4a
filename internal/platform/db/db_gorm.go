// Package db はgormでデータベースに接続します。
package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	gmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultRetryInterval = 3 * time.Second

// Config はデータベース接続設定です。
type Config struct {
	Driver        string // sqlite / mysql / postgres
	DSN           string // 指定があればそのまま使います(sqliteではファイルパス)
	User          string
	Password      string
	Name          string
	Host          string
	Port          string
	InstanceName  string // Cloud SQL のインスタンス接続名
	RunMigrations bool
	// ConnectTimeout は接続リトライを諦めるまでの時間です。
	ConnectTimeout time.Duration
}

// Opener はDSNからgorm.DBを開きます。テストで差し替えられます。
type Opener func(dsn string) (*gorm.DB, error)

// BuildDSN はドライバーに応じたDSN文字列を生成します。
func BuildDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	switch cfg.Driver {
	case "mysql":
		if cfg.InstanceName != "" {
			return fmt.Sprintf("%s:%s@unix(/cloudsql/%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
				cfg.User, cfg.Password, cfg.InstanceName, cfg.Name)
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	case "postgres":
		host := cfg.Host
		if cfg.InstanceName != "" {
			host = "/cloudsql/" + cfg.InstanceName
		}
		port := cfg.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			host, port, cfg.User, cfg.Password, cfg.Name)
	default:
		return "forex_data.db"
	}
}

// DialectorOpener はドライバー名に対応するOpenerを返します。
func DialectorOpener(driver string) (Opener, error) {
	var dial func(string) gorm.Dialector
	switch driver {
	case "sqlite":
		dial = sqlite.Open
	case "mysql":
		dial = gmysql.Open
	case "postgres":
		dial = postgres.Open
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	return func(dsn string) (*gorm.DB, error) {
		return gorm.Open(dial(dsn), &gorm.Config{
			Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
	}, nil
}

// ConnectWithRetry は timeout に達するまで interval 間隔で接続を試みます。
func ConnectWithRetry(dsn string, timeout, interval time.Duration, open Opener, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		db, err := open(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().Add(interval).After(deadline) {
			return nil, fmt.Errorf("db connect failed after %d attempts: %w", attempt, err)
		}
		logger.Warn("db connect failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(interval)
	}
}

// Open は設定に従って接続し、RunMigrations が有効なら models をマイグレーションします。
func Open(cfg Config, logger *zap.Logger, models ...any) (*gorm.DB, error) {
	open, err := DialectorOpener(cfg.Driver)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	db, err := ConnectWithRetry(BuildDSN(cfg), timeout, defaultRetryInterval, open, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqliteは単一ライターなので接続を1本に絞る
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if cfg.RunMigrations && len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return db, nil
}
