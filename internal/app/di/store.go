package di

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	candlesadapters "forex_backend/internal/feature/candles/adapters"
	candlesusecase "forex_backend/internal/feature/candles/usecase"
	symbolentity "forex_backend/internal/feature/symbollist/domain/entity"
	"forex_backend/internal/platform/cache"
	"forex_backend/internal/platform/config"
	"forex_backend/internal/platform/db"
	infraredis "forex_backend/internal/platform/redis"
)

// NewDatabase opens the configured database and migrates the candle and symbol tables.
func NewDatabase(cfg config.DBConfig, logger *zap.Logger) (*gorm.DB, error) {
	return db.Open(db.Config{
		Driver:         cfg.Driver,
		DSN:            cfg.DSN,
		User:           cfg.User,
		Password:       cfg.Password,
		Name:           cfg.Name,
		Host:           cfg.Host,
		Port:           cfg.Port,
		InstanceName:   cfg.InstanceName,
		RunMigrations:  cfg.RunMigrations,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger, &candlesadapters.CandleModel{}, &symbolentity.Symbol{})
}

// NewRedis returns nil when Redis is disabled or unreachable; the app then runs without cache.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *goredis.Client {
	if !cfg.Enabled {
		return nil
	}
	rdb, err := infraredis.NewRedisClient(ctx, infraredis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
		return nil
	}
	return rdb
}

// NewCandleStore creates a CandleRepository implementation.
// If Redis is available, the gorm store is wrapped with a read-through cache.
func NewCandleStore(gdb *gorm.DB, rdb *goredis.Client, cfg config.RedisConfig, logger *zap.Logger) candlesusecase.CandleRepository {
	store := candlesadapters.NewCandleRepository(gdb)
	if rdb == nil {
		return store
	}
	return cache.NewCachingCandleRepository(rdb, cfg.TTL, store, "candles", logger)
}
