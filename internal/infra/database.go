package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// driverName сопоставляет database.driver с именем драйвера database/sql.
func driverName(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "pgx"
}

// OpenDatabase открывает пул и дожидается первого успешного Ping с экспоненциальной задержкой.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(driverName(cfg.Driver), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// modernc sqlite не любит конкурентных писателей
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database unreachable, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err := r.Do(func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return db, nil
}

// OpenRedis создает клиента и проверяет соединение так же, как OpenDatabase.
func OpenRedis(ctx context.Context, cfg RedisConfig, attempts uint, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if attempts == 0 {
		attempts = 1
	}
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("redis unreachable, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err := r.Do(func() error { return rdb.Ping(ctx).Err() }); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}
