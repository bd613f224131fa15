package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// debitScript: активная подписка пропускает без списания; иначе списываем cost кредитов.
// Вызывающий без записи получает стартовый баланс.
// KEYS: credits, subscriptions. ARGV: caller, cost, now (unix), free credits.
// Ответ: 2, подписка, 1, списано, 0, недостаточно кредитов.
var debitScript = redis.NewScript(`
local expiry = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if expiry > tonumber(ARGV[3]) then
	return 2
end
local cost = tonumber(ARGV[2])
local raw = redis.call('HGET', KEYS[1], ARGV[1])
local credits = tonumber(ARGV[4])
if raw then
	credits = tonumber(raw)
end
if credits < cost then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], credits - cost)
return 1
`)

// Ledger: учет кредитов и подписок вызывающих в Redis.
type Ledger struct {
	rdb         redis.Cmdable
	freeCredits int64
	logger      *zap.Logger
	now         func() time.Time
}

func NewLedger(rdb redis.Cmdable, freeCredits int64, logger *zap.Logger) *Ledger {
	return &Ledger{
		rdb:         rdb,
		freeCredits: freeCredits,
		logger:      logger.Named("ledger"),
		now:         time.Now,
	}
}

// CheckAndDebit атомарно проверяет право на аудит и списывает стоимость.
func (l *Ledger) CheckAndDebit(ctx context.Context, accountID string, cost int64) error {
	res, err := debitScript.Run(ctx, l.rdb,
		[]string{infra.RedisKeyCredits, infra.RedisKeySubscriptions},
		accountID, cost, l.now().Unix(), l.freeCredits,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: debit credits: %w", err)
	}

	switch res {
	case 0:
		l.logger.Info("quota exceeded", zap.String("caller", accountID), zap.Int64("cost", cost))
		return fmt.Errorf("caller %s: %w", accountID, domain.ErrEntitlementDenied)
	case 2:
		l.logger.Debug("subscription covers audit", zap.String("caller", accountID))
	}
	return nil
}

// RecordUsage увеличивает счетчик проведенных аудитов (и для подписчиков тоже).
func (l *Ledger) RecordUsage(ctx context.Context, accountID string) error {
	if err := l.rdb.HIncrBy(ctx, infra.RedisKeyTotalTests, accountID, 1).Err(); err != nil {
		return fmt.Errorf("redis: record usage: %w", err)
	}
	return nil
}

// Grant начисляет кредиты (оплата, ручная выдача).
func (l *Ledger) Grant(ctx context.Context, accountID string, credits int64) error {
	if err := l.rdb.HIncrBy(ctx, infra.RedisKeyCredits, accountID, credits).Err(); err != nil {
		return fmt.Errorf("redis: grant credits: %w", err)
	}
	return nil
}

// Subscribe продлевает подписку до until.
func (l *Ledger) Subscribe(ctx context.Context, accountID string, until time.Time) error {
	if err := l.rdb.HSet(ctx, infra.RedisKeySubscriptions, accountID, until.Unix()).Err(); err != nil {
		return fmt.Errorf("redis: set subscription: %w", err)
	}
	return nil
}
