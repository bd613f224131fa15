package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// Снимаем только свою блокировку: ключ мог истечь и достаться другому писателю.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionLocker: распределенная блокировка single-writer на сессию (SET NX PX).
type SessionLocker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionLocker(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *SessionLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &SessionLocker{rdb: rdb, ttl: ttl, logger: logger.Named("locker")}
}

// Acquire берет блокировку или сразу возвращает ErrSessionBusy. Ожидания нет.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := infra.SessionLockKey(sessionID)
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionBusy)
	}

	return func() {
		// Контекст запроса мог быть уже отменен
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release session lock, it will expire",
				zap.String("session_id", sessionID), zap.Duration("ttl", l.ttl), zap.Error(err))
		}
	}, nil
}
