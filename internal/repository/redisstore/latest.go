package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// LatestIndex хранит указатель «последняя сессия вызывающего» в hash.
type LatestIndex struct {
	rdb redis.Cmdable
}

func NewLatestIndex(rdb redis.Cmdable) *LatestIndex {
	return &LatestIndex{rdb: rdb}
}

func (l *LatestIndex) SetLatest(ctx context.Context, callerID, sessionID string) error {
	if err := l.rdb.HSet(ctx, infra.RedisKeyLatestSession, callerID, sessionID).Err(); err != nil {
		return fmt.Errorf("redis: set latest session: %w", err)
	}
	return nil
}

func (l *LatestIndex) Latest(ctx context.Context, callerID string) (string, error) {
	id, err := l.rdb.HGet(ctx, infra.RedisKeyLatestSession, callerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("no session for caller %s: %w", callerID, domain.ErrSessionNotFound)
		}
		return "", fmt.Errorf("redis: get latest session: %w", err)
	}
	return id, nil
}
