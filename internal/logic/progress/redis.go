package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	txPrefix  = "x402:audit:tx"
	cursorKey = "x402:audit:cursor"
	txTTL     = 7 * 24 * time.Hour
)

// RedisProgressStore 在 Redis 中记录交易审计状态，用于高频判重
type RedisProgressStore struct {
	rdb *redis.Client
}

func NewRedisProgressStore(rdb *redis.Client) *RedisProgressStore {
	return &RedisProgressStore{rdb: rdb}
}

func txKey(sig string) string {
	return fmt.Sprintf("%s:%s", txPrefix, sig)
}

// GetStatus 获取交易状态，不存在时返回 TxUnknown
func (r *RedisProgressStore) GetStatus(ctx context.Context, sig string) (TxStatus, error) {
	val, err := r.rdb.Get(ctx, txKey(sig)).Int()
	switch {
	case err == redis.Nil:
		return TxUnknown, nil
	case err != nil:
		return TxUnknown, fmt.Errorf("redis get error: %w", err)
	case val == int(TxProcessed), val == int(TxSkipped):
		return TxStatus(val), nil
	default:
		return TxUnknown, nil
	}
}

func (r *RedisProgressStore) MarkStatus(ctx context.Context, sig string, status TxStatus) error {
	return r.rdb.Set(ctx, txKey(sig), int(status), txTTL).Err()
}

func (r *RedisProgressStore) Cursor(ctx context.Context) (string, error) {
	sig, err := r.rdb.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return sig, err
}

func (r *RedisProgressStore) SetCursor(ctx context.Context, sig string) error {
	return r.rdb.Set(ctx, cursorKey, sig, 0).Err()
}
