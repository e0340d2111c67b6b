package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// Redis key 前缀
const (
	balancePrefix = "x402:balance"
	resultPrefix  = "x402:result"
	ledgerPrefix  = "x402:ledger"
)

// RedisStore 将状态保存在 Redis 中：
//   - 余额：字符串形式的十进制 u64
//   - ComputeResult / PaymentLedger：Anchor 账户编码（discriminator || borsh）
//
// Commit 使用 MULTI/EXEC 事务流水线，保证一个 changeset 整体生效。
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(prefix string, pk types.Pubkey) string {
	return fmt.Sprintf("%s:%s", prefix, pk)
}

func (r *RedisStore) GetBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	v, err := r.rdb.Get(ctx, key(balancePrefix, account)).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("redis get balance %s: %w", account, err)
	}
	return v, nil
}

func (r *RedisStore) GetResult(ctx context.Context, address types.Pubkey) (*core.ComputeResult, error) {
	data, err := r.get(ctx, key(resultPrefix, address))
	if err != nil || data == nil {
		return nil, err
	}
	return core.DecodeComputeResult(data)
}

func (r *RedisStore) GetLedger(ctx context.Context, payer types.Pubkey) (*core.PaymentLedger, error) {
	data, err := r.get(ctx, key(ledgerPrefix, payer))
	if err != nil || data == nil {
		return nil, err
	}
	return core.DecodePaymentLedger(data)
}

func (r *RedisStore) get(ctx context.Context, k string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return data, nil
}

func (r *RedisStore) Commit(ctx context.Context, cs *Changeset) error {
	// 先完成编码，避免事务执行到一半才发现数据错误
	values := make(map[string]any, len(cs.Balances)+len(cs.Results)+len(cs.Ledgers))
	for acc, lamports := range cs.Balances {
		values[key(balancePrefix, acc)] = lamports
	}
	for addr, res := range cs.Results {
		data, err := core.EncodeComputeResult(res)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", addr, err)
		}
		values[key(resultPrefix, addr)] = data
	}
	for payer, l := range cs.Ledgers {
		data, err := core.EncodePaymentLedger(l)
		if err != nil {
			return fmt.Errorf("encode ledger %s: %w", payer, err)
		}
		values[key(ledgerPrefix, payer)] = data
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}
