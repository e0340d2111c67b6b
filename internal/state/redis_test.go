package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-gate-sol/internal/logic/core"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStore_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	bal, err := store.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, bal)
	r, err := store.GetResult(ctx, result)
	require.NoError(t, err)
	assert.Nil(t, r)

	cs := NewChangeset()
	cs.Balances[alice] = 1_500_000
	cs.Results[result] = &core.ComputeResult{Owner: alice, Value: 100, Paid: true}
	cs.Ledgers[alice] = &core.PaymentLedger{Payer: alice, TotalPayments: 2, TotalAmount: 9, LastPayment: 1700000000}
	require.NoError(t, store.Commit(ctx, cs))

	bal, err = store.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), bal)

	r, err = store.GetResult(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, cs.Results[result], r)

	l, err := store.GetLedger(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, cs.Ledgers[alice], l)

	// key 格式：前缀 + base58 地址
	assert.True(t, mr.Exists("x402:ledger:"+alice.String()))
	got, err := mr.Get("x402:balance:" + alice.String())
	require.NoError(t, err)
	assert.Equal(t, "1500000", got)
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, mr.Set("x402:result:"+result.String(), "garbage"))
	_, err := store.GetResult(ctx, result)
	assert.Error(t, err)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)
	mr.Close()

	_, err := store.GetBalance(ctx, alice)
	assert.Error(t, err)

	cs := NewChangeset()
	cs.Balances[alice] = 1
	assert.Error(t, store.Commit(ctx, cs))
}
