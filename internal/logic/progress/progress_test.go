package progress

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*RedisProgressStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisProgressStore(rdb), mr
}

func TestRedisProgressStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedis(t)

	status, err := store.GetStatus(ctx, "sig1")
	require.NoError(t, err)
	assert.Equal(t, TxUnknown, status)

	require.NoError(t, store.MarkStatus(ctx, "sig1", TxProcessed))
	status, err = store.GetStatus(ctx, "sig1")
	require.NoError(t, err)
	assert.Equal(t, TxProcessed, status)
	assert.Equal(t, txTTL, mr.TTL(txKey("sig1")))

	cursor, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.Empty(t, cursor)
	require.NoError(t, store.SetCursor(ctx, "sig9"))
	cursor, err = store.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sig9", cursor)
}

func TestManager_RedisOnly(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedis(t)
	m := NewManager(store, nil, 0)

	done, err := m.IsDone(ctx, "sig1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, m.Mark(ctx, TxRecord{Signature: "sig1", Status: TxSkipped}))
	require.NoError(t, m.Mark(ctx, TxRecord{Signature: "sig2", Status: TxUnknown}))
	done, _ = m.IsDone(ctx, "sig1")
	assert.True(t, done)
	done, _ = m.IsDone(ctx, "sig2")
	assert.False(t, done)

	require.NoError(t, m.SaveCursor(ctx, "sig1"))
	cursor, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sig1", cursor)

	// 没有 DB 时 flush 是空操作
	assert.NoError(t, m.Flush(ctx))
}

func TestManager_DBFallback(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, _ := newRedis(t)
	m := NewManager(store, NewDBProgressStore(db), 0)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM x402_audit_tx WHERE signature = $1`)).
		WithArgs("old").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(1))

	done, err := m.IsDone(ctx, "old")
	require.NoError(t, err)
	assert.True(t, done)

	// 已回填到 Redis，不再查询 DB
	done, err = m.IsDone(ctx, "old")
	require.NoError(t, err)
	assert.True(t, done)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Flush(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(nil, NewDBProgressStore(db), 0)
	require.NoError(t, m.Mark(ctx, TxRecord{Signature: "a", Slot: 10, BlockTime: 100, Status: TxProcessed}))
	require.NoError(t, m.Mark(ctx, TxRecord{Signature: "b", Slot: 11, BlockTime: 101, Status: TxSkipped}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_audit_tx")).
		WithArgs("a", int64(10), int64(100), 1, "b", int64(11), int64(101), 2).
		WillReturnError(errors.New("conn reset"))
	assert.Error(t, m.Flush(ctx))
	assert.Equal(t, 2, m.buffer.Len())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_audit_tx")).
		WithArgs("a", int64(10), int64(100), 1, "b", int64(11), int64(101), 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, m.Flush(ctx))
	assert.Zero(t, m.buffer.Len())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBProgressStore_Cursor(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewDBProgressStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT signature FROM x402_audit_cursor`)).
		WillReturnRows(sqlmock.NewRows([]string{"signature"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO x402_audit_cursor`)).
		WithArgs("sig7").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cursor, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.Empty(t, cursor)
	require.NoError(t, store.SetCursor(ctx, "sig7"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
