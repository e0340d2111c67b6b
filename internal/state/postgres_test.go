package state

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-gate-sol/internal/logic/core"
)

func TestPostgresStore_GetLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"total_payments", "total_amount", "last_payment"}).
		AddRow("3", "18446744073709551615", int64(1700000000))
	mock.ExpectQuery(regexp.QuoteMeta(queryLedger)).
		WithArgs(alice.String()).
		WillReturnRows(rows)

	l, err := store.GetLedger(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, &core.PaymentLedger{
		Payer:         alice,
		TotalPayments: 3,
		TotalAmount:   18446744073709551615,
		LastPayment:   1700000000,
	}, l)

	// 不存在
	mock.ExpectQuery(regexp.QuoteMeta(queryLedger)).
		WithArgs(bob.String()).
		WillReturnRows(sqlmock.NewRows([]string{"total_payments", "total_amount", "last_payment"}))
	l, err = store.GetLedger(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, l)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResultAndBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(queryResult)).
		WithArgs(result.String()).
		WillReturnRows(sqlmock.NewRows([]string{"owner", "value", "paid"}).AddRow(alice.String(), "42", true))
	mock.ExpectQuery(regexp.QuoteMeta(queryBalance)).
		WithArgs(alice.String()).
		WillReturnRows(sqlmock.NewRows([]string{"lamports"}).AddRow("2000000"))

	r, err := store.GetResult(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, &core.ComputeResult{Owner: alice, Value: 42, Paid: true}, r)

	bal, err := store.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), bal)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	cs := NewChangeset()
	cs.Balances[alice] = 5
	cs.Results[result] = &core.ComputeResult{Owner: alice, Value: 42, Paid: true}
	cs.Ledgers[alice] = &core.PaymentLedger{Payer: alice, TotalPayments: 1, TotalAmount: 1_000_000, LastPayment: 1700000000}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_balance")).
		WithArgs(alice.String(), "5").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_compute_result")).
		WithArgs(result.String(), alice.String(), "42", true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_payment_ledger")).
		WithArgs(alice.String(), "1", "1000000", int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Commit(ctx, cs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	cs := NewChangeset()
	cs.Balances[alice] = 5
	cs.Ledgers[alice] = &core.PaymentLedger{Payer: alice, TotalPayments: 1, TotalAmount: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_balance")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO x402_payment_ledger")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.Commit(context.Background(), cs)
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS x402_balance")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewPostgresStore(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
