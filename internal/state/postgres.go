package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// Schema 是 PostgresStore 使用的表结构。u64 字段使用 NUMERIC(20,0) 保存，避免 BIGINT 溢出。
const Schema = `
CREATE TABLE IF NOT EXISTS x402_balance (
	account    TEXT PRIMARY KEY,
	lamports   NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS x402_compute_result (
	address    TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	value      NUMERIC(20,0) NOT NULL,
	paid       BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS x402_payment_ledger (
	payer          TEXT PRIMARY KEY,
	total_payments NUMERIC(20,0) NOT NULL,
	total_amount   NUMERIC(20,0) NOT NULL,
	last_payment   BIGINT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const (
	queryBalance = `SELECT lamports FROM x402_balance WHERE account = $1`
	queryResult  = `SELECT owner, value, paid FROM x402_compute_result WHERE address = $1`
	queryLedger  = `SELECT total_payments, total_amount, last_payment FROM x402_payment_ledger WHERE payer = $1`

	upsertBalance = `
		INSERT INTO x402_balance (account, lamports, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (account) DO UPDATE SET
			lamports = EXCLUDED.lamports,
			updated_at = CURRENT_TIMESTAMP`
	insertResult = `
		INSERT INTO x402_compute_result (address, owner, value, paid)
		VALUES ($1, $2, $3, $4)`
	upsertLedger = `
		INSERT INTO x402_payment_ledger (payer, total_payments, total_amount, last_payment, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (payer) DO UPDATE SET
			total_payments = EXCLUDED.total_payments,
			total_amount = EXCLUDED.total_amount,
			last_payment = EXCLUDED.last_payment,
			updated_at = CURRENT_TIMESTAMP`
)

// PostgresStore 将状态保存在 PostgreSQL 中，Commit 在单个数据库事务中完成
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate 创建所需的表（幂等）
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate x402 schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	var lamports string
	err := p.db.QueryRowContext(ctx, queryBalance, account.String()).Scan(&lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance %s: %w", account, err)
	}
	return strconv.ParseUint(lamports, 10, 64)
}

func (p *PostgresStore) GetResult(ctx context.Context, address types.Pubkey) (*core.ComputeResult, error) {
	var owner, value string
	var paid bool
	err := p.db.QueryRowContext(ctx, queryResult, address.String()).Scan(&owner, &value, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", address, err)
	}

	r := &core.ComputeResult{Paid: paid}
	if r.Owner, err = types.TryPubkeyFromBase58(owner); err != nil {
		return nil, err
	}
	if r.Value, err = strconv.ParseUint(value, 10, 64); err != nil {
		return nil, fmt.Errorf("parse result value %q: %w", value, err)
	}
	return r, nil
}

func (p *PostgresStore) GetLedger(ctx context.Context, payer types.Pubkey) (*core.PaymentLedger, error) {
	var totalPayments, totalAmount string
	var lastPayment int64
	err := p.db.QueryRowContext(ctx, queryLedger, payer.String()).Scan(&totalPayments, &totalAmount, &lastPayment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", payer, err)
	}

	l := &core.PaymentLedger{Payer: payer, LastPayment: lastPayment}
	if l.TotalPayments, err = strconv.ParseUint(totalPayments, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_payments %q: %w", totalPayments, err)
	}
	if l.TotalAmount, err = strconv.ParseUint(totalAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse total_amount %q: %w", totalAmount, err)
	}
	return l, nil
}

func (p *PostgresStore) Commit(ctx context.Context, cs *Changeset) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for acc, lamports := range cs.Balances {
		if _, err = tx.ExecContext(ctx, upsertBalance, acc.String(), u64(lamports)); err != nil {
			return fmt.Errorf("upsert balance %s: %w", acc, err)
		}
	}
	for addr, r := range cs.Results {
		if _, err = tx.ExecContext(ctx, insertResult, addr.String(), r.Owner.String(), u64(r.Value), r.Paid); err != nil {
			return fmt.Errorf("insert result %s: %w", addr, err)
		}
	}
	for payer, l := range cs.Ledgers {
		if _, err = tx.ExecContext(ctx, upsertLedger, payer.String(), u64(l.TotalPayments), u64(l.TotalAmount), l.LastPayment); err != nil {
			return fmt.Errorf("upsert ledger %s: %w", payer, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
