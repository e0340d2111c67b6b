package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schema 是审计进度表结构
const Schema = `
CREATE TABLE IF NOT EXISTS x402_audit_tx (
	signature  TEXT PRIMARY KEY,
	slot       BIGINT NOT NULL,
	block_time BIGINT NOT NULL,
	status     SMALLINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_x402_audit_tx_block_time ON x402_audit_tx (block_time);
CREATE TABLE IF NOT EXISTS x402_audit_cursor (
	id         SMALLINT PRIMARY KEY,
	signature  TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DBProgressStore 持久化审计进度，服务重启后恢复使用；
// 高频判重走 Redis，这里只做 fallback。
type DBProgressStore struct {
	db *sql.DB
}

func NewDBProgressStore(db *sql.DB) *DBProgressStore {
	return &DBProgressStore{db: db}
}

func (d *DBProgressStore) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit progress: %w", err)
	}
	return nil
}

// GetStatus 查询交易状态
func (d *DBProgressStore) GetStatus(ctx context.Context, sig string) (TxStatus, error) {
	var status int
	err := d.db.QueryRowContext(ctx, `SELECT status FROM x402_audit_tx WHERE signature = $1`, sig).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return TxUnknown, nil
	}
	if err != nil {
		return TxUnknown, fmt.Errorf("query audit tx %s: %w", sig, err)
	}
	return TxStatus(status), nil
}

// BatchInsert 分批写入审计记录，签名冲突时只更新状态
func (d *DBProgressStore) BatchInsert(ctx context.Context, records []*TxRecord) error {
	const batchLimit = 1000
	for i := 0; i < len(records); i += batchLimit {
		end := min(i+batchLimit, len(records))
		if err := d.insertChunk(ctx, records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DBProgressStore) insertChunk(ctx context.Context, records []*TxRecord) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO x402_audit_tx (signature, slot, block_time, status, updated_at) VALUES `)
	args := make([]any, 0, len(records)*4)
	for i, r := range records {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,CURRENT_TIMESTAMP)", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, r.Signature, int64(r.Slot), r.BlockTime, int(r.Status))
	}
	sb.WriteString(` ON CONFLICT (signature) DO UPDATE SET status = EXCLUDED.status, updated_at = CURRENT_TIMESTAMP`)

	if _, err := d.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert %d audit records: %w", len(records), err)
	}
	return nil
}

func (d *DBProgressStore) Cursor(ctx context.Context) (string, error) {
	var sig string
	err := d.db.QueryRowContext(ctx, `SELECT signature FROM x402_audit_cursor WHERE id = 1`).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query audit cursor: %w", err)
	}
	return sig, nil
}

func (d *DBProgressStore) SetCursor(ctx context.Context, sig string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO x402_audit_cursor (id, signature, updated_at) VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET signature = EXCLUDED.signature, updated_at = CURRENT_TIMESTAMP`, sig)
	if err != nil {
		return fmt.Errorf("save audit cursor: %w", err)
	}
	return nil
}

// DeleteBefore 分批删除 block_time 早于 before 的记录，返回删除总数
func (d *DBProgressStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const batchSize = 1000
	var total int64
	for {
		res, err := d.db.ExecContext(ctx, `
			DELETE FROM x402_audit_tx WHERE signature IN (
				SELECT signature FROM x402_audit_tx WHERE block_time < $1 LIMIT $2
			)`, before.Unix(), batchSize)
		if err != nil {
			return total, fmt.Errorf("delete old audit records: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < batchSize {
			return total, nil
		}
	}
}
