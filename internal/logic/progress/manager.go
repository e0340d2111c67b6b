package progress

import (
	"context"
	"time"

	"x402-gate-sol/pkg/logger"
)

const retention = 7 * 24 * time.Hour

// Manager 统一封装 Redis + DB + 缓冲，控制审计判重与进度持久化。
// redis 与 db 均可为空，为空时对应层直接跳过。
// 作为 go-zero Service 运行时负责定时 flush。
type Manager struct {
	redis    *RedisProgressStore
	db       *DBProgressStore
	buffer   txBuffer
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(redis *RedisProgressStore, db *DBProgressStore, flushInterval time.Duration) *Manager {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		redis:    redis,
		db:       db,
		interval: flushInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) Start() {
	m.StartFlushLoop(m.ctx, m.interval)
}

func (m *Manager) Stop() {
	m.cancel()
}

// IsDone 判断交易是否已审计（或已确定跳过）：先查 Redis，再 fallback 到 DB 并回填 Redis
func (m *Manager) IsDone(ctx context.Context, sig string) (bool, error) {
	if m.redis != nil {
		status, err := m.redis.GetStatus(ctx, sig)
		if err != nil {
			return false, err
		}
		if status != TxUnknown {
			return true, nil
		}
	}
	if m.db == nil {
		return false, nil
	}

	status, err := m.db.GetStatus(ctx, sig)
	if err != nil {
		return false, err
	}
	if status == TxUnknown {
		return false, nil
	}
	if m.redis != nil {
		_ = m.redis.MarkStatus(ctx, sig, status)
	}
	return true, nil
}

// Mark 记录交易状态：立即写 Redis，DB 通过缓冲批量写入
func (m *Manager) Mark(ctx context.Context, rec TxRecord) error {
	if rec.Status == TxUnknown {
		return nil
	}
	if m.redis != nil {
		if err := m.redis.MarkStatus(ctx, rec.Signature, rec.Status); err != nil {
			return err
		}
	}
	if m.db != nil {
		m.buffer.Add(&rec)
	}
	return nil
}

// Cursor 返回已持久化的最新签名，优先 Redis
func (m *Manager) Cursor(ctx context.Context) (string, error) {
	if m.redis != nil {
		sig, err := m.redis.Cursor(ctx)
		if err != nil {
			return "", err
		}
		if sig != "" {
			return sig, nil
		}
	}
	if m.db != nil {
		return m.db.Cursor(ctx)
	}
	return "", nil
}

// SaveCursor 写入游标；DB 游标在下一次 Flush 前同步写入
func (m *Manager) SaveCursor(ctx context.Context, sig string) error {
	if m.redis != nil {
		if err := m.redis.SetCursor(ctx, sig); err != nil {
			return err
		}
	}
	if m.db != nil {
		return m.db.SetCursor(ctx, sig)
	}
	return nil
}

// Flush 将缓冲的记录写入 DB，失败时记录放回缓冲
func (m *Manager) Flush(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	list := m.buffer.Flush()
	if len(list) == 0 {
		return nil
	}
	if err := m.db.BatchInsert(ctx, list); err != nil {
		for _, r := range list {
			m.buffer.Add(r)
		}
		return err
	}
	return nil
}

// StartFlushLoop 定时 flush 并清理过期记录，直到 ctx 结束
func (m *Manager) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastGC := time.Now()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Flush(flushCtx); err != nil {
				logger.Errorf("[progress] final flush failed, %d records lost: %v", m.buffer.Len(), err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := m.Flush(ctx); err != nil {
				logger.Warnf("[progress] flush failed, pending=%d: %v", m.buffer.Len(), err)
			}
			if m.db != nil && time.Since(lastGC) > time.Hour {
				lastGC = time.Now()
				n, err := m.db.DeleteBefore(ctx, time.Now().Add(-retention))
				if err != nil {
					logger.Warnf("[progress] gc failed: %v", err)
				} else if n > 0 {
					logger.Infof("[progress] gc deleted %d old records", n)
				}
			}
		}
	}
}
