package state

import (
	"context"
	"sync"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// MemoryStore 是进程内的 Store 实现，用于本地执行与测试
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[types.Pubkey]uint64
	results  map[types.Pubkey]core.ComputeResult
	ledgers  map[types.Pubkey]core.PaymentLedger
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[types.Pubkey]uint64),
		results:  make(map[types.Pubkey]core.ComputeResult),
		ledgers:  make(map[types.Pubkey]core.PaymentLedger),
	}
}

func (m *MemoryStore) GetBalance(_ context.Context, account types.Pubkey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account], nil
}

func (m *MemoryStore) GetResult(_ context.Context, address types.Pubkey) (*core.ComputeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[address]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) GetLedger(_ context.Context, payer types.Pubkey) (*core.PaymentLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.ledgers[payer]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryStore) Commit(_ context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range cs.Balances {
		m.balances[k] = v
	}
	for k, v := range cs.Results {
		m.results[k] = *v
	}
	for k, v := range cs.Ledgers {
		m.ledgers[k] = *v
	}
	return nil
}

// Fund 直接设置账户余额（本地环境初始化用）
func (m *MemoryStore) Fund(account types.Pubkey, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = lamports
}
