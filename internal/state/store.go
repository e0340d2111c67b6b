package state

import (
	"context"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// Store 是持久化状态的后端：读取单条记录，并以一个批次原子地提交交易产生的全部修改。
// 查询不存在的记录返回 (nil, nil) 或 0。
type Store interface {
	GetBalance(ctx context.Context, account types.Pubkey) (uint64, error)
	GetResult(ctx context.Context, address types.Pubkey) (*core.ComputeResult, error)
	GetLedger(ctx context.Context, payer types.Pubkey) (*core.PaymentLedger, error)

	// Commit 原子地写入 changeset：要么全部可见，要么全部不可见
	Commit(ctx context.Context, cs *Changeset) error
}

// Changeset 是一笔交易产生的全部写入
type Changeset struct {
	Balances map[types.Pubkey]uint64
	Results  map[types.Pubkey]*core.ComputeResult // key 为结果账户地址
	Ledgers  map[types.Pubkey]*core.PaymentLedger // key 为 payer
}

func NewChangeset() *Changeset {
	return &Changeset{
		Balances: make(map[types.Pubkey]uint64),
		Results:  make(map[types.Pubkey]*core.ComputeResult),
		Ledgers:  make(map[types.Pubkey]*core.PaymentLedger),
	}
}

func (cs *Changeset) Empty() bool {
	return len(cs.Balances) == 0 && len(cs.Results) == 0 && len(cs.Ledgers) == 0
}
