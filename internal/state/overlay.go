package state

import (
	"context"
	"fmt"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// Overlay 是交易内的状态视图：读穿透到底层 Store，写入只进入本地 Changeset，
// 交易成功后由调用方统一 Commit，失败时直接丢弃。
// 不是并发安全的，交易内指令串行执行。
type Overlay struct {
	base Store
	cs   *Changeset
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, cs: NewChangeset()}
}

// Changeset 返回当前累积的写入
func (o *Overlay) Changeset() *Changeset {
	return o.cs
}

func (o *Overlay) GetBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	if v, ok := o.cs.Balances[account]; ok {
		return v, nil
	}
	return o.base.GetBalance(ctx, account)
}

func (o *Overlay) SetBalance(account types.Pubkey, lamports uint64) {
	o.cs.Balances[account] = lamports
}

func (o *Overlay) GetResult(ctx context.Context, address types.Pubkey) (*core.ComputeResult, error) {
	if r, ok := o.cs.Results[address]; ok {
		cp := *r
		return &cp, nil
	}
	return o.base.GetResult(ctx, address)
}

// CreateResult 创建一次性的结果记录，地址已存在时返回 AccountAlreadyInitialized
func (o *Overlay) CreateResult(ctx context.Context, address types.Pubkey, r *core.ComputeResult) error {
	existing, err := o.GetResult(ctx, address)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: result %s", core.AccountAlreadyInitialized, address)
	}
	cp := *r
	o.cs.Results[address] = &cp
	return nil
}

func (o *Overlay) GetLedger(ctx context.Context, payer types.Pubkey) (*core.PaymentLedger, error) {
	if l, ok := o.cs.Ledgers[payer]; ok {
		cp := *l
		return &cp, nil
	}
	return o.base.GetLedger(ctx, payer)
}

// PutLedger 以 payer 为 key upsert 账本记录
func (o *Overlay) PutLedger(_ context.Context, l *core.PaymentLedger) error {
	cp := *l
	o.cs.Ledgers[l.Payer] = &cp
	return nil
}

// Commit 将累积的写入提交到底层 Store
func (o *Overlay) Commit(ctx context.Context) error {
	if o.cs.Empty() {
		return nil
	}
	return o.base.Commit(ctx, o.cs)
}
