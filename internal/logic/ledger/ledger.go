package ledger

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/blocto/solana-go-sdk/common"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// Store 是账本所需的最小读写能力，state.Overlay 与各后端均满足
type Store interface {
	GetLedger(ctx context.Context, payer types.Pubkey) (*core.PaymentLedger, error)
	PutLedger(ctx context.Context, l *core.PaymentLedger) error
}

// Accounting 维护按 payer 累计的付款账本
type Accounting struct {
	programID types.Pubkey
}

func NewAccounting(programID types.Pubkey) *Accounting {
	return &Accounting{programID: programID}
}

// Address 返回 payer 账本的确定性地址
func (a *Accounting) Address(payer types.Pubkey) (types.Pubkey, error) {
	return LedgerAddress(a.programID, payer)
}

// LedgerAddress 以 ["payment_ledger", payer] 为种子在 programID 下派生 PDA
func LedgerAddress(programID, payer types.Pubkey) (types.Pubkey, error) {
	pda, _, err := common.FindProgramAddress(
		[][]byte{[]byte(consts.LedgerSeed), payer[:]},
		programID.ToSDK(),
	)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("derive ledger address for %s: %w", payer, err)
	}
	return types.PubkeyFromSDK(pda), nil
}

// RecordPayment 累加一笔付款；账本不存在时惰性创建。
// amount 为 0 或累计溢出时不修改 store。
func (a *Accounting) RecordPayment(
	ctx context.Context,
	store Store,
	payer types.Pubkey,
	amount uint64,
	now int64,
) (*core.PaymentLedger, *core.PaymentRecordedEvent, error) {
	if amount == 0 {
		return nil, nil, fmt.Errorf("%w: payer %s", core.InvalidPaymentAmount, payer)
	}

	l, err := store.GetLedger(ctx, payer)
	if err != nil {
		return nil, nil, err
	}
	if l == nil {
		l = &core.PaymentLedger{Payer: payer}
	}

	total, carry := bits.Add64(l.TotalAmount, amount, 0)
	if carry != 0 || l.TotalPayments == ^uint64(0) {
		return nil, nil, fmt.Errorf("%w: ledger of %s", core.ArithmeticOverflow, payer)
	}
	l.TotalPayments++
	l.TotalAmount = total
	l.LastPayment = now

	if err := store.PutLedger(ctx, l); err != nil {
		return nil, nil, err
	}
	return l, &core.PaymentRecordedEvent{
		Payer:         payer,
		Amount:        amount,
		TotalPayments: l.TotalPayments,
	}, nil
}
