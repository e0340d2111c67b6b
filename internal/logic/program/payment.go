package program

import (
	"fmt"

	"github.com/near/borsh-go"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/payment"
	"x402-gate-sol/internal/logic/runtime"
)

// verifyPayment 只检查 payer 自身余额是否达到门槛，不读取其他指令
//
// #0 - payer（签名）
func (p *Program) verifyPayment(c *runtime.Context) error {
	payer, err := c.Signer(0)
	if err != nil {
		return err
	}
	balance, err := c.State.GetBalance(c.Ctx, payer)
	if err != nil {
		return err
	}
	return payment.BalanceCheck(balance, p.verifyThreshold)
}

type recordPaymentArgs struct {
	Amount uint64
}

// recordPayment 参数为 borsh u64 金额
//
// #0 - payer（签名）
// #1 - payment_ledger（PDA ["payment_ledger", payer]）
// #2 - System Program
func (p *Program) recordPayment(c *runtime.Context) error {
	data := c.Instruction.Data
	if len(data) < 16 {
		return fmt.Errorf("%w: record_payment data len %d", core.InvalidInstructionData, len(data))
	}
	var args recordPaymentArgs
	if err := borsh.Deserialize(&args, data[8:]); err != nil {
		return fmt.Errorf("%w: record_payment args: %v", core.InvalidInstructionData, err)
	}
	amount := args.Amount

	payer, err := c.Signer(0)
	if err != nil {
		return err
	}
	ledgerAcc, err := c.Account(1)
	if err != nil {
		return err
	}
	if _, err = c.Account(2); err != nil {
		return err
	}
	want, err := p.accounting.Address(payer)
	if err != nil {
		return err
	}
	if ledgerAcc != want {
		return fmt.Errorf("%w: got %s, want %s", core.InvalidLedgerAccount, ledgerAcc, want)
	}

	_, ev, err := p.accounting.RecordPayment(c.Ctx, c.State, payer, amount, c.Now.Unix())
	if err != nil {
		return err
	}
	return c.Emit(ev)
}
