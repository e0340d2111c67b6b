package payment

import (
	"fmt"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/introspect"
	"x402-gate-sol/internal/types"
)

// 支付指令账户结构（外部约定）：
//  0. payer
//  1. recipient（收款地址，必须与配置一致）
const (
	payerAccountIndex     = 0
	recipientAccountIndex = 1
)

// Receipt 是校验通过的支付信息
type Receipt struct {
	Index     int          // 支付指令在交易中的下标
	Amount    uint64       // 解码出的支付金额
	Payer     types.Pubkey // 支付指令第 0 个账户（可能为空）
	Recipient types.Pubkey // 支付指令第 1 个账户
}

// Verifier 校验紧邻当前指令之前的支付指令。
// 只读取交易内容，不转移任何资产：转账已由前一条指令完成，交易的原子性保证两者一致。
type Verifier struct {
	decode AmountDecoder
}

// NewVerifier 创建校验器，decoder 为空时使用 DualLayoutDecoder
func NewVerifier(decoder AmountDecoder) *Verifier {
	if decoder == nil {
		decoder = DualLayoutDecoder
	}
	return &Verifier{decode: decoder}
}

// Verify 校验前一条指令是否支付了至少 required，且收款地址为 expected
func (v *Verifier) Verify(insp introspect.Inspector, required uint64, expected types.Pubkey) error {
	_, err := v.VerifyReceipt(insp, required, expected)
	return err
}

// VerifyReceipt 与 Verify 相同，成功时额外返回支付信息。
// 结果只取决于交易内容，重复调用结果一致。
func (v *Verifier) VerifyReceipt(insp introspect.Inspector, required uint64, expected types.Pubkey) (*Receipt, error) {
	// 1. 当前指令必须有前驱
	current, err := insp.CurrentIndex()
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, core.MissingPaymentInstruction
	}

	// 2. 读取前一条指令
	prevIndex := int(current) - 1
	prev, err := insp.InstructionAt(prevIndex)
	if err != nil {
		return nil, err
	}

	// 3. 解码金额
	amount, err := v.decode(prev.Data)
	if err != nil {
		return nil, err
	}

	// 4. 金额校验
	if amount < required {
		return nil, fmt.Errorf("%w: paid=%d, required=%d", core.InsufficientPayment, amount, required)
	}

	// 5. 收款地址校验
	recipient, ok := prev.AccountAt(recipientAccountIndex)
	if !ok {
		return nil, fmt.Errorf("%w: payment instruction has %d accounts", core.InvalidRecipient, len(prev.Accounts))
	}
	if recipient != expected {
		return nil, fmt.Errorf("%w: got=%s, expected=%s", core.InvalidRecipient, recipient, expected)
	}

	payer, _ := prev.AccountAt(payerAccountIndex)
	return &Receipt{
		Index:     prevIndex,
		Amount:    amount,
		Payer:     payer,
		Recipient: recipient,
	}, nil
}

// BalanceCheck 是 verify_payment 使用的独立余额校验，与前驱指令校验无关：
// 余额低于 threshold 时返回 InsufficientPayment。
func BalanceCheck(balance, threshold uint64) error {
	if balance < threshold {
		return fmt.Errorf("%w: balance=%d, threshold=%d", core.InsufficientPayment, balance, threshold)
	}
	return nil
}
