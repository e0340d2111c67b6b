package core

import (
	"fmt"

	"github.com/near/borsh-go"

	"x402-gate-sol/internal/types"
)

// 账户数据 discriminator（sha256("account:<Name>")[:8]）
const (
	ComputeResultDisc uint64 = 0x4deb778c1d66fc31
	PaymentLedgerDisc uint64 = 0x424f09034d871043
)

// ComputeResult 是一次计算调用产出的一次性结果记录，创建后不再修改。
type ComputeResult struct {
	Owner types.Pubkey // 出资创建者
	Value uint64       // 计算结果
	Paid  bool         // 是否经过支付门控
}

// PaymentLedger 是按 payer 聚合的累计支付记录（首次支付时惰性创建，之后原地更新）。
type PaymentLedger struct {
	Payer         types.Pubkey
	TotalPayments uint64
	TotalAmount   uint64 // 单调不减
	LastPayment   int64  // Unix 秒
}

// EncodeComputeResult 编码为 Anchor 账户数据：discriminator || borsh
func EncodeComputeResult(r *ComputeResult) ([]byte, error) {
	return encodeAccount(ComputeResultDisc, *r)
}

func DecodeComputeResult(data []byte) (*ComputeResult, error) {
	var r ComputeResult
	if err := decodeAccount(ComputeResultDisc, data, &r); err != nil {
		return nil, fmt.Errorf("decode ComputeResult: %w", err)
	}
	return &r, nil
}

// EncodePaymentLedger 编码为 Anchor 账户数据：discriminator || borsh
func EncodePaymentLedger(l *PaymentLedger) ([]byte, error) {
	return encodeAccount(PaymentLedgerDisc, *l)
}

func DecodePaymentLedger(data []byte) (*PaymentLedger, error) {
	var l PaymentLedger
	if err := decodeAccount(PaymentLedgerDisc, data, &l); err != nil {
		return nil, fmt.Errorf("decode PaymentLedger: %w", err)
	}
	return &l, nil
}

// encodeAccount 的 v 必须是值类型：borsh 会把指针编码为 Option
func encodeAccount(disc uint64, v any) ([]byte, error) {
	body, err := borsh.Serialize(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8, 8+len(body))
	putDiscriminator(buf, disc)
	return append(buf, body...), nil
}

func decodeAccount(disc uint64, data []byte, v any) error {
	got, ok := ReadDiscriminator(data)
	if !ok {
		return fmt.Errorf("account data too short: %d", len(data))
	}
	if got != disc {
		return fmt.Errorf("account discriminator mismatch: got %#x, want %#x", got, disc)
	}
	return borsh.Deserialize(v, data[8:])
}
