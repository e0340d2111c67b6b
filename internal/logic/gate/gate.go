package gate

import (
	"x402-gate-sol/internal/logic/introspect"
	"x402-gate-sol/internal/logic/payment"
)

// Context 是被门控操作的调用上下文，门控只需要从中取得指令内省能力
type Context interface {
	Inspector() (introspect.Inspector, error)
}

// Handler 是一个操作体
type Handler[C Context] func(c C) error

// Wrap 返回带支付门控的 Handler：先校验前一条支付指令（价格 spec.Price、收款地址 spec.Recipient），
// 通过后才执行 h。校验失败时原样返回错误，由宿主环境回滚整笔交易（包括前面的支付指令）。
func Wrap[C Context](h Handler[C], spec Spec, v *payment.Verifier) Handler[C] {
	return func(c C) error {
		insp, err := c.Inspector()
		if err != nil {
			return err
		}
		if err := v.Verify(insp, spec.Price, spec.Recipient); err != nil {
			return err
		}
		return h(c)
	}
}
