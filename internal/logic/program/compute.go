package program

import (
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/runtime"
	"x402-gate-sol/internal/types"
)

// 计算操作账户布局：
//
// #0 - payer（签名）
// #1 - result（新建的 ComputeResult 账户，签名）
// #2 - System Program
// #3 - Instructions Sysvar（付费操作需要）
const (
	computePayerIndex  = 0
	computeResultIndex = 1
	computeSystemIndex = 2
)

func compute(value uint64) handler {
	return func(c *runtime.Context) error {
		payer, err := writeResult(c, value, true)
		if err != nil {
			return err
		}
		return c.Emit(&core.ComputeEvent{
			Payer:     payer,
			Result:    value,
			Timestamp: c.Now.Unix(),
		})
	}
}

// freeCompute 不经过门控，也不发事件
func freeCompute(c *runtime.Context) error {
	_, err := writeResult(c, 0, false)
	return err
}

func writeResult(c *runtime.Context, value uint64, paid bool) (payer types.Pubkey, err error) {
	payer, err = c.Signer(computePayerIndex)
	if err != nil {
		return payer, err
	}
	result, err := c.Signer(computeResultIndex)
	if err != nil {
		return payer, err
	}
	if _, err = c.Account(computeSystemIndex); err != nil {
		return payer, err
	}
	err = c.State.CreateResult(c.Ctx, result, &core.ComputeResult{
		Owner: payer,
		Value: value,
		Paid:  paid,
	})
	return payer, err
}
