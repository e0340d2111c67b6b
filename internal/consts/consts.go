package consts

// 价格档位（最小单位 lamports）
const (
	PremiumPrice    uint64 = 1_000_000
	StandardPrice   uint64 = 5_000_000
	EnterprisePrice uint64 = 50_000_000

	// DefaultPrice 是门控参数未声明 price 时使用的价格
	DefaultPrice = PremiumPrice

	// VerifyPaymentThreshold 是 verify_payment 余额校验的默认门槛
	VerifyPaymentThreshold uint64 = 1_000_000
)

// LedgerSeed 是支付账本 PDA 的命名空间种子
const LedgerSeed = "payment_ledger"

// 各计算操作写入 ComputeResult 的结果值
const (
	PremiumResult    uint64 = 42
	StandardResult   uint64 = 100
	EnterpriseResult uint64 = 1000
)
