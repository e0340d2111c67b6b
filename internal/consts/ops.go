package consts

// 程序对外暴露的指令名称（同时用于计算 Anchor 指令 discriminator）
const (
	OpPremiumCompute    = "premium_compute"
	OpStandardCompute   = "standard_compute"
	OpEnterpriseCompute = "enterprise_compute"
	OpFreeCompute       = "free_compute"
	OpVerifyPayment     = "verify_payment"
	OpRecordPayment     = "record_payment"
)

// GatedOps 是需要支付门控的操作，以及默认门控参数
var GatedOps = []struct {
	Name string
	Args string
}{
	{Name: OpPremiumCompute, Args: "price = 1_000_000"},
	{Name: OpStandardCompute, Args: "price = 5_000_000"},
	{Name: OpEnterpriseCompute, Args: "price = 50_000_000"},
}
