package program

// 指令 discriminator（sha256("global:<name>")[:8]，按大端读取）
const (
	PremiumCompute    uint64 = 0xc5f28ca12399122d
	StandardCompute   uint64 = 0x0a7f9c5b25f36d64
	EnterpriseCompute uint64 = 0x668bdee131e06209
	FreeCompute       uint64 = 0x5dc1de1f1d92e136
	VerifyPayment     uint64 = 0x469b622cb06e4aa9
	RecordPayment     uint64 = 0xe29a0a1b090e9489
)

// opDiscs 操作名 → discriminator
var opDiscs = map[string]uint64{
	"premium_compute":    PremiumCompute,
	"standard_compute":   StandardCompute,
	"enterprise_compute": EnterpriseCompute,
	"free_compute":       FreeCompute,
	"verify_payment":     VerifyPayment,
	"record_payment":     RecordPayment,
}
