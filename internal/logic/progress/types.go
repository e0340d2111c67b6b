package progress

// TxStatus 表示一笔交易的审计状态（Redis 与 DB 统一编码）
type TxStatus int

const (
	TxUnknown   TxStatus = 0 // 未记录
	TxProcessed TxStatus = 1 // 已审计并记账
	TxSkipped   TxStatus = 2 // 链上失败或无法还原，跳过
)

// TxRecord 表示一条待写入 DB 的审计记录
type TxRecord struct {
	Signature string
	Slot      uint64
	BlockTime int64 // Unix timestamp（秒）
	Status    TxStatus
}
