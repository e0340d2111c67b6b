package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	// Programs
	SystemProgramStr = "11111111111111111111111111111111"

	// Sysvar：指令内省账户，程序通过它读取当前交易的全部指令
	InstructionsSysvarStr = "Sysvar1nstructions1111111111111111111111111"

	// x402 示例程序（链上部署地址）
	X402ProgramStr = "9xwTdtTvo4h1tZWakCz3JPSpi4ePht9VHzujtr2Dywb1"

	// 默认收款地址，可在配置中覆盖
	DefaultRecipientStr = "ESPyXCB93a6CvrAE2btofpgXAswf4oE3NuziBsHVCAZa"
)
