package consts

import (
	"x402-gate-sol/internal/types"
)

// 公钥形式的地址常量（types.Pubkey），用于链上比对、性能优化等场景。
var (
	SystemProgram      types.Pubkey
	InstructionsSysvar types.Pubkey
	X402Program        types.Pubkey
	DefaultRecipient   types.Pubkey
)

// init 自动将 base58 字符串地址转换为 types.Pubkey
func init() {
	SystemProgram = types.PubkeyFromBase58(SystemProgramStr)
	InstructionsSysvar = types.PubkeyFromBase58(InstructionsSysvarStr)
	X402Program = types.PubkeyFromBase58(X402ProgramStr)
	DefaultRecipient = types.PubkeyFromBase58(DefaultRecipientStr)
}
