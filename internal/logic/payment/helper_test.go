package payment

import (
	"encoding/binary"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

var (
	testPayer        = types.Pubkey{0x11}
	testResult       = types.Pubkey{0x22}
	externalPayments = types.Pubkey{0xEE}
)

// payload16 构造带 8 字节 selector 的支付数据
func payload16(amount uint64) []byte {
	data := make([]byte, 16)
	copy(data[:8], []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04})
	binary.LittleEndian.PutUint64(data[8:], amount)
	return data
}

// payload8 构造无 selector 的支付数据
func payload8(amount uint64) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, amount)
	return data
}

func paymentIx(data []byte, recipient types.Pubkey) *core.Instruction {
	return &core.Instruction{
		ProgramID: externalPayments,
		Accounts:  []core.AccountMeta{core.Signer(testPayer), core.Writable(recipient), core.ReadOnly(consts.SystemProgram)},
		Data:      data,
	}
}

func gatedIx() *core.Instruction {
	return &core.Instruction{
		ProgramID: consts.X402Program,
		Accounts: []core.AccountMeta{
			core.Signer(testPayer),
			core.Signer(testResult),
			core.ReadOnly(consts.SystemProgram),
			core.ReadOnly(consts.InstructionsSysvar),
		},
		Data: []byte{0xc5, 0xf2, 0x8c, 0xa1, 0x23, 0x99, 0x12, 0x2d},
	}
}
