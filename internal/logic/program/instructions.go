package program

import (
	"encoding/binary"
	"fmt"

	"github.com/near/borsh-go"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/ledger"
	"x402-gate-sol/internal/types"
)

func discData(disc uint64, args []byte) []byte {
	data := make([]byte, 8, 8+len(args))
	binary.BigEndian.PutUint64(data, disc)
	return append(data, args...)
}

// ComputeInstruction 构造计算指令，op 为 premium/standard/enterprise/free_compute 之一。
// 自动附带 Instructions Sysvar 账户。
func ComputeInstruction(programID types.Pubkey, op string, payer, result types.Pubkey) (*core.Instruction, error) {
	disc, ok := opDiscs[op]
	if !ok || (disc != PremiumCompute && disc != StandardCompute && disc != EnterpriseCompute && disc != FreeCompute) {
		return nil, fmt.Errorf("ComputeInstruction: %q is not a compute operation", op)
	}
	return &core.Instruction{
		ProgramID: programID,
		Accounts: []core.AccountMeta{
			core.Signer(payer),
			core.Signer(result),
			core.ReadOnly(consts.SystemProgram),
			core.ReadOnly(consts.InstructionsSysvar),
		},
		Data: discData(disc, nil),
	}, nil
}

func VerifyPaymentInstruction(programID, payer types.Pubkey) *core.Instruction {
	return &core.Instruction{
		ProgramID: programID,
		Accounts:  []core.AccountMeta{core.Signer(payer)},
		Data:      discData(VerifyPayment, nil),
	}
}

// RecordPaymentInstruction 构造 record_payment 指令，账本地址按 payer 派生
func RecordPaymentInstruction(programID, payer types.Pubkey, amount uint64) (*core.Instruction, error) {
	addr, err := ledger.LedgerAddress(programID, payer)
	if err != nil {
		return nil, err
	}
	args, err := borsh.Serialize(recordPaymentArgs{Amount: amount})
	if err != nil {
		return nil, err
	}
	return &core.Instruction{
		ProgramID: programID,
		Accounts: []core.AccountMeta{
			core.Signer(payer),
			core.Writable(addr),
			core.ReadOnly(consts.SystemProgram),
		},
		Data: discData(RecordPayment, args),
	}, nil
}
