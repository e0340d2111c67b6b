package runtime

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"x402-gate-sol/internal/logic/core"
)

// 系统程序指令编号（bincode u32 LE）
const (
	systemTransfer uint32 = 2

	transferDataLen = 4 + 8
)

// SystemProgram 是内置的系统程序，目前只支持 Transfer
type SystemProgram struct{}

// Process 账户：0. from（签名）1. to
func (SystemProgram) Process(c *Context) error {
	data := c.Instruction.Data
	if len(data) < 4 {
		return fmt.Errorf("%w: system instruction too short (%d)", core.InvalidInstructionData, len(data))
	}
	switch op := binary.LittleEndian.Uint32(data); op {
	case systemTransfer:
		if len(data) != transferDataLen {
			return fmt.Errorf("%w: transfer data len %d", core.InvalidInstructionData, len(data))
		}
		return transfer(c, binary.LittleEndian.Uint64(data[4:]))
	default:
		return fmt.Errorf("%w: system instruction %d", core.UnknownInstruction, op)
	}
}

func transfer(c *Context, lamports uint64) error {
	from, err := c.Signer(0)
	if err != nil {
		return err
	}
	to, err := c.Account(1)
	if err != nil {
		return err
	}

	fromBal, err := c.State.GetBalance(c.Ctx, from)
	if err != nil {
		return err
	}
	if fromBal < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", core.InsufficientBalance, from, fromBal, lamports)
	}
	if from == to {
		return nil
	}

	toBal, err := c.State.GetBalance(c.Ctx, to)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(toBal, lamports, 0)
	if carry != 0 {
		return fmt.Errorf("%w: balance of %s", core.ArithmeticOverflow, to)
	}
	c.State.SetBalance(from, fromBal-lamports)
	c.State.SetBalance(to, sum)
	return nil
}

// TransferData 构造 Transfer 指令数据
func TransferData(lamports uint64) []byte {
	data := make([]byte, transferDataLen)
	binary.LittleEndian.PutUint32(data, systemTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return data
}
