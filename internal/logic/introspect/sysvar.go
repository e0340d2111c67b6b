package introspect

import (
	"encoding/binary"
	"fmt"
	"math"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// 指令 sysvar 数据布局（全部小端）：
//
//	u16 count
//	u16 offsets[count]            // 每条指令在数据中的起始偏移
//	per instruction:
//	  u16 numAccounts
//	  numAccounts × (u8 flags, 32B pubkey)   // flags: bit0=signer, bit1=writable
//	  32B programID
//	  u16 dataLen
//	  data
//	u16 currentIndex              // 固定位于末尾 2 字节
const (
	flagSigner   = 1 << 0
	flagWritable = 1 << 1
)

// MaxSysvarSize 是 sysvar 数据的上限：偏移、计数与长度都是 u16，
// 总长不超过该值时所有字段都不会截断。
const MaxSysvarSize = math.MaxUint16

// SysvarSize 返回交易编码为指令 sysvar 后的字节数
func SysvarSize(tx *core.Transaction) int {
	size := 2 + 2*len(tx.Instructions) + 2
	for _, ix := range tx.Instructions {
		size += 2 + 33*len(ix.Accounts) + 32 + 2 + len(ix.Data)
	}
	return size
}

// EncodeSysvar 将交易序列化为指令 sysvar 的账户数据，并写入当前指令下标。
// 编码后超过 MaxSysvarSize 时返回 TransactionTooLarge。
func EncodeSysvar(tx *core.Transaction, current uint16) ([]byte, error) {
	count := len(tx.Instructions)
	if int(current) >= count {
		return nil, fmt.Errorf("%w: current=%d, count=%d", core.IndexOutOfRange, current, count)
	}
	size := SysvarSize(tx)
	if size > MaxSysvarSize {
		return nil, fmt.Errorf("%w: sysvar size %d > %d", core.TransactionTooLarge, size, MaxSysvarSize)
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint16(buf[0:], uint16(count))
	offset := 2 + 2*count
	for i, ix := range tx.Instructions {
		binary.LittleEndian.PutUint16(buf[2+2*i:], uint16(offset))

		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(ix.Accounts)))
		offset += 2
		for _, acc := range ix.Accounts {
			var flags byte
			if acc.IsSigner {
				flags |= flagSigner
			}
			if acc.IsWritable {
				flags |= flagWritable
			}
			buf[offset] = flags
			copy(buf[offset+1:], acc.Pubkey[:])
			offset += 33
		}
		copy(buf[offset:], ix.ProgramID[:])
		offset += 32
		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(ix.Data)))
		offset += 2
		copy(buf[offset:], ix.Data)
		offset += len(ix.Data)
	}
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], current)
	return buf, nil
}

// SysvarInspector 直接从指令 sysvar 账户数据中读取指令
type SysvarInspector struct {
	data []byte
}

var _ Inspector = (*SysvarInspector)(nil)

func NewSysvarInspector(data []byte) *SysvarInspector {
	return &SysvarInspector{data: data}
}

// FromAccounts 在指令账户列表中查找指令 sysvar，找到时用 load 取回其数据。
// 未传入 sysvar 账户时返回 MissingIntrospectionSource。
func FromAccounts(accounts []core.AccountMeta, load func(types.Pubkey) ([]byte, error)) (*SysvarInspector, error) {
	for _, acc := range accounts {
		if acc.Pubkey == consts.InstructionsSysvar {
			data, err := load(acc.Pubkey)
			if err != nil {
				return nil, err
			}
			return NewSysvarInspector(data), nil
		}
	}
	return nil, fmt.Errorf("%w: instructions sysvar not in account list", core.MissingIntrospectionSource)
}

func (s *SysvarInspector) CurrentIndex() (uint16, error) {
	if len(s.data) < 4 {
		return 0, fmt.Errorf("%w: sysvar data too short (%d)", core.MissingIntrospectionSource, len(s.data))
	}
	count := binary.LittleEndian.Uint16(s.data)
	current := binary.LittleEndian.Uint16(s.data[len(s.data)-2:])
	if current >= count {
		return 0, fmt.Errorf("%w: current=%d, count=%d", core.IndexOutOfRange, current, count)
	}
	return current, nil
}

func (s *SysvarInspector) InstructionAt(i int) (*core.Instruction, error) {
	data := s.data
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: sysvar data too short (%d)", core.MissingIntrospectionSource, len(data))
	}
	count := int(binary.LittleEndian.Uint16(data))
	if i < 0 || i >= count {
		return nil, fmt.Errorf("%w: index=%d, count=%d", core.IndexOutOfRange, i, count)
	}
	if len(data) < 2+2*count {
		return nil, truncated(len(data))
	}

	offset := int(binary.LittleEndian.Uint16(data[2+2*i:]))
	if offset+2 > len(data) {
		return nil, truncated(len(data))
	}
	numAccounts := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if offset+33*numAccounts+32+2 > len(data) {
		return nil, truncated(len(data))
	}
	ix := &core.Instruction{Accounts: make([]core.AccountMeta, numAccounts)}
	for j := 0; j < numAccounts; j++ {
		flags := data[offset]
		ix.Accounts[j].IsSigner = flags&flagSigner != 0
		ix.Accounts[j].IsWritable = flags&flagWritable != 0
		copy(ix.Accounts[j].Pubkey[:], data[offset+1:offset+33])
		offset += 33
	}
	copy(ix.ProgramID[:], data[offset:offset+32])
	offset += 32

	dataLen := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if offset+dataLen > len(data) {
		return nil, truncated(len(data))
	}
	ix.Data = append([]byte(nil), data[offset:offset+dataLen]...)
	return ix, nil
}

func truncated(n int) error {
	return fmt.Errorf("%w: sysvar data truncated (%d)", core.MissingIntrospectionSource, n)
}
