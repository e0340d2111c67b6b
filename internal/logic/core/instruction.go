package core

import (
	"x402-gate-sol/internal/types"
)

// AccountMeta 表示指令引用的一个账户及其权限标记。
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction 表示交易中的一条指令：目标程序、有序账户列表与原始数据。
// 提交后不可修改。
type Instruction struct {
	ProgramID types.Pubkey  // 所调用的程序地址
	Accounts  []AccountMeta // 指令涉及的账户列表，保持原始顺序
	Data      []byte        // 指令原始数据
}

// AccountAt 返回第 i 个账户的公钥，越界返回 false
func (ix *Instruction) AccountAt(i int) (types.Pubkey, bool) {
	if i < 0 || i >= len(ix.Accounts) {
		return types.Pubkey{}, false
	}
	return ix.Accounts[i].Pubkey, true
}

// HasAccount 判断指令账户列表中是否包含 key
func (ix *Instruction) HasAccount(key types.Pubkey) bool {
	for _, acc := range ix.Accounts {
		if acc.Pubkey == key {
			return true
		}
	}
	return false
}

// Transaction 表示一笔原子交易：指令按顺序执行，全部成功或全部回滚。
type Transaction struct {
	Signature    []byte // 交易签名（可为空，本地构造的交易没有签名）
	Instructions []*Instruction
}

// NewTransaction 按给定顺序构造交易
func NewTransaction(ixs ...*Instruction) *Transaction {
	return &Transaction{Instructions: ixs}
}

func Signer(key types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: true, IsWritable: true}
}

func Writable(key types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: key, IsWritable: true}
}

func ReadOnly(key types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: key}
}
