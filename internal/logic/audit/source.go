package audit

import (
	"context"
	"fmt"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/types"
)

// SignatureInfo 是 getSignaturesForAddress 返回的一条记录
type SignatureInfo struct {
	Signature string
	Slot      uint64
	Failed    bool // 链上执行失败
}

// ConfirmedTx 是已确认交易的还原结果
type ConfirmedTx struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Failed    bool
	Tx        *core.Transaction
}

// TxSource 提供程序相关的已确认交易
type TxSource interface {
	// Signatures 返回 program 相关的签名，按从新到旧排序；
	// before 非空时只返回比它更旧的，until 非空时只返回比它更新的。
	Signatures(ctx context.Context, program types.Pubkey, before, until string, limit int) ([]SignatureInfo, error)
	// Transaction 获取并还原交易，交易不存在时返回 (nil, nil)
	Transaction(ctx context.Context, signature string) (*ConfirmedTx, error)
}

// RpcSource 基于 Solana JSON-RPC 的 TxSource
type RpcSource struct {
	client     *client.Client
	commitment rpc.Commitment
}

func NewRpcSource(endpoint string) *RpcSource {
	return &RpcSource{
		client:     client.NewClient(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
}

func (s *RpcSource) Signatures(ctx context.Context, program types.Pubkey, before, until string, limit int) ([]SignatureInfo, error) {
	resp, err := s.client.GetSignaturesForAddressWithConfig(ctx, program.String(), client.GetSignaturesForAddressConfig{
		Limit:      limit,
		Before:     before,
		Until:      until,
		Commitment: s.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress %s: %w", program, err)
	}
	out := make([]SignatureInfo, 0, len(resp))
	for _, r := range resp {
		out = append(out, SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			Failed:    r.Err != nil,
		})
	}
	return out, nil
}

func (s *RpcSource) Transaction(ctx context.Context, signature string) (*ConfirmedTx, error) {
	resp, err := s.client.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}
	if resp == nil {
		return nil, nil
	}

	tx, err := Decompile(resp.Transaction.Message)
	if err != nil {
		return nil, fmt.Errorf("decompile %s: %w", signature, err)
	}
	if sig, err := base58.Decode(signature); err == nil {
		tx.Signature = sig
	}

	out := &ConfirmedTx{
		Signature: signature,
		Slot:      resp.Slot,
		Failed:    resp.Meta != nil && resp.Meta.Err != nil,
		Tx:        tx,
	}
	if resp.BlockTime != nil {
		out.BlockTime = *resp.BlockTime
	}
	return out, nil
}

// Decompile 将编译后的消息还原为指令列表，签名/可写标记由消息头推导。
// 只支持静态账户表，引用地址查找表的指令返回错误。
func Decompile(msg sdktypes.Message) (*core.Transaction, error) {
	keys := msg.Accounts
	numSigners := int(msg.Header.NumRequireSignatures)
	numReadonlySigned := int(msg.Header.NumReadonlySignedAccounts)
	numReadonlyUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	meta := func(i int) (core.AccountMeta, error) {
		if i < 0 || i >= len(keys) {
			return core.AccountMeta{}, fmt.Errorf("account index %d out of static keys (%d)", i, len(keys))
		}
		m := core.AccountMeta{Pubkey: types.PubkeyFromSDK(keys[i])}
		if i < numSigners {
			m.IsSigner = true
			m.IsWritable = i < numSigners-numReadonlySigned
		} else {
			m.IsWritable = i < len(keys)-numReadonlyUnsigned
		}
		return m, nil
	}

	ixs := make([]*core.Instruction, 0, len(msg.Instructions))
	for n, cix := range msg.Instructions {
		prog, err := meta(cix.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d program: %w", n, err)
		}
		accounts := make([]core.AccountMeta, 0, len(cix.Accounts))
		for _, idx := range cix.Accounts {
			m, err := meta(idx)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", n, err)
			}
			accounts = append(accounts, m)
		}
		ixs = append(ixs, &core.Instruction{
			ProgramID: prog.Pubkey,
			Accounts:  accounts,
			Data:      cix.Data,
		})
	}
	return core.NewTransaction(ixs...), nil
}
