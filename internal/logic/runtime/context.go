package runtime

import (
	"context"
	"fmt"
	"time"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/introspect"
	"x402-gate-sol/internal/state"
	"x402-gate-sol/internal/types"
)

// Context 是单条指令的执行上下文
type Context struct {
	Ctx         context.Context
	Tx          *core.Transaction
	Index       int               // 当前指令在交易中的下标
	Instruction *core.Instruction // Tx.Instructions[Index]
	State       *state.Overlay    // 交易内状态视图，交易失败时整体丢弃
	Now         time.Time

	events []*core.Event
}

// Emit 追加一条事件，交易提交后才会投递
func (c *Context) Emit(payload any) error {
	ev, err := core.NewEvent(payload)
	if err != nil {
		return err
	}
	c.events = append(c.events, ev)
	return nil
}

// Inspector 通过指令 sysvar 账户读取交易内容。
// 指令未传入 sysvar 账户时返回 MissingIntrospectionSource。
func (c *Context) Inspector() (introspect.Inspector, error) {
	return introspect.FromAccounts(c.Instruction.Accounts, func(types.Pubkey) ([]byte, error) {
		return introspect.EncodeSysvar(c.Tx, uint16(c.Index))
	})
}

// Account 返回第 i 个账户
func (c *Context) Account(i int) (types.Pubkey, error) {
	key, ok := c.Instruction.AccountAt(i)
	if !ok {
		return types.Pubkey{}, fmt.Errorf("%w: need account #%d, got %d",
			core.NotEnoughAccountKeys, i, len(c.Instruction.Accounts))
	}
	return key, nil
}

// Signer 返回第 i 个账户，并要求其已签名
func (c *Context) Signer(i int) (types.Pubkey, error) {
	key, err := c.Account(i)
	if err != nil {
		return key, err
	}
	if !c.Instruction.Accounts[i].IsSigner {
		return key, fmt.Errorf("%w: account #%d %s", core.MissingSigner, i, key)
	}
	return key, nil
}

// Events 返回本条指令已发出的事件
func (c *Context) Events() []*core.Event {
	return c.events
}
