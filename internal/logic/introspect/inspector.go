package introspect

import (
	"fmt"

	"x402-gate-sol/internal/logic/core"
)

// Inspector 提供当前执行交易的只读视图：指令列表与正在执行的指令下标。
type Inspector interface {
	CurrentIndex() (uint16, error)
	InstructionAt(i int) (*core.Instruction, error)
}

// TxInspector 是基于内存交易结构的 Inspector
type TxInspector struct {
	tx      *core.Transaction
	current int
}

var _ Inspector = (*TxInspector)(nil)

func NewTxInspector(tx *core.Transaction, current int) *TxInspector {
	return &TxInspector{tx: tx, current: current}
}

func (t *TxInspector) CurrentIndex() (uint16, error) {
	if t.tx == nil {
		return 0, core.MissingIntrospectionSource
	}
	if t.current < 0 || t.current >= len(t.tx.Instructions) {
		return 0, fmt.Errorf("%w: current=%d, count=%d", core.IndexOutOfRange, t.current, len(t.tx.Instructions))
	}
	return uint16(t.current), nil
}

func (t *TxInspector) InstructionAt(i int) (*core.Instruction, error) {
	if t.tx == nil {
		return nil, core.MissingIntrospectionSource
	}
	if i < 0 || i >= len(t.tx.Instructions) {
		return nil, fmt.Errorf("%w: index=%d, count=%d", core.IndexOutOfRange, i, len(t.tx.Instructions))
	}
	return t.tx.Instructions[i], nil
}
