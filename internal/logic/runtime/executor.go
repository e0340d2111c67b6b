package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/introspect"
	"x402-gate-sol/internal/state"
	"x402-gate-sol/internal/types"
	"x402-gate-sol/pkg/logger"
)

// Program 是可被交易调用的程序
type Program interface {
	Process(c *Context) error
}

// ProgramFunc 允许普通函数作为 Program
type ProgramFunc func(c *Context) error

func (f ProgramFunc) Process(c *Context) error { return f(c) }

// Outcome 是一笔成功交易的执行结果
type Outcome struct {
	Events  []*core.Event
	Changes *state.Changeset
}

type Option func(*Executor)

// WithClock 注入时钟，默认 time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor 按顺序执行交易内全部指令，全部成功才提交状态并投递事件。
// 交易之间串行执行。
type Executor struct {
	mu       sync.Mutex
	store    state.Store
	sink     core.EventSink
	programs map[types.Pubkey]Program
	now      func() time.Time
}

// NewExecutor 创建执行器并注册内置系统程序，sink 可为空
func NewExecutor(store state.Store, sink core.EventSink, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		sink:     sink,
		programs: make(map[types.Pubkey]Program),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Register(consts.SystemProgram, SystemProgram{})
	return e
}

// Register 注册程序，重复注册时后者覆盖前者
func (e *Executor) Register(programID types.Pubkey, p Program) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[programID] = p
}

// Execute 执行一笔交易。
// 任一指令失败则丢弃全部写入并返回 *core.InstructionError；
// 提交成功后投递失败时，返回结果与投递错误（状态已生效）。
func (e *Executor) Execute(ctx context.Context, tx *core.Transaction) (*Outcome, error) {
	if tx == nil || len(tx.Instructions) == 0 {
		return nil, core.EmptyTransaction
	}
	// 指令 sysvar 以 u16 记录偏移与长度，超出后无法如实反映交易内容
	if size := introspect.SysvarSize(tx); size > introspect.MaxSysvarSize {
		return nil, fmt.Errorf("%w: %d instructions, sysvar size %d", core.TransactionTooLarge, len(tx.Instructions), size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	overlay := state.NewOverlay(e.store)
	now := e.now()
	var events []*core.Event

	for i, ix := range tx.Instructions {
		p, ok := e.programs[ix.ProgramID]
		if !ok {
			return nil, &core.InstructionError{Index: i, Err: fmt.Errorf("%w: %s", core.ProgramNotFound, ix.ProgramID)}
		}
		c := &Context{
			Ctx:         ctx,
			Tx:          tx,
			Index:       i,
			Instruction: ix,
			State:       overlay,
			Now:         now,
		}
		if err := p.Process(c); err != nil {
			logger.Debugf("[Executor] instruction %d on %s aborted: %v", i, ix.ProgramID, err)
			return nil, &core.InstructionError{Index: i, Err: err}
		}
		events = append(events, c.Events()...)
	}

	return e.commit(ctx, overlay, events)
}

// Apply 在与 Execute 相同的串行路径上运行 fn，供链下记账等非交易写入使用。
// fn 失败时丢弃全部写入；成功后一次提交并投递 fn 返回的事件。
func (e *Executor) Apply(ctx context.Context, fn func(o *state.Overlay) ([]*core.Event, error)) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	overlay := state.NewOverlay(e.store)
	events, err := fn(overlay)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, overlay, events)
}

// commit 调用方需持有 e.mu
func (e *Executor) commit(ctx context.Context, overlay *state.Overlay, events []*core.Event) (*Outcome, error) {
	if err := overlay.Commit(ctx); err != nil {
		logger.Errorf("[Executor] commit failed: %v", err)
		return nil, fmt.Errorf("commit: %w", err)
	}
	out := &Outcome{Events: events, Changes: overlay.Changeset()}

	if e.sink != nil && len(events) > 0 {
		if err := e.sink.Publish(ctx, events); err != nil {
			logger.Errorf("[Executor] publish %d events failed: %v", len(events), err)
			return out, fmt.Errorf("publish events: %w", err)
		}
	}
	return out, nil
}
