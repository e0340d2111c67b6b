package audit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blocto/solana-go-sdk/common"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/dispatcher"
	"x402-gate-sol/internal/logic/program"
	"x402-gate-sol/internal/logic/progress"
	"x402-gate-sol/internal/logic/runtime"
	"x402-gate-sol/internal/state"
	"x402-gate-sol/internal/types"
)

var (
	payer      = types.Pubkey{0x01}
	resultAcc  = types.Pubkey{0x02}
	payProgram = types.Pubkey{0xFA}
)

type fakeSource struct {
	sigs []SignatureInfo // 从新到旧
	txs  map[string]*ConfirmedTx
}

func (f *fakeSource) Signatures(_ context.Context, _ types.Pubkey, before, until string, limit int) ([]SignatureInfo, error) {
	var out []SignatureInfo
	started := before == ""
	for _, s := range f.sigs {
		if s.Signature == until {
			break
		}
		if !started {
			started = s.Signature == before
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) Transaction(_ context.Context, sig string) (*ConfirmedTx, error) {
	return f.txs[sig], nil
}

func (f *fakeSource) push(sig string, failed bool, ixs ...*core.Instruction) {
	f.sigs = append([]SignatureInfo{{Signature: sig, Failed: failed}}, f.sigs...)
	f.txs[sig] = &ConfirmedTx{
		Signature: sig,
		BlockTime: 1_700_000_000,
		Failed:    failed,
		Tx:        core.NewTransaction(ixs...),
	}
}

func payIx(amount uint64) *core.Instruction {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[8:], amount)
	return &core.Instruction{
		ProgramID: payProgram,
		Accounts:  []core.AccountMeta{core.Signer(payer), core.Writable(consts.DefaultRecipient)},
		Data:      data,
	}
}

func computeIx(t *testing.T, op string) *core.Instruction {
	ix, err := program.ComputeInstruction(consts.X402Program, op, payer, resultAcc)
	require.NoError(t, err)
	return ix
}

func newTestService(t *testing.T, src TxSource, opts Options) (*Service, *state.MemoryStore, *dispatcher.MemorySink) {
	svc, store, sink, _ := newTestServiceWithExecutor(t, src, opts)
	return svc, store, sink
}

func newTestServiceWithExecutor(t *testing.T, src TxSource, opts Options) (*Service, *state.MemoryStore, *dispatcher.MemorySink, *runtime.Executor) {
	prog, err := program.New(program.Options{})
	require.NoError(t, err)
	store := state.NewMemoryStore()
	sink := dispatcher.NewMemorySink()
	exec := runtime.NewExecutor(store, sink)
	exec.Register(prog.ID(), prog)
	svc, err := NewService(src, exec, prog, opts)
	require.NoError(t, err)
	return svc, store, sink, exec
}

func TestPoll(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{txs: map[string]*ConfirmedTx{}}
	src.push("sig1", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	src.push("sig2", true, payIx(50_000_000), computeIx(t, consts.OpEnterpriseCompute))
	src.push("sig3", false, payIx(999_999), computeIx(t, consts.OpPremiumCompute))
	src.push("sig4", false, computeIx(t, consts.OpFreeCompute))

	svc, store, sink := newTestService(t, src, Options{BatchSize: 2})

	n, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	l, err := store.GetLedger(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, &core.PaymentLedger{Payer: payer, TotalPayments: 1, TotalAmount: 1_000_000, LastPayment: 1_700_000_000}, l)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, &core.PaymentRecordedEvent{Payer: payer, Amount: 1_000_000, TotalPayments: 1}, events[0].Payload)

	// 游标之后没有新交易
	n, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	src.push("sig5", false, payIx(5_000_000), computeIx(t, consts.OpStandardCompute))
	n, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, _ = store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(2), l.TotalPayments)
	assert.Equal(t, uint64(6_000_000), l.TotalAmount)
}

func TestPoll_ResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	pm := progress.NewManager(progress.NewRedisProgressStore(rdb), nil, 0)

	src := &fakeSource{txs: map[string]*ConfirmedTx{}}
	src.push("sig1", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	src.push("sig2", true, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))

	prog, err := program.New(program.Options{})
	require.NoError(t, err)
	store := state.NewMemoryStore()

	exec := runtime.NewExecutor(store, nil)
	first, err := NewService(src, exec, prog, Options{Progress: pm})
	require.NoError(t, err)
	n, err := first.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 新实例从持久化游标继续，不重复记账
	src.push("sig3", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	second, err := NewService(src, exec, prog, Options{Progress: pm})
	require.NoError(t, err)
	n, err = second.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, _ := store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(2), l.TotalPayments)

	done, err := pm.IsDone(ctx, "sig2")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPoll_BacklogBeyondPageLimit(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{txs: map[string]*ConfirmedTx{}}
	src.push("sig1", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))

	svc, store, _ := newTestService(t, src, Options{BatchSize: 1, MaxPages: 2})
	n, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, sig := range []string{"sig2", "sig3", "sig4", "sig5"} {
		src.push(sig, false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	}

	// 第一轮只记录窗口边界，随后从最旧的窗口开始审计
	var audited []int
	for i := 0; i < 3; i++ {
		n, err := svc.Poll(ctx)
		require.NoError(t, err)
		audited = append(audited, n)
	}
	assert.Equal(t, []int{0, 2, 2}, audited)
	assert.Zero(t, svc.Backlog())

	l, err := store.GetLedger(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), l.TotalPayments)

	n, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPoll_BacklogExactlyFillsWindow(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{txs: map[string]*ConfirmedTx{}}
	src.push("sig1", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	src.push("sig2", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))

	svc, store, _ := newTestService(t, src, Options{BatchSize: 1, MaxPages: 2})
	n, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, svc.Backlog())

	l, _ := store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(2), l.TotalPayments)
}

type flakySource struct {
	*fakeSource
	broken map[string]bool
}

func (f *flakySource) Transaction(ctx context.Context, sig string) (*ConfirmedTx, error) {
	if f.broken[sig] {
		return nil, errors.New("rpc unavailable")
	}
	return f.fakeSource.Transaction(ctx, sig)
}

func TestPoll_FetchErrorStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	inner := &fakeSource{txs: map[string]*ConfirmedTx{}}
	inner.push("sig1", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	inner.push("sig2", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	inner.push("sig3", false, payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	src := &flakySource{fakeSource: inner, broken: map[string]bool{"sig2": true}}

	svc, store, _ := newTestService(t, src, Options{FetchWorkers: 3})

	n, err := svc.Poll(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	l, _ := store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(1), l.TotalPayments)

	// 恢复后从 sig2 继续
	delete(src.broken, "sig2")
	n, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	l, _ = store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(3), l.TotalPayments)
}

func TestProcessTx_MultipleGatedInstructions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, &fakeSource{}, Options{})

	report, err := svc.ProcessTx(ctx, &ConfirmedTx{
		Signature: "multi",
		BlockTime: 42,
		Tx: core.NewTransaction(
			payIx(1_000_000), computeIx(t, consts.OpPremiumCompute),
			payIx(5_000_000), computeIx(t, consts.OpStandardCompute),
			computeIx(t, consts.OpPremiumCompute),
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Verified)
	assert.Equal(t, 1, report.Rejected)
	require.Len(t, report.Events, 2)

	l, _ := store.GetLedger(ctx, payer)
	assert.Equal(t, uint64(2), l.TotalPayments)
	assert.Equal(t, uint64(6_000_000), l.TotalAmount)
	assert.Equal(t, int64(42), l.LastPayment)
}

func TestProcessTx_ConcurrentWithRecordPayment(t *testing.T) {
	ctx := context.Background()
	svc, store, _, exec := newTestServiceWithExecutor(t, &fakeSource{}, Options{})
	paid := core.NewTransaction(payIx(1_000_000), computeIx(t, consts.OpPremiumCompute))
	recordIx, err := program.RecordPaymentInstruction(consts.X402Program, payer, 1)
	require.NoError(t, err)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := svc.ProcessTx(ctx, &ConfirmedTx{
				Signature: fmt.Sprintf("audit-%d", i),
				Tx:        paid,
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := exec.Execute(ctx, core.NewTransaction(recordIx))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	l, err := store.GetLedger(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*rounds), l.TotalPayments)
	assert.Equal(t, uint64(rounds*1_000_000+rounds), l.TotalAmount)
}

func TestProcessTx_FailedOnChain(t *testing.T) {
	ctx := context.Background()
	svc, store, sink := newTestService(t, &fakeSource{}, Options{})

	report, err := svc.ProcessTx(ctx, &ConfirmedTx{
		Failed: true,
		Tx:     core.NewTransaction(payIx(1_000_000), computeIx(t, consts.OpPremiumCompute)),
	})
	require.NoError(t, err)
	assert.Zero(t, report.Verified)

	l, _ := store.GetLedger(ctx, payer)
	assert.Nil(t, l)
	assert.Empty(t, sink.Events())
}

func TestDecompile(t *testing.T) {
	a, b, c, d := types.Pubkey{1}, types.Pubkey{2}, types.Pubkey{3}, types.Pubkey{4}
	msg := sdktypes.Message{
		Header: sdktypes.MessageHeader{
			NumRequireSignatures:        2,
			NumReadonlySignedAccounts:   1,
			NumReadonlyUnsignedAccounts: 1,
		},
		Accounts: []common.PublicKey{a.ToSDK(), b.ToSDK(), c.ToSDK(), d.ToSDK()},
		Instructions: []sdktypes.CompiledInstruction{
			{ProgramIDIndex: 3, Accounts: []int{0, 2, 1}, Data: []byte{7}},
		},
	}

	tx, err := Decompile(msg)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 1)
	ix := tx.Instructions[0]
	assert.Equal(t, d, ix.ProgramID)
	assert.Equal(t, []core.AccountMeta{
		{Pubkey: a, IsSigner: true, IsWritable: true},
		{Pubkey: c, IsWritable: true},
		{Pubkey: b, IsSigner: true},
	}, ix.Accounts)
	assert.Equal(t, []byte{7}, ix.Data)

	msg.Instructions[0].Accounts = []int{9}
	_, err = Decompile(msg)
	assert.Error(t, err)
}
