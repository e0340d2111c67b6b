package audit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/logx"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/introspect"
	"x402-gate-sol/internal/logic/program"
	"x402-gate-sol/internal/logic/progress"
	"x402-gate-sol/internal/logic/runtime"
	"x402-gate-sol/internal/state"
	"x402-gate-sol/internal/types"
	"x402-gate-sol/pkg/utils"
)

const (
	defaultInterval  = 10 * time.Second
	defaultBatchSize = 100
	defaultMaxPages  = 10
	defaultSeenLimit = 100_000
	defaultWorkers   = 4
	fetchTimeout     = 10 * time.Second
	seenExpire       = 24 * time.Hour
)

// Progress 持久化审计进度，使重启后不重复记账
type Progress interface {
	IsDone(ctx context.Context, sig string) (bool, error)
	Mark(ctx context.Context, rec progress.TxRecord) error
	Cursor(ctx context.Context) (string, error)
	SaveCursor(ctx context.Context, sig string) error
}

type Options struct {
	Interval     time.Duration // 轮询间隔
	BatchSize    int           // 每页签名数量
	MaxPages     int           // 单次轮询最多翻页数
	SeenLimit    int           // 已处理签名的缓存上限
	FetchWorkers int           // 并发拉取交易的协程数
	Progress     Progress      // 可为空，为空时进度只保存在内存
}

// Report 是一笔交易的审计结果
type Report struct {
	Signature string
	Verified  int // 校验通过并记账的门控指令数
	Rejected  int // 校验失败的门控指令数
	Events    []*core.Event
}

// Recorder 串行提交账本写入并投递事件，由 runtime.Executor 实现
type Recorder interface {
	Apply(ctx context.Context, fn func(o *state.Overlay) ([]*core.Event, error)) (*runtime.Outcome, error)
}

// Service 轮询程序相关的已确认交易，对其中每条付费指令重新做支付校验，
// 通过的金额记入账本并投递 PaymentRecordedEvent。
type Service struct {
	src      TxSource
	recorder Recorder
	prog     *program.Program
	opts     Options

	mu           sync.Mutex
	seen         *collection.Cache
	cursor       string // 已处理的最新签名
	cursorLoaded bool
	// backlog 是积压窗口的下边界栈：栈顶以下到游标之间是下一个待审计窗口
	backlog []string

	ctx    context.Context
	cancel func(err error)
	logx.Logger
}

func NewService(src TxSource, recorder Recorder, prog *program.Program, opts Options) (*Service, error) {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.SeenLimit <= 0 {
		opts.SeenLimit = defaultSeenLimit
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = defaultWorkers
	}

	seen, err := collection.NewCache(seenExpire, collection.WithLimit(opts.SeenLimit), collection.WithName("audit-seen"))
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &Service{
		src:      src,
		recorder: recorder,
		prog:     prog,
		opts:     opts,
		seen:     seen,
		ctx:      ctx,
		cancel:   cancel,
		Logger:   logx.WithContext(ctx).WithFields(logx.Field("service", "payment_audit")),
	}, nil
}

func (s *Service) Start() {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		n, err := s.safePoll()
		if err != nil {
			s.Errorf("poll failed: %v", err)
		} else if n > 0 {
			s.Infof("audited %d transactions", n)
		}

		// 还有积压时不等待下一个周期
		if err == nil && s.Backlog() > 0 {
			select {
			case <-s.ctx.Done():
				return
			default:
				continue
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) Stop() {
	s.cancel(errors.New("payment audit stop"))
}

func (s *Service) safePoll() (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Errorf("poll panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()
	return s.Poll(s.ctx)
}

// Backlog 返回尚未审计的积压窗口数
func (s *Service) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Poll 拉取上次游标之后的新签名，按从旧到新的顺序逐笔审计。
// 单次最多翻 MaxPages 页；新签名超过该范围时先向旧翻页记录窗口边界，
// 从最旧的窗口开始审计，游标只越过已审计的签名。
// 返回本次审计的交易数；出错时游标停在最后一笔成功处理的交易。
func (s *Service) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadCursor(ctx); err != nil {
		return 0, err
	}
	var before string
	if n := len(s.backlog); n > 0 {
		before = s.backlog[n-1]
	}
	sigs, complete, err := s.fetchWindow(ctx, before)
	if err != nil {
		return 0, err
	}
	if !complete {
		bound := sigs[len(sigs)-1].Signature
		s.backlog = append(s.backlog, bound)
		s.Infof("backlog window below %s, depth=%d", bound, len(s.backlog))
		return 0, nil
	}

	// 从旧到新
	pending := make([]SignatureInfo, 0, len(sigs))
	done := make(map[string]bool, len(sigs))
	for i := len(sigs) - 1; i >= 0; i-- {
		ok, err := s.isDone(ctx, sigs[i].Signature)
		if err != nil {
			return 0, err
		}
		done[sigs[i].Signature] = ok
		pending = append(pending, sigs[i])
	}
	fetched := s.fetchTransactions(ctx, pending, done)

	audited := 0
	for _, sig := range pending {
		if done[sig.Signature] {
			if err := s.advance(ctx, sig.Signature); err != nil {
				return audited, err
			}
			continue
		}
		if sig.Failed {
			if err := s.finish(ctx, progress.TxRecord{Signature: sig.Signature, Slot: sig.Slot, Status: progress.TxSkipped}); err != nil {
				return audited, err
			}
			continue
		}

		res := fetched[sig.Signature]
		if res.err != nil {
			return audited, res.err
		}
		tx := res.tx
		if tx == nil {
			return audited, fmt.Errorf("transaction %s not found", sig.Signature)
		}

		report, err := s.ProcessTx(ctx, tx)
		if err != nil {
			if report == nil {
				return audited, err
			}
			// 账本已提交，只是事件投递失败：不再重放该交易
			s.Errorf("tx=%s %v", tx.Signature, err)
		}
		if report.Verified+report.Rejected > 0 {
			s.Infof("tx=%s verified=%d rejected=%d", tx.Signature, report.Verified, report.Rejected)
		}
		rec := progress.TxRecord{Signature: sig.Signature, Slot: tx.Slot, BlockTime: tx.BlockTime, Status: progress.TxProcessed}
		if tx.Failed {
			rec.Status = progress.TxSkipped
		}
		if err := s.finish(ctx, rec); err != nil {
			return audited, err
		}
		audited++
	}
	if n := len(s.backlog); n > 0 {
		s.backlog = s.backlog[:n-1]
	}
	return audited, nil
}

func (s *Service) loadCursor(ctx context.Context) error {
	if s.cursorLoaded || s.opts.Progress == nil {
		return nil
	}
	cursor, err := s.opts.Progress.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("load audit cursor: %w", err)
	}
	s.cursor = cursor
	s.cursorLoaded = true
	if cursor != "" {
		s.Infof("resume from cursor %s", cursor)
	}
	return nil
}

func (s *Service) isDone(ctx context.Context, sig string) (bool, error) {
	if _, ok := s.seen.Get(sig); ok {
		return true, nil
	}
	if s.opts.Progress == nil {
		return false, nil
	}
	return s.opts.Progress.IsDone(ctx, sig)
}

func (s *Service) finish(ctx context.Context, rec progress.TxRecord) error {
	if s.opts.Progress != nil {
		if err := s.opts.Progress.Mark(ctx, rec); err != nil {
			return fmt.Errorf("mark %s: %w", rec.Signature, err)
		}
	}
	return s.advance(ctx, rec.Signature)
}

func (s *Service) advance(ctx context.Context, sig string) error {
	s.seen.Set(sig, struct{}{})
	s.cursor = sig
	if s.opts.Progress != nil {
		return s.opts.Progress.SaveCursor(ctx, sig)
	}
	return nil
}

type fetchResult struct {
	tx  *ConfirmedTx
	err error
}

// fetchTransactions 并发拉取待审计交易，审计本身仍按顺序串行执行
func (s *Service) fetchTransactions(ctx context.Context, sigs []SignatureInfo, done map[string]bool) map[string]fetchResult {
	var todo []string
	for _, sig := range sigs {
		if !done[sig.Signature] && !sig.Failed {
			todo = append(todo, sig.Signature)
		}
	}
	results := utils.ParallelMap(todo, s.opts.FetchWorkers, func(sig string) fetchResult {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		tx, err := s.src.Transaction(fetchCtx, sig)
		return fetchResult{tx: tx, err: err}
	})

	out := make(map[string]fetchResult, len(todo))
	for i, sig := range todo {
		out[sig] = results[i]
	}
	return out
}

// fetchWindow 从 before 开始由新到旧翻页直到游标，最多 MaxPages 页。
// complete 表示窗口已触及游标（或链上历史起点）。
func (s *Service) fetchWindow(ctx context.Context, before string) ([]SignatureInfo, bool, error) {
	var all []SignatureInfo
	for page := 0; page < s.opts.MaxPages; page++ {
		list, err := s.src.Signatures(ctx, s.prog.ID(), before, s.cursor, s.opts.BatchSize)
		if err != nil {
			return nil, false, err
		}
		all = append(all, list...)
		if len(list) < s.opts.BatchSize {
			return all, true, nil
		}
		before = list[len(list)-1].Signature
	}

	// 页数用尽，再看一条确认下面是否还有未审计的签名
	rest, err := s.src.Signatures(ctx, s.prog.ID(), before, s.cursor, 1)
	if err != nil {
		return nil, false, err
	}
	return all, len(rest) == 0, nil
}

// ProcessTx 审计一笔已确认交易：链上失败的交易直接跳过。
// 同一交易内的全部记账在一个批次中提交，随后投递事件。
func (s *Service) ProcessTx(ctx context.Context, tx *ConfirmedTx) (*Report, error) {
	report := &Report{Signature: tx.Signature}
	if tx.Failed || tx.Tx == nil {
		return report, nil
	}

	type verified struct {
		index  int
		payer  types.Pubkey
		amount uint64
	}
	var pass []verified
	for i, ix := range tx.Tx.Instructions {
		if ix.ProgramID != s.prog.ID() {
			continue
		}
		spec, ok := s.prog.GateOf(ix.Data)
		if !ok {
			continue
		}

		receipt, err := s.prog.Verifier().VerifyReceipt(introspect.NewTxInspector(tx.Tx, i), spec.Price, spec.Recipient)
		if err != nil {
			report.Rejected++
			s.Infof("tx=%s ix=%d payment rejected: %v", tx.Signature, i, err)
			continue
		}
		payer, ok := ix.AccountAt(0)
		if !ok {
			report.Rejected++
			continue
		}
		pass = append(pass, verified{index: i, payer: payer, amount: receipt.Amount})
	}
	if len(pass) == 0 {
		return report, nil
	}

	// 与链下 record_payment 共用执行器的串行提交路径
	out, err := s.recorder.Apply(ctx, func(o *state.Overlay) ([]*core.Event, error) {
		events := make([]*core.Event, 0, len(pass))
		for _, v := range pass {
			_, ev, err := s.prog.Accounting().RecordPayment(ctx, o, v.payer, v.amount, tx.BlockTime)
			if err != nil {
				return nil, fmt.Errorf("record payment tx=%s ix=%d: %w", tx.Signature, v.index, err)
			}
			evt, err := core.NewEvent(ev)
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		}
		return events, nil
	})
	if out == nil {
		return nil, err
	}
	report.Verified = len(pass)
	report.Events = out.Events
	if err != nil {
		return report, fmt.Errorf("tx=%s: %w", tx.Signature, err)
	}
	return report, nil
}
