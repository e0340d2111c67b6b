package program

import (
	"fmt"

	"x402-gate-sol/internal/consts"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/gate"
	"x402-gate-sol/internal/logic/ledger"
	"x402-gate-sol/internal/logic/payment"
	"x402-gate-sol/internal/logic/runtime"
	"x402-gate-sol/internal/types"
)

type handler = gate.Handler[*runtime.Context]

// Options 是程序的可配置项，零值字段使用默认值
type Options struct {
	ProgramID       types.Pubkey          // 默认 consts.X402Program
	Recipient       types.Pubkey          // 门控默认收款地址，默认 consts.DefaultRecipient
	Gates           map[string]string     // 操作名 → 门控参数，覆盖或追加到 consts.GatedOps
	VerifyThreshold uint64                // verify_payment 余额门槛，默认 consts.VerifyPaymentThreshold
	Decoder         payment.AmountDecoder // 支付金额解码器，默认 payment.DualLayoutDecoder
}

// Program 是 x402 付费计算程序：按 discriminator 分发到各操作，
// 付费操作在执行前经过支付门控。
type Program struct {
	id              types.Pubkey
	verifier        *payment.Verifier
	accounting      *ledger.Accounting
	verifyThreshold uint64

	specs    map[uint64]gate.Spec
	handlers map[uint64]handler
}

var _ runtime.Program = (*Program)(nil)

func New(opts Options) (*Program, error) {
	if opts.ProgramID.IsZero() {
		opts.ProgramID = consts.X402Program
	}
	if opts.Recipient.IsZero() {
		opts.Recipient = consts.DefaultRecipient
	}
	if opts.VerifyThreshold == 0 {
		opts.VerifyThreshold = consts.VerifyPaymentThreshold
	}

	p := &Program{
		id:              opts.ProgramID,
		verifier:        payment.NewVerifier(opts.Decoder),
		accounting:      ledger.NewAccounting(opts.ProgramID),
		verifyThreshold: opts.VerifyThreshold,
		specs:           make(map[uint64]gate.Spec),
		handlers:        make(map[uint64]handler),
	}

	gates := make(map[string]string, len(consts.GatedOps)+len(opts.Gates))
	for _, op := range consts.GatedOps {
		gates[op.Name] = op.Args
	}
	for name, args := range opts.Gates {
		gates[name] = args
	}
	for name, args := range gates {
		disc, ok := opDiscs[name]
		if !ok {
			return nil, fmt.Errorf("gate %s: unknown operation", name)
		}
		spec, err := gate.ParseSpec(args, opts.Recipient)
		if err != nil {
			return nil, fmt.Errorf("gate %s: %w", name, err)
		}
		p.specs[disc] = spec
	}

	p.handlers[PremiumCompute] = p.gated(PremiumCompute, compute(consts.PremiumResult))
	p.handlers[StandardCompute] = p.gated(StandardCompute, compute(consts.StandardResult))
	p.handlers[EnterpriseCompute] = p.gated(EnterpriseCompute, compute(consts.EnterpriseResult))
	p.handlers[FreeCompute] = p.gated(FreeCompute, freeCompute)
	p.handlers[VerifyPayment] = p.gated(VerifyPayment, p.verifyPayment)
	p.handlers[RecordPayment] = p.gated(RecordPayment, p.recordPayment)
	return p, nil
}

// gated 在操作配置了门控时包上支付校验
func (p *Program) gated(disc uint64, h handler) handler {
	spec, ok := p.specs[disc]
	if !ok {
		return h
	}
	return gate.Wrap(h, spec, p.verifier)
}

func (p *Program) ID() types.Pubkey { return p.id }

func (p *Program) Verifier() *payment.Verifier { return p.verifier }

func (p *Program) Accounting() *ledger.Accounting { return p.accounting }

// GateOf 根据指令数据返回该操作的门控参数；未门控的操作返回 false
func (p *Program) GateOf(data []byte) (gate.Spec, bool) {
	disc, ok := core.ReadDiscriminator(data)
	if !ok {
		return gate.Spec{}, false
	}
	spec, ok := p.specs[disc]
	return spec, ok
}

// Process 实现 runtime.Program
func (p *Program) Process(c *runtime.Context) error {
	disc, ok := core.ReadDiscriminator(c.Instruction.Data)
	if !ok {
		return fmt.Errorf("%w: data len %d", core.InvalidInstructionData, len(c.Instruction.Data))
	}
	h, ok := p.handlers[disc]
	if !ok {
		return fmt.Errorf("%w: %#016x", core.UnknownInstruction, disc)
	}
	return h(c)
}
