package core

import (
	"context"
	"fmt"

	"github.com/near/borsh-go"

	"x402-gate-sol/internal/types"
)

// 事件 discriminator（sha256("event:<Name>")[:8]）
const (
	ComputeEventDisc         uint64 = 0x5f4100181194b06a
	PaymentRecordedEventDisc uint64 = 0x3eee706388c7d345
	X402PaymentEventDisc     uint64 = 0xa3abcdef6b732598
)

// ComputeEvent 在付费计算成功后发出
type ComputeEvent struct {
	Payer     types.Pubkey
	Result    uint64
	Timestamp int64
}

// PaymentRecordedEvent 在 record_payment 成功后发出，携带更新后的累计次数
type PaymentRecordedEvent struct {
	Payer         types.Pubkey
	Amount        uint64
	TotalPayments uint64
}

// X402PaymentEvent 已声明但当前没有任何操作发出（保留给后续版本）
type X402PaymentEvent struct {
	Payer     types.Pubkey
	Recipient types.Pubkey
	Amount    uint64
	Timestamp int64
}

// Event 是一条只追加的事件日志条目
type Event struct {
	Name    string // 事件名，例如 ComputeEvent
	Key     []byte // 分区 key，统一使用 payer
	Data    []byte // Anchor 编码：discriminator || borsh(payload)
	Payload any    // 原始事件结构体（*ComputeEvent 等）
}

// EventSink 接收已提交交易产生的事件
type EventSink interface {
	Publish(ctx context.Context, events []*Event) error
}

// NewEvent 将事件结构体编码为 Event
func NewEvent(payload any) (*Event, error) {
	var (
		name  string
		disc  uint64
		payer types.Pubkey
		value any // borsh 序列化值类型，指针会被编码为 Option
	)
	switch e := payload.(type) {
	case *ComputeEvent:
		name, disc, payer, value = "ComputeEvent", ComputeEventDisc, e.Payer, *e
	case *PaymentRecordedEvent:
		name, disc, payer, value = "PaymentRecordedEvent", PaymentRecordedEventDisc, e.Payer, *e
	case *X402PaymentEvent:
		name, disc, payer, value = "X402PaymentEvent", X402PaymentEventDisc, e.Payer, *e
	default:
		return nil, fmt.Errorf("NewEvent: unsupported payload %T", payload)
	}

	body, err := borsh.Serialize(value)
	if err != nil {
		return nil, fmt.Errorf("NewEvent: serialize %s: %w", name, err)
	}
	data := make([]byte, 8, 8+len(body))
	putDiscriminator(data, disc)
	data = append(data, body...)

	return &Event{
		Name:    name,
		Key:     payer[:],
		Data:    data,
		Payload: payload,
	}, nil
}

// DecodeEvent 根据 discriminator 还原事件结构体
func DecodeEvent(data []byte) (any, error) {
	disc, ok := ReadDiscriminator(data)
	if !ok {
		return nil, fmt.Errorf("DecodeEvent: data too short: %d", len(data))
	}

	var payload any
	switch disc {
	case ComputeEventDisc:
		payload = &ComputeEvent{}
	case PaymentRecordedEventDisc:
		payload = &PaymentRecordedEvent{}
	case X402PaymentEventDisc:
		payload = &X402PaymentEvent{}
	default:
		return nil, fmt.Errorf("DecodeEvent: unknown discriminator %#x", disc)
	}
	if err := borsh.Deserialize(payload, data[8:]); err != nil {
		return nil, fmt.Errorf("DecodeEvent: %w", err)
	}
	return payload, nil
}
