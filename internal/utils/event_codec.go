package utils

import (
	"fmt"

	"github.com/near/borsh-go"
)

// EventBatchVersion 是 Kafka 消息体格式版本
const EventBatchVersion uint8 = 1

// EventBatch 是一条 Kafka 消息承载的事件批次，每个元素为 Anchor 编码的事件
// （discriminator || borsh(payload)），同一批次内保持交易内的发出顺序。
type EventBatch struct {
	Version uint8
	Events  [][]byte
}

// EncodeEventBatch 以 borsh 编码事件批次
func EncodeEventBatch(events [][]byte) ([]byte, error) {
	data, err := borsh.Serialize(EventBatch{
		Version: EventBatchVersion,
		Events:  events,
	})
	if err != nil {
		return nil, fmt.Errorf("EncodeEventBatch: %w", err)
	}
	return data, nil
}

// DecodeEventBatch 解码 EncodeEventBatch 的输出
func DecodeEventBatch(data []byte) (*EventBatch, error) {
	var batch EventBatch
	if err := borsh.Deserialize(&batch, data); err != nil {
		return nil, fmt.Errorf("DecodeEventBatch: %w", err)
	}
	if batch.Version != EventBatchVersion {
		return nil, fmt.Errorf("DecodeEventBatch: unsupported version %d", batch.Version)
	}
	return &batch, nil
}
