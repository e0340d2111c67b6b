package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/mq"
	"x402-gate-sol/pkg/logger"
)

var (
	_ core.EventSink = (*LogSink)(nil)
	_ core.EventSink = (*MemorySink)(nil)
	_ core.EventSink = (*KafkaSink)(nil)
)

// LogSink 只把事件写入日志
type LogSink struct{}

func (LogSink) Publish(_ context.Context, events []*core.Event) error {
	for _, evt := range events {
		logger.Infof("[event] %s payer=%s payload=%+v", evt.Name, base58.Encode(evt.Key), evt.Payload)
	}
	return nil
}

// MemorySink 在内存中保存全部事件，按投递顺序追加
type MemorySink struct {
	mu     sync.Mutex
	events []*core.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Publish(_ context.Context, events []*core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events 返回已投递事件的快照
func (m *MemorySink) Events() []*core.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.Event(nil), m.events...)
}

// KafkaSink 将事件按 payer 分区发送到 Kafka，并等待全部 ack
type KafkaSink struct {
	producer   mq.Producer
	topic      string
	partitions int
	timeout    time.Duration
}

func NewKafkaSink(producer mq.Producer, topic string, partitions int, perMessageTimeout time.Duration) *KafkaSink {
	if perMessageTimeout <= 0 {
		perMessageTimeout = 5 * time.Second
	}
	return &KafkaSink{
		producer:   producer,
		topic:      topic,
		partitions: partitions,
		timeout:    perMessageTimeout,
	}
}

func (k *KafkaSink) Publish(ctx context.Context, events []*core.Event) error {
	jobs, err := BuildEventKafkaJobs(k.topic, k.partitions, events)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	start := time.Now()
	ok, failed := mq.SendKafkaJobs(ctx, k.producer, jobs, k.timeout)
	if len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, f := range failed {
			errs = append(errs, fmt.Errorf("partition %d: %w", f.Job.Partition, f.Err))
		}
		logger.Errorf("[KafkaSink] %d/%d jobs failed, topic=%s", len(failed), len(jobs), k.topic)
		return errors.Join(errs...)
	}
	logger.Debugf("[KafkaSink] sent %d events in %d jobs, cost=%v", len(events), len(ok), time.Since(start))
	return nil
}
