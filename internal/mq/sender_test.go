package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer 按 topic 决定投递结果
type fakeProducer struct {
	mu         sync.Mutex
	sent       []*kafka.Message
	produceErr map[string]error // Produce 直接返回错误
	ackErr     map[string]error // 投递报告中携带错误
	silent     map[string]bool  // 永不回执
}

func (p *fakeProducer) Produce(msg *kafka.Message, ch chan kafka.Event) error {
	topic := *msg.TopicPartition.Topic
	if err := p.produceErr[topic]; err != nil {
		return err
	}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	if p.silent[topic] {
		return nil
	}
	report := *msg
	report.TopicPartition.Error = p.ackErr[topic]
	ch <- &report
	return nil
}

func TestSendKafkaJobs(t *testing.T) {
	producer := &fakeProducer{
		produceErr: map[string]error{"full": errors.New("queue full")},
		ackErr:     map[string]error{"nack": kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)},
		silent:     map[string]bool{"silent": true},
	}
	jobs := []*KafkaJob{
		{Topic: "events", Partition: 0, Key: []byte{1}, Value: []byte("a")},
		{Topic: "events", Partition: 1, Value: []byte("b")},
		{Topic: "full", Value: []byte("c")},
		{Topic: "nack", Value: []byte("d")},
		{Topic: "silent", Value: []byte("e")},
	}

	ok, failed := SendKafkaJobs(context.Background(), producer, jobs, 50*time.Millisecond)
	assert.Len(t, ok, 2)
	require.Len(t, failed, 3)

	byTopic := map[string]error{}
	for _, f := range failed {
		byTopic[f.Job.Topic] = f.Err
	}
	assert.ErrorContains(t, byTopic["full"], "queue full")
	assert.ErrorContains(t, byTopic["nack"], "timed out")
	assert.ErrorContains(t, byTopic["silent"], "delivery timeout")

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Len(t, producer.sent, 4)
}

func TestSendKafkaJobs_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	producer := &fakeProducer{silent: map[string]bool{"events": true}}
	ok, failed := SendKafkaJobs(ctx, producer, []*KafkaJob{{Topic: "events"}}, time.Minute)
	assert.Empty(t, ok)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, context.Canceled))
}
