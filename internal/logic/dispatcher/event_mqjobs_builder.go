package dispatcher

import (
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/mq"
	"x402-gate-sol/internal/utils"
)

// BuildEventKafkaJobs 按事件 Key（payer）分区，每个分区生成一个 KafkaJob，
// 消息体为 utils.EventBatch，分区内保持事件原有顺序。
func BuildEventKafkaJobs(topic string, partitions int, events []*core.Event) ([]*mq.KafkaJob, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if partitions <= 0 {
		partitions = 1
	}

	buckets := make([][]*core.Event, partitions)
	capacity := utils.CalcCapPerPartition(len(events), partitions, 4)
	for i := range buckets {
		buckets[i] = make([]*core.Event, 0, capacity)
	}
	for _, evt := range events {
		pid := utils.PartitionHashBytes(evt.Key, uint32(partitions))
		buckets[pid] = append(buckets[pid], evt)
	}

	jobs := make([]*mq.KafkaJob, 0, len(buckets))
	for pid, list := range buckets {
		if len(list) == 0 {
			continue
		}
		payloads := make([][]byte, len(list))
		for i, evt := range list {
			payloads[i] = evt.Data
		}
		value, err := utils.EncodeEventBatch(payloads)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &mq.KafkaJob{
			Topic:     topic,
			Partition: int32(pid),
			Key:       list[0].Key,
			Value:     value,
		})
	}
	return jobs, nil
}
