package progress

import (
	"sync"
)

// txBuffer 暂存待批量写入 DB 的审计记录
type txBuffer struct {
	mu   sync.Mutex
	list []*TxRecord
}

func (b *txBuffer) Add(record *TxRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list = append(b.list, record)
}

func (b *txBuffer) Flush() []*TxRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	flushed := b.list
	b.list = nil
	return flushed
}

func (b *txBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.list)
}
