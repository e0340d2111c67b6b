package utils

import (
	"sync"
	"sync/atomic"
)

// ParallelMap 使用最多 workers 个协程并发执行 fn，结果顺序与输入一致。
// 输入只有一个元素或 workers <= 1 时直接在当前协程执行。
func ParallelMap[T any, R any](input []T, workers int, fn func(T) R) []R {
	out := make([]R, len(input))
	if len(input) == 0 {
		return out
	}
	if workers <= 1 || len(input) == 1 {
		for i, v := range input {
			out[i] = fn(v)
		}
		return out
	}
	if workers > len(input) {
		workers = len(input)
	}

	var (
		next int64 = -1
		wg   sync.WaitGroup
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(input) {
					return
				}
				out[i] = fn(input[i])
			}
		}()
	}
	wg.Wait()
	return out
}
