package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"MindPress-Market/pkg/logger"
)

// MemoryQueue 是进程内的任务队列。处理器报错的消息最多重投 maxDeliveries 次，之后转入死信。
type MemoryQueue struct {
	ch            chan string
	maxDeliveries int
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool

	ledgerMu   sync.Mutex
	deliveries map[string]int
	dead       []DeadLetter
}

// MemoryQueueOption 定义内存队列的可选配置。
type MemoryQueueOption func(*MemoryQueue)

// WithMemoryMaxDeliveries 设置单条消息的最大投递次数。
func WithMemoryMaxDeliveries(n int) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxDeliveries = n
		}
	}
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int, opts ...MemoryQueueOption) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	q := &MemoryQueue{
		ch:            make(chan string, size),
		maxDeliveries: DefaultMaxDeliveries,
		deliveries:    make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	q.logger = logger.Named("job.queue")
	return q
}

// Publish 将任务投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- jobID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的任务。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID, ok := <-q.ch:
					if !ok {
						return
					}
					q.settle(ctx, jobID, handler(ctx, jobID))
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) settle(ctx context.Context, jobID string, handlerErr error) {
	q.ledgerMu.Lock()
	defer q.ledgerMu.Unlock()
	if handlerErr == nil {
		delete(q.deliveries, jobID)
		return
	}
	q.deliveries[jobID]++
	count := q.deliveries[jobID]
	if count < q.maxDeliveries && q.redeliver(jobID) {
		q.logger.Debug("消息重新投递", slog.String("job_id", jobID), slog.Int("deliveries", count))
		return
	}
	delete(q.deliveries, jobID)
	q.dead = append(q.dead, DeadLetter{JobID: jobID, Deliveries: count, Reason: handlerErr.Error(), At: time.Now()})
	if ctx.Err() == nil {
		q.logger.Warn("消息转入死信",
			slog.String("job_id", jobID),
			slog.Int("deliveries", count),
			slog.Any("error", handlerErr))
	}
}

// redeliver 不阻塞地把消息放回队列；队列已满或正在关闭时返回 false。
func (q *MemoryQueue) redeliver(jobID string) bool {
	if !q.mu.TryRLock() {
		return false
	}
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- jobID:
		return true
	default:
		return false
	}
}

// DeadLetters 返回已转入死信的消息副本。
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.ledgerMu.Lock()
	defer q.ledgerMu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
