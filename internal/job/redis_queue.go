package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MindPress-Market/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
	// DeadLetter 是反复处理失败的消息最终落入的 list，默认为 "<Queue>:dead"。
	DeadLetter    string
	MaxDeliveries int
}

// RedisQueue 使用 Redis list 实现任务队列。投递计数保存在 "<Queue>:deliveries" 哈希中，
// 多个进程共享同一个计数。
type RedisQueue struct {
	client        *redis.Client
	queue         string
	dead          string
	deliveries    string
	maxDeliveries int
	wait          time.Duration
	logger        *slog.Logger
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	queue := cfg.Queue
	if queue == "" {
		queue = "mindpress:jobs"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	dead := cfg.DeadLetter
	if dead == "" {
		dead = queue + ":dead"
	}
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	return &RedisQueue{
		client:        client,
		queue:         queue,
		dead:          dead,
		deliveries:    queue + ":deliveries",
		maxDeliveries: maxDeliveries,
		wait:          wait,
		logger:        logger.Named("job.queue"),
	}
}

// Publish 将任务投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.queue, jobID).Err(); err != nil {
		return fmt.Errorf("Redis 发布任务失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取任务。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					errCh <- fmt.Errorf("Redis 取任务失败: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				jobID := values[1]
				if err := q.settle(ctx, jobID, handler(ctx, jobID)); err != nil {
					q.logger.Error("更新消息投递状态失败", slog.String("job_id", jobID), slog.Any("error", err))
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// settle 根据处理结果清理投递计数、重新入队或转入死信。
// 重新入队使用 LPUSH，消息排到现有积压之后。
func (q *RedisQueue) settle(ctx context.Context, jobID string, handlerErr error) error {
	if handlerErr == nil {
		return q.client.HDel(ctx, q.deliveries, jobID).Err()
	}
	count, err := q.client.HIncrBy(ctx, q.deliveries, jobID, 1).Result()
	if err != nil {
		return fmt.Errorf("Redis 记录投递次数失败: %w", err)
	}
	if int(count) < q.maxDeliveries {
		return q.client.LPush(ctx, q.queue, jobID).Err()
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.dead, jobID)
		pipe.HDel(ctx, q.deliveries, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 写入死信失败: %w", err)
	}
	q.logger.Warn("消息转入死信",
		slog.String("job_id", jobID),
		slog.String("dead_letter", q.dead),
		slog.Int64("deliveries", count),
		slog.Any("error", handlerErr))
	return nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
