package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MindPress-Market/internal/config"
	"MindPress-Market/internal/job"
	"MindPress-Market/internal/observability/alerting"
	"MindPress-Market/internal/storage/mysql"
)

// memoryQueueSize 是内存队列的缓冲长度。
const memoryQueueSize = 1024

// OpenJobStore 按配置打开任务存储，MySQL 后端会先执行迁移。
func OpenJobStore(ctx context.Context, cfg config.JobStoreConfig) (job.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return job.NewMemoryStore(), nil
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		store, err := job.NewMySQLStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Driver)
	}
}

// OpenJobQueue 按配置创建任务队列。
func OpenJobQueue(ctx context.Context, cfg config.JobQueueConfig) (job.Queue, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return job.NewMemoryQueue(memoryQueueSize), nil
	case "redis":
		queue, err := job.NewRedisQueue(ctx, job.RedisQueueConfig{
			Address:       cfg.Redis.Address,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			Queue:         cfg.Redis.Queue,
			BlockWait:     time.Duration(cfg.Redis.BlockWait) * time.Second,
			DeadLetter:    cfg.Redis.DeadLetter,
			MaxDeliveries: cfg.Redis.MaxDeliveries,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case "rabbitmq":
		queue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

// NewAlertDispatcher 总是把告警写入审计日志，配置了 webhook 时同时推送。
func NewAlertDispatcher(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: url})
	}
	return alerting.NewFanout(notifiers...)
}
