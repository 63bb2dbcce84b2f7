package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/observability/alerting"
	"MindPress-Market/internal/observability/metrics"
	"MindPress-Market/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// Executor 执行一个已领取的任务。
type Executor interface {
	Execute(ctx context.Context, job *Job) (*Result, error)
}

// ExecutorFunc 把函数适配为 Executor。
type ExecutorFunc func(ctx context.Context, job *Job) (*Result, error)

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) (*Result, error) {
	return f(ctx, job)
}

// RetryPolicy 控制可重试失败之后重新入队前的等待时间。
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy 返回默认的退避参数。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialInterval: 2 * time.Second, MaxInterval: time.Minute, Multiplier: 2}
}

// Delay 返回第 attempt 次失败之后的等待时间（attempt 从 1 开始）。
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Processor 负责从队列消费任务并交给 Executor 执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	retry       RetryPolicy
	pending     sync.WaitGroup
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRetryPolicy 配置重新入队的退避参数。
func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		p.retry = policy
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("job")
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 结束。等待中的重新入队会在返回前放弃。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	err := p.consumer.Consume(ctx, p.workerCount, p.handle)
	p.pending.Wait()
	return err
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) ||
			stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Execute(ctx, job)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, job, execErr)
	}
	if result == nil {
		result = &Result{}
	}
	if err := p.store.MarkSucceeded(ctx, job.ID, *result); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	metrics.ObserveJob(string(job.Kind), string(StatusSucceeded))
	logger.Audit().Info("任务执行成功",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Any("tx_hashes", result.TxHashes),
		slog.String("value", result.Value),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	if terminal {
		metrics.ObserveJob(string(job.Kind), string(StatusFailed))
		stage := "exhausted"
		if !retryable {
			stage = "non_retryable"
		}
		p.emitAlert(ctx, job, code, execErr, stage)
		return nil
	}

	metrics.ObserveJob(string(job.Kind), "retry")
	p.requeue(ctx, job)
	return nil
}

// requeue 在退避之后把任务重新放回队列，不占用工作协程。
func (p *Processor) requeue(ctx context.Context, job *Job) {
	delay := p.retry.Delay(job.Attempts)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			p.logger.Warn("退出前放弃重新入队", slog.String("job_id", job.ID))
			return
		case <-timer.C:
		}
		if err := p.producer.Publish(ctx, job.ID); err != nil {
			wrapped := xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("任务 %s 重投失败", job.ID))
			p.logger.Error("任务重新入队失败", slog.Any("error", wrapped))
			p.emitAlert(ctx, job, CodeJobPublish, wrapped, "requeue")
			return
		}
		p.logger.Debug("任务已重新排队",
			slog.String("job_id", job.ID),
			slog.Int("attempts", job.Attempts),
			slog.Duration("delay", delay))
	}()
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		for k, v := range xerrors.MetadataOf(cause) {
			metadata[k] = v
		}
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   xerrors.SeverityOf(cause),
		JobID:      job.ID,
		JobKind:    string(job.Kind),
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if event.Severity == "" {
		event.Severity = attrs.Severity
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
