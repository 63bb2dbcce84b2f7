package job

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/pkg/logger"

	"github.com/google/uuid"
)

// SubmitRequest 描述一次任务提交。ID 非空时提交是幂等的：同一 ID 只会创建一次。
type SubmitRequest struct {
	ID         string          `json:"id,omitempty"`
	Kind       Kind            `json:"kind"`
	Params     json.RawMessage `json:"params"`
	MaxRetries int             `json:"max_retries,omitempty"`
}

// Validator 在入队之前检查任务参数，避免明显无效的任务占用队列。
type Validator func(kind Kind, params json.RawMessage) error

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	validate   Validator
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithValidator 设置入队前的参数校验。
func WithValidator(v Validator) ServiceOption {
	return func(s *Service) {
		s.validate = v
	}
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int, opts ...ServiceOption) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	s := &Service{store: store, producer: producer, maxRetries: maxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 创建一个新的任务并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if !IsValidKind(req.Kind) {
		return nil, xerrors.Newf(CodeJobValidation, "不支持的任务类型: %q", req.Kind)
	}
	if len(req.Params) == 0 || !json.Valid(req.Params) {
		return nil, xerrors.New(CodeJobValidation, "任务参数必须是合法的 JSON")
	}
	if s.validate != nil {
		if err := s.validate(req.Kind, req.Params); err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, "任务参数校验失败")
		}
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		existing, err := s.store.Get(ctx, jobID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	maxRetries := s.maxRetries
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}
	job := &Job{
		ID:         jobID,
		Kind:       req.Kind,
		Params:     append(json.RawMessage(nil), req.Params...),
		Status:     StatusPending,
		MaxRetries: maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			existing, getErr := s.store.Get(ctx, jobID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrJobNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("任务入队成功",
		slog.String("job_id", jobID),
		slog.String("kind", string(job.Kind)),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务直到成功、终态失败或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || (job.Status == StatusFailed && job.Attempts >= job.MaxRetries) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
