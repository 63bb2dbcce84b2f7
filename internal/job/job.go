package job

import (
	"encoding/json"
	stdErrors "errors"

	xerrors "MindPress-Market/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Kind 标识任务对应的市场操作。
type Kind string

const (
	KindListObject  Kind = "list_object"
	KindCreateSpace Kind = "create_space"
	KindDelist      Kind = "delist"
)

// IsValidKind 检查任务类型是否受支持。
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindListObject, KindCreateSpace, KindDelist:
		return true
	default:
		return false
	}
}

// Result 保存一次计划执行的结果。Value 为 wei 十进制字符串。
type Result struct {
	Plan     string   `json:"plan"`
	TxHashes []string `json:"tx_hashes"`
	Skipped  int      `json:"skipped"`
	Value    string   `json:"value"`
}

// Job 描述了排队执行的市场操作。
type Job struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Params     json.RawMessage `json:"params"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *Result         `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound    xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict    xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted   xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted   xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobValidation  xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish     xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing  xerrors.Code = "JOB_PROCESSING_FAILED"
	CodeJobQueueClosed xerrors.Code = "JOB_QUEUE_CLOSED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:  "job not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:  "job conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:  "job already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:  "job retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:  "job validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobQueueClosed, xerrors.Attributes{
		Message:  "job queue closed",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为指定的任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrJobNotFound):
		return target == CodeJobNotFound
	case stdErrors.Is(err, ErrJobConflict):
		return target == CodeJobConflict
	case stdErrors.Is(err, ErrJobCompleted):
		return target == CodeJobCompleted
	case stdErrors.Is(err, ErrJobExhausted):
		return target == CodeJobExhausted
	}
	return false
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	if job.Params != nil {
		clone.Params = append(json.RawMessage(nil), job.Params...)
	}
	if job.Result != nil {
		result := *job.Result
		result.TxHashes = append([]string(nil), job.Result.TxHashes...)
		clone.Result = &result
	}
	return &clone
}
