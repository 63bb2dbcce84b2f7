package job

import (
	"context"
	"time"

	xerrors "MindPress-Market/internal/errors"
)

// Handler 处理来自消息队列的任务 ID。返回错误表示消息未被处理，队列负责重投或转入死信。
type Handler func(ctx context.Context, jobID string) error

// Producer 负责向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 负责从队列中消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// DefaultMaxDeliveries 是处理器连续报错时一条消息最多被投递的次数。
const DefaultMaxDeliveries = 3

// ErrQueueClosed 在队列关闭后投递时返回。
var ErrQueueClosed = xerrors.New(CodeJobQueueClosed, "队列已关闭", xerrors.WithSeverity(xerrors.SeverityWarning))

// DeadLetter 记录一条因处理器反复报错而不再投递的消息。
// 任务本身的重试由 Processor 按退避策略完成，这里只兜住领取或落库这类基础设施故障。
type DeadLetter struct {
	JobID      string
	Deliveries int
	Reason     string
	At         time.Time
}
