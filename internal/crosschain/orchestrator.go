package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Stage 是计划中的一步，同一阶段的 Action 使用同一种提交策略组成一个批次。
type Stage struct {
	Name     string
	Strategy Strategy
	Actions  []Action
}

// Plan 是按顺序执行的阶段列表。后一阶段依赖前一阶段已经确认。
type Plan struct {
	Name   string
	Stages []Stage
}

// StageReport 记录单个阶段的执行情况。
type StageReport struct {
	Name      string
	Strategy  Strategy
	Skipped   int
	Submitted bool
	Result    *SubmissionResult
}

// Report 汇总一次计划执行。
type Report struct {
	Plan   string
	Stages []StageReport
}

// TxHashes 返回所有阶段产生的交易哈希。
func (r *Report) TxHashes() []common.Hash {
	var out []common.Hash
	if r == nil {
		return out
	}
	for _, stage := range r.Stages {
		if stage.Result != nil {
			out = append(out, stage.Result.TxHashes...)
		}
	}
	return out
}

// Skipped 返回被守卫跳过的 Action 总数。
func (r *Report) Skipped() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, stage := range r.Stages {
		total += stage.Skipped
	}
	return total
}

// Value 返回所有阶段实际附带的 value 总和。
func (r *Report) Value() *big.Int {
	total := new(big.Int)
	if r == nil {
		return total
	}
	for _, stage := range r.Stages {
		if stage.Result != nil && stage.Result.Value != nil {
			total.Add(total, stage.Result.Value)
		}
	}
	return total
}

// Orchestrator 串起计价、编码、守卫、打包与提交。自身不保存任何跨提交的状态。
type Orchestrator struct {
	oracle    FeeOracle
	encoder   *Encoder
	guard     *Guard
	submitter *Submitter
	logger    *slog.Logger
}

// OrchestratorOption 定义可选配置。
type OrchestratorOption func(*Orchestrator)

// WithEncoder 替换默认编码器。
func WithEncoder(encoder *Encoder) OrchestratorOption {
	return func(o *Orchestrator) {
		if encoder != nil {
			o.encoder = encoder
		}
	}
}

// WithOrchestratorLogger 指定日志输出。
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator 构造 Orchestrator。guard 为 nil 时不做幂等检查。
func NewOrchestrator(oracle FeeOracle, guard *Guard, submitter *Submitter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		oracle:    oracle,
		encoder:   NewEncoder(),
		guard:     guard,
		submitter: submitter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("orchestrator")
	}
	return o
}

// Quote 读取一份新的费用快照。
func (o *Orchestrator) Quote(ctx context.Context) (Pricing, error) {
	if o.oracle == nil {
		return Pricing{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置费用预言机")
	}
	pricing, err := FetchPricing(ctx, o.oracle)
	if err != nil {
		code := CodeNetworkUnavailable
		if typed, ok := xerrors.From(err); ok {
			code = typed.Code()
		}
		return Pricing{}, xerrors.Wrap(code, err, "读取中继费用失败")
	}
	return pricing, nil
}

// Execute 以单一策略提交一组 Action。守卫过滤掉全部 Action 时不提交任何交易。
func (o *Orchestrator) Execute(ctx context.Context, ectx ExecutionContext, actions []Action, strategy Strategy) (*StageReport, error) {
	report := &StageReport{Strategy: strategy}
	if len(actions) == 0 {
		return report, xerrors.New(CodeEmptyBatch, "没有需要提交的 action")
	}
	if o.submitter == nil {
		return report, xerrors.New(xerrors.CodeInitializationFailure, "未配置提交器")
	}

	pricing, err := o.Quote(ctx)
	if err != nil {
		return report, err
	}
	calls, err := o.encoder.EncodeAll(ectx, actions, pricing)
	if err != nil {
		return report, err
	}

	indexes, err := o.guard.Pending(ctx, ectx, actions)
	if err != nil {
		return report, err
	}
	report.Skipped = len(actions) - len(indexes)
	pending := make([]EncodedCall, 0, len(indexes))
	for _, i := range indexes {
		pending = append(pending, calls[i])
	}
	if len(pending) == 0 {
		o.logger.Info("所有 action 均已满足，跳过提交",
			slog.String("strategy", string(strategy)),
			slog.Int("skipped", report.Skipped))
		return report, nil
	}

	batch, err := Assemble(pending)
	if err != nil {
		return report, err
	}
	o.logger.Info("提交跨链批次",
		slog.String("strategy", string(strategy)),
		slog.Int("calls", batch.Len()),
		slog.Int("skipped", report.Skipped),
		slog.String("value", batch.TotalValue().String()),
		slog.String("digest", batch.Digest().Hex()))

	result, err := o.submitter.Submit(ctx, batch, strategy)
	report.Result = result
	report.Submitted = result != nil && len(result.TxHashes) > 0
	if err != nil {
		return report, err
	}
	return report, nil
}

// Run 按顺序执行计划的每个阶段，任一阶段失败即停止。
func (o *Orchestrator) Run(ctx context.Context, ectx ExecutionContext, plan Plan) (*Report, error) {
	report := &Report{Plan: plan.Name}
	if len(plan.Stages) == 0 {
		return report, xerrors.New(CodeEmptyBatch, "计划中没有任何阶段")
	}
	for i, stage := range plan.Stages {
		name := stage.Name
		if name == "" {
			name = fmt.Sprintf("stage-%d", i)
		}
		stageReport, err := o.Execute(ctx, ectx, stage.Actions, stage.Strategy)
		if stageReport != nil {
			stageReport.Name = name
			report.Stages = append(report.Stages, *stageReport)
		}
		if err != nil {
			// 原样返回，保留错误上的重试与告警属性。
			o.logger.Warn("计划阶段执行失败",
				slog.String("plan", plan.Name),
				slog.String("stage", name),
				slog.Any("error", err))
			return report, err
		}
	}
	return report, nil
}
