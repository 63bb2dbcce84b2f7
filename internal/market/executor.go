package market

import (
	"context"
	"encoding/json"
	"sync"

	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/job"

	"github.com/ethereum/go-ethereum/common"
)

// PlanRunner 执行一个已构造好的计划，crosschain.Orchestrator 实现了该接口。
type PlanRunner interface {
	Run(ctx context.Context, ectx crosschain.ExecutionContext, plan crosschain.Plan) (*crosschain.Report, error)
}

// ContextProvider 返回当前链上的执行上下文（签名地址、链 ID 与合约地址）。
type ContextProvider func(ctx context.Context) (crosschain.ExecutionContext, error)

// StaticContext 把固定的执行上下文包装为 ContextProvider。
func StaticContext(ectx crosschain.ExecutionContext) ContextProvider {
	return func(context.Context) (crosschain.ExecutionContext, error) {
		return ectx, nil
	}
}

// Executor 把排队的任务转换为计划并执行，实现 job.Executor。
// 同一签名地址的任务串行执行：分组 ID 查询、守卫检查、广播与确认都在锁内完成，
// 多个 worker 不会互相抢占 nonce，也不会重复授权。
type Executor struct {
	planner  *Planner
	runner   PlanRunner
	contexts ContextProvider

	mu      sync.Mutex
	signers map[common.Address]*sync.Mutex
}

// NewExecutor 构造 Executor。planner 为 nil 时使用默认配置。
func NewExecutor(planner *Planner, runner PlanRunner, contexts ContextProvider) *Executor {
	if planner == nil {
		planner = NewPlanner()
	}
	return &Executor{
		planner:  planner,
		runner:   runner,
		contexts: contexts,
		signers:  make(map[common.Address]*sync.Mutex),
	}
}

func (e *Executor) signerLock(signer common.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.signers[signer]
	if !ok {
		lock = new(sync.Mutex)
		e.signers[signer] = lock
	}
	return lock
}

// Execute 实现 job.Executor。参数解码与校验失败不可重试。
func (e *Executor) Execute(ctx context.Context, j *job.Job) (*job.Result, error) {
	if e.runner == nil || e.contexts == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行器未初始化")
	}
	ectx, err := e.contexts(ctx)
	if err != nil {
		return nil, err
	}
	lock := e.signerLock(ectx.Signer)
	lock.Lock()
	defer lock.Unlock()
	plan, err := e.Plan(ctx, ectx, j.Kind, j.Params)
	if err != nil {
		return nil, err
	}
	report, err := e.runner.Run(ctx, ectx, plan)
	if err != nil {
		return nil, err
	}
	return ResultFromReport(report), nil
}

// Plan 根据任务类型解码参数并构造计划，不会发送任何交易。
func (e *Executor) Plan(ctx context.Context, ectx crosschain.ExecutionContext, kind job.Kind, raw json.RawMessage) (crosschain.Plan, error) {
	switch kind {
	case job.KindListObject:
		var params ListObjectParams
		if err := decodeParams(raw, &params); err != nil {
			return crosschain.Plan{}, err
		}
		return e.planner.ListObject(ctx, ectx, params)
	case job.KindCreateSpace:
		var params CreateSpaceParams
		if err := decodeParams(raw, &params); err != nil {
			return crosschain.Plan{}, err
		}
		return e.planner.CreateSpace(ectx, params)
	case job.KindDelist:
		var params DelistParams
		if err := decodeParams(raw, &params); err != nil {
			return crosschain.Plan{}, err
		}
		return e.planner.Delist(params)
	default:
		return crosschain.Plan{}, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的任务类型: %q", kind)
	}
}

// Validate 在入队前检查任务参数，可直接作为 job.Validator 使用。
func Validate(kind job.Kind, raw json.RawMessage) error {
	switch kind {
	case job.KindListObject:
		var params ListObjectParams
		if err := decodeParams(raw, &params); err != nil {
			return err
		}
		return params.Validate()
	case job.KindCreateSpace:
		var params CreateSpaceParams
		if err := decodeParams(raw, &params); err != nil {
			return err
		}
		return params.Validate()
	case job.KindDelist:
		var params DelistParams
		if err := decodeParams(raw, &params); err != nil {
			return err
		}
		return params.Validate()
	default:
		return xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的任务类型: %q", kind)
	}
}

// ResultFromReport 把执行报告转换为可持久化的任务结果。
func ResultFromReport(report *crosschain.Report) *job.Result {
	result := &job.Result{TxHashes: []string{}}
	if report == nil {
		result.Value = "0"
		return result
	}
	result.Plan = report.Plan
	for _, hash := range report.TxHashes() {
		result.TxHashes = append(result.TxHashes, hash.Hex())
	}
	result.Skipped = report.Skipped()
	result.Value = report.Value().String()
	return result
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务参数为空")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "任务参数解析失败")
	}
	return nil
}

var _ job.Executor = (*Executor)(nil)
