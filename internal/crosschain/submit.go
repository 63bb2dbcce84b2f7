package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/observability/metrics"
	"MindPress-Market/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Strategy 选择批次的提交通道。
type Strategy string

const (
	// StrategyRelay 通过 MultiMessage 合约把每个调用作为独立的跨链消息转发。
	StrategyRelay Strategy = "relay"
	// StrategyAggregate 通过 Multicall3 在一笔本地交易内执行全部调用。
	StrategyAggregate Strategy = "aggregate"
	// StrategyDirect 由签名账户逐笔发送，适用于必须由账户本身发起的调用。
	StrategyDirect Strategy = "direct"
)

// ParseStrategy 解析策略名称。
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyRelay, StrategyAggregate, StrategyDirect:
		return Strategy(name), nil
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "未知的提交策略: %s", name)
	}
}

// DefaultConfirmTimeout 是未配置时等待一次确认的上限。
const DefaultConfirmTimeout = 2 * time.Minute

// CallOutcome 是单个调用的执行结果。
type CallOutcome struct {
	Succeeded  bool
	ReturnData []byte
}

// SubmissionResult 描述一次已确认的提交。
// PerCallOutcome 只在聚合与逐笔发送模式下填充。聚合模式下它来自广播前的
// eth_call 预执行，并非已上链交易的结果：预执行与打包之间链上状态可能变化，
// 以 TxHash 对应的回执为准。逐笔发送模式下它来自每笔交易的回执。
type SubmissionResult struct {
	Strategy       Strategy
	TxHash         common.Hash
	TxHashes       []common.Hash
	BlockNumber    uint64
	Value          *big.Int
	PerCallOutcome []CallOutcome
}

// Receipt 是一次确认的最小信息。
type Receipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	Succeeded    bool
	RevertReason string
}

// RelayEndpoint 把批次交给多消息中继合约，返回已广播交易的哈希。
type RelayEndpoint interface {
	SendMessages(ctx context.Context, targets []common.Address, payloads [][]byte, values []*big.Int, total *big.Int) (common.Hash, error)
}

// AggregationEndpoint 把批次交给调用聚合合约。
type AggregationEndpoint interface {
	// Simulate 在不广播的前提下执行批次，返回每个调用的结果，
	// 结果按所有调用都允许失败的方式计算。
	Simulate(ctx context.Context, calls []EncodedCall, total *big.Int) ([]CallOutcome, error)
	Aggregate(ctx context.Context, calls []EncodedCall, total *big.Int) (common.Hash, error)
}

// DirectSender 由签名账户直接发送单个调用。
type DirectSender interface {
	Send(ctx context.Context, call EncodedCall) (common.Hash, error)
}

// Confirmer 等待交易被打包进一个区块。
type Confirmer interface {
	WaitConfirmed(ctx context.Context, tx common.Hash) (Receipt, error)
}

// Submitter 按策略提交批次并等待一次确认。
type Submitter struct {
	relay          RelayEndpoint
	aggregator     AggregationEndpoint
	direct         DirectSender
	confirmer      Confirmer
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// SubmitterOption 定义可选配置。
type SubmitterOption func(*Submitter)

// WithRelayEndpoint 配置中继通道。
func WithRelayEndpoint(endpoint RelayEndpoint) SubmitterOption {
	return func(s *Submitter) {
		s.relay = endpoint
	}
}

// WithAggregationEndpoint 配置聚合通道。
func WithAggregationEndpoint(endpoint AggregationEndpoint) SubmitterOption {
	return func(s *Submitter) {
		s.aggregator = endpoint
	}
}

// WithDirectSender 配置逐笔发送通道。
func WithDirectSender(sender DirectSender) SubmitterOption {
	return func(s *Submitter) {
		s.direct = sender
	}
}

// WithConfirmTimeout 设置等待确认的上限。
func WithConfirmTimeout(timeout time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if timeout > 0 {
			s.confirmTimeout = timeout
		}
	}
}

// WithSubmitterLogger 指定日志输出。
func WithSubmitterLogger(l *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSubmitter 构造 Submitter。
func NewSubmitter(confirmer Confirmer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		confirmer:      confirmer,
		confirmTimeout: DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("crosschain")
	}
	return s
}

// Submit 提交批次。广播之前取消不会发出任何交易；广播之后取消只会停止本地等待，
// 返回的错误中带有交易哈希。
func (s *Submitter) Submit(ctx context.Context, batch Batch, strategy Strategy) (*SubmissionResult, error) {
	if batch.Len() == 0 {
		return nil, xerrors.New(CodeEmptyBatch, "批次中没有任何调用")
	}
	if s.confirmer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置交易确认器")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("提交前已取消: %w", err)
	}

	start := time.Now()
	var (
		result *SubmissionResult
		err    error
	)
	switch strategy {
	case StrategyRelay:
		result, err = s.submitRelay(ctx, batch)
	case StrategyAggregate:
		result, err = s.submitAggregate(ctx, batch)
	case StrategyDirect:
		result, err = s.submitDirect(ctx, batch)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的提交策略: %s", strategy)
	}

	outcome := "confirmed"
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	metrics.ObserveSubmission(string(strategy), outcome, time.Since(start))

	attrs := []any{
		slog.String("strategy", string(strategy)),
		slog.Int("calls", batch.Len()),
		slog.String("value", batch.TotalValue().String()),
		slog.String("outcome", outcome),
	}
	if result != nil {
		attrs = append(attrs, slog.String("tx_hash", result.TxHash.Hex()), slog.Uint64("block", result.BlockNumber))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		logger.Audit().Warn("跨链批次提交失败", attrs...)
		return result, err
	}
	logger.Audit().Info("跨链批次已确认", attrs...)
	return result, nil
}

func (s *Submitter) submitRelay(ctx context.Context, batch Batch) (*SubmissionResult, error) {
	if s.relay == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置中继通道")
	}
	total := batch.TotalValue()
	hash, err := s.relay.SendMessages(ctx, batch.Targets(), batch.Payloads(), batch.Values(), total)
	if err != nil {
		return nil, endpointError(err, "中继提交失败", StrategyRelay, batchTarget(batch), batch.Digest())
	}
	s.logger.Info("中继交易已广播", slog.String("tx_hash", hash.Hex()), slog.Int("calls", batch.Len()))

	receipt, err := s.wait(ctx, hash, StrategyRelay)
	if err != nil {
		return nil, err
	}
	return &SubmissionResult{
		Strategy:    StrategyRelay,
		TxHash:      hash,
		TxHashes:    []common.Hash{hash},
		BlockNumber: receipt.BlockNumber,
		Value:       total,
	}, nil
}

func (s *Submitter) submitAggregate(ctx context.Context, batch Batch) (*SubmissionResult, error) {
	if s.aggregator == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置聚合通道")
	}
	calls := batch.Calls()
	total := batch.TotalValue()

	outcomes, err := s.aggregator.Simulate(ctx, calls, total)
	if err != nil {
		return nil, endpointError(err, "聚合预执行失败", StrategyAggregate, batchTarget(batch), batch.Digest())
	}
	if len(outcomes) != len(calls) {
		return nil, xerrors.New(CodeSubmissionRejected,
			fmt.Sprintf("聚合预执行返回 %d 个结果，期望 %d 个", len(outcomes), len(calls)))
	}
	for i, outcome := range outcomes {
		if outcome.Succeeded || calls[i].AllowFailure() {
			continue
		}
		return nil, xerrors.New(CodeSubmissionRejected, fmt.Sprintf("第 %d 个调用执行失败，整批放弃", i),
			xerrors.WithMetadataMap(map[string]string{
				MetaStrategy:      string(StrategyAggregate),
				MetaCallIndex:     strconv.Itoa(i),
				MetaMethod:        calls[i].Method(),
				MetaTarget:        calls[i].Target().Hex(),
				MetaPayloadDigest: calls[i].Digest().Hex(),
				MetaRevertReason:  RevertReason(outcome.ReturnData),
			}))
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("提交前已取消: %w", err)
	}
	hash, err := s.aggregator.Aggregate(ctx, calls, total)
	if err != nil {
		return nil, endpointError(err, "聚合提交失败", StrategyAggregate, batchTarget(batch), batch.Digest())
	}
	s.logger.Info("聚合交易已广播", slog.String("tx_hash", hash.Hex()), slog.Int("calls", len(calls)))

	receipt, err := s.wait(ctx, hash, StrategyAggregate)
	if err != nil {
		return nil, err
	}
	return &SubmissionResult{
		Strategy:       StrategyAggregate,
		TxHash:         hash,
		TxHashes:       []common.Hash{hash},
		BlockNumber:    receipt.BlockNumber,
		Value:          total,
		PerCallOutcome: outcomes,
	}, nil
}

func (s *Submitter) submitDirect(ctx context.Context, batch Batch) (*SubmissionResult, error) {
	if s.direct == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置直接发送通道")
	}
	result := &SubmissionResult{Strategy: StrategyDirect, Value: batch.TotalValue()}
	for i, call := range batch.Calls() {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("第 %d 个调用发送前已取消: %w", i, err)
		}
		hash, err := s.direct.Send(ctx, call)
		if err != nil {
			return result, endpointError(err, fmt.Sprintf("第 %d 个调用发送失败", i), StrategyDirect, call.Target(), call.Digest())
		}
		result.TxHash = hash
		result.TxHashes = append(result.TxHashes, hash)

		receipt, err := s.wait(ctx, hash, StrategyDirect)
		if err != nil {
			result.PerCallOutcome = append(result.PerCallOutcome, CallOutcome{Succeeded: false})
			return result, err
		}
		result.BlockNumber = receipt.BlockNumber
		result.PerCallOutcome = append(result.PerCallOutcome, CallOutcome{Succeeded: true})
		s.logger.Debug("直接调用已确认",
			slog.Int("index", i),
			slog.String("kind", string(call.Kind())),
			slog.String("method", call.Method()),
			slog.String("tx_hash", hash.Hex()))
	}
	return result, nil
}

// wait 在有界时间内等待一次确认。
func (s *Submitter) wait(ctx context.Context, hash common.Hash, strategy Strategy) (Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := s.confirmer.WaitConfirmed(waitCtx, hash)
	meta := map[string]string{
		MetaTxHash:   hash.Hex(),
		MetaStrategy: string(strategy),
	}
	if err != nil {
		if ctx.Err() != nil {
			return Receipt{}, xerrors.Wrap(CodeSubmissionTimeout, err, "等待确认被取消，交易可能仍会上链", xerrors.WithMetadataMap(meta))
		}
		if waitCtx.Err() != nil {
			return Receipt{}, xerrors.Wrap(CodeSubmissionTimeout, err,
				fmt.Sprintf("等待确认超过 %s", s.confirmTimeout), xerrors.WithMetadataMap(meta))
		}
		code := CodeNetworkUnavailable
		if typed, ok := xerrors.From(err); ok {
			code = typed.Code()
		}
		// 交易已经广播，盲目重试可能重复提交。
		return Receipt{}, xerrors.Wrap(code, err, "查询交易回执失败", xerrors.WithMetadataMap(meta), xerrors.WithRetryable(false))
	}
	if !receipt.Succeeded {
		meta[MetaRevertReason] = receipt.RevertReason
		return receipt, xerrors.New(CodeSubmissionRejected, "交易执行回滚", xerrors.WithMetadataMap(meta))
	}
	return receipt, nil
}

func endpointError(err error, message string, strategy Strategy, target common.Address, digest common.Hash) error {
	code := CodeSubmissionRejected
	meta := map[string]string{
		MetaStrategy:      string(strategy),
		MetaTarget:        target.Hex(),
		MetaPayloadDigest: digest.Hex(),
	}
	if typed, ok := xerrors.From(err); ok {
		code = typed.Code()
		for k, v := range typed.Metadata() {
			if _, exists := meta[k]; !exists {
				meta[k] = v
			}
		}
	}
	return xerrors.Wrap(code, err, message, xerrors.WithMetadataMap(meta))
}

func batchTarget(batch Batch) common.Address {
	calls := batch.Calls()
	if len(calls) == 0 {
		return common.Address{}
	}
	return calls[0].Target()
}
