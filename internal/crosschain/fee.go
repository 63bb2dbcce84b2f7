package crosschain

import (
	"context"
	"fmt"
	"math/big"

	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// FailureStrategy 声明远端执行失败时回调的处理方式，取值与合约枚举一致。
type FailureStrategy uint8

const (
	BlockOnFail FailureStrategy = 0
	CacheOnFail FailureStrategy = 1
	SkipOnFail  FailureStrategy = 2
)

// Valid 判断取值是否在合约枚举范围内。
func (s FailureStrategy) Valid() bool {
	return s <= SkipOnFail
}

func (s FailureStrategy) String() string {
	switch s {
	case BlockOnFail:
		return "block_on_fail"
	case CacheOnFail:
		return "cache_on_fail"
	case SkipOnFail:
		return "skip_on_fail"
	default:
		return fmt.Sprintf("failure_strategy(%d)", uint8(s))
	}
}

// ParseFailureStrategy 解析配置文件中的策略名称。
func ParseFailureStrategy(name string) (FailureStrategy, error) {
	switch name {
	case "block_on_fail", "block":
		return BlockOnFail, nil
	case "cache_on_fail", "cache":
		return CacheOnFail, nil
	case "skip_on_fail", "skip", "":
		return SkipOnFail, nil
	default:
		return 0, xerrors.Newf(CodeEncodingError, "未知的失败处理策略: %s", name)
	}
}

// RelayFeeQuote 是链上 CrossChain 合约报出的中继费用。
type RelayFeeQuote struct {
	BaseRelayFee *big.Int
	AckRelayFee  *big.Int
}

// Validate 检查两项费用均存在且非负。
func (q RelayFeeQuote) Validate() error {
	if q.BaseRelayFee == nil || q.AckRelayFee == nil {
		return xerrors.New(CodeInvalidQuote, "中继费用缺失")
	}
	if q.BaseRelayFee.Sign() < 0 || q.AckRelayFee.Sign() < 0 {
		return xerrors.New(CodeInvalidQuote, "中继费用不能为负数")
	}
	return nil
}

// CallbackSpec 描述远端执行结束后回调本链所需的参数。
type CallbackSpec struct {
	GasLimit        uint64
	GasPrice        *big.Int
	AppAddress      common.Address
	RefundAddress   common.Address
	FailureStrategy FailureStrategy
	CallbackData    []byte
}

// StepCost 是批次中单个步骤的计价输入。CallbackFee 为 nil 时视为 0。
type StepCost struct {
	Quote       RelayFeeQuote
	RoundTrip   bool
	CallbackFee *big.Int
}

// QuoteStepCost returns the native value one cross-chain step must carry.
// A round trip pays the base relay fee in both directions plus the ack fee.
func QuoteStepCost(quote RelayFeeQuote, roundTrip bool) (*big.Int, error) {
	if err := quote.Validate(); err != nil {
		return nil, err
	}
	total := new(big.Int).Set(quote.BaseRelayFee)
	if roundTrip {
		total.Add(total, quote.BaseRelayFee)
	}
	return total.Add(total, quote.AckRelayFee), nil
}

// QuoteCallbackFee returns gasLimit * gasPrice.
func QuoteCallbackFee(spec CallbackSpec) (*big.Int, error) {
	if spec.GasPrice == nil {
		return nil, xerrors.New(CodeInvalidQuote, "回调 gas 价格缺失")
	}
	if spec.GasPrice.Sign() < 0 {
		return nil, xerrors.New(CodeInvalidQuote, "回调 gas 价格不能为负数")
	}
	fee := new(big.Int).SetUint64(spec.GasLimit)
	return fee.Mul(fee, spec.GasPrice), nil
}

// QuoteBatchCost sums the cost of every step in the batch.
func QuoteBatchCost(steps []StepCost) (*big.Int, error) {
	total := new(big.Int)
	for i, step := range steps {
		cost, err := QuoteStepCost(step.Quote, step.RoundTrip)
		if err != nil {
			return nil, xerrors.Wrap(CodeInvalidQuote, err, fmt.Sprintf("第 %d 步计价失败", i))
		}
		total.Add(total, cost)
		if step.CallbackFee != nil {
			if step.CallbackFee.Sign() < 0 {
				return nil, xerrors.Newf(CodeInvalidQuote, "第 %d 步回调费用为负数", i)
			}
			total.Add(total, step.CallbackFee)
		}
	}
	return total, nil
}

// FeeOracle 读取链上的实时费用，每次提交都重新读取，不做缓存。
type FeeOracle interface {
	RelayFees(ctx context.Context) (RelayFeeQuote, error)
	CallbackGasPrice(ctx context.Context) (*big.Int, error)
}

// Pricing 是一次提交使用的费用快照，由编码器用来计算每个调用的 value。
type Pricing struct {
	Quote            RelayFeeQuote
	CallbackGasPrice *big.Int
}

// FetchPricing 从预言机读取一份新的费用快照。
func FetchPricing(ctx context.Context, oracle FeeOracle) (Pricing, error) {
	quote, err := oracle.RelayFees(ctx)
	if err != nil {
		return Pricing{}, err
	}
	if err := quote.Validate(); err != nil {
		return Pricing{}, err
	}
	gasPrice, err := oracle.CallbackGasPrice(ctx)
	if err != nil {
		return Pricing{}, err
	}
	if gasPrice == nil || gasPrice.Sign() < 0 {
		return Pricing{}, xerrors.New(CodeInvalidQuote, "回调 gas 价格无效")
	}
	return Pricing{Quote: quote, CallbackGasPrice: gasPrice}, nil
}
