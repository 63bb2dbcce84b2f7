package market

import (
	"math/big"

	"MindPress-Market/internal/crosschain"
)

// FeeEstimate 汇总各类市场操作需要附带的 value，单位均为 wei。
type FeeEstimate struct {
	RelayFee         *big.Int
	AckRelayFee      *big.Int
	CallbackGasPrice *big.Int
	CallbackGasLimit uint64
	RoundTripFee     *big.Int
	CallbackFee      *big.Int
	// ListObjectValue 覆盖 CreateGroup 与 CreatePolicy 两个带回调的往返消息。
	ListObjectValue *big.Int
	// CreateSpaceValue 只包含一次往返，不带回调。
	CreateSpaceValue *big.Int
}

// EstimateFees 根据费用快照计算上架与建空间所需的 value。gasLimit 为 0 时使用默认回调 gas。
func EstimateFees(pricing crosschain.Pricing, gasLimit uint64) (FeeEstimate, error) {
	if gasLimit == 0 {
		gasLimit = DefaultCallbackGasLimit
	}
	roundTrip, err := crosschain.QuoteStepCost(pricing.Quote, true)
	if err != nil {
		return FeeEstimate{}, err
	}
	callback, err := crosschain.QuoteCallbackFee(crosschain.CallbackSpec{GasLimit: gasLimit, GasPrice: pricing.CallbackGasPrice})
	if err != nil {
		return FeeEstimate{}, err
	}
	step := crosschain.StepCost{Quote: pricing.Quote, RoundTrip: true, CallbackFee: callback}
	listing, err := crosschain.QuoteBatchCost([]crosschain.StepCost{step, step})
	if err != nil {
		return FeeEstimate{}, err
	}
	return FeeEstimate{
		RelayFee:         new(big.Int).Set(pricing.Quote.BaseRelayFee),
		AckRelayFee:      new(big.Int).Set(pricing.Quote.AckRelayFee),
		CallbackGasPrice: new(big.Int).Set(pricing.CallbackGasPrice),
		CallbackGasLimit: gasLimit,
		RoundTripFee:     roundTrip,
		CallbackFee:      callback,
		ListObjectValue:  listing,
		CreateSpaceValue: new(big.Int).Set(roundTrip),
	}, nil
}
