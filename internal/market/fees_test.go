package market

import (
	"math/big"
	"testing"

	"MindPress-Market/internal/crosschain"
)

func TestEstimateFees(t *testing.T) {
	t.Parallel()

	pricing := crosschain.Pricing{
		Quote:            crosschain.RelayFeeQuote{BaseRelayFee: big.NewInt(100), AckRelayFee: big.NewInt(10)},
		CallbackGasPrice: big.NewInt(3),
	}
	est, err := EstimateFees(pricing, 0)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.CallbackGasLimit != DefaultCallbackGasLimit {
		t.Fatalf("unexpected gas limit %d", est.CallbackGasLimit)
	}
	if est.RoundTripFee.Int64() != 210 {
		t.Fatalf("round trip = 2*base + ack, got %s", est.RoundTripFee)
	}
	if est.CallbackFee.Int64() != 1_500_000 {
		t.Fatalf("callback fee = gas limit * price, got %s", est.CallbackFee)
	}
	if est.ListObjectValue.Int64() != 2*(210+1_500_000) {
		t.Fatalf("unexpected listing value %s", est.ListObjectValue)
	}
	if est.CreateSpaceValue.Int64() != 210 {
		t.Fatalf("create space pays one round trip, got %s", est.CreateSpaceValue)
	}

	if _, err := EstimateFees(crosschain.Pricing{Quote: pricing.Quote}, 1); err == nil {
		t.Fatal("missing gas price must fail")
	}
}
