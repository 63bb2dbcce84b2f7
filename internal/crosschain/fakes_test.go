package crosschain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testSigner      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testMarketplace = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testGroupHub    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testPermHub     = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	testBucketHub   = common.HexToAddress("0x00000000000000000000000000000000000000b4")
	testGroupToken  = common.HexToAddress("0x00000000000000000000000000000000000000b5")
	testMulti       = common.HexToAddress("0x00000000000000000000000000000000000000b6")
	testCrossChain  = common.HexToAddress("0x00000000000000000000000000000000000000b7")
)

func testContext() ExecutionContext {
	return ExecutionContext{
		Signer:  testSigner,
		ChainID: big.NewInt(5611),
		Addresses: Addresses{
			Marketplace:   testMarketplace,
			CrossChain:    testCrossChain,
			GroupHub:      testGroupHub,
			BucketHub:     testBucketHub,
			PermissionHub: testPermHub,
			MultiMessage:  testMulti,
			GroupToken:    testGroupToken,
		},
	}
}

func testPricing() Pricing {
	return Pricing{
		Quote:            RelayFeeQuote{BaseRelayFee: big.NewInt(100), AckRelayFee: big.NewInt(10)},
		CallbackGasPrice: big.NewInt(5),
	}
}

type fakeOracle struct {
	quote    RelayFeeQuote
	gasPrice *big.Int
	err      error
	calls    int
}

func (f *fakeOracle) RelayFees(context.Context) (RelayFeeQuote, error) {
	f.calls++
	return f.quote, f.err
}

func (f *fakeOracle) CallbackGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, f.err
}

type fakeProbe struct {
	grant    RoleGrant
	approved bool
	err      error
}

func (f *fakeProbe) RoleGrant(_ context.Context, _ common.Address, role common.Hash, _, grantee common.Address) (RoleGrant, error) {
	grant := f.grant
	grant.Role = role
	grant.Grantee = grantee
	return grant, f.err
}

func (f *fakeProbe) IsApprovedForAll(context.Context, common.Address, common.Address, common.Address) (bool, error) {
	return f.approved, f.err
}

type fakeRelay struct {
	mu       sync.Mutex
	targets  []common.Address
	payloads [][]byte
	values   []*big.Int
	total    *big.Int
	calls    int
	err      error
}

func (f *fakeRelay) SendMessages(_ context.Context, targets []common.Address, payloads [][]byte, values []*big.Int, total *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.targets, f.payloads, f.values, f.total = targets, payloads, values, total
	return common.HexToHash("0x01"), nil
}

// fakeAggregator reports failure for every call whose index is in failing.
type fakeAggregator struct {
	failing    map[int]bool
	broadcasts int
}

func (f *fakeAggregator) Simulate(_ context.Context, calls []EncodedCall, _ *big.Int) ([]CallOutcome, error) {
	outcomes := make([]CallOutcome, len(calls))
	for i := range calls {
		outcomes[i] = CallOutcome{Succeeded: !f.failing[i], ReturnData: []byte{byte(i)}}
	}
	return outcomes, nil
}

func (f *fakeAggregator) Aggregate(context.Context, []EncodedCall, *big.Int) (common.Hash, error) {
	f.broadcasts++
	return common.HexToHash("0x02"), nil
}

type fakeDirect struct {
	sent []EncodedCall
}

func (f *fakeDirect) Send(_ context.Context, call EncodedCall) (common.Hash, error) {
	f.sent = append(f.sent, call)
	return common.BigToHash(big.NewInt(int64(100 + len(f.sent)))), nil
}

// fakeConfirmer confirms every hash except those listed in reverted. When
// block is set it waits for the context instead.
type fakeConfirmer struct {
	reverted map[common.Hash]string
	block    bool
}

func (f *fakeConfirmer) WaitConfirmed(ctx context.Context, tx common.Hash) (Receipt, error) {
	if f.block {
		<-ctx.Done()
		return Receipt{}, ctx.Err()
	}
	if reason, ok := f.reverted[tx]; ok {
		return Receipt{TxHash: tx, BlockNumber: 7, Succeeded: false, RevertReason: reason}, nil
	}
	return Receipt{TxHash: tx, BlockNumber: 7, Succeeded: true}, nil
}
