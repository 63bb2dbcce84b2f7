package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"MindPress-Market/internal/contracts"
	"MindPress-Market/internal/crosschain"
	"MindPress-Market/internal/deployment"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Minimal contracts assembled by hand. Each ignores calldata.
const (
	// returns (100, 10)
	feeStubBin = "0x600f80600b6000396000f3" + "6064600052600a60205260406000f3"
	// returns uint256(1), which decodes as true or as address 0x..01
	oneStubBin = "0x600a80600b6000396000f3" + "600160005260206000f3"
	// reverts with empty data
	revertStubBin = "0x600580600b6000396000f3" + "60006000fd"
)

type simulated struct {
	backend *backends.SimulatedBackend
	auth    *bind.TransactOpts
	client  *Client
}

func newSimulated(t *testing.T) *simulated {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	balance, _ := new(big.Int).SetString("1000000000000000000000", 10)
	backend := backends.NewSimulatedBackend(types.GenesisAlloc{auth.From: {Balance: balance}}, 30_000_000)
	client := NewSimulatedClient("simulated", backend)
	t.Cleanup(client.Close)
	return &simulated{backend: backend, auth: auth, client: client}
}

func (s *simulated) deploy(t *testing.T, bin string) common.Address {
	t.Helper()

	addr, _, _, err := bind.DeployContract(s.auth, abi.ABI{}, common.FromHex(bin), s.backend)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	s.backend.Commit()
	return addr
}

func (s *simulated) chain(opts ...ChainOption) *Chain {
	opts = append([]ChainOption{WithTransactor(s.auth), WithPollInterval(10 * time.Millisecond)}, opts...)
	return NewChain(s.client.Backend(), opts...)
}

func TestClientSnapshot(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	sim.deploy(t, oneStubBin)

	snapshot, err := sim.client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "1337" {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber == 0 {
		t.Fatal("expected block number to advance after deployment")
	}
	if snapshot.Name != "simulated" {
		t.Fatalf("unexpected name %q", snapshot.Name)
	}
}

func TestChainReadsFeesAndState(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	feeStub := sim.deploy(t, feeStubBin)
	oneStub := sim.deploy(t, oneStubBin)
	chain := sim.chain().WithAddresses(crosschain.Addresses{CrossChain: feeStub})
	ctx := context.Background()

	quote, err := chain.RelayFees(ctx)
	if err != nil {
		t.Fatalf("relay fees: %v", err)
	}
	if quote.BaseRelayFee.Int64() != 100 || quote.AckRelayFee.Int64() != 10 {
		t.Fatalf("unexpected quote %+v", quote)
	}
	gasPrice, err := chain.CallbackGasPrice(ctx)
	if err != nil {
		t.Fatalf("callback gas price: %v", err)
	}
	if gasPrice.Int64() != 100 {
		t.Fatalf("unexpected gas price %s", gasPrice)
	}

	approved, err := chain.IsApprovedForAll(ctx, oneStub, sim.auth.From, feeStub)
	if err != nil {
		t.Fatalf("is approved: %v", err)
	}
	if !approved {
		t.Fatal("expected approval to be reported")
	}
	grant, err := chain.RoleGrant(ctx, oneStub, contracts.RoleID(contracts.RoleCreate), sim.auth.From, feeStub)
	if err != nil {
		t.Fatalf("role grant: %v", err)
	}
	if !grant.Held || !grant.Expiry.IsZero() || grant.Grantee != feeStub {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if chain.Addresses().Multicall != contracts.Multicall3Address {
		t.Fatal("multicall should default to the canonical deployment")
	}
}

func TestResolveDeploymentThroughChain(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	oneStub := sim.deploy(t, oneStubBin)
	chain := sim.chain()

	rec := &deployment.Record{Marketplace: oneStub}
	addrs, err := deployment.Resolve(context.Background(), rec, chain, common.Address{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := common.BigToAddress(big.NewInt(1))
	if addrs.GroupHub != want || addrs.GroupToken != want || addrs.Marketplace != oneStub {
		t.Fatalf("unexpected addresses %+v", addrs)
	}
}

func TestSendAndConfirm(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	oneStub := sim.deploy(t, oneStubBin)
	chain := sim.chain()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	call := crosschain.NewEncodedCall(oneStub, big.NewInt(0), []byte{0x01, 0x02}, false)
	hash, err := chain.Send(ctx, call)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	receipt, err := chain.WaitConfirmed(ctx, hash)
	if err != nil {
		t.Fatalf("wait confirmed: %v", err)
	}
	if !receipt.Succeeded || receipt.TxHash != hash || receipt.BlockNumber == 0 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestConcurrentSendsUseDistinctNonces(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	oneStub := sim.deploy(t, oneStubBin)
	chain := sim.chain().WithAddresses(crosschain.Addresses{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const senders = 8
	var wg sync.WaitGroup
	hashes := make([]common.Hash, senders)
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call := crosschain.NewEncodedCall(oneStub, big.NewInt(0), []byte{byte(i)}, false)
			hashes[i], errs[i] = chain.Send(ctx, call)
		}(i)
	}
	wg.Wait()

	nonces := make(map[uint64]bool, senders)
	for i := 0; i < senders; i++ {
		if errs[i] != nil {
			t.Fatalf("send %d: %v", i, errs[i])
		}
		tx, _, err := sim.backend.TransactionByHash(ctx, hashes[i])
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if nonces[tx.Nonce()] {
			t.Fatalf("nonce %d reused", tx.Nonce())
		}
		nonces[tx.Nonce()] = true
	}
}

func TestMalformedReadResultsAreEncodingErrors(t *testing.T) {
	t.Parallel()

	if _, err := firstBig(nil, "callbackGasPrice"); xerrors.CodeOf(err) != crosschain.CodeEncodingError {
		t.Fatalf("empty result: unexpected error %v", err)
	}
	if _, err := firstBig([]interface{}{true}, "callbackGasPrice"); xerrors.CodeOf(err) != crosschain.CodeEncodingError {
		t.Fatalf("wrong type: unexpected error %v", err)
	}
	if _, err := firstBool([]interface{}{big.NewInt(1)}, "hasRole"); xerrors.CodeOf(err) != crosschain.CodeEncodingError {
		t.Fatalf("wrong type: unexpected error %v", err)
	}
}

func TestSendRevertIsRejected(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	revertStub := sim.deploy(t, revertStubBin)
	chain := sim.chain()

	call := crosschain.NewEncodedCall(revertStub, big.NewInt(0), []byte{0x01}, false)
	_, err := chain.Send(context.Background(), call)
	if xerrors.CodeOf(err) != crosschain.CodeSubmissionRejected {
		t.Fatalf("expected SubmissionRejected, got %v", err)
	}
	if xerrors.MetadataOf(err)[crosschain.MetaRevertReason] == "" {
		t.Fatal("expected revert reason metadata")
	}
}

func TestSendWithoutTransactor(t *testing.T) {
	t.Parallel()

	sim := newSimulated(t)
	chain := NewChain(sim.client.Backend())
	call := crosschain.NewEncodedCall(common.HexToAddress("0x01"), nil, nil, false)
	if _, err := chain.Send(context.Background(), call); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if chain.Signer() != (common.Address{}) {
		t.Fatal("read-only chain must not report a signer")
	}
}

func TestDecodeAggregate(t *testing.T) {
	t.Parallel()

	results := []contracts.Multicall3Result{
		{Success: true, ReturnData: []byte{0xaa}},
		{Success: false, ReturnData: []byte{}},
	}
	raw, err := contracts.Multicall3.Methods["aggregate3Value"].Outputs.Pack(results)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	outcomes, err := decodeAggregate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcomes) != 2 || !outcomes[0].Succeeded || outcomes[1].Succeeded {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if len(outcomes[0].ReturnData) != 1 || outcomes[0].ReturnData[0] != 0xaa {
		t.Fatalf("return data lost: %x", outcomes[0].ReturnData)
	}
}

func TestPackAggregateForcesTolerance(t *testing.T) {
	t.Parallel()

	calls := []crosschain.EncodedCall{
		crosschain.NewEncodedCall(common.HexToAddress("0x01"), big.NewInt(3), []byte{0x01}, false),
	}
	for _, tolerate := range []bool{true, false} {
		payload, err := packAggregate(calls, tolerate)
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		args, err := contracts.Multicall3.Methods["aggregate3Value"].Inputs.Unpack(payload[4:])
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		members := *abi.ConvertType(args[0], new([]contracts.Call3Value)).(*[]contracts.Call3Value)
		if members[0].AllowFailure != tolerate {
			t.Fatalf("allowFailure = %v, want %v", members[0].AllowFailure, tolerate)
		}
		if members[0].Value.Int64() != 3 {
			t.Fatalf("unexpected value %s", members[0].Value)
		}
	}
}

type dataError struct {
	msg  string
	data interface{}
}

func (e dataError) Error() string          { return e.msg }
func (e dataError) ErrorData() interface{} { return e.data }

func TestRevertDetection(t *testing.T) {
	t.Parallel()

	reason := abi.NewError("Error", abi.Arguments{{Type: mustType(t, "string")}})
	encoded, err := reason.Inputs.Pack("not owner")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	payload := append(append([]byte{}, reason.ID[:4]...), encoded...)
	rpcErr := dataError{msg: "execution reverted: not owner", data: "0x" + common.Bytes2Hex(payload)}

	if !IsRevert(rpcErr) {
		t.Fatal("data error must be detected as revert")
	}
	if got := crosschain.RevertReason(RevertData(rpcErr)); got != "not owner" {
		t.Fatalf("unexpected reason %q", got)
	}
	if IsRevert(errors.New("dial tcp: connection refused")) {
		t.Fatal("transport error is not a revert")
	}
	if !IsRevert(errors.New("insufficient funds for gas * price + value")) {
		t.Fatal("insufficient funds should count as rejection")
	}

	classified := classify(rpcErr, "call")
	if xerrors.CodeOf(classified) != crosschain.CodeSubmissionRejected {
		t.Fatalf("unexpected code %v", classified)
	}
	if xerrors.MetadataOf(classified)[crosschain.MetaRevertReason] != "not owner" {
		t.Fatalf("unexpected metadata %v", xerrors.MetadataOf(classified))
	}
	if xerrors.CodeOf(classify(errors.New("EOF"), "call")) != crosschain.CodeNetworkUnavailable {
		t.Fatal("transport failure should be network unavailable")
	}
	if !errors.Is(classify(context.Canceled, "call"), context.Canceled) {
		t.Fatal("cancellation must pass through")
	}
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		t.Fatalf("new type: %v", err)
	}
	return typ
}

// flakyBackend fails every contract call with a fixed error.
type flakyBackend struct {
	web3.Backend
	err   error
	calls int
}

func (f *flakyBackend) CallContract(context.Context, gethcore.CallMsg, *big.Int) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	t.Parallel()

	backend := &flakyBackend{err: errors.New("dial tcp: connection refused")}
	chain := NewChain(backend, WithBreaker(BreakerSettings{MaxFailures: 2, Timeout: time.Minute})).
		WithAddresses(crosschain.Addresses{CrossChain: common.HexToAddress("0x01")})

	for i := 0; i < 2; i++ {
		if _, err := chain.CallbackGasPrice(context.Background()); xerrors.CodeOf(err) != crosschain.CodeNetworkUnavailable {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	_, err := chain.CallbackGasPrice(context.Background())
	if xerrors.CodeOf(err) != crosschain.CodeNetworkUnavailable {
		t.Fatalf("unexpected error %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("open breaker must not reach the node, got %d calls", backend.calls)
	}
}

func TestBreakerIgnoresReverts(t *testing.T) {
	t.Parallel()

	backend := &flakyBackend{err: errors.New("execution reverted")}
	chain := NewChain(backend, WithBreaker(BreakerSettings{MaxFailures: 1, Timeout: time.Minute})).
		WithAddresses(crosschain.Addresses{CrossChain: common.HexToAddress("0x01")})

	for i := 0; i < 3; i++ {
		if _, err := chain.CallbackGasPrice(context.Background()); xerrors.CodeOf(err) != crosschain.CodeSubmissionRejected {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if backend.calls != 3 {
		t.Fatalf("reverts must not trip the breaker, got %d calls", backend.calls)
	}
}

var _ web3.Client = (*Client)(nil)
