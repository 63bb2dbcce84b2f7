package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"MindPress-Market/internal/contracts"
	"MindPress-Market/internal/crosschain"
	"MindPress-Market/internal/deployment"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/web3"
	"MindPress-Market/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker"
)

// Chain binds the marketplace contract surface to one EVM backend. It serves
// as fee oracle, state probe, relay and aggregation endpoint, direct sender
// and confirmer for the cross-chain orchestrator. Transactions from one Chain
// and its address-bound copies are broadcast one at a time so their nonces
// never collide.
type Chain struct {
	backend      web3.Backend
	sendMu       *sync.Mutex
	addrs        crosschain.Addresses
	transactor   *bind.TransactOpts
	breaker      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	logger       *slog.Logger
}

// ChainOption customises a Chain.
type ChainOption func(*Chain)

// WithTransactor sets the signer used for state-changing calls.
func WithTransactor(opts *bind.TransactOpts) ChainOption {
	return func(c *Chain) {
		c.transactor = opts
	}
}

// WithBreaker places a circuit breaker in front of read calls.
func WithBreaker(settings BreakerSettings) ChainOption {
	return func(c *Chain) {
		c.breaker = newBreaker(settings)
	}
}

// WithPollInterval sets how often receipts are polled while confirming.
func WithPollInterval(interval time.Duration) ChainOption {
	return func(c *Chain) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewChain constructs a Chain over backend.
func NewChain(backend web3.Backend, opts ...ChainOption) *Chain {
	c := &Chain{
		backend:      backend,
		sendMu:       new(sync.Mutex),
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("evm")
	}
	return c
}

// WithAddresses returns a copy of the chain bound to the resolved contract
// addresses. The breaker is shared with the original.
func (c *Chain) WithAddresses(addrs crosschain.Addresses) *Chain {
	clone := *c
	clone.addrs = addrs
	if clone.addrs.Multicall == (common.Address{}) {
		clone.addrs.Multicall = contracts.Multicall3Address
	}
	return &clone
}

// Addresses returns the bound contract addresses.
func (c *Chain) Addresses() crosschain.Addresses {
	return c.addrs
}

// Signer returns the transactor address, or the zero address for read-only chains.
func (c *Chain) Signer() common.Address {
	if c.transactor == nil {
		return common.Address{}
	}
	return c.transactor.From
}

// RelayFees reads getRelayFees from the CrossChain contract.
func (c *Chain) RelayFees(ctx context.Context) (crosschain.RelayFeeQuote, error) {
	out, err := c.call(ctx, contracts.CrossChain, c.addrs.CrossChain, "getRelayFees")
	if err != nil {
		return crosschain.RelayFeeQuote{}, err
	}
	if len(out) != 2 {
		return crosschain.RelayFeeQuote{}, xerrors.New(crosschain.CodeInvalidQuote, "getRelayFees 返回值数量异常")
	}
	base, ok1 := out[0].(*big.Int)
	ack, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return crosschain.RelayFeeQuote{}, xerrors.New(crosschain.CodeInvalidQuote, "getRelayFees 返回值类型异常")
	}
	return crosschain.RelayFeeQuote{BaseRelayFee: base, AckRelayFee: ack}, nil
}

// CallbackGasPrice reads callbackGasPrice from the CrossChain contract.
func (c *Chain) CallbackGasPrice(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, contracts.CrossChain, c.addrs.CrossChain, "callbackGasPrice")
	if err != nil {
		return nil, err
	}
	return firstBig(out, "callbackGasPrice")
}

// RoleGrant reads hasRole from the bucket hub. The hub enforces expiry itself
// and only reports whether the grant is currently live, so Expiry stays zero.
func (c *Chain) RoleGrant(ctx context.Context, hub common.Address, role common.Hash, granter, grantee common.Address) (crosschain.RoleGrant, error) {
	out, err := c.call(ctx, contracts.BucketHub, hub, "hasRole", role, granter, grantee)
	if err != nil {
		return crosschain.RoleGrant{}, err
	}
	held, err := firstBool(out, "hasRole")
	if err != nil {
		return crosschain.RoleGrant{}, err
	}
	return crosschain.RoleGrant{Role: role, Grantee: grantee, Held: held}, nil
}

// IsApprovedForAll reads the ERC721 operator approval.
func (c *Chain) IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error) {
	out, err := c.call(ctx, contracts.ERC721, token, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return firstBool(out, "isApprovedForAll")
}

type hubGetter struct {
	method string
	dest   *common.Address
}

// Hubs reads the hub addresses from the marketplace getters.
func (c *Chain) Hubs(ctx context.Context, marketplace common.Address) (deployment.Hubs, error) {
	var hubs deployment.Hubs
	getters := []hubGetter{
		{"_CROSS_CHAIN", &hubs.CrossChain},
		{"_GROUP_HUB", &hubs.GroupHub},
		{"_BUCKET_HUB", &hubs.BucketHub},
		{"_PERMISSION_HUB", &hubs.PermissionHub},
		{"_MULTI_MESSAGE", &hubs.MultiMessage},
		{"_GREENFIELD_EXECUTOR", &hubs.GreenfieldExecutor},
		{"_GROUP_TOKEN", &hubs.GroupToken},
	}
	for _, getter := range getters {
		out, err := c.call(ctx, contracts.Marketplace, marketplace, getter.method)
		if err != nil {
			return deployment.Hubs{}, err
		}
		if len(out) != 1 {
			return deployment.Hubs{}, xerrors.Newf(crosschain.CodeEncodingError, "%s 返回值数量异常", getter.method)
		}
		addr, ok := out[0].(common.Address)
		if !ok {
			return deployment.Hubs{}, xerrors.Newf(crosschain.CodeEncodingError, "%s 返回值类型异常", getter.method)
		}
		*getter.dest = addr
	}
	return hubs, nil
}

// GroupID asks the marketplace for the id of a named group.
func (c *Chain) GroupID(ctx context.Context, _ common.Address, name string) (*big.Int, error) {
	out, err := c.call(ctx, contracts.Marketplace, c.addrs.Marketplace, "getGroupId", name)
	if err != nil {
		return nil, err
	}
	return firstBig(out, "getGroupId")
}

// ListGroupID asks the marketplace which group id the next listing created
// by owner will receive. The name is not part of the lookup.
func (c *Chain) ListGroupID(ctx context.Context, owner common.Address, _ string) (*big.Int, error) {
	if owner == (common.Address{}) {
		return nil, xerrors.New(crosschain.CodeEncodingError, "getListGroupId 需要分组所有者地址")
	}
	out, err := c.call(ctx, contracts.Marketplace, c.addrs.Marketplace, "getListGroupId", owner)
	if err != nil {
		return nil, err
	}
	return firstBig(out, "getListGroupId")
}

// SendMessages submits the batch through MultiMessage.sendMessages.
func (c *Chain) SendMessages(ctx context.Context, targets []common.Address, payloads [][]byte, values []*big.Int, total *big.Int) (common.Hash, error) {
	payload, err := contracts.MultiMessage.Pack("sendMessages", targets, payloads, values)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(crosschain.CodeEncodingError, err, "编码 sendMessages 失败")
	}
	return c.transact(ctx, c.addrs.MultiMessage, payload, total)
}

// Simulate runs aggregate3Value through eth_call with every member allowed to
// fail, so each call's own outcome is visible.
func (c *Chain) Simulate(ctx context.Context, calls []crosschain.EncodedCall, total *big.Int) ([]crosschain.CallOutcome, error) {
	payload, err := packAggregate(calls, true)
	if err != nil {
		return nil, err
	}
	target := c.addrs.Multicall
	msg := gethcore.CallMsg{From: c.Signer(), To: &target, Value: total, Data: payload}
	raw, err := read(c.breaker, "聚合预执行失败", func() ([]byte, error) {
		return c.backend.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, err
	}
	return decodeAggregate(raw)
}

// Aggregate submits the batch through Multicall3.aggregate3Value.
func (c *Chain) Aggregate(ctx context.Context, calls []crosschain.EncodedCall, total *big.Int) (common.Hash, error) {
	payload, err := packAggregate(calls, false)
	if err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, c.addrs.Multicall, payload, total)
}

// Send submits a single call from the signer.
func (c *Chain) Send(ctx context.Context, call crosschain.EncodedCall) (common.Hash, error) {
	return c.transact(ctx, call.Target(), call.Payload(), call.Value())
}

// WaitConfirmed polls for the receipt until it appears or ctx ends.
func (c *Chain) WaitConfirmed(ctx context.Context, hash common.Hash) (crosschain.Receipt, error) {
	var receipt *types.Receipt
	poll := func() error {
		r, err := c.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			if !errors.Is(err, gethcore.NotFound) {
				c.logger.Debug("查询交易回执失败，稍后重试", slog.String("tx_hash", hash.Hex()), slog.Any("error", err))
			}
			return err
		}
		receipt = r
		return nil
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx)
	if err := backoff.Retry(poll, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crosschain.Receipt{}, ctxErr
		}
		return crosschain.Receipt{}, classify(err, "等待交易确认失败")
	}

	out := crosschain.Receipt{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
	}
	if !out.Succeeded {
		out.RevertReason = c.replayRevert(ctx, hash, receipt.BlockNumber)
	}
	return out, nil
}

// replayRevert re-executes a reverted transaction at its block to recover the
// revert reason. Failures are ignored since the reason is informational.
func (c *Chain) replayRevert(ctx context.Context, hash common.Hash, block *big.Int) string {
	reader, ok := c.backend.(interface {
		TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error)
	})
	if !ok {
		return ""
	}
	tx, _, err := reader.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return ""
	}
	msg := gethcore.CallMsg{From: c.Signer(), To: tx.To(), Value: tx.Value(), Data: tx.Data(), Gas: tx.Gas()}
	_, err = c.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	if reason := crosschain.RevertReason(RevertData(err)); reason != "" {
		return reason
	}
	return err.Error()
}

func (c *Chain) transact(ctx context.Context, to common.Address, payload []byte, value *big.Int) (common.Hash, error) {
	if c.transactor == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置交易签名账户")
	}
	if to == (common.Address{}) {
		return common.Hash{}, xerrors.New(crosschain.CodeEncodingError, "交易目标地址为空")
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	opts := *c.transactor
	opts.Context = ctx
	opts.Value = value

	contract := bind.NewBoundContract(to, abi.ABI{}, c.backend, c.backend, c.backend)
	tx, err := contract.RawTransact(&opts, payload)
	if err != nil {
		return common.Hash{}, classify(err, "发送交易失败")
	}
	commitIfSimulated(c.backend)
	c.logger.Info("交易已广播",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.String("value", opts.Value.String()))
	return tx.Hash(), nil
}

func (c *Chain) call(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if to == (common.Address{}) {
		return nil, xerrors.Newf(crosschain.CodeEncodingError, "调用 %s 的合约地址为空", method)
	}
	contract := bind.NewBoundContract(to, parsed, c.backend, c.backend, c.backend)
	return read(c.breaker, fmt.Sprintf("调用 %s 失败", method), func() ([]interface{}, error) {
		var out []interface{}
		err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
		return out, err
	})
}

func packAggregate(calls []crosschain.EncodedCall, tolerateAll bool) ([]byte, error) {
	members := make([]contracts.Call3Value, len(calls))
	for i, call := range calls {
		members[i] = contracts.Call3Value{
			Target:       call.Target(),
			AllowFailure: tolerateAll || call.AllowFailure(),
			Value:        call.Value(),
			CallData:     call.Payload(),
		}
	}
	payload, err := contracts.Multicall3.Pack("aggregate3Value", members)
	if err != nil {
		return nil, xerrors.Wrap(crosschain.CodeEncodingError, err, "编码 aggregate3Value 失败")
	}
	return payload, nil
}

func decodeAggregate(raw []byte) ([]crosschain.CallOutcome, error) {
	out, err := contracts.Multicall3.Unpack("aggregate3Value", raw)
	if err != nil {
		return nil, xerrors.Wrap(crosschain.CodeSubmissionRejected, err, "解析 aggregate3Value 返回值失败")
	}
	if len(out) != 1 {
		return nil, xerrors.New(crosschain.CodeSubmissionRejected, "aggregate3Value 返回值数量异常")
	}
	results := *abi.ConvertType(out[0], new([]contracts.Multicall3Result)).(*[]contracts.Multicall3Result)
	outcomes := make([]crosschain.CallOutcome, len(results))
	for i, r := range results {
		outcomes[i] = crosschain.CallOutcome{Succeeded: r.Success, ReturnData: r.ReturnData}
	}
	return outcomes, nil
}

func firstBig(out []interface{}, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, xerrors.Newf(crosschain.CodeEncodingError, "%s 没有返回值", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, xerrors.Newf(crosschain.CodeEncodingError, "%s 返回值类型异常", method)
	}
	return v, nil
}

func firstBool(out []interface{}, method string) (bool, error) {
	if len(out) == 0 {
		return false, xerrors.Newf(crosschain.CodeEncodingError, "%s 没有返回值", method)
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, xerrors.Newf(crosschain.CodeEncodingError, "%s 返回值类型异常", method)
	}
	return v, nil
}
