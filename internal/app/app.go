// Package app 组装 marketd 与 marketctl 共用的组件：链连接、部署记录、
// 跨链编排器、任务存储与队列以及告警出口。
package app

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"
	"time"

	"MindPress-Market/internal/config"
	"MindPress-Market/internal/crosschain"
	"MindPress-Market/internal/deployment"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/market"
	"MindPress-Market/internal/web3"
	"MindPress-Market/internal/web3/ethereum"
	"MindPress-Market/internal/web3/provider"
	"MindPress-Market/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Chain 聚合默认链上的连接与已解析的合约地址。
type Chain struct {
	Registry *provider.Registry
	Client   web3.Client
	EVM      *ethereum.Chain
	Record   *deployment.Record
	Context  crosschain.ExecutionContext
}

// Close 关闭所有链客户端。
func (c *Chain) Close() {
	if c != nil && c.Registry != nil {
		c.Registry.Close()
	}
}

// LoadSigner 从环境变量读取十六进制私钥，允许带 0x 前缀。
func LoadSigner(env string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return nil, xerrors.Newf(xerrors.CodeInitializationFailure, "环境变量 %s 未设置签名私钥", env)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析签名私钥失败")
	}
	return key, nil
}

// ConnectChain 连接默认链，读取部署记录并解析远端合约地址。
// withSigner 为 false 时只建立只读连接。
func ConnectChain(ctx context.Context, cfg *config.Config, withSigner bool) (*Chain, error) {
	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, err
	}
	client, err := registry.DefaultClient()
	if err != nil {
		registry.Close()
		return nil, err
	}
	chain, err := bindChain(ctx, cfg, client, withSigner)
	if err != nil {
		registry.Close()
		return nil, err
	}
	chain.Registry = registry
	return chain, nil
}

func bindChain(ctx context.Context, cfg *config.Config, client web3.Client, withSigner bool) (*Chain, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	opts := []ethereum.ChainOption{
		ethereum.WithBreaker(ethereum.BreakerSettings{
			Name:        client.Name(),
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    time.Duration(cfg.Breaker.IntervalSeconds) * time.Second,
			Timeout:     time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
		}),
	}
	if withSigner {
		key, err := LoadSigner(cfg.Signer.PrivateKeyEnv)
		if err != nil {
			return nil, err
		}
		transactor, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建交易签名器失败")
		}
		opts = append(opts, ethereum.WithTransactor(transactor))
	}
	evm := ethereum.NewChain(client.Backend(), opts...)

	rec, err := deployment.Load(cfg.Deployment.Dir, chainID)
	if err != nil {
		return nil, err
	}
	var multicall common.Address
	if strings.TrimSpace(cfg.Deployment.Multicall) != "" {
		if !common.IsHexAddress(cfg.Deployment.Multicall) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "multicall 地址无效")
		}
		multicall = common.HexToAddress(cfg.Deployment.Multicall)
	}
	addrs, err := deployment.Resolve(ctx, rec, evm, multicall)
	if err != nil {
		return nil, err
	}
	evm = evm.WithAddresses(addrs)

	logger.Named("app").Info("链连接就绪",
		"chain", client.Name(),
		"chain_id", chainID.String(),
		"marketplace", addrs.Marketplace.Hex(),
		"signer", evm.Signer().Hex(),
	)
	return &Chain{
		Client: client,
		EVM:    evm,
		Record: rec,
		Context: crosschain.ExecutionContext{
			Signer:    evm.Signer(),
			ChainID:   new(big.Int).Set(chainID),
			Addresses: addrs,
		},
	}, nil
}

// NewOrchestrator 以 EVM 链为全部端点构造跨链编排器。
func NewOrchestrator(cfg *config.Config, evm *ethereum.Chain) *crosschain.Orchestrator {
	guard := crosschain.NewGuard(evm)
	submitter := crosschain.NewSubmitter(evm,
		crosschain.WithRelayEndpoint(evm),
		crosschain.WithAggregationEndpoint(evm),
		crosschain.WithDirectSender(evm),
		crosschain.WithConfirmTimeout(cfg.Orchestrator.ConfirmTimeout()),
		crosschain.WithSubmitterLogger(logger.Named("submitter")),
	)
	return crosschain.NewOrchestrator(evm, guard, submitter,
		crosschain.WithOrchestratorLogger(logger.Named("orchestrator")),
	)
}

// GroupIDLookups 是市场合约提供的两种分组 ID 查询，ethereum.Chain 实现了该接口。
type GroupIDLookups interface {
	ListGroupID(ctx context.Context, owner common.Address, name string) (*big.Int, error)
	GroupID(ctx context.Context, owner common.Address, name string) (*big.Int, error)
}

// GroupIDResolver 按 orchestrator.group_id_source 选择分组 ID 的来源：
// listing 查询 getListGroupId(owner)，name 查询 getGroupId(name)，local 在本地推导。
func GroupIDResolver(source string, lookups GroupIDLookups) (crosschain.GroupIDResolver, error) {
	switch source {
	case "local":
		return crosschain.ResolverFunc(crosschain.LocalGroupID), nil
	case "", "listing", "name":
		if lookups == nil {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "远端分组 ID 查询需要链连接")
		}
		if source == "name" {
			return crosschain.LookupFunc(lookups.GroupID), nil
		}
		return crosschain.LookupFunc(lookups.ListGroupID), nil
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的分组 ID 来源: %s", source)
	}
}

// NewPlanner 按配置构造计划生成器。resolver 为 nil 时在本地推导分组 ID。
func NewPlanner(cfg *config.Config, resolver crosschain.GroupIDResolver) (*market.Planner, error) {
	failure, err := crosschain.ParseFailureStrategy(cfg.Orchestrator.FailureStrategy)
	if err != nil {
		return nil, err
	}
	batch, err := crosschain.ParseStrategy(cfg.Orchestrator.Strategy)
	if err != nil {
		return nil, err
	}
	return market.NewPlanner(
		market.WithGroupIDResolver(resolver),
		market.WithCallbackGasLimit(cfg.Orchestrator.CallbackGasLimit),
		market.WithFailureStrategy(failure),
		market.WithBatchStrategy(batch),
		market.WithRoleTTL(cfg.Orchestrator.RoleTTL()),
	), nil
}
