package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"MindPress-Market/internal/contracts"
	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Plan names.
const (
	PlanListObject  = "list_object"
	PlanCreateSpace = "create_space"
	PlanDelist      = "delist"
)

// Defaults used when the planner is built without explicit settings.
const (
	DefaultCallbackGasLimit uint64 = 500_000
	DefaultRoleTTL                 = 365 * 24 * time.Hour
)

// GroupName 返回对象上架时创建的分组名称。
func GroupName(objectID *big.Int) string {
	return fmt.Sprintf("list-object-group-%s", objectID.String())
}

// ListingCallbackData encodes the callback payload the marketplace decodes when
// the group and policy are created: abi.encodePacked(address owner, uint256
// groupId, uint256 bucketId, uint256 objectId, uint256 price).
func ListingCallbackData(owner common.Address, groupID, bucketID, objectID, price *big.Int) []byte {
	out := make([]byte, 0, common.AddressLength+4*32)
	out = append(out, owner.Bytes()...)
	for _, v := range []*big.Int{groupID, bucketID, objectID, price} {
		out = append(out, math.U256Bytes(new(big.Int).Set(v))...)
	}
	return out
}

// Planner 把业务请求转换为 crosschain.Plan。
type Planner struct {
	groupIDs         crosschain.GroupIDResolver
	callbackGasLimit uint64
	failureStrategy  crosschain.FailureStrategy
	batchStrategy    crosschain.Strategy
	roleTTL          time.Duration
	now              func() time.Time
}

// PlannerOption 定义可选配置。
type PlannerOption func(*Planner)

// WithGroupIDResolver 指定分组 ID 的解析方式，默认在本地推导。
func WithGroupIDResolver(resolver crosschain.GroupIDResolver) PlannerOption {
	return func(p *Planner) {
		if resolver != nil {
			p.groupIDs = resolver
		}
	}
}

// WithCallbackGasLimit 设置回调的默认 gas 上限。
func WithCallbackGasLimit(limit uint64) PlannerOption {
	return func(p *Planner) {
		if limit > 0 {
			p.callbackGasLimit = limit
		}
	}
}

// WithFailureStrategy 设置回调的默认失败处理策略。
func WithFailureStrategy(strategy crosschain.FailureStrategy) PlannerOption {
	return func(p *Planner) {
		p.failureStrategy = strategy
	}
}

// WithBatchStrategy 设置多消息阶段的提交方式，只接受 relay 与 aggregate。
func WithBatchStrategy(strategy crosschain.Strategy) PlannerOption {
	return func(p *Planner) {
		switch strategy {
		case crosschain.StrategyRelay, crosschain.StrategyAggregate:
			p.batchStrategy = strategy
		}
	}
}

// WithRoleTTL 设置授予市场合约的角色有效期。
func WithRoleTTL(ttl time.Duration) PlannerOption {
	return func(p *Planner) {
		if ttl > 0 {
			p.roleTTL = ttl
		}
	}
}

// WithPlannerClock 替换时钟，主要用于测试。
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlanner 构造 Planner。
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		groupIDs:         crosschain.ResolverFunc(crosschain.LocalGroupID),
		callbackGasLimit: DefaultCallbackGasLimit,
		failureStrategy:  crosschain.SkipOnFail,
		batchStrategy:    crosschain.StrategyRelay,
		roleTTL:          DefaultRoleTTL,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ListObject 构造对象上架计划：先直接授权市场合约操作分组 NFT，
// 再通过中继一次性提交创建分组与绑定策略，两者的回调都携带上架信息。
func (p *Planner) ListObject(ctx context.Context, ectx crosschain.ExecutionContext, params ListObjectParams) (crosschain.Plan, error) {
	if err := params.Validate(); err != nil {
		return crosschain.Plan{}, err
	}
	price, err := params.PriceWei()
	if err != nil {
		return crosschain.Plan{}, err
	}
	strategy := p.failureStrategy
	if params.FailureStrategy != "" {
		strategy, err = crosschain.ParseFailureStrategy(params.FailureStrategy)
		if err != nil {
			return crosschain.Plan{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "failure_strategy 无效")
		}
	}
	gasLimit := p.callbackGasLimit
	if params.CallbackGas > 0 {
		gasLimit = params.CallbackGas
	}

	owner := params.Owner
	if owner == (common.Address{}) {
		owner = ectx.Signer
	}
	if owner == (common.Address{}) {
		return crosschain.Plan{}, xerrors.New(xerrors.CodeInvalidArgument, "无法确定分组所有者")
	}
	name := GroupName(params.ObjectID)
	groupID, err := p.groupIDs.GroupID(ctx, owner, name)
	if err != nil {
		return crosschain.Plan{}, err
	}

	callback := crosschain.CallbackSpec{
		GasLimit:        gasLimit,
		RefundAddress:   owner,
		FailureStrategy: strategy,
		CallbackData:    ListingCallbackData(owner, groupID, params.BucketID, params.ObjectID, price),
	}
	return crosschain.Plan{
		Name: PlanListObject,
		Stages: []crosschain.Stage{
			{
				Name:     "approve_group_token",
				Strategy: crosschain.StrategyDirect,
				Actions:  []crosschain.Action{crosschain.SetApprovalForAll{Approved: true}},
			},
			{
				Name:     "create_group_and_policy",
				Strategy: p.batchStrategy,
				Actions: []crosschain.Action{
					crosschain.CreateGroup{Sender: owner, Owner: owner, Name: name, Callback: callback},
					crosschain.CreatePolicy{Sender: owner, Data: params.PolicyData, Callback: callback},
				},
			},
		},
	}, nil
}

// CreateSpace 构造存储空间创建计划：先授予市场合约 ROLE_CREATE，再调用 createSpace。
func (p *Planner) CreateSpace(ectx crosschain.ExecutionContext, params CreateSpaceParams) (crosschain.Plan, error) {
	if err := params.Validate(); err != nil {
		return crosschain.Plan{}, err
	}
	marketplace := ectx.Addresses.Marketplace
	if marketplace == (common.Address{}) {
		return crosschain.Plan{}, xerrors.New(xerrors.CodeInvalidArgument, "缺少市场合约地址")
	}
	bucket := contracts.BucketPackage{
		Creator:          ectx.Signer,
		Name:             strings.TrimSpace(params.BucketName),
		Visibility:       params.visibility(),
		PaymentAddress:   marketplace,
		PrimarySpAddress: params.PrimarySP,
		ChargedReadQuota: params.ChargedReadQuota,
	}
	return crosschain.Plan{
		Name: PlanCreateSpace,
		Stages: []crosschain.Stage{
			{
				Name:     "grant_create_role",
				Strategy: crosschain.StrategyDirect,
				Actions: []crosschain.Action{crosschain.GrantRole{
					Role:    contracts.RoleID(contracts.RoleCreate),
					Grantee: marketplace,
					Expiry:  p.now().Add(p.roleTTL),
				}},
			},
			{
				Name:     "create_space",
				Strategy: crosschain.StrategyDirect,
				Actions:  []crosschain.Action{crosschain.CreateSpace{Bucket: bucket, FlowRateLimit: params.FlowRateLimit}},
			},
		},
	}, nil
}

// Delist 构造下架计划。
func (p *Planner) Delist(params DelistParams) (crosschain.Plan, error) {
	if err := params.Validate(); err != nil {
		return crosschain.Plan{}, err
	}
	return crosschain.Plan{
		Name: PlanDelist,
		Stages: []crosschain.Stage{{
			Name:     "delist",
			Strategy: crosschain.StrategyDirect,
			Actions:  []crosschain.Action{crosschain.DelistItem{GroupID: params.GroupID}},
		}},
	}, nil
}
