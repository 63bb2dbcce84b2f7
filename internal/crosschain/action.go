package crosschain

import (
	"math/big"
	"time"

	"MindPress-Market/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind 标识 Action 的具体变体。
type ActionKind string

const (
	KindCreateGroup       ActionKind = "create_group"
	KindCreatePolicy      ActionKind = "create_policy"
	KindListItem          ActionKind = "list_item"
	KindDelistItem        ActionKind = "delist_item"
	KindGrantRole         ActionKind = "grant_role"
	KindSetApprovalForAll ActionKind = "set_approval_for_all"
	KindCreateSpace       ActionKind = "create_space"
)

// Action 是一次逻辑操作。变体集合是封闭的，只有本包内的类型可以实现它。
type Action interface {
	Kind() ActionKind
	options() CallOptions
}

// CallOptions 是所有变体共享的提交选项。
type CallOptions struct {
	// AllowFailure 仅在聚合提交时生效：为 true 时该调用失败不会回滚整个批次。
	AllowFailure bool
}

func (o CallOptions) options() CallOptions { return o }

// CreateGroup 通过 GroupHub 在存储链上创建分组，需要往返中继费与回调费。
// Sender 与 Owner 为空时取签名账户。
type CreateGroup struct {
	CallOptions
	Sender   common.Address
	Owner    common.Address
	Name     string
	Callback CallbackSpec
}

// CreatePolicy 通过 PermissionHub 创建权限策略，Data 为存储链侧编码好的策略内容。
type CreatePolicy struct {
	CallOptions
	Sender   common.Address
	Data     []byte
	Callback CallbackSpec
}

// ListItem 在市场合约上以指定价格上架分组。
type ListItem struct {
	CallOptions
	GroupID *big.Int
	Price   *big.Int
}

// DelistItem 在市场合约上下架分组。
type DelistItem struct {
	CallOptions
	GroupID *big.Int
}

// GrantRole 在 BucketHub 上把角色授予 Grantee，Grantee 为空时取市场合约。
type GrantRole struct {
	CallOptions
	Role    common.Hash
	Grantee common.Address
	Expiry  time.Time
}

// SetApprovalForAll 在分组 NFT 合约上设置操作员授权，Operator 为空时取市场合约。
type SetApprovalForAll struct {
	CallOptions
	Operator common.Address
	Approved bool
}

// CreateSpace 通过市场合约创建存储空间，只需要往返中继费。
type CreateSpace struct {
	CallOptions
	Bucket        contracts.BucketPackage
	FlowRateLimit string
}

func (CreateGroup) Kind() ActionKind       { return KindCreateGroup }
func (CreatePolicy) Kind() ActionKind      { return KindCreatePolicy }
func (ListItem) Kind() ActionKind          { return KindListItem }
func (DelistItem) Kind() ActionKind        { return KindDelistItem }
func (GrantRole) Kind() ActionKind         { return KindGrantRole }
func (SetApprovalForAll) Kind() ActionKind { return KindSetApprovalForAll }
func (CreateSpace) Kind() ActionKind       { return KindCreateSpace }
