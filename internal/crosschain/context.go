package crosschain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Addresses 保存一次提交涉及的全部合约地址，通常由部署记录解析而来。
type Addresses struct {
	Marketplace        common.Address
	CrossChain         common.Address
	GroupHub           common.Address
	BucketHub          common.Address
	PermissionHub      common.Address
	MultiMessage       common.Address
	GreenfieldExecutor common.Address
	GroupToken         common.Address
	Multicall          common.Address
}

// ExecutionContext 是每次编码、守卫与提交都显式携带的执行上下文。
type ExecutionContext struct {
	Signer    common.Address
	ChainID   *big.Int
	Addresses Addresses
}

// ContractRole 标识 Action 所指向的远端合约。
type ContractRole string

const (
	ContractMarketplace   ContractRole = "marketplace"
	ContractGroupHub      ContractRole = "group_hub"
	ContractBucketHub     ContractRole = "bucket_hub"
	ContractPermissionHub ContractRole = "permission_hub"
	ContractGroupToken    ContractRole = "group_token"
	ContractMultiMessage  ContractRole = "multi_message"
	ContractMulticall     ContractRole = "multicall"
	ContractCrossChain    ContractRole = "cross_chain"
)

// Resolve 返回角色对应的地址，未配置时返回 false。
func (a Addresses) Resolve(role ContractRole) (common.Address, bool) {
	var addr common.Address
	switch role {
	case ContractMarketplace:
		addr = a.Marketplace
	case ContractGroupHub:
		addr = a.GroupHub
	case ContractBucketHub:
		addr = a.BucketHub
	case ContractPermissionHub:
		addr = a.PermissionHub
	case ContractGroupToken:
		addr = a.GroupToken
	case ContractMultiMessage:
		addr = a.MultiMessage
	case ContractMulticall:
		addr = a.Multicall
	case ContractCrossChain:
		addr = a.CrossChain
	}
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}
