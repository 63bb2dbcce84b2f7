package crosschain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GroupIDFunc derives the id a group will receive before it exists on chain,
// so dependent calls in the same batch can reference it.
type GroupIDFunc func(owner common.Address, name string) *big.Int

// LocalGroupID returns uint256(keccak256(abi.encodePacked(owner, name))).
func LocalGroupID(owner common.Address, name string) *big.Int {
	return new(big.Int).SetBytes(crypto.Keccak256(owner.Bytes(), []byte(name)))
}

// GroupIDResolver 解析分组 ID。实现可以是本地推导，也可以是市场合约的
// getListGroupId / getGroupId 查询。
type GroupIDResolver interface {
	GroupID(ctx context.Context, owner common.Address, name string) (*big.Int, error)
}

// ResolverFunc 把 GroupIDFunc 适配为 GroupIDResolver。
type ResolverFunc GroupIDFunc

// GroupID 实现 GroupIDResolver。
func (f ResolverFunc) GroupID(_ context.Context, owner common.Address, name string) (*big.Int, error) {
	return f(owner, name), nil
}

// LookupFunc 把带 context 的远端查询适配为 GroupIDResolver。
type LookupFunc func(ctx context.Context, owner common.Address, name string) (*big.Int, error)

// GroupID 实现 GroupIDResolver。
func (f LookupFunc) GroupID(ctx context.Context, owner common.Address, name string) (*big.Int, error) {
	return f(ctx, owner, name)
}
