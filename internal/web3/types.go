package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Backend is the subset of an EVM node the marketplace tooling needs: calls,
// transactions, receipts and balances.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can interact with different networks uniformly.
type Client interface {
	Name() string
	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Backend() Backend
	Close()
}
