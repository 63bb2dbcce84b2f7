package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"MindPress-Market/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
	Notes   string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   web3.Backend
	chainID   *big.Int
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
	}
	if cfg.ChainID > 0 {
		client.chainID = big.NewInt(cfg.ChainID)
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, backend *backends.SimulatedBackend) *Client {
	return &Client{
		name:    name,
		backend: backend,
		notes:   "simulated backend",
	}
}

// Name returns the registry name of the chain.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Backend exposes the node connection for contract bindings.
func (c *Client) Backend() web3.Backend {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend
}

// ChainID returns the chain id, querying the node once and caching the answer.
// A chain id declared in configuration is verified against the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	backend := c.Backend()
	if backend == nil {
		return nil, errors.New("客户端缺少链访问后端")
	}

	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()

	id, err := backend.ChainID(ctx)
	if err != nil {
		if cached != nil {
			return new(big.Int).Set(cached), nil
		}
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if cached != nil && cached.Cmp(id) != 0 {
		return nil, fmt.Errorf("节点链 ID %s 与配置的 %s 不一致", id, cached)
	}

	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	header, err := c.Backend().HeaderByNumber(ctx, nil)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     id.String(),
		BlockNumber: header.Number.Uint64(),
		Notes:       c.notes,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.backend = nil
}

// commitIfSimulated mines a block when running against the simulated backend,
// which otherwise never includes pending transactions.
func commitIfSimulated(backend web3.Backend) {
	if sim, ok := backend.(*backends.SimulatedBackend); ok {
		sim.Commit()
	}
}
