package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"MindPress-Market/internal/config"
	"MindPress-Market/internal/web3"
	"MindPress-Market/internal/web3/ethereum"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]web3.Client)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:    name,
				RPCURL:  chain.RPCURL,
				ChainID: chain.ChainID,
				Notes:   chain.Description,
			})
			if err != nil {
				closeAll(clients)
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	return NewStaticRegistry(cfg.DefaultChain, clients)
}

// NewStaticRegistry wraps already constructed clients.
func NewStaticRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	if defaultChain == "" {
		names := sortedNames(clients)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		closeAll(clients)
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name. An empty name selects
// the default chain.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	if name == "" {
		name = r.defaultChain
	}
	client, ok := r.clients[name]
	return client, ok
}

// Snapshots collects a ChainSnapshot from every registered chain. Chains that
// fail to answer are reported in the joined error and skipped.
func (r *Registry) Snapshots(ctx context.Context) ([]web3.ChainSnapshot, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	var (
		out  []web3.ChainSnapshot
		errs error
	)
	for _, name := range sortedNames(r.clients) {
		snapshot, err := r.clients[name].FetchChainSnapshot(ctx)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("链 %s: %w", name, err))
			continue
		}
		out = append(out, snapshot)
	}
	return out, errs
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeAll(r.clients)
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.clients)
}

func sortedNames(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func closeAll(clients map[string]web3.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}
