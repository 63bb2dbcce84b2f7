package web3

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint. RPCURL may reference
// environment variables, e.g. https://bsc.example/${RPC_KEY}, so provider
// keys stay out of the file.
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	ChainID     int64  `yaml:"chain_id"`
	Explorer    string `yaml:"explorer"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML chain file. Unknown keys are rejected
// so typos such as rpc-url fail at startup instead of dialing nothing.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, chain := range defs.Chains {
		chain.RPCURL = strings.TrimSpace(os.ExpandEnv(chain.RPCURL))
		if chain.RPCURL == "" {
			return ChainDefinitions{}, fmt.Errorf("链 %s 缺少 rpc_url", name)
		}
		if chain.ChainID < 0 {
			return ChainDefinitions{}, fmt.Errorf("链 %s 的 chain_id 不能为负数", name)
		}
		defs.Chains[name] = chain
	}
	return defs, nil
}
