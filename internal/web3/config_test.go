package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `chains:
  opbnb-testnet:
    type: evm
    rpc_url: https://opbnb-testnet-rpc.bnbchain.org
    chain_id: 5611
    description: opBNB testnet
  bsc-testnet:
    rpc_url: https://data-seed-prebsc-1-s1.binance.org:8545
    chain_id: 97
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write chains: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(defs.Chains))
	}
	opbnb := defs.Chains["opbnb-testnet"]
	if opbnb.ChainID != 5611 || opbnb.Type != "evm" {
		t.Fatalf("unexpected opbnb definition %+v", opbnb)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	t.Parallel()

	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty chain map, got %+v", defs.Chains)
	}
}

func TestLoadChainDefinitionsExpandsEnv(t *testing.T) {
	t.Setenv("MARKET_TEST_RPC_KEY", "abc123")

	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  bsc:
    rpc_url: https://bsc.example/${MARKET_TEST_RPC_KEY}
    chain_id: 56
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write chains: %v", err)
	}
	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := defs.Chains["bsc"].RPCURL; got != "https://bsc.example/abc123" {
		t.Fatalf("rpc url not expanded: %q", got)
	}
}

func TestLoadChainDefinitionsRejectsBadEntries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown key": "chains:\n  bsc:\n    rpc-url: https://bsc.example\n",
		"missing url": "chains:\n  bsc:\n    chain_id: 56\n",
		"negative id": "chains:\n  bsc:\n    rpc_url: https://bsc.example\n    chain_id: -1\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "chains.yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("%s: write chains: %v", name, err)
		}
		if _, err := LoadChainDefinitions(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
