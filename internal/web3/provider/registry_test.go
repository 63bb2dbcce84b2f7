package provider

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"MindPress-Market/internal/web3"
)

type stubClient struct {
	name   string
	err    error
	closed bool
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s *stubClient) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	if s.err != nil {
		return web3.ChainSnapshot{}, s.err
	}
	return web3.ChainSnapshot{Name: s.name, ChainID: "1", BlockNumber: 9}, nil
}

func (s *stubClient) Backend() web3.Backend { return nil }

func (s *stubClient) Close() { s.closed = true }

func TestStaticRegistryDefaults(t *testing.T) {
	t.Parallel()

	bsc := &stubClient{name: "bsc"}
	opbnb := &stubClient{name: "opbnb"}
	reg, err := NewStaticRegistry("", map[string]web3.Client{"opbnb": opbnb, "bsc": bsc})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	client, err := reg.DefaultClient()
	if err != nil {
		t.Fatalf("default client: %v", err)
	}
	if client.Name() != "bsc" {
		t.Fatalf("default should be first by name, got %s", client.Name())
	}
	if got, ok := reg.Client(""); !ok || got.Name() != "bsc" {
		t.Fatal("empty name should select the default chain")
	}
	if names := reg.Chains(); len(names) != 2 || names[1] != "opbnb" {
		t.Fatalf("unexpected chains %v", names)
	}

	reg.Close()
	if !bsc.closed || !opbnb.closed {
		t.Fatal("close must release every client")
	}
}

func TestStaticRegistryUnknownDefault(t *testing.T) {
	t.Parallel()

	client := &stubClient{name: "bsc"}
	if _, err := NewStaticRegistry("eth", map[string]web3.Client{"bsc": client}); err == nil {
		t.Fatal("expected error for unknown default chain")
	}
	if !client.closed {
		t.Fatal("clients must be released when construction fails")
	}
	if _, err := NewStaticRegistry("", nil); err == nil {
		t.Fatal("expected error for empty registry")
	}
}

func TestSnapshotsSkipFailingChains(t *testing.T) {
	t.Parallel()

	reg, err := NewStaticRegistry("bsc", map[string]web3.Client{
		"bsc":  &stubClient{name: "bsc"},
		"down": &stubClient{name: "down", err: errors.New("dial tcp: refused")},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	snapshots, err := reg.Snapshots(context.Background())
	if err == nil {
		t.Fatal("expected joined error for the failing chain")
	}
	if len(snapshots) != 1 || snapshots[0].Name != "bsc" {
		t.Fatalf("unexpected snapshots %+v", snapshots)
	}
}
