package deployment

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"MindPress-Market/internal/contracts"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

type stubReader struct {
	hubs Hubs
	seen common.Address
}

func (s *stubReader) Hubs(_ context.Context, marketplace common.Address) (Hubs, error) {
	s.seen = marketplace
	return s.hubs, nil
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chainID := big.NewInt(5611)
	rec := Record{
		DeployCommitID:  "abc123",
		BlockNumber:     42,
		Deployer:        common.HexToAddress("0x01"),
		ProxyAdmin:      common.HexToAddress("0x02"),
		Marketplace:     common.HexToAddress("0x03"),
		ImplMarketplace: common.HexToAddress("0x04"),
	}
	if err := Save(dir, chainID, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "5611-deployment.json")); err != nil {
		t.Fatalf("record not written where expected: %v", err)
	}
	loaded, err := Load(dir, chainID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *loaded != rec {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadReadsScriptFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `{
  "DeployCommitId": "f00d",
  "BlockNumber": 7,
  "Deployer": "0x0000000000000000000000000000000000000001",
  "ProxyAdmin": "0x0000000000000000000000000000000000000002",
  "Marketplace": "0x0000000000000000000000000000000000000003",
  "implMarketplace": "0x0000000000000000000000000000000000000004"
}`
	if err := os.WriteFile(filepath.Join(dir, "97-deployment.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := Load(dir, big.NewInt(97))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.ImplMarketplace != common.HexToAddress("0x04") || rec.DeployCommitID != "f00d" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir(), big.NewInt(1))
	if xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	reader := &stubReader{hubs: Hubs{
		CrossChain: common.HexToAddress("0x11"),
		GroupHub:   common.HexToAddress("0x12"),
		GroupToken: common.HexToAddress("0x17"),
	}}
	rec := &Record{Marketplace: common.HexToAddress("0x03")}
	addrs, err := Resolve(context.Background(), rec, reader, common.Address{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if reader.seen != rec.Marketplace {
		t.Fatal("hubs must be read from the recorded marketplace")
	}
	if addrs.Multicall != contracts.Multicall3Address {
		t.Fatalf("expected canonical multicall, got %s", addrs.Multicall.Hex())
	}
	if addrs.GroupHub != common.HexToAddress("0x12") || addrs.Marketplace != rec.Marketplace {
		t.Fatalf("unexpected addresses %+v", addrs)
	}
}
