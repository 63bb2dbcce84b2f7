// Package deployment reads and writes the per-network deployment record and
// resolves the full contract address set from it.
package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"MindPress-Market/internal/contracts"
	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Record 对应 {chainId}-deployment.json 的内容，字段名与部署脚本写出的一致。
type Record struct {
	DeployCommitID  string         `json:"DeployCommitId"`
	BlockNumber     uint64         `json:"BlockNumber"`
	Deployer        common.Address `json:"Deployer"`
	ProxyAdmin      common.Address `json:"ProxyAdmin"`
	Marketplace     common.Address `json:"Marketplace"`
	ImplMarketplace common.Address `json:"implMarketplace"`
}

// Hubs 是从市场合约 getter 读取到的远端合约地址。
type Hubs struct {
	CrossChain         common.Address
	GroupHub           common.Address
	BucketHub          common.Address
	PermissionHub      common.Address
	MultiMessage       common.Address
	GreenfieldExecutor common.Address
	GroupToken         common.Address
}

// HubReader 读取市场合约引用的远端合约地址。
type HubReader interface {
	Hubs(ctx context.Context, marketplace common.Address) (Hubs, error)
}

// Path 返回指定链的部署记录路径。
func Path(dir string, chainID *big.Int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-deployment.json", chainID.String()))
}

// Load 读取部署记录。
func Load(dir string, chainID *big.Int) (*Record, error) {
	if chainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "链 ID 为空")
	}
	path := Path(dir, chainID)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("链 %s 没有部署记录", chainID),
				xerrors.WithMetadata("path", path))
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取部署记录失败")
	}
	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析部署记录失败",
			xerrors.WithMetadata("path", path))
	}
	if rec.Marketplace == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "部署记录缺少 Marketplace 地址",
			xerrors.WithMetadata("path", path))
	}
	return &rec, nil
}

// Save 写入部署记录，先写临时文件再改名，避免留下半个文件。
func Save(dir string, chainID *big.Int, rec Record) error {
	if chainID == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "链 ID 为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建部署目录失败")
	}
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化部署记录失败")
	}
	path := Path(dir, chainID)
	tmp, err := os.CreateTemp(dir, ".deployment-*.json")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时文件失败")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(content, '\n')); err != nil {
		tmp.Close()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署记录失败")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署记录失败")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "替换部署记录失败")
	}
	return nil
}

// Resolve 通过市场合约的 getter 解析完整的地址集合。multicall 为空时使用标准 Multicall3 地址。
func Resolve(ctx context.Context, rec *Record, reader HubReader, multicall common.Address) (crosschain.Addresses, error) {
	if rec == nil {
		return crosschain.Addresses{}, xerrors.New(xerrors.CodeInvalidArgument, "部署记录为空")
	}
	hubs, err := reader.Hubs(ctx, rec.Marketplace)
	if err != nil {
		return crosschain.Addresses{}, err
	}
	if multicall == (common.Address{}) {
		multicall = contracts.Multicall3Address
	}
	return crosschain.Addresses{
		Marketplace:        rec.Marketplace,
		CrossChain:         hubs.CrossChain,
		GroupHub:           hubs.GroupHub,
		BucketHub:          hubs.BucketHub,
		PermissionHub:      hubs.PermissionHub,
		MultiMessage:       hubs.MultiMessage,
		GreenfieldExecutor: hubs.GreenfieldExecutor,
		GroupToken:         hubs.GroupToken,
		Multicall:          multicall,
	}, nil
}
