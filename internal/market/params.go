package market

import (
	"fmt"
	"math/big"
	"strings"

	"MindPress-Market/internal/contracts"
	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ListObjectParams 描述一次对象上架请求。Price 以 BNB 计的十进制字符串表示。
type ListObjectParams struct {
	ObjectID   *big.Int       `json:"object_id"`
	BucketID   *big.Int       `json:"bucket_id"`
	Price      string         `json:"price"`
	Owner      common.Address `json:"owner,omitempty"`
	PolicyData hexutil.Bytes  `json:"policy_data,omitempty"`
	// FailureStrategy 为空时使用规划器的默认值。
	FailureStrategy string `json:"failure_strategy,omitempty"`
	CallbackGas     uint64 `json:"callback_gas_limit,omitempty"`
}

// PriceWei 解析上架价格。
func (p ListObjectParams) PriceWei() (*big.Int, error) {
	price, err := contracts.ParseEther(strings.TrimSpace(p.Price))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("无法解析价格 %q", p.Price))
	}
	if price.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "价格不能为负数")
	}
	if !crosschain.IsUint256(price) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "价格超出 uint256 范围")
	}
	return price, nil
}

// Validate 检查必填字段。
func (p ListObjectParams) Validate() error {
	if err := checkUint256("object_id", p.ObjectID); err != nil {
		return err
	}
	if err := checkUint256("bucket_id", p.BucketID); err != nil {
		return err
	}
	_, err := p.PriceWei()
	return err
}

// Bucket visibility values understood by the storage chain.
const (
	VisibilityUnspecified uint8 = 0
	VisibilityPublicRead  uint8 = 1
	VisibilityPrivate     uint8 = 2
	VisibilityInherit     uint8 = 3
)

// CreateSpaceParams 描述一次存储空间创建请求。
type CreateSpaceParams struct {
	BucketName       string         `json:"bucket_name"`
	Visibility       *uint8         `json:"visibility,omitempty"`
	PrimarySP        common.Address `json:"primary_sp,omitempty"`
	ChargedReadQuota uint64         `json:"charged_read_quota,omitempty"`
	FlowRateLimit    string         `json:"flow_rate_limit,omitempty"`
}

// Validate 检查桶名称与可见性。
func (p CreateSpaceParams) Validate() error {
	name := strings.TrimSpace(p.BucketName)
	if len(name) < 3 || len(name) > 63 {
		return xerrors.New(xerrors.CodeInvalidArgument, "bucket_name 长度必须在 3 到 63 之间")
	}
	if p.Visibility != nil && *p.Visibility > VisibilityInherit {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "未知的可见性取值 %d", *p.Visibility)
	}
	return nil
}

func (p CreateSpaceParams) visibility() uint8 {
	if p.Visibility == nil {
		return VisibilityPrivate
	}
	return *p.Visibility
}

// DelistParams 描述一次下架请求。
type DelistParams struct {
	GroupID *big.Int `json:"group_id"`
}

// Validate 检查分组 ID。
func (p DelistParams) Validate() error {
	return checkUint256("group_id", p.GroupID)
}

// checkUint256 拒绝缺失、为负或超过 uint256 的 ID，避免编码时被截断。
func checkUint256(field string, v *big.Int) error {
	if !crosschain.IsUint256(v) {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "%s 缺失、为负数或超出 uint256 范围", field)
	}
	return nil
}
