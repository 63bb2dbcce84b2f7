package crosschain

import (
	"fmt"
	"math/big"

	"MindPress-Market/internal/contracts"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type encodeFunc func(ectx ExecutionContext, action Action, pricing Pricing) (EncodedCall, error)

// Encoder 把 Action 编码为目标地址、calldata 与需要附带的 value。
// 编码结果只取决于 Action、ExecutionContext 与 Pricing，同样的输入得到逐字节相同的输出。
type Encoder struct {
	table map[ActionKind]encodeFunc
}

// NewEncoder 构造带完整分派表的编码器。
func NewEncoder() *Encoder {
	return &Encoder{table: map[ActionKind]encodeFunc{
		KindCreateGroup:       encodeCreateGroup,
		KindCreatePolicy:      encodeCreatePolicy,
		KindListItem:          encodeListItem,
		KindDelistItem:        encodeDelistItem,
		KindGrantRole:         encodeGrantRole,
		KindSetApprovalForAll: encodeSetApprovalForAll,
		KindCreateSpace:       encodeCreateSpace,
	}}
}

// Encode 编码单个 Action。
func (e *Encoder) Encode(ectx ExecutionContext, action Action, pricing Pricing) (EncodedCall, error) {
	action = normalize(action)
	if action == nil {
		return EncodedCall{}, xerrors.New(CodeUnsupportedAction, "action 为空")
	}
	fn, ok := e.table[action.Kind()]
	if !ok {
		return EncodedCall{}, xerrors.Newf(CodeUnsupportedAction, "不支持的 action 类型: %s", action.Kind())
	}
	return fn(ectx, action, pricing)
}

// IsUint256 reports whether v is non-nil and fits an ABI uint256 without
// wrapping.
func IsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

// EncodeAll 按顺序编码一组 Action，任一失败立即返回。
func (e *Encoder) EncodeAll(ectx ExecutionContext, actions []Action, pricing Pricing) ([]EncodedCall, error) {
	calls := make([]EncodedCall, 0, len(actions))
	for i, action := range actions {
		call, err := e.Encode(ectx, action, pricing)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeOf(err), err, fmt.Sprintf("编码第 %d 个 action 失败", i))
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// normalize 允许调用方传入指针形式的变体。
func normalize(action Action) Action {
	switch a := action.(type) {
	case *CreateGroup:
		if a != nil {
			return *a
		}
	case *CreatePolicy:
		if a != nil {
			return *a
		}
	case *ListItem:
		if a != nil {
			return *a
		}
	case *DelistItem:
		if a != nil {
			return *a
		}
	case *GrantRole:
		if a != nil {
			return *a
		}
	case *SetApprovalForAll:
		if a != nil {
			return *a
		}
	case *CreateSpace:
		if a != nil {
			return *a
		}
	default:
		return action
	}
	return nil
}

func encodeCreateGroup(ectx ExecutionContext, action Action, pricing Pricing) (EncodedCall, error) {
	a := action.(CreateGroup)
	if a.Name == "" {
		return EncodedCall{}, missingField(a.Kind(), "name")
	}
	target, err := resolve(ectx, ContractGroupHub)
	if err != nil {
		return EncodedCall{}, err
	}
	extra, err := extraData(ectx, a.Callback)
	if err != nil {
		return EncodedCall{}, err
	}
	value, err := crossChainValue(pricing, a.Callback)
	if err != nil {
		return EncodedCall{}, err
	}
	sender := orDefault(a.Sender, ectx.Signer)
	owner := orDefault(a.Owner, ectx.Signer)
	if sender == (common.Address{}) || owner == (common.Address{}) {
		return EncodedCall{}, missingField(a.Kind(), "sender")
	}
	gasLimit := new(big.Int).SetUint64(a.Callback.GasLimit)
	return pack(a, contracts.GroupHub, "prepareCreateGroup", target, value, sender, owner, a.Name, gasLimit, extra)
}

func encodeCreatePolicy(ectx ExecutionContext, action Action, pricing Pricing) (EncodedCall, error) {
	a := action.(CreatePolicy)
	target, err := resolve(ectx, ContractPermissionHub)
	if err != nil {
		return EncodedCall{}, err
	}
	extra, err := extraData(ectx, a.Callback)
	if err != nil {
		return EncodedCall{}, err
	}
	value, err := crossChainValue(pricing, a.Callback)
	if err != nil {
		return EncodedCall{}, err
	}
	sender := orDefault(a.Sender, ectx.Signer)
	if sender == (common.Address{}) {
		return EncodedCall{}, missingField(a.Kind(), "sender")
	}
	data := a.Data
	if data == nil {
		data = []byte{}
	}
	return pack(a, contracts.PermissionHub, "prepareCreatePolicy", target, value, sender, data, extra)
}

func encodeListItem(ectx ExecutionContext, action Action, _ Pricing) (EncodedCall, error) {
	a := action.(ListItem)
	if a.GroupID == nil {
		return EncodedCall{}, missingField(a.Kind(), "group_id")
	}
	if a.Price == nil {
		return EncodedCall{}, missingField(a.Kind(), "price")
	}
	if !IsUint256(a.GroupID) || !IsUint256(a.Price) {
		return EncodedCall{}, xerrors.New(CodeEncodingError, "group_id 与 price 必须在 uint256 范围内")
	}
	target, err := resolve(ectx, ContractMarketplace)
	if err != nil {
		return EncodedCall{}, err
	}
	return pack(a, contracts.Marketplace, "list", target, new(big.Int), a.GroupID, a.Price)
}

func encodeDelistItem(ectx ExecutionContext, action Action, _ Pricing) (EncodedCall, error) {
	a := action.(DelistItem)
	if a.GroupID == nil {
		return EncodedCall{}, missingField(a.Kind(), "group_id")
	}
	if !IsUint256(a.GroupID) {
		return EncodedCall{}, xerrors.New(CodeEncodingError, "group_id 必须在 uint256 范围内")
	}
	target, err := resolve(ectx, ContractMarketplace)
	if err != nil {
		return EncodedCall{}, err
	}
	return pack(a, contracts.Marketplace, "delist", target, new(big.Int), a.GroupID)
}

func encodeGrantRole(ectx ExecutionContext, action Action, _ Pricing) (EncodedCall, error) {
	a := action.(GrantRole)
	if a.Role == (common.Hash{}) {
		return EncodedCall{}, missingField(a.Kind(), "role")
	}
	if a.Expiry.IsZero() {
		return EncodedCall{}, missingField(a.Kind(), "expiry")
	}
	target, err := resolve(ectx, ContractBucketHub)
	if err != nil {
		return EncodedCall{}, err
	}
	grantee, err := granteeOf(ectx, a)
	if err != nil {
		return EncodedCall{}, err
	}
	expiry := big.NewInt(a.Expiry.Unix())
	return pack(a, contracts.BucketHub, "grantRole", target, new(big.Int), a.Role, grantee, expiry)
}

func encodeSetApprovalForAll(ectx ExecutionContext, action Action, _ Pricing) (EncodedCall, error) {
	a := action.(SetApprovalForAll)
	target, err := resolve(ectx, ContractGroupToken)
	if err != nil {
		return EncodedCall{}, err
	}
	operator, err := operatorOf(ectx, a)
	if err != nil {
		return EncodedCall{}, err
	}
	return pack(a, contracts.ERC721, "setApprovalForAll", target, new(big.Int), operator, a.Approved)
}

func encodeCreateSpace(ectx ExecutionContext, action Action, pricing Pricing) (EncodedCall, error) {
	a := action.(CreateSpace)
	if a.Bucket.Name == "" {
		return EncodedCall{}, missingField(a.Kind(), "bucket.name")
	}
	target, err := resolve(ectx, ContractMarketplace)
	if err != nil {
		return EncodedCall{}, err
	}
	value, err := QuoteStepCost(pricing.Quote, true)
	if err != nil {
		return EncodedCall{}, err
	}
	bucket := a.Bucket
	bucket.Creator = orDefault(bucket.Creator, ectx.Signer)
	if bucket.Creator == (common.Address{}) {
		return EncodedCall{}, missingField(a.Kind(), "bucket.creator")
	}
	if bucket.PrimarySpApprovalExpiredHeight == nil {
		bucket.PrimarySpApprovalExpiredHeight = new(big.Int)
	}
	if bucket.PrimarySpSignature == nil {
		bucket.PrimarySpSignature = []byte{}
	}
	if bucket.ExtraData == nil {
		bucket.ExtraData = []byte{}
	}
	return pack(a, contracts.Marketplace, "createSpace", target, value, bucket, a.FlowRateLimit)
}

// granteeOf 返回 GrantRole 的实际被授权地址，编码器与守卫共用。
func granteeOf(ectx ExecutionContext, a GrantRole) (common.Address, error) {
	if a.Grantee != (common.Address{}) {
		return a.Grantee, nil
	}
	return resolve(ectx, ContractMarketplace)
}

// operatorOf 返回 SetApprovalForAll 的实际操作员地址，编码器与守卫共用。
func operatorOf(ectx ExecutionContext, a SetApprovalForAll) (common.Address, error) {
	if a.Operator != (common.Address{}) {
		return a.Operator, nil
	}
	return resolve(ectx, ContractMarketplace)
}

func resolve(ectx ExecutionContext, role ContractRole) (common.Address, error) {
	addr, ok := ectx.Addresses.Resolve(role)
	if !ok {
		return common.Address{}, xerrors.New(CodeEncodingError, fmt.Sprintf("合约地址未解析: %s", role),
			xerrors.WithMetadata("contract", string(role)))
	}
	return addr, nil
}

func extraData(ectx ExecutionContext, spec CallbackSpec) (contracts.ExtraData, error) {
	if !spec.FailureStrategy.Valid() {
		return contracts.ExtraData{}, xerrors.Newf(CodeEncodingError, "无效的失败处理策略: %d", uint8(spec.FailureStrategy))
	}
	app := spec.AppAddress
	if app == (common.Address{}) {
		resolved, err := resolve(ectx, ContractMarketplace)
		if err != nil {
			return contracts.ExtraData{}, err
		}
		app = resolved
	}
	refund := orDefault(spec.RefundAddress, ectx.Signer)
	if refund == (common.Address{}) {
		return contracts.ExtraData{}, xerrors.New(CodeEncodingError, "回调退款地址缺失")
	}
	data := spec.CallbackData
	if data == nil {
		data = []byte{}
	}
	return contracts.ExtraData{
		AppAddress:            app,
		RefundAddress:         refund,
		FailureHandleStrategy: uint8(spec.FailureStrategy),
		CallbackData:          data,
	}, nil
}

// crossChainValue 计算一个带回调的往返步骤需要附带的 value。
func crossChainValue(pricing Pricing, spec CallbackSpec) (*big.Int, error) {
	if spec.GasPrice == nil {
		spec.GasPrice = pricing.CallbackGasPrice
	}
	callbackFee, err := QuoteCallbackFee(spec)
	if err != nil {
		return nil, err
	}
	return QuoteBatchCost([]StepCost{{Quote: pricing.Quote, RoundTrip: true, CallbackFee: callbackFee}})
}

func pack(action Action, parsed abi.ABI, method string, target common.Address, value *big.Int, args ...interface{}) (EncodedCall, error) {
	payload, err := parsed.Pack(method, args...)
	if err != nil {
		return EncodedCall{}, xerrors.Wrap(CodeEncodingError, err, fmt.Sprintf("编码 %s 失败", method))
	}
	return EncodedCall{
		kind:         action.Kind(),
		method:       parsed.Methods[method].Sig,
		target:       target,
		value:        value,
		payload:      payload,
		allowFailure: action.options().AllowFailure,
	}, nil
}

func missingField(kind ActionKind, field string) error {
	return xerrors.New(CodeEncodingError, fmt.Sprintf("%s 缺少必填字段 %s", kind, field),
		xerrors.WithMetadata("field", field))
}

func orDefault(addr, fallback common.Address) common.Address {
	if addr == (common.Address{}) {
		return fallback
	}
	return addr
}
