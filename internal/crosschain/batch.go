package crosschain

import (
	"math/big"

	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodedCall 是编码器的产物，构造后不可修改，所有访问器都返回副本。
type EncodedCall struct {
	kind         ActionKind
	method       string
	target       common.Address
	value        *big.Int
	payload      []byte
	allowFailure bool
}

// NewEncodedCall 直接构造一个调用，主要供不经过编码器的调用方使用。
func NewEncodedCall(target common.Address, value *big.Int, payload []byte, allowFailure bool) EncodedCall {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return EncodedCall{
		target:       target,
		value:        v,
		payload:      common.CopyBytes(payload),
		allowFailure: allowFailure,
	}
}

func (c EncodedCall) Kind() ActionKind       { return c.kind }
func (c EncodedCall) Method() string         { return c.method }
func (c EncodedCall) Target() common.Address { return c.target }
func (c EncodedCall) AllowFailure() bool     { return c.allowFailure }

// Value 返回需要附带的原生币数量。
func (c EncodedCall) Value() *big.Int {
	if c.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.value)
}

// Payload 返回 calldata 副本。
func (c EncodedCall) Payload() []byte {
	return common.CopyBytes(c.payload)
}

// Digest 返回 calldata 的 keccak256，用于日志与错误上下文。
func (c EncodedCall) Digest() common.Hash {
	return crypto.Keccak256Hash(c.payload)
}

// Batch 是一次提交的有序调用集合。
type Batch struct {
	calls []EncodedCall
	total *big.Int
}

// Assemble 按输入顺序打包调用，并精确累加 value。
func Assemble(calls []EncodedCall) (Batch, error) {
	if len(calls) == 0 {
		return Batch{}, xerrors.New(CodeEmptyBatch, "批次中没有任何调用")
	}
	total := new(big.Int)
	members := make([]EncodedCall, len(calls))
	for i, call := range calls {
		value := call.Value()
		if value.Sign() < 0 {
			return Batch{}, xerrors.New(CodeInvalidQuote, "调用的 value 不能为负数")
		}
		total.Add(total, value)
		members[i] = call
	}
	return Batch{calls: members, total: total}, nil
}

// Len 返回调用数量。
func (b Batch) Len() int { return len(b.calls) }

// Calls 返回调用列表副本。
func (b Batch) Calls() []EncodedCall {
	out := make([]EncodedCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// TotalValue 返回整批需要附带的 value。
func (b Batch) TotalValue() *big.Int {
	if b.total == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.total)
}

// Targets 返回按顺序排列的目标地址。
func (b Batch) Targets() []common.Address {
	out := make([]common.Address, len(b.calls))
	for i, call := range b.calls {
		out[i] = call.Target()
	}
	return out
}

// Payloads 返回按顺序排列的 calldata。
func (b Batch) Payloads() [][]byte {
	out := make([][]byte, len(b.calls))
	for i, call := range b.calls {
		out[i] = call.Payload()
	}
	return out
}

// Values 返回按顺序排列的 value。
func (b Batch) Values() []*big.Int {
	out := make([]*big.Int, len(b.calls))
	for i, call := range b.calls {
		out[i] = call.Value()
	}
	return out
}

// Digest 返回按顺序拼接的调用摘要的 keccak256。
func (b Batch) Digest() common.Hash {
	parts := make([][]byte, 0, len(b.calls))
	for _, call := range b.calls {
		digest := call.Digest()
		parts = append(parts, digest.Bytes())
	}
	return crypto.Keccak256Hash(parts...)
}
