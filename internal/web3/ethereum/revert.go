package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"
)

// rejectionHints are node error fragments meaning the transaction itself is
// unacceptable, as opposed to the node being unreachable.
var rejectionHints = []string{
	"execution reverted",
	"insufficient funds",
	"nonce too low",
	"replacement transaction underpriced",
	"intrinsic gas too low",
	"gas required exceeds allowance",
	"invalid opcode",
}

// IsRevert reports whether err was produced by the EVM rejecting a call.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rejectionHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// RevertData extracts the raw revert payload carried by a JSON-RPC error.
func RevertData(err error) []byte {
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return nil
		}
		return decoded
	case []byte:
		return data
	default:
		return nil
	}
}

// classify maps a node error onto the cross-chain error taxonomy.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return xerrors.Wrap(crosschain.CodeNetworkUnavailable, err, fmt.Sprintf("%s: 熔断器已打开", message))
	}
	if IsRevert(err) {
		reason := crosschain.RevertReason(RevertData(err))
		if reason == "" {
			reason = err.Error()
		}
		return xerrors.Wrap(crosschain.CodeSubmissionRejected, err, message,
			xerrors.WithMetadata(crosschain.MetaRevertReason, reason))
	}
	return xerrors.Wrap(crosschain.CodeNetworkUnavailable, err, message)
}
