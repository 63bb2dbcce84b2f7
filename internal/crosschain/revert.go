package crosschain

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RevertReason decodes Error(string) and Panic(uint256) revert payloads. Data
// that matches neither is returned hex-encoded, and empty data yields "".
func RevertReason(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	return hexutil.Encode(data)
}
