package connector

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// revertReason extracts the decoded Error(string)/Panic(uint256) payload a node
// attaches to a failed eth_call or eth_estimateGas. Empty when there is none.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason
		}
	}

	return ""
}

func decodeRevertData(data interface{}) (string, bool) {
	hexData, ok := data.(string)
	if !ok {
		return "", false
	}

	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}

	return reason, true
}
