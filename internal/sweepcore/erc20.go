package sweepcore

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ERC-20 function selectors.
var (
	transferSelector  = common.FromHex("0xa9059cbb") // transfer(address,uint256)
	balanceOfSelector = common.FromHex("0x70a08231") // balanceOf(address)
	symbolSelector    = common.FromHex("0x95d89b41") // symbol()
	decimalsSelector  = common.FromHex("0x313ce567") // decimals()
)

// EncodeERC20Transfer builds transfer(to, amount) calldata.
func EncodeERC20Transfer(to common.Address, amount *big.Int) []byte {
	arg1 := common.LeftPadBytes(to.Bytes(), 32)
	arg2 := common.LeftPadBytes(amount.Bytes(), 32)
	return append(append([]byte{}, transferSelector...), append(arg1, arg2...)...)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// callWithRetry performs eth_call with small exponential backoff.
func callWithRetry(ctx context.Context, eth Backend, msg ethereum.CallMsg) ([]byte, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ret, err := eth.CallContract(ctx, msg, nil)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

// decodeABIString decodes a single ABI-encoded string return value.
// Falls back to trimming zero bytes for non-standard tokens that return
// a fixed bytes32.
func decodeABIString(ret []byte) string {
	// Offset and length words come from the node; bound them against
	// len(ret) before any arithmetic so a hostile payload cannot overflow.
	if len(ret) >= 64 {
		off := new(big.Int).SetBytes(ret[:32])
		if off.IsUint64() && off.Uint64() <= uint64(len(ret))-32 {
			o := off.Uint64()
			l := new(big.Int).SetBytes(ret[o : o+32])
			if l.IsUint64() && l.Uint64() <= uint64(len(ret))-o-32 {
				return string(ret[o+32 : o+32+l.Uint64()])
			}
		}
	}
	return strings.TrimRight(string(ret), "\x00")
}
