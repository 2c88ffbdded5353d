package sweepcore

import (
	"math/big"
	"strings"
)

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// FormatTokenAmount renders a raw token amount divided by 10^18 with the
// given number of fractional digits. The divisor is fixed regardless of the
// token's actual decimals() value.
func FormatTokenAmount(amount *big.Int, precision int) string {
	return formatScaled(amount, precision)
}

// FormatEthAmount renders wei as whole ether with the given number of
// fractional digits.
func FormatEthAmount(wei *big.Int, precision int) string {
	return formatScaled(wei, precision)
}

func formatScaled(amount *big.Int, precision int) string {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if precision < 0 {
		precision = 8
	}
	formatted := new(big.Rat).SetFrac(new(big.Int).Set(amount), weiPerEther).FloatString(precision)
	// Trailing zeros are stripped only when the fraction is exactly eight
	// zeros, whatever precision was asked for.
	if strings.Contains(formatted, ".") && strings.HasSuffix(formatted, ".00000000") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	return formatted
}
