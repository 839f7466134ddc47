package units

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// FormatTokenAmount renders an 18 decimal amount with a fixed number of places,
// truncating the remaining digits.
func FormatTokenAmount(v *big.Int, places int32) string {
	if v == nil {
		v = new(big.Int)
	}

	return decimal.NewFromBigInt(v, -Decimals).Truncate(places).StringFixed(places)
}

// FormatPercentage renders basis points as a percentage with two places: 1234 -> "12.34".
func FormatPercentage(basisPoints *big.Int) string {
	if basisPoints == nil {
		basisPoints = new(big.Int)
	}

	return decimal.NewFromBigInt(basisPoints, -2).StringFixed(2)
}

// ShortAddress abbreviates a hex address to 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}

	return addr[:6] + "..." + addr[len(addr)-4:]
}

// FormatTimestamp renders seconds since epoch in RFC 3339, UTC.
func FormatTimestamp(seconds uint64) string {
	return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
}
