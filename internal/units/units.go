// Package units converts between human entered decimal amounts and the
// fixed-point integers used on chain, and formats amounts for display.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the scale of native currency and of the fraction token.
const Decimals int32 = 18

var (
	ErrInvalidAmount   = errors.New("invalid decimal amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrTooManyDecimals = errors.New("amount has more fractional digits than supported")
	ErrOutOfRange      = errors.New("amount does not fit in 256 bits")
)

// MaxUint256 is the largest fixed-point value a contract argument can hold.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// maxUint256Digits is the decimal length of MaxUint256.
const maxUint256Digits = 78

// ParseDecimal parses a plain decimal string such as "0.01" or "1000".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w %q: %v", ErrInvalidAmount, s, err)
	}

	return d, nil
}

// ToFixedPoint converts a human decimal string into an integer scaled by 10^decimals.
// The conversion is exact; input with more than decimals fractional digits is rejected
// rather than rounded.
func ToFixedPoint(s string, decimals int32) (*big.Int, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return nil, err
	}

	return DecimalToFixedPoint(d, decimals)
}

// DecimalToFixedPoint is ToFixedPoint for an already parsed value.
func DecimalToFixedPoint(d decimal.Decimal, decimals int32) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, d.String())
	}

	if d.IsZero() {
		return new(big.Int), nil
	}

	// value = coefficient * 10^exp with a coefficient of NumDigits digits, so
	// the magnitude is bounded before any big power of ten is built.
	shifted := d.Shift(decimals)
	digits := int64(shifted.NumDigits())
	exp := int64(shifted.Exponent())
	if digits+exp > maxUint256Digits {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	if (exp < 0 && -exp >= digits) || !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s exceeds %d decimals", ErrTooManyDecimals, d.String(), decimals)
	}

	v := shifted.BigInt()
	if v.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}

	return v, nil
}

// FromFixedPoint renders a fixed-point integer as the shortest exact decimal string.
func FromFixedPoint(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}

	return decimal.NewFromBigInt(v, -decimals).String()
}

// ToEther and FromEther use the 18 decimal native scale.
func ToEther(s string) (*big.Int, error) {
	return ToFixedPoint(s, Decimals)
}

func FromEther(v *big.Int) string {
	return FromFixedPoint(v, Decimals)
}
