package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/akshaysangma/irec-fractionalizer/internal/units"
	"github.com/shopspring/decimal"
)

// TransferRestriction limits who may hold fractions.
type TransferRestriction string

const (
	RestrictionNone       TransferRestriction = "none"
	RestrictionKYC        TransferRestriction = "kyc"
	RestrictionAccredited TransferRestriction = "accredited"
	RestrictionWhitelist  TransferRestriction = "whitelist"
)

func (r TransferRestriction) Valid() bool {
	switch r {
	case RestrictionNone, RestrictionKYC, RestrictionAccredited, RestrictionWhitelist:
		return true
	}
	return false
}

const (
	maxSymbolLength      = 5
	maxPriceDecimals     = 18
	maxRoyaltyPercent    = 10
	maxTradingFeePercent = 5
)

// TokenizationRequest describes how one certificate is split into priced fractions
type TokenizationRequest struct {
	CertificateID         string              `json:"certificate_id"`
	TokenName             string              `json:"token_name"`
	TokenSymbol           string              `json:"token_symbol"`
	TokenDescription      string              `json:"token_description"`
	FractionCount         int64               `json:"fraction_count"`
	FractionPrice         decimal.Decimal     `json:"fraction_price"`
	MinPurchaseAmount     int64               `json:"min_purchase_amount"`
	RoyaltyPercentage     decimal.Decimal     `json:"royalty_percentage"`
	TradingFeePercentage  decimal.Decimal     `json:"trading_fee_percentage"`
	TransferRestriction   TransferRestriction `json:"transfer_restriction"`
	AllowSecondaryTrading bool                `json:"allow_secondary_trading"`
}

// ValidationError lists every rejected field with a reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}

	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate checks the request before any chain call. The returned error is a
// *ValidationError when one or more fields are rejected.
func (r *TokenizationRequest) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(r.CertificateID) == "" {
		fields["certificate_id"] = "Please select a certificate"
	}

	if strings.TrimSpace(r.TokenName) == "" {
		fields["token_name"] = "Token name is required"
	}
	switch {
	case strings.TrimSpace(r.TokenSymbol) == "":
		fields["token_symbol"] = "Token symbol is required"
	case len(r.TokenSymbol) > maxSymbolLength:
		fields["token_symbol"] = fmt.Sprintf("Symbol should be %d characters or less", maxSymbolLength)
	}

	if r.FractionCount <= 0 {
		fields["fraction_count"] = "Must have at least one fraction"
	}

	switch {
	case !r.FractionPrice.IsPositive():
		fields["fraction_price"] = "Price must be greater than zero"
	default:
		_, err := units.DecimalToFixedPoint(r.FractionPrice, maxPriceDecimals)
		switch {
		case errors.Is(err, units.ErrOutOfRange):
			fields["fraction_price"] = "Price does not fit in a uint256 on chain"
		case err != nil:
			fields["fraction_price"] = fmt.Sprintf("Price supports at most %d decimals", maxPriceDecimals)
		}
	}

	switch {
	case r.MinPurchaseAmount <= 0:
		fields["min_purchase_amount"] = "Minimum purchase must be greater than zero"
	case r.FractionCount > 0 && r.MinPurchaseAmount > r.FractionCount:
		fields["min_purchase_amount"] = "Minimum purchase cannot exceed total fractions"
	}

	if !inRange(r.RoyaltyPercentage, maxRoyaltyPercent) {
		fields["royalty_percentage"] = fmt.Sprintf("Royalty must be between 0 and %d", maxRoyaltyPercent)
	}
	if !inRange(r.TradingFeePercentage, maxTradingFeePercent) {
		fields["trading_fee_percentage"] = fmt.Sprintf("Trading fee must be between 0 and %d", maxTradingFeePercent)
	}

	if r.TransferRestriction == "" {
		r.TransferRestriction = RestrictionNone
	}
	if !r.TransferRestriction.Valid() {
		fields["transfer_restriction"] = "Unknown transfer restriction"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	return nil
}

// inRange bounds the magnitude from the digit count first so that a value like
// 1e999999999 is never rescaled to compare against limit.
func inRange(d decimal.Decimal, limit int64) bool {
	if d.IsNegative() {
		return false
	}

	magnitude := int64(d.NumDigits()) + int64(d.Exponent())
	switch {
	case d.IsZero() || magnitude <= 0:
		return true
	case magnitude > int64(len(strconv.FormatInt(limit, 10))):
		return false
	}

	return d.LessThanOrEqual(decimal.NewFromInt(limit))
}

// AsValidationError reports whether err carries field errors.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	ok := errors.As(err, &verr)
	return verr, ok
}
