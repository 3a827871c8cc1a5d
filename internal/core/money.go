package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept on ledger amounts.
const AmountPlaces = 2

// ParseAmount converts a user supplied amount into a positive decimal
// rounded half-up to two places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Signs, exponents, thousands separators and anything that rounds to zero
// are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("0.004")  -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount for fields where blank or zero
// means "none": both return a zero amount without error. Malformed and
// signed input is still rejected.
func ParseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return parseUnsigned(s)
}

func parseUnsigned(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalidAmount("amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, invalidAmount("malformed amount")
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, invalidAmount("malformed amount")
		}
	}
	if s == "." {
		return decimal.Zero, invalidAmount("malformed amount")
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidAmount("malformed amount")
	}
	return d.Round(AmountPlaces), nil
}

// ValidateAmount checks an already parsed amount is strictly positive.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return invalidAmount("amount must be greater than zero")
	}
	return nil
}

// FormatAmount renders a ledger amount with two fixed decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}

func invalidAmount(msg string) error {
	return &ValidationError{Field: "amount", Msg: msg, Err: ErrInvalidAmount}
}
