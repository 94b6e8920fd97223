package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatAmount renders a smallest-unit amount as a decimal string using the
// asset's decimal count, e.g. FormatAmount(1500000, 6) == "1.5".
func FormatAmount(amount uint64, decimals int32) string {
	return decimal.NewFromUint64(amount).Shift(-decimals).String()
}

// ParseAmount converts a decimal string into a smallest-unit amount. It
// rejects negative values and values with more fractional digits than the
// asset carries.
func ParseAmount(value string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", value)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", value, decimals)
	}
	if !shifted.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %q overflows uint64 at %d decimals", value, decimals)
	}
	return shifted.BigInt().Uint64(), nil
}
