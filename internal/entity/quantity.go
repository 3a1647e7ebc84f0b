package entity

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ToDecimal normalizes heterogeneous numeric representations into a decimal.
// Numbers, numeric strings and *big.Int values convert directly; nil,
// malformed strings and non-finite floats all resolve to zero.
func ToDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		if x != x || x > 1e308 || x < -1e308 {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case float32:
		return ToDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case uint64:
		return decimal.NewFromUint64(x)
	case *big.Int:
		if x == nil {
			return decimal.Zero
		}
		return decimal.NewFromBigInt(x, 0)
	default:
		return decimal.Zero
	}
}

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatMagnitude renders a quantity as a short human-readable magnitude:
// "0", "1.23K", "45.00M", or four decimal places below a thousand.
func FormatMagnitude(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	abs := d.Abs()
	if abs.GreaterThanOrEqual(million) {
		return d.Div(million).StringFixed(2) + "M"
	}
	if abs.GreaterThanOrEqual(thousand) {
		return d.Div(thousand).StringFixed(2) + "K"
	}
	return d.StringFixed(4)
}

// ParseAmount converts a grouped decimal amount string (dots as grouping
// separators, e.g. "1.234.567") into integer asset units scaled by the
// asset's decimal count. Malformed input yields zero rather than an error.
func ParseAmount(s string, decimals int) *big.Int {
	raw := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	if raw == "" || !isDigits(raw) {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return new(big.Int)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return n.Mul(n, scale)
}

// ParseUnits converts a plain decimal amount string (e.g. "1.5") into
// integer asset units scaled by decimals, truncating excess fractional
// digits. Malformed or negative input yields zero.
func ParseUnits(s string, decimals int) *big.Int {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.Sign() < 0 {
		return new(big.Int)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// ParseShares parses a share count as a strict non-negative integer string.
// Any non-digit input yields zero, which callers reject instead of erroring.
func ParseShares(s string) *big.Int {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !isDigits(trimmed) {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// ParseDays leniently extracts a day count from input like "7 Days".
// Non-numeric or non-positive input becomes zero; callers must treat a
// zero-day window as unsubmittable.
func ParseDays(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return 0
	}
	n := int(d.IntPart())
	if n <= 0 {
		return 0
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
