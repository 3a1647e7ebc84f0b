package entity

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToDecimal(t *testing.T) {
	assert.True(t, ToDecimal(nil).IsZero())
	assert.True(t, ToDecimal("garbage").IsZero())
	assert.True(t, ToDecimal(math.NaN()).IsZero())
	assert.Equal(t, "42.5", ToDecimal("42.5").String())
	assert.Equal(t, "7", ToDecimal(7).String())
	assert.Equal(t, "1000", ToDecimal(big.NewInt(1000)).String())
	assert.True(t, ToDecimal((*big.Int)(nil)).IsZero())
	assert.True(t, ToDecimal(struct{}{}).IsZero())
}

func TestFormatMagnitude(t *testing.T) {
	assert.Equal(t, "0", FormatMagnitude(decimal.Zero))
	assert.Equal(t, "2.50M", FormatMagnitude(decimal.NewFromInt(2_500_000)))
	assert.Equal(t, "1.23K", FormatMagnitude(decimal.NewFromInt(1230)))
	assert.Equal(t, "12.3400", FormatMagnitude(decimal.NewFromFloat(12.34)))
	assert.Equal(t, "-45.00M", FormatMagnitude(decimal.NewFromInt(-45_000_000)))
}

func TestParseAmount_GroupingStrippedThenScaled(t *testing.T) {
	assert.Equal(t, "123456700", ParseAmount("1.234.567", 2).String())
	assert.Equal(t, "45000000000000000000000000", ParseAmount("45.000.000", 18).String())
	assert.Equal(t, "0", ParseAmount("", 18).String())
	assert.Equal(t, "0", ParseAmount("12abc", 2).String())
}

func TestParseUnits(t *testing.T) {
	assert.Equal(t, "150", ParseUnits("1.5", 2).String())
	assert.Equal(t, "1500000000000000000", ParseUnits("1.5", 18).String())
	assert.Equal(t, "0", ParseUnits("-3", 2).String())
	assert.Equal(t, "0", ParseUnits("oops", 2).String())
	// excess fractional digits truncate instead of rounding
	assert.Equal(t, "112", ParseUnits("1.129", 2).String())
}

func TestParseShares_StrictDigitsOnly(t *testing.T) {
	assert.Equal(t, "12", ParseShares("12").String())
	assert.Equal(t, "0", ParseShares("12a").String())
	assert.Equal(t, "0", ParseShares("-5").String())
	assert.Equal(t, "0", ParseShares("1.5").String())
	assert.Equal(t, "0", ParseShares("  ").String())
}

func TestParseDays_Lenient(t *testing.T) {
	assert.Equal(t, 7, ParseDays("7 Days"))
	assert.Equal(t, 30, ParseDays("30"))
	assert.Equal(t, 0, ParseDays("soon"))
	assert.Equal(t, 0, ParseDays(""))
	assert.Equal(t, 0, ParseDays("0 Days"))
}

func TestSplitToBps(t *testing.T) {
	allocs, total := ToBps([]SplitRecipient{
		{RecipientAddress: "0xaaa", Percentage: 60},
		{RecipientAddress: "0xbbb", Percentage: 40},
	})
	assert.Equal(t, int64(6000), allocs[0].Bps)
	assert.Equal(t, int64(4000), allocs[1].Bps)
	assert.Equal(t, int64(TotalBps), total)

	_, total = ToBps([]SplitRecipient{
		{Percentage: 33}, {Percentage: 33}, {Percentage: 33},
	})
	assert.Equal(t, int64(9900), total, "per-entry rounding loses the remainder")
}

func TestRangeWindow(t *testing.T) {
	assert.Equal(t, 7*24.0, Range7d.Window().Hours())
	assert.Equal(t, 365*24.0, Range1y.Window().Hours())
	assert.Zero(t, RangeAll.Window())
	assert.True(t, Range30d.Valid())
	assert.False(t, Range("2w").Valid())
}
