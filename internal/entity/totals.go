package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode identifies which source currently backs the unified treasury view.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// Range selects a history window for snapshot queries.
type Range string

const (
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
	Range1y  Range = "1y"
	RangeAll Range = "all"
)

// Window returns the duration covered by the range. A zero duration means
// unbounded.
func (r Range) Window() time.Duration {
	switch r {
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	case Range90d:
		return 90 * 24 * time.Hour
	case Range1y:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether r is one of the accepted range values.
func (r Range) Valid() bool {
	switch r {
	case Range7d, Range30d, Range90d, Range1y, RangeAll:
		return true
	}
	return false
}

// Totals describes fund allocation in the reporting currency unit.
type Totals struct {
	Total         decimal.Decimal `json:"total"`
	Idle          decimal.Decimal `json:"idle"`
	YieldDeployed decimal.Decimal `json:"yieldDeployed"`
	EscrowLocked  decimal.Decimal `json:"escrowLocked"`
}

// Sum returns idle + yield-deployed + escrow-locked.
func (t Totals) Sum() decimal.Decimal {
	return t.Idle.Add(t.YieldDeployed).Add(t.EscrowLocked)
}

// Add returns the component-wise sum of two totals.
func (t Totals) Add(other Totals) Totals {
	return Totals{
		Total:         t.Total.Add(other.Total),
		Idle:          t.Idle.Add(other.Idle),
		YieldDeployed: t.YieldDeployed.Add(other.YieldDeployed),
		EscrowLocked:  t.EscrowLocked.Add(other.EscrowLocked),
	}
}

// IsZero reports whether every component is zero.
func (t Totals) IsZero() bool {
	return t.Total.IsZero() && t.Idle.IsZero() && t.YieldDeployed.IsZero() && t.EscrowLocked.IsZero()
}

// PerAssetTotals maps an asset symbol to its allocation breakdown.
type PerAssetTotals map[string]Totals
