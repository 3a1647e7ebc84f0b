package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot captures treasury allocation at a point in time. Snapshots are
// immutable once written; string rendering happens in consumer layers.
type Snapshot struct {
	Timestamp     time.Time       `json:"ts"`
	Idle          decimal.Decimal `json:"idle"`
	YieldDeployed decimal.Decimal `json:"yield_deployed"`
	EscrowLocked  decimal.Decimal `json:"escrow_locked"`
	Total         decimal.Decimal `json:"total"`
}

// SnapshotFromTotals freezes the given totals at ts.
func SnapshotFromTotals(t Totals, ts time.Time) Snapshot {
	return Snapshot{
		Timestamp:     ts,
		Idle:          t.Idle,
		YieldDeployed: t.YieldDeployed,
		EscrowLocked:  t.EscrowLocked,
		Total:         t.Total,
	}
}
