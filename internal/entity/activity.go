package entity

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Severity classifies an activity event for presentation layers.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
)

// ActivityUI carries presentation metadata attached to an event.
type ActivityUI struct {
	Title     string   `json:"title"`
	Severity  Severity `json:"severity"`
	Job       string   `json:"job,omitempty"`
	Milestone string   `json:"milestone,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
}

// ActivityEvent is one row of the treasury audit trail. Identity is
// (Source, ID); ordering follows the underlying ledger order.
type ActivityEvent struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	EventName       string          `json:"eventName"`
	BlockNumber     uint64          `json:"blockNumber"`
	LogIndex        uint            `json:"logIndex"`
	TxHash          string          `json:"txHash"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
	Asset           string          `json:"asset,omitempty"`
	OnchainIntentID string          `json:"onchainIntentId,omitempty"`
	UI              ActivityUI      `json:"ui"`
}

// SortActivityDesc orders events reverse-chronologically by block number,
// then log index.
func SortActivityDesc(events []ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber > events[j].BlockNumber
		}
		return events[i].LogIndex > events[j].LogIndex
	})
}
