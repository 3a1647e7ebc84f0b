package entity

import (
	"math"
	"math/big"
	"time"
)

// SplitRecipient is one entry of a payment split as entered by the user.
type SplitRecipient struct {
	RecipientAddress string  `json:"recipientAddress"`
	Percentage       float64 `json:"percentage"`
}

// SplitAllocation is a split entry converted to integer basis points.
type SplitAllocation struct {
	RecipientAddress string `json:"recipient"`
	Bps              int64  `json:"bps"`
}

// TotalBps is the number of basis points a valid split must sum to.
const TotalBps = 10000

// ToBps converts recipient percentages into basis-point allocations.
// Rounding is per entry; a split like three-way thirds therefore sums to
// 9900 and fails validation rather than having the remainder redistributed.
func ToBps(recipients []SplitRecipient) ([]SplitAllocation, int64) {
	allocs := make([]SplitAllocation, 0, len(recipients))
	var sum int64
	for _, r := range recipients {
		bps := int64(math.Round(r.Percentage * 100))
		allocs = append(allocs, SplitAllocation{RecipientAddress: r.RecipientAddress, Bps: bps})
		sum += bps
	}
	return allocs, sum
}

// PaymentIntent is a treasury-funded escrow intent as reported by the
// primary source or derived from ledger logs.
type PaymentIntent struct {
	ID              string    `json:"id"`
	OnchainIntentID string    `json:"onchainIntentId,omitempty"`
	FundingAsset    string    `json:"fundingAsset"`
	PayoutAsset     string    `json:"payoutAsset,omitempty"`
	Amount          string    `json:"amount"`
	Status          string    `json:"status"`
	Deadline        time.Time `json:"deadline,omitempty"`
	TxHash          string    `json:"txHash,omitempty"`
	BlockNumber     uint64    `json:"blockNumber,omitempty"`
}

// IntentDraft is the user-entered input for creating a payment intent.
type IntentDraft struct {
	FundingAsset string
	PayoutAsset  string
	Amount       string
	DeadlineDays string
	YieldEnabled bool
	Recipients   []SplitRecipient
}

// IntentCall identifies which of the two fixed contract-call shapes a
// payment intent submission uses.
type IntentCall string

const (
	CallCreateIntent           IntentCall = "createIntentFromTreasury"
	CallCreateIntentWithPayout IntentCall = "createIntentFromTreasuryWithPayout"
)

// IntentPlan is a fully resolved, validated payment intent ready for
// submission.
type IntentPlan struct {
	Call             IntentCall
	FundingAsset     string
	PayoutAsset      string
	Amount           *big.Int
	Deadline         *big.Int
	AcceptanceWindow *big.Int
	Splits           []SplitAllocation
	YieldEnabled     bool
	StrategyID       uint32
}
