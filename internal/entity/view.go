package entity

import "time"

// Milestone is one escrow-backed step of a job tracked by the primary
// source.
type Milestone struct {
	Name         string `json:"name"`
	EscrowStatus string `json:"escrowStatus"`
}

// Done reports whether the milestone's escrow intent reached a terminal
// state.
func (m Milestone) Done() bool {
	return m.EscrowStatus == "RELEASED" || m.EscrowStatus == "REFUNDED"
}

// Job groups milestones created by an owner. Jobs exist only in primary
// mode; there is no ledger-side derivation for them.
type Job struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	CreatedBy  string      `json:"createdBy"`
	Milestones []Milestone `json:"milestones"`
}

// ActiveMilestones returns how many milestones are still in flight.
func (j Job) ActiveMilestones() int {
	active := 0
	for _, m := range j.Milestones {
		if !m.Done() {
			active++
		}
	}
	return active
}

// View is the unified treasury state republished to consumers after each
// reconciliation attempt.
type View struct {
	Mode      Mode            `json:"mode"`
	Totals    Totals          `json:"totals"`
	PerAsset  PerAssetTotals  `json:"perAsset,omitempty"`
	History   []Snapshot      `json:"history"`
	Activity  []ActivityEvent `json:"activity"`
	Payments  []PaymentIntent `json:"payments"`
	Jobs      []Job           `json:"jobs,omitempty"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
