package fallback

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/gigpay/treasuryops/internal/clients"
	"github.com/gigpay/treasuryops/internal/entity"
)

// PaymentIntents derives intent summaries from escrow logs. The creation
// event seeds the record; later lifecycle events overwrite its status, so
// the newest event per intent id wins.
func (a *Aggregator) PaymentIntents(ctx context.Context, maxItems int) ([]entity.PaymentIntent, error) {
	events, err := a.ledger.RecentEvents(ctx, defaultLookbackBlocks)
	if err != nil {
		return nil, errors.Wrap(err, "derive payment intents from ledger")
	}

	// ledger order is ascending, so statuses apply in lifecycle order
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	intents := make(map[string]*entity.PaymentIntent)
	var order []string
	for _, ev := range events {
		if ev.Source != "escrow" || ev.IntentID == nil {
			continue
		}
		id := ev.IntentID.String()
		intent, seen := intents[id]
		if !seen {
			intent = &entity.PaymentIntent{
				ID:              id,
				OnchainIntentID: id,
			}
			intents[id] = intent
			order = append(order, id)
		}
		a.applyEvent(ctx, intent, ev)
	}

	// newest created first
	rows := make([]entity.PaymentIntent, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		rows = append(rows, *intents[order[i]])
	}
	if maxItems > 0 && len(rows) > maxItems {
		rows = rows[:maxItems]
	}
	return rows, nil
}

func (a *Aggregator) applyEvent(ctx context.Context, intent *entity.PaymentIntent, ev clients.LedgerEvent) {
	switch ev.EventName {
	case "IntentCreated":
		intent.Status = "CREATED"
		intent.TxHash = ev.TxHash
		intent.BlockNumber = ev.BlockNumber
		if symbol, ok := a.symbolFor(ev.Asset); ok {
			intent.FundingAsset = symbol
			intent.Amount = a.scaledAmount(ctx, ev.Asset, ev.Amount).String()
		}
		if ev.Deadline != nil {
			intent.Deadline = time.Unix(ev.Deadline.Int64(), 0).UTC()
		}
	case "IntentFunded":
		intent.Status = "FUNDED"
	case "IntentReleased":
		intent.Status = "RELEASED"
	case "IntentRefunded":
		intent.Status = "REFUNDED"
	}
}
