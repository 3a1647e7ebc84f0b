package fallback

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/clients"
	"github.com/gigpay/treasuryops/internal/entity"
)

// defaultLookbackBlocks bounds how far back the log scan goes when
// deriving activity locally. Roughly a week of Base blocks.
const defaultLookbackBlocks = 300_000

// Activity derives the audit trail from treasury and escrow contract logs,
// newest first, capped at limit.
func (a *Aggregator) Activity(ctx context.Context, limit int) ([]entity.ActivityEvent, error) {
	events, err := a.ledger.RecentEvents(ctx, defaultLookbackBlocks)
	if err != nil {
		return nil, errors.Wrap(err, "derive activity from ledger")
	}

	rows := make([]entity.ActivityEvent, 0, len(events))
	for _, ev := range events {
		rows = append(rows, a.toActivityEvent(ctx, ev))
	}
	entity.SortActivityDesc(rows)

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (a *Aggregator) toActivityEvent(ctx context.Context, ev clients.LedgerEvent) entity.ActivityEvent {
	row := entity.ActivityEvent{
		ID:          fmt.Sprintf("%d-%d", ev.BlockNumber, ev.LogIndex),
		Source:      ev.Source,
		EventName:   ev.EventName,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		TxHash:      ev.TxHash,
		UI: entity.ActivityUI{
			Title:    eventTitle(ev.EventName),
			Severity: eventSeverity(ev.EventName),
		},
	}

	if symbol, ok := a.symbolFor(ev.Asset); ok {
		row.Asset = symbol
		row.Amount = a.scaledAmount(ctx, ev.Asset, ev.Amount)
	}
	if ev.IntentID != nil {
		row.OnchainIntentID = ev.IntentID.String()
	}
	if (ev.Recipient != common.Address{}) {
		row.UI.Recipient = ev.Recipient.Hex()
	}
	return row
}

func (a *Aggregator) symbolFor(addr common.Address) (string, bool) {
	if (addr == common.Address{}) {
		return "", false
	}
	for symbol, known := range a.assets {
		if known == addr {
			return symbol, true
		}
	}
	return "", false
}

func (a *Aggregator) scaledAmount(ctx context.Context, asset common.Address, raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	decimals, err := a.ledger.TokenDecimals(ctx, asset)
	if err != nil {
		a.logger.Debug("token decimals unavailable, leaving amount unscaled", zap.String("asset", asset.Hex()), zap.Error(err))
		return decimal.NewFromBigInt(raw, 0)
	}
	return scale(raw, decimals)
}

func eventTitle(name string) string {
	switch name {
	case "YieldDeposited":
		return "Yield Deposit"
	case "YieldWithdrawn":
		return "Yield Withdrawal"
	case "IntentCreated":
		return "Payment Submitted"
	case "IntentFunded":
		return "Payment Funded"
	case "IntentReleased":
		return "Payment Released"
	case "IntentRefunded":
		return "Payment Refunded"
	default:
		return name
	}
}

func eventSeverity(name string) entity.Severity {
	switch name {
	case "IntentReleased", "YieldDeposited":
		return entity.SeveritySuccess
	case "IntentRefunded":
		return entity.SeverityWarning
	default:
		return entity.SeverityInfo
	}
}
