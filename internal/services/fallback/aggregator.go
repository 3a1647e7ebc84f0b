// Package fallback reconstructs the treasury view directly from the
// ledger when the primary backend source is unavailable. Everything here
// is a pure function of ledger state at call time; the only caching is
// whatever the ledger client itself provides.
package fallback

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/clients"
	"github.com/gigpay/treasuryops/internal/entity"
)

// Ledger is the slice of ledger reads the aggregator depends on.
type Ledger interface {
	Treasury() common.Address
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	YieldShares(ctx context.Context, asset common.Address) (*big.Int, error)
	EscrowLocked(ctx context.Context, asset common.Address) (*big.Int, error)
	AssetConfig(ctx context.Context, asset common.Address) (entity.AssetConfig, error)
	Strategy(ctx context.Context, strategyID uint32) (common.Address, bool, error)
	ConvertToAssets(ctx context.Context, strategy common.Address, shares *big.Int) (*big.Int, error)
	RecentEvents(ctx context.Context, lookback uint64) ([]clients.LedgerEvent, error)
}

// Aggregator computes treasury totals from authoritative ledger reads.
type Aggregator struct {
	ledger Ledger
	assets map[string]common.Address
	logger *zap.Logger
}

// NewAggregator creates an aggregator over the configured asset set.
func NewAggregator(ledger Ledger, assets map[string]common.Address, logger *zap.Logger) *Aggregator {
	return &Aggregator{ledger: ledger, assets: assets, logger: logger}
}

// Totals reads allocation for every configured asset and returns the
// combined breakdown plus the per-asset map. Assets whose balances are all
// zero are omitted; the sum invariant holds for whatever is returned.
func (a *Aggregator) Totals(ctx context.Context) (entity.Totals, entity.PerAssetTotals, error) {
	treasury := a.ledger.Treasury()
	perAsset := make(entity.PerAssetTotals, len(a.assets))
	var combined entity.Totals

	for symbol, addr := range a.assets {
		t, err := a.assetTotals(ctx, treasury, addr)
		if err != nil {
			return entity.Totals{}, nil, errors.Wrapf(err, "aggregate %s", symbol)
		}
		if t.IsZero() {
			continue
		}
		perAsset[symbol] = t
		combined = combined.Add(t)
	}

	return combined, perAsset, nil
}

func (a *Aggregator) assetTotals(ctx context.Context, treasury, asset common.Address) (entity.Totals, error) {
	decimals, err := a.ledger.TokenDecimals(ctx, asset)
	if err != nil {
		return entity.Totals{}, errors.Wrap(err, "read token decimals")
	}

	idleRaw, err := a.ledger.TokenBalance(ctx, asset, treasury)
	if err != nil {
		return entity.Totals{}, errors.Wrap(err, "read idle balance")
	}

	escrowRaw, err := a.ledger.EscrowLocked(ctx, asset)
	if err != nil {
		return entity.Totals{}, errors.Wrap(err, "read escrow locked")
	}

	yieldRaw := new(big.Int)
	shares, err := a.ledger.YieldShares(ctx, asset)
	if err != nil {
		return entity.Totals{}, errors.Wrap(err, "read yield shares")
	}
	if shares.Sign() > 0 {
		cfg, err := a.ledger.AssetConfig(ctx, asset)
		if err != nil {
			return entity.Totals{}, errors.Wrap(err, "read asset config")
		}
		if cfg.StrategyID != 0 {
			strategy, _, err := a.ledger.Strategy(ctx, cfg.StrategyID)
			if err != nil {
				return entity.Totals{}, errors.Wrap(err, "resolve strategy")
			}
			yieldRaw, err = a.ledger.ConvertToAssets(ctx, strategy, shares)
			if err != nil {
				return entity.Totals{}, errors.Wrap(err, "convert shares to assets")
			}
		}
	}

	idle := scale(idleRaw, decimals)
	deployed := scale(yieldRaw, decimals)
	escrow := scale(escrowRaw, decimals)

	return entity.Totals{
		Total:         idle.Add(deployed).Add(escrow),
		Idle:          idle,
		YieldDeployed: deployed,
		EscrowLocked:  escrow,
	}, nil
}

func scale(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
