// Package intent converts user-entered payment drafts into one of the two
// fixed treasury escrow contract calls, validating split allocations and
// funding eligibility before anything is submitted.
package intent

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/entity"
)

const secondsPerDay = 86_400

var (
	// ErrInvalidSplit means the allocations do not sum to exactly 10000
	// bps. Per-entry rounding losses (e.g. three-way thirds at 9900) are
	// a validation failure, not something to redistribute silently.
	ErrInvalidSplit = errors.New("split allocations must sum to 10000 bps")

	// ErrAssetNotEligible means the token registry does not allow the
	// funding asset for escrow intents.
	ErrAssetNotEligible = errors.New("funding asset is not escrow eligible")

	// ErrZeroAmount means the amount string resolved to zero units.
	ErrZeroAmount = errors.New("amount parses to zero")

	// ErrZeroDeadline means the day count resolved to zero, which would
	// create an instantly expired intent.
	ErrZeroDeadline = errors.New("deadline resolves to zero days")
)

// Registry is the token registry surface the builder consults. No remote
// call beyond these two reads happens until the plan is submitted.
type Registry interface {
	RegisteredDecimals(ctx context.Context, token common.Address) (uint8, error)
	IsEscrowEligible(ctx context.Context, token common.Address) (bool, error)
}

// Submitter sends a validated plan to the ledger.
type Submitter interface {
	CreateIntent(ctx context.Context, plan entity.IntentPlan, fundingAsset, payoutAsset common.Address) (string, error)
}

// Builder resolves drafts against the token registry and produces
// submission-ready intent plans.
type Builder struct {
	registry  Registry
	submitter Submitter
	assets    map[string]common.Address
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a builder over the configured asset set. submitter may be
// nil when the caller only needs validation.
func New(registry Registry, submitter Submitter, assets map[string]common.Address, logger *zap.Logger) *Builder {
	return &Builder{
		registry:  registry,
		submitter: submitter,
		assets:    assets,
		logger:    logger,
		now:       time.Now,
	}
}

// Build validates the draft and resolves it into exactly one of the two
// contract-call shapes: the payout variant when the payout asset differs
// from the funding asset, the plain variant otherwise.
func (b *Builder) Build(ctx context.Context, draft entity.IntentDraft) (entity.IntentPlan, error) {
	fundingAddr, ok := b.assets[draft.FundingAsset]
	if !ok {
		return entity.IntentPlan{}, errors.Errorf("unknown funding asset %q", draft.FundingAsset)
	}

	decimals, err := b.registry.RegisteredDecimals(ctx, fundingAddr)
	if err != nil {
		b.logger.Debug("registry decimals unavailable, assuming 18", zap.String("asset", draft.FundingAsset), zap.Error(err))
		decimals = 18
	}

	amount := entity.ParseAmount(draft.Amount, int(decimals))
	if amount.Sign() == 0 {
		return entity.IntentPlan{}, ErrZeroAmount
	}

	splits, totalBps := entity.ToBps(draft.Recipients)
	if totalBps != entity.TotalBps {
		return entity.IntentPlan{}, errors.Wrapf(ErrInvalidSplit, "got %d", totalBps)
	}

	eligible, err := b.registry.IsEscrowEligible(ctx, fundingAddr)
	if err != nil {
		return entity.IntentPlan{}, errors.Wrap(err, "check escrow eligibility")
	}
	if !eligible {
		return entity.IntentPlan{}, ErrAssetNotEligible
	}

	days := entity.ParseDays(draft.DeadlineDays)
	if days == 0 {
		return entity.IntentPlan{}, ErrZeroDeadline
	}
	window := int64(days) * secondsPerDay
	deadline := b.now().Unix() + window

	call := entity.CallCreateIntent
	payout := draft.PayoutAsset
	if payout != "" && payout != draft.FundingAsset {
		call = entity.CallCreateIntentWithPayout
	} else {
		payout = draft.FundingAsset
	}

	return entity.IntentPlan{
		Call:             call,
		FundingAsset:     draft.FundingAsset,
		PayoutAsset:      payout,
		Amount:           amount,
		Deadline:         big.NewInt(deadline),
		AcceptanceWindow: big.NewInt(window),
		Splits:           splits,
		YieldEnabled:     draft.YieldEnabled,
		StrategyID:       0,
	}, nil
}

// Submit sends a built plan on chain and returns the transaction hash.
func (b *Builder) Submit(ctx context.Context, plan entity.IntentPlan) (string, error) {
	if b.submitter == nil {
		return "", errors.New("intent builder has no submitter")
	}

	fundingAddr, ok := b.assets[plan.FundingAsset]
	if !ok {
		return "", errors.Errorf("unknown funding asset %q", plan.FundingAsset)
	}
	payoutAddr := b.assets[plan.PayoutAsset]

	txHash, err := b.submitter.CreateIntent(ctx, plan, fundingAddr, payoutAddr)
	if err != nil {
		return "", errors.Wrap(err, "submit payment intent")
	}

	b.logger.Info("payment intent submitted",
		zap.String("call", string(plan.Call)),
		zap.String("fundingAsset", plan.FundingAsset),
		zap.String("tx", txHash))
	return txHash, nil
}
