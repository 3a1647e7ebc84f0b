// Package gatekeeper decides whether yield write operations are currently
// permitted and sequences accepted deposits and withdrawals through their
// on-chain confirmation lifecycle.
package gatekeeper

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/entity"
	"github.com/gigpay/treasuryops/pkg/retrier"
)

var (
	// ErrIneligible means the write gate predicate is false. It is a
	// static reason for disabling the action, not a popped error.
	ErrIneligible = errors.New("write not permitted")

	// ErrZeroAmount means the input parsed to zero and the action was
	// rejected locally without any remote call.
	ErrZeroAmount = errors.New("amount parses to zero")
)

// Ledger is the slice of ledger access the gatekeeper needs.
type Ledger interface {
	Treasury() common.Address
	Sender() common.Address
	IsOperator(ctx context.Context, account common.Address) (bool, error)
	AssetConfig(ctx context.Context, asset common.Address) (entity.AssetConfig, error)
	YieldShares(ctx context.Context, asset common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	Strategy(ctx context.Context, strategyID uint32) (common.Address, bool, error)
	ConvertToAssets(ctx context.Context, strategy common.Address, shares *big.Int) (*big.Int, error)
	DepositToYield(ctx context.Context, asset common.Address, amount *big.Int) (string, error)
	WithdrawFromYield(ctx context.Context, asset common.Address, shares *big.Int) (string, error)
	TxStatus(ctx context.Context, hash string) (confirmed, failed bool, err error)
}

// Eligibility breaks the write gate into its six independently observed
// conjuncts, each sourced from a separate ledger read or configuration
// fact.
type Eligibility struct {
	IsOperator      bool `json:"isOperator"`
	HasTreasury     bool `json:"hasTreasury"`
	HasAsset        bool `json:"hasAsset"`
	ConfigEnabled   bool `json:"configEnabled"`
	HasStrategy     bool `json:"hasStrategy"`
	StrategyAllowed bool `json:"strategyAllowed"`
}

// CanWrite is true only when every conjunct holds.
func (e Eligibility) CanWrite() bool {
	return e.IsOperator && e.HasTreasury && e.HasAsset && e.ConfigEnabled && e.HasStrategy && e.StrategyAllowed
}

// Reason names the first failing conjunct for display next to a disabled
// action.
func (e Eligibility) Reason() string {
	switch {
	case !e.IsOperator:
		return "connected account is not a treasury operator"
	case !e.HasTreasury:
		return "treasury contract is not configured"
	case !e.HasAsset:
		return "asset is not configured"
	case !e.ConfigEnabled:
		return "yield is disabled for this asset"
	case !e.HasStrategy:
		return "no yield strategy assigned"
	case !e.StrategyAllowed:
		return "yield strategy is not allowed"
	default:
		return ""
	}
}

// Gatekeeper evaluates write eligibility and tracks the single outstanding
// write request. It does not defend against concurrent submissions: while
// a request is pending or confirming, callers must disable initiation; a
// new accepted action simply replaces the tracked request.
type Gatekeeper struct {
	ledger  Ledger
	assets  map[string]common.Address
	logger  *zap.Logger
	backoff *retrier.Retrier

	requests *requestTracker
}

// New creates a gatekeeper over the configured asset set.
func New(ledger Ledger, assets map[string]common.Address, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{
		ledger: ledger,
		assets: assets,
		logger: logger,
		backoff: retrier.New(
			retrier.WithInitialInterval(2*time.Second),
			retrier.WithMaxInterval(15*time.Second),
			retrier.WithMaxRetries(30),
		),
		requests: &requestTracker{},
	}
}

// Position assembles the yield position for the asset from independent
// ledger reads. The eligibility conjuncts are re-evaluated on every call
// and never cached past it.
func (g *Gatekeeper) Position(ctx context.Context, asset string) (entity.YieldPosition, Eligibility, error) {
	var elig Eligibility
	elig.HasTreasury = g.ledger.Treasury() != (common.Address{})

	assetAddr, ok := g.assets[asset]
	elig.HasAsset = ok
	if !ok {
		return entity.YieldPosition{Asset: asset, Shares: new(big.Int)}, elig, nil
	}

	isOperator, err := g.ledger.IsOperator(ctx, g.ledger.Sender())
	if err != nil {
		return entity.YieldPosition{}, elig, errors.Wrap(err, "read operator membership")
	}
	elig.IsOperator = isOperator

	cfg, err := g.ledger.AssetConfig(ctx, assetAddr)
	if err != nil {
		return entity.YieldPosition{}, elig, errors.Wrap(err, "read asset config")
	}
	elig.ConfigEnabled = cfg.Enabled
	elig.HasStrategy = cfg.StrategyID != 0

	shares, err := g.ledger.YieldShares(ctx, assetAddr)
	if err != nil {
		return entity.YieldPosition{}, elig, errors.Wrap(err, "read yield shares")
	}

	pos := entity.YieldPosition{
		Asset:       asset,
		Shares:      shares,
		IsOperator:  isOperator,
		AssetConfig: cfg,
	}

	if cfg.StrategyID != 0 {
		strategyAddr, allowed, err := g.ledger.Strategy(ctx, cfg.StrategyID)
		if err != nil {
			return entity.YieldPosition{}, elig, errors.Wrap(err, "resolve strategy")
		}
		elig.StrategyAllowed = allowed
		pos.StrategyAddress = strategyAddr.Hex()
		pos.StrategyAllowed = allowed

		if shares.Sign() > 0 {
			assets, err := g.ledger.ConvertToAssets(ctx, strategyAddr, shares)
			if err != nil {
				return entity.YieldPosition{}, elig, errors.Wrap(err, "estimate assets")
			}
			decimals, err := g.ledger.TokenDecimals(ctx, assetAddr)
			if err != nil {
				return entity.YieldPosition{}, elig, errors.Wrap(err, "read token decimals")
			}
			pos.EstimatedAssets = decimal.NewFromBigInt(assets, -int32(decimals))
		}
	}

	return pos, elig, nil
}

// Deposit moves amount of the asset into its yield strategy. The amount is
// scaled by the asset's on-chain decimal count, never a client-assumed
// constant. Ineligible or zero-amount requests are rejected locally with
// no remote submission.
func (g *Gatekeeper) Deposit(ctx context.Context, asset, amountStr string) (entity.WriteRequest, error) {
	_, elig, err := g.Position(ctx, asset)
	if err != nil {
		return entity.WriteRequest{}, err
	}
	if !elig.CanWrite() {
		return entity.WriteRequest{}, errors.Wrap(ErrIneligible, elig.Reason())
	}

	assetAddr := g.assets[asset]
	decimals, err := g.ledger.TokenDecimals(ctx, assetAddr)
	if err != nil {
		return entity.WriteRequest{}, errors.Wrap(err, "read token decimals")
	}

	amount := entity.ParseUnits(amountStr, int(decimals))
	if amount.Sign() == 0 {
		return entity.WriteRequest{}, ErrZeroAmount
	}

	req := entity.WriteRequest{
		ID:     uuid.NewString(),
		Kind:   entity.WriteDeposit,
		Asset:  asset,
		Amount: amount,
		Status: entity.WritePending,
	}
	g.requests.replace(req)

	txHash, err := g.ledger.DepositToYield(ctx, assetAddr, amount)
	if err != nil {
		g.requests.update(req.ID, "", entity.WriteFailed)
		req.Status = entity.WriteFailed
		return req, errors.Wrap(err, "submit yield deposit")
	}

	g.requests.update(req.ID, txHash, entity.WriteConfirming)
	go g.confirm(req.ID, txHash)

	req.TxHash = txHash
	req.Status = entity.WriteConfirming
	return req, nil
}

// Withdraw redeems shares from the asset's yield strategy. Shares are
// parsed strictly as a non-negative integer string: any non-digit input
// yields zero and is rejected before any remote call.
func (g *Gatekeeper) Withdraw(ctx context.Context, asset, sharesStr string) (entity.WriteRequest, error) {
	_, elig, err := g.Position(ctx, asset)
	if err != nil {
		return entity.WriteRequest{}, err
	}
	if !elig.CanWrite() {
		return entity.WriteRequest{}, errors.Wrap(ErrIneligible, elig.Reason())
	}

	shares := entity.ParseShares(sharesStr)
	if shares.Sign() == 0 {
		return entity.WriteRequest{}, ErrZeroAmount
	}

	req := entity.WriteRequest{
		ID:     uuid.NewString(),
		Kind:   entity.WriteWithdraw,
		Asset:  asset,
		Shares: shares,
		Status: entity.WritePending,
	}
	g.requests.replace(req)

	txHash, err := g.ledger.WithdrawFromYield(ctx, g.assets[asset], shares)
	if err != nil {
		g.requests.update(req.ID, "", entity.WriteFailed)
		req.Status = entity.WriteFailed
		return req, errors.Wrap(err, "submit yield withdrawal")
	}

	g.requests.update(req.ID, txHash, entity.WriteConfirming)
	go g.confirm(req.ID, txHash)

	req.TxHash = txHash
	req.Status = entity.WriteConfirming
	return req, nil
}

// Request returns the currently tracked write request.
func (g *Gatekeeper) Request() entity.WriteRequest {
	return g.requests.current()
}

// confirm polls the transaction receipt with backoff until the request
// reaches a terminal state. The submission itself is already on chain;
// polling failure marks the request failed rather than hanging forever.
func (g *Gatekeeper) confirm(requestID, txHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var failed bool
	err := g.backoff.Do(ctx, func(ctx context.Context) error {
		confirmed, reverted, err := g.ledger.TxStatus(ctx, txHash)
		if err != nil {
			return err
		}
		if !confirmed {
			return errors.New("receipt not found yet")
		}
		failed = reverted
		return nil
	})
	if err != nil {
		g.logger.Warn("confirmation polling gave up", zap.String("tx", txHash), zap.Error(err))
		g.requests.update(requestID, txHash, entity.WriteFailed)
		return
	}

	status := entity.WriteConfirmed
	if failed {
		status = entity.WriteFailed
	}
	g.logger.Info("write request settled", zap.String("tx", txHash), zap.String("status", string(status)))
	g.requests.update(requestID, txHash, status)
}
