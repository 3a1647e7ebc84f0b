package gatekeeper

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/entity"
)

var (
	treasuryAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	operatorAddr = common.HexToAddress("0x0A0000000000000000000000000000000000000A")
	idrxAddr     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	strategyAddr = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type fakeLedger struct {
	mu sync.Mutex

	treasury        common.Address
	isOperator      bool
	config          entity.AssetConfig
	strategyAllowed bool
	shares          *big.Int
	decimals        uint8

	txConfirmed bool
	txFailed    bool

	deposits    int
	withdrawals int
}

func healthyLedger() *fakeLedger {
	return &fakeLedger{
		treasury:        treasuryAddr,
		isOperator:      true,
		config:          entity.AssetConfig{Enabled: true, StrategyID: 3, BufferBps: 500},
		strategyAllowed: true,
		shares:          big.NewInt(1000),
		decimals:        2,
		txConfirmed:     true,
	}
}

func (f *fakeLedger) Treasury() common.Address { return f.treasury }
func (f *fakeLedger) Sender() common.Address   { return operatorAddr }

func (f *fakeLedger) IsOperator(_ context.Context, _ common.Address) (bool, error) {
	return f.isOperator, nil
}

func (f *fakeLedger) AssetConfig(_ context.Context, _ common.Address) (entity.AssetConfig, error) {
	return f.config, nil
}

func (f *fakeLedger) YieldShares(_ context.Context, _ common.Address) (*big.Int, error) {
	return f.shares, nil
}

func (f *fakeLedger) TokenDecimals(_ context.Context, _ common.Address) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeLedger) Strategy(_ context.Context, _ uint32) (common.Address, bool, error) {
	return strategyAddr, f.strategyAllowed, nil
}

func (f *fakeLedger) ConvertToAssets(_ context.Context, _ common.Address, shares *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(shares, big.NewInt(2)), nil
}

func (f *fakeLedger) DepositToYield(_ context.Context, _ common.Address, _ *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits++
	return "0xdeadbeef", nil
}

func (f *fakeLedger) WithdrawFromYield(_ context.Context, _ common.Address, _ *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals++
	return "0xfeedface", nil
}

func (f *fakeLedger) TxStatus(_ context.Context, _ string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txConfirmed, f.txFailed, nil
}

func newGatekeeper(ledger *fakeLedger) *Gatekeeper {
	return New(ledger, map[string]common.Address{"IDRX": idrxAddr}, zap.NewNop())
}

func TestPosition_HealthyEligibility(t *testing.T) {
	gk := newGatekeeper(healthyLedger())

	pos, elig, err := gk.Position(context.Background(), "IDRX")
	require.NoError(t, err)
	assert.True(t, elig.CanWrite())
	assert.Empty(t, elig.Reason())
	assert.Equal(t, "1000", pos.Shares.String())
	assert.Equal(t, "20", pos.EstimatedAssets.String(), "2000 raw assets at 2 decimals")
	assert.Equal(t, strategyAddr.Hex(), pos.StrategyAddress)
}

func TestCanWrite_EachConjunctIndependentlyFalse(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fakeLedger)
		asset  string
	}{
		{"not operator", func(l *fakeLedger) { l.isOperator = false }, "IDRX"},
		{"no treasury contract", func(l *fakeLedger) { l.treasury = common.Address{} }, "IDRX"},
		{"unknown asset", func(l *fakeLedger) {}, "DOGE"},
		{"config disabled", func(l *fakeLedger) { l.config.Enabled = false }, "IDRX"},
		{"zero strategy id", func(l *fakeLedger) { l.config.StrategyID = 0 }, "IDRX"},
		{"strategy not allowed", func(l *fakeLedger) { l.strategyAllowed = false }, "IDRX"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := healthyLedger()
			tc.mutate(ledger)
			gk := newGatekeeper(ledger)

			_, elig, err := gk.Position(context.Background(), tc.asset)
			require.NoError(t, err)
			assert.False(t, elig.CanWrite())
			assert.NotEmpty(t, elig.Reason())
		})
	}
}

func TestDeposit_ScalesByOnChainDecimals(t *testing.T) {
	ledger := healthyLedger()
	gk := newGatekeeper(ledger)

	req, err := gk.Deposit(context.Background(), "IDRX", "1.5")
	require.NoError(t, err)

	assert.Equal(t, entity.WriteDeposit, req.Kind)
	assert.Equal(t, "150", req.Amount.String(), "1.5 at 2 on-chain decimals")
	assert.Equal(t, "0xdeadbeef", req.TxHash)
	assert.Equal(t, 1, ledger.deposits)
}

func TestDeposit_RejectedWhenIneligible(t *testing.T) {
	ledger := healthyLedger()
	ledger.isOperator = false
	gk := newGatekeeper(ledger)

	_, err := gk.Deposit(context.Background(), "IDRX", "100")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIneligible)
	assert.Equal(t, 0, ledger.deposits, "ineligible writes must not reach the ledger")
}

func TestDeposit_ZeroAmountRejectedLocally(t *testing.T) {
	ledger := healthyLedger()
	gk := newGatekeeper(ledger)

	_, err := gk.Deposit(context.Background(), "IDRX", "garbage")
	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.Equal(t, 0, ledger.deposits)
}

func TestWithdraw_NonDigitSharesParseToZeroAndAreRejected(t *testing.T) {
	ledger := healthyLedger()
	gk := newGatekeeper(ledger)

	_, err := gk.Withdraw(context.Background(), "IDRX", "12a")
	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.Equal(t, 0, ledger.withdrawals, "no remote call for malformed share input")
}

func TestWithdraw_ConfirmationLifecycle(t *testing.T) {
	ledger := healthyLedger()
	gk := newGatekeeper(ledger)

	req, err := gk.Withdraw(context.Background(), "IDRX", "500")
	require.NoError(t, err)
	assert.Equal(t, "500", req.Shares.String())
	assert.Equal(t, entity.WriteConfirming, req.Status)

	require.Eventually(t, func() bool {
		return gk.Request().Status == entity.WriteConfirmed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWithdraw_RevertedTxMarksFailed(t *testing.T) {
	ledger := healthyLedger()
	ledger.txFailed = true
	gk := newGatekeeper(ledger)

	_, err := gk.Withdraw(context.Background(), "IDRX", "500")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return gk.Request().Status == entity.WriteFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRequestReplacesPrior(t *testing.T) {
	ledger := healthyLedger()
	gk := newGatekeeper(ledger)

	first, err := gk.Deposit(context.Background(), "IDRX", "1")
	require.NoError(t, err)

	second, err := gk.Withdraw(context.Background(), "IDRX", "10")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "requests are never reused across actions")
	assert.Equal(t, second.ID, gk.Request().ID)
}
