package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/gigpay/treasuryops/internal/entity"
)

// Minimal ABI fragments for the contracts this client touches. Only the
// methods and events the dashboard consumes are declared.
const (
	registryABIJSON = `[
		{"type":"function","name":"tokenRegistry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"yieldManager","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"escrowCore","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`

	vaultABIJSON = `[
		{"type":"function","name":"operators","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"assetConfig","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"enabled","type":"bool"},{"name":"strategyId","type":"uint32"},{"name":"bufferBps","type":"uint16"}]},
		{"type":"function","name":"yieldShares","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"escrowLocked","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"depositToYield","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"withdrawFromYield","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"shares","type":"uint256"}],"outputs":[]},
		{"type":"event","name":"YieldDeposited","inputs":[{"name":"asset","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"YieldWithdrawn","inputs":[{"name":"asset","type":"address","indexed":true},{"name":"assets","type":"uint256","indexed":false}]}
	]`

	tokenRegistryABIJSON = `[
		{"type":"function","name":"tokenConfig","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"decimals","type":"uint8"},{"name":"escrowEligible","type":"bool"}]},
		{"type":"function","name":"isEscrowEligible","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	yieldManagerABIJSON = `[
		{"type":"function","name":"strategies","stateMutability":"view","inputs":[{"name":"","type":"uint32"}],"outputs":[{"name":"strategy","type":"address"},{"name":"allowed","type":"bool"}]}
	]`

	strategyABIJSON = `[
		{"type":"function","name":"convertToAssets","stateMutability":"view","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"assets","type":"uint256"}]}
	]`

	erc20ABIJSON = `[
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	escrowABIJSON = `[
		{"type":"function","name":"createIntentFromTreasury","stateMutability":"nonpayable","inputs":[{"name":"treasury","type":"address"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"acceptanceWindow","type":"uint256"},{"name":"splits","type":"tuple[]","components":[{"name":"recipient","type":"address"},{"name":"bps","type":"uint16"}]},{"name":"yieldEnabled","type":"bool"},{"name":"strategyId","type":"uint32"}],"outputs":[{"name":"intentId","type":"uint256"}]},
		{"type":"function","name":"createIntentFromTreasuryWithPayout","stateMutability":"nonpayable","inputs":[{"name":"treasury","type":"address"},{"name":"fundingAsset","type":"address"},{"name":"payoutAsset","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"acceptanceWindow","type":"uint256"},{"name":"splits","type":"tuple[]","components":[{"name":"recipient","type":"address"},{"name":"bps","type":"uint16"}]},{"name":"yieldEnabled","type":"bool"},{"name":"strategyId","type":"uint32"},{"name":"minPayout","type":"uint256"}],"outputs":[{"name":"intentId","type":"uint256"}]},
		{"type":"event","name":"IntentCreated","inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"asset","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"deadline","type":"uint256","indexed":false}]},
		{"type":"event","name":"IntentFunded","inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"asset","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"IntentReleased","inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"IntentRefunded","inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
	]`
)

// LedgerEvent is a decoded contract log relevant to the treasury audit
// trail.
type LedgerEvent struct {
	EventName   string
	Source      string
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
	Asset       common.Address
	Recipient   common.Address
	Amount      *big.Int
	IntentID    *big.Int
	Deadline    *big.Int
}

// LedgerClient reads and writes treasury state directly on chain. It is
// the authoritative source the dashboard falls back to when the backend is
// unavailable.
type LedgerClient struct {
	eth     *ethclient.Client
	chainID *big.Int

	treasury      common.Address
	tokenRegistry common.Address
	yieldManager  common.Address
	escrowCore    common.Address

	registryABI      abi.ABI
	vaultABI         abi.ABI
	tokenRegistryABI abi.ABI
	yieldManagerABI  abi.ABI
	strategyABI      abi.ABI
	erc20ABI         abi.ABI
	escrowABI        abi.ABI

	key    *ecdsa.PrivateKey
	sender common.Address
}

// NewLedgerClient dials the RPC endpoint and resolves the satellite
// contract addresses from the platform registry. operatorKeyHex may be
// empty, which leaves the client read-only.
func NewLedgerClient(ctx context.Context, rpcURL string, chainID uint64, registryAddr, treasuryAddr string, operatorKeyHex string) (*LedgerClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial ledger rpc")
	}

	c := &LedgerClient{
		eth:      eth,
		chainID:  new(big.Int).SetUint64(chainID),
		treasury: common.HexToAddress(treasuryAddr),
	}
	if err := c.parseABIs(); err != nil {
		return nil, err
	}

	if operatorKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "parse operator key")
		}
		c.key = key
		c.sender = crypto.PubkeyToAddress(key.PublicKey)
	}

	registry := common.HexToAddress(registryAddr)
	if err := c.resolveRegistry(ctx, registry); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *LedgerClient) parseABIs() error {
	parse := func(name, raw string, dst *abi.ABI) error {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return errors.Wrapf(err, "parse %s abi", name)
		}
		*dst = parsed
		return nil
	}
	if err := parse("registry", registryABIJSON, &c.registryABI); err != nil {
		return err
	}
	if err := parse("vault", vaultABIJSON, &c.vaultABI); err != nil {
		return err
	}
	if err := parse("token registry", tokenRegistryABIJSON, &c.tokenRegistryABI); err != nil {
		return err
	}
	if err := parse("yield manager", yieldManagerABIJSON, &c.yieldManagerABI); err != nil {
		return err
	}
	if err := parse("strategy", strategyABIJSON, &c.strategyABI); err != nil {
		return err
	}
	if err := parse("erc20", erc20ABIJSON, &c.erc20ABI); err != nil {
		return err
	}
	return parse("escrow", escrowABIJSON, &c.escrowABI)
}

func (c *LedgerClient) resolveRegistry(ctx context.Context, registry common.Address) error {
	read := func(method string, dst *common.Address) error {
		out, err := c.call(ctx, registry, c.registryABI, method)
		if err != nil {
			return errors.Wrapf(err, "resolve %s address", method)
		}
		*dst = out[0].(common.Address)
		return nil
	}
	if err := read("tokenRegistry", &c.tokenRegistry); err != nil {
		return err
	}
	if err := read("yieldManager", &c.yieldManager); err != nil {
		return err
	}
	return read("escrowCore", &c.escrowCore)
}

// Treasury returns the treasury vault address this client is bound to.
func (c *LedgerClient) Treasury() common.Address { return c.treasury }

// Sender returns the operator address writes are signed with.
func (c *LedgerClient) Sender() common.Address { return c.sender }

func (c *LedgerClient) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}

	out, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	return out, nil
}

// IsOperator reports whether account is an operator of the treasury vault.
func (c *LedgerClient) IsOperator(ctx context.Context, account common.Address) (bool, error) {
	out, err := c.call(ctx, c.treasury, c.vaultABI, "operators", account)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// AssetConfig reads the vault's yield configuration for the asset.
func (c *LedgerClient) AssetConfig(ctx context.Context, asset common.Address) (entity.AssetConfig, error) {
	out, err := c.call(ctx, c.treasury, c.vaultABI, "assetConfig", asset)
	if err != nil {
		return entity.AssetConfig{}, err
	}
	return entity.AssetConfig{
		Enabled:    out[0].(bool),
		StrategyID: out[1].(uint32),
		BufferBps:  out[2].(uint16),
	}, nil
}

// YieldShares reads the vault's strategy share balance for the asset.
func (c *LedgerClient) YieldShares(ctx context.Context, asset common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.treasury, c.vaultABI, "yieldShares", asset)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// EscrowLocked reads the amount of the asset locked against payment
// intents.
func (c *LedgerClient) EscrowLocked(ctx context.Context, asset common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.treasury, c.vaultABI, "escrowLocked", asset)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TokenDecimals reads the asset's on-chain decimal count.
func (c *LedgerClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// TokenBalance reads holder's balance of the token.
func (c *LedgerClient) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Strategy resolves a strategy id to its contract address and allow flag.
func (c *LedgerClient) Strategy(ctx context.Context, strategyID uint32) (common.Address, bool, error) {
	out, err := c.call(ctx, c.yieldManager, c.yieldManagerABI, "strategies", strategyID)
	if err != nil {
		return common.Address{}, false, err
	}
	return out[0].(common.Address), out[1].(bool), nil
}

// ConvertToAssets asks the strategy for the asset value of shares. The
// result is an estimate at the strategy's current conversion rate.
func (c *LedgerClient) ConvertToAssets(ctx context.Context, strategy common.Address, shares *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, strategy, c.strategyABI, "convertToAssets", shares)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// RegisteredDecimals reads the funding asset's decimals from the token
// registry entry.
func (c *LedgerClient) RegisteredDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, c.tokenRegistry, c.tokenRegistryABI, "tokenConfig", token)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// IsEscrowEligible reports whether the registry allows the token to fund
// escrow intents.
func (c *LedgerClient) IsEscrowEligible(ctx context.Context, token common.Address) (bool, error) {
	out, err := c.call(ctx, c.tokenRegistry, c.tokenRegistryABI, "isEscrowEligible", token)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// DepositToYield submits a vault deposit of amount into the asset's yield
// strategy and returns the transaction hash.
func (c *LedgerClient) DepositToYield(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return c.submit(ctx, c.treasury, c.vaultABI, "depositToYield", asset, amount)
}

// WithdrawFromYield submits a vault withdrawal of shares from the asset's
// yield strategy and returns the transaction hash.
func (c *LedgerClient) WithdrawFromYield(ctx context.Context, asset common.Address, shares *big.Int) (string, error) {
	return c.submit(ctx, c.treasury, c.vaultABI, "withdrawFromYield", asset, shares)
}

type splitArg struct {
	Recipient common.Address `abi:"recipient"`
	Bps       uint16         `abi:"bps"`
}

// CreateIntent submits one of the two intent-creation call shapes selected
// by the plan.
func (c *LedgerClient) CreateIntent(ctx context.Context, plan entity.IntentPlan, fundingAsset, payoutAsset common.Address) (string, error) {
	splits := make([]splitArg, 0, len(plan.Splits))
	for _, s := range plan.Splits {
		splits = append(splits, splitArg{
			Recipient: common.HexToAddress(s.RecipientAddress),
			Bps:       uint16(s.Bps),
		})
	}

	if plan.Call == entity.CallCreateIntentWithPayout {
		return c.submit(ctx, c.escrowCore, c.escrowABI, "createIntentFromTreasuryWithPayout",
			c.treasury, fundingAsset, payoutAsset, plan.Amount, plan.Deadline, plan.AcceptanceWindow,
			splits, plan.YieldEnabled, plan.StrategyID, big.NewInt(0))
	}
	return c.submit(ctx, c.escrowCore, c.escrowABI, "createIntentFromTreasury",
		c.treasury, fundingAsset, plan.Amount, plan.Deadline, plan.AcceptanceWindow,
		splits, plan.YieldEnabled, plan.StrategyID)
}

func (c *LedgerClient) submit(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) (string, error) {
	if c.key == nil {
		return "", errors.New("ledger client has no operator key, writes disabled")
	}

	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", errors.Wrapf(err, "pack %s", method)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return "", errors.Wrap(err, "fetch pending nonce")
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "suggest gas price")
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.sender,
		To:   &to,
		Data: input,
	})
	if err != nil {
		return "", errors.Wrapf(err, "estimate gas for %s", method)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit + gasLimit/5,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", errors.Wrapf(err, "sign %s", method)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", errors.Wrapf(err, "send %s", method)
	}
	return signed.Hash().Hex(), nil
}

// TxStatus polls the receipt for hash. confirmed is true once the receipt
// exists; failed is true when the receipt reports a reverted execution. A
// missing receipt is not an error.
func (c *LedgerClient) TxStatus(ctx context.Context, hash string) (confirmed, failed bool, err error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, false, nil
		}
		return false, false, errors.Wrap(err, "fetch receipt")
	}
	return true, receipt.Status == types.ReceiptStatusFailed, nil
}

// RecentEvents filters treasury vault and escrow core logs over the last
// lookback blocks and decodes the ones the activity feed understands.
func (c *LedgerClient) RecentEvents(ctx context.Context, lookback uint64) ([]LedgerEvent, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch head block")
	}

	from := uint64(0)
	if lookback > 0 && head > lookback {
		from = head - lookback
	}

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{c.treasury, c.escrowCore},
	})
	if err != nil {
		return nil, errors.Wrap(err, "filter treasury logs")
	}

	events := make([]LedgerEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := c.decodeLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (c *LedgerClient) decodeLog(lg types.Log) (LedgerEvent, bool) {
	if len(lg.Topics) == 0 {
		return LedgerEvent{}, false
	}

	ev := LedgerEvent{
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
		TxHash:      lg.TxHash.Hex(),
	}

	if event, err := c.vaultABI.EventByID(lg.Topics[0]); err == nil {
		ev.EventName = event.Name
		ev.Source = "treasury"
		if len(lg.Topics) > 1 {
			ev.Asset = common.BytesToAddress(lg.Topics[1].Bytes())
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err == nil && len(values) > 0 {
			if amount, ok := values[0].(*big.Int); ok {
				ev.Amount = amount
			}
		}
		return ev, true
	}

	if event, err := c.escrowABI.EventByID(lg.Topics[0]); err == nil {
		ev.EventName = event.Name
		ev.Source = "escrow"
		if len(lg.Topics) > 1 {
			ev.IntentID = new(big.Int).SetBytes(lg.Topics[1].Bytes())
		}
		if len(lg.Topics) > 2 {
			// topic 2 is the recipient for releases, the asset otherwise
			if event.Name == "IntentReleased" {
				ev.Recipient = common.BytesToAddress(lg.Topics[2].Bytes())
			} else {
				ev.Asset = common.BytesToAddress(lg.Topics[2].Bytes())
			}
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err == nil {
			if len(values) > 0 {
				if amount, ok := values[0].(*big.Int); ok {
					ev.Amount = amount
				}
			}
			if len(values) > 1 {
				if deadline, ok := values[1].(*big.Int); ok {
					ev.Deadline = deadline
				}
			}
		}
		return ev, true
	}

	return LedgerEvent{}, false
}
