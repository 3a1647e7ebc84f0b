package entity

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AssetConfig mirrors the treasury vault's per-asset yield configuration.
type AssetConfig struct {
	Enabled    bool   `json:"enabled"`
	StrategyID uint32 `json:"strategyId"`
	BufferBps  uint16 `json:"bufferBps"`
}

// YieldPosition describes the treasury's stake in a yield strategy for one
// asset. Shares are exact integers in the strategy's share unit;
// EstimatedAssets is a derived, non-authoritative conversion computed by the
// remote strategy.
type YieldPosition struct {
	Asset           string          `json:"asset"`
	Shares          *big.Int        `json:"shares"`
	EstimatedAssets decimal.Decimal `json:"estimatedAssets"`
	StrategyAddress string          `json:"strategyAddress"`
	StrategyAllowed bool            `json:"strategyAllowed"`
	IsOperator      bool            `json:"isOperator"`
	AssetConfig     AssetConfig     `json:"assetConfig"`
}

// WriteKind distinguishes the two yield write operations.
type WriteKind string

const (
	WriteDeposit  WriteKind = "deposit"
	WriteWithdraw WriteKind = "withdraw"
)

// WriteStatus tracks the lifecycle of an on-chain write request.
type WriteStatus string

const (
	WriteIdle       WriteStatus = "idle"
	WritePending    WriteStatus = "pending"
	WriteConfirming WriteStatus = "confirming"
	WriteConfirmed  WriteStatus = "confirmed"
	WriteFailed     WriteStatus = "failed"
)

// Terminal reports whether the status is final.
func (s WriteStatus) Terminal() bool {
	return s == WriteConfirmed || s == WriteFailed
}

// WriteRequest is a single deposit or withdraw submission. Requests are
// never reused across actions; a new request replaces the prior one.
type WriteRequest struct {
	ID     string      `json:"id"`
	Kind   WriteKind   `json:"kind"`
	Asset  string      `json:"asset"`
	Amount *big.Int    `json:"amount,omitempty"`
	Shares *big.Int    `json:"shares,omitempty"`
	TxHash string      `json:"txHash,omitempty"`
	Status WriteStatus `json:"status"`
}
