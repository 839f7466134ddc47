package model

import (
	"math/big"
	"time"
)

// TxHandle identifies a submitted transaction
type TxHandle struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Method      string    `json:"method"`
	Value       *big.Int  `json:"value,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Receipt represents a simplified model of a mined transaction receipt
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	GasUsed     uint64 `json:"gas_used"`
	Status      bool   `json:"status"`
}

// TransferRecord is a read-only projection of a fraction token transfer
type TransferRecord struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    *big.Int `json:"amount"`
	Timestamp uint64   `json:"timestamp"`
	TxHash    string   `json:"tx_hash,omitempty"`
}

// AccountSummary is the market view of the active account
type AccountSummary struct {
	Address          string   `json:"address"`
	Balance          *big.Int `json:"balance"`
	PercentOwnership *big.Int `json:"percent_ownership_bp"`
	ReserveBalance   *big.Int `json:"reserve_balance"`
	UnitPrice        *big.Int `json:"unit_price"`
}
