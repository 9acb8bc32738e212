package model

import (
	"fmt"
	"time"
)

// Direction of a transfer relative to the queried account
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// TransactionStatus is the confirmation status of a record
type TransactionStatus string

const (
	StatusProcessing TransactionStatus = "processing"
	StatusConfirmed  TransactionStatus = "confirmed"
	StatusFailed     TransactionStatus = "failed"
)

// TransactionRecord represents one transfer in the wallet history.
// Only Status may change after creation, while confirmation is outstanding.
type TransactionRecord struct {
	Signature    string            `json:"signature"`
	Timestamp    time.Time         `json:"timestamp"`
	Lamports     uint64            `json:"lamports"`
	Amount       string            `json:"amount"` // SOL
	Direction    Direction         `json:"type"`
	Counterparty string            `json:"counterparty"`
	FeeLamports  uint64            `json:"feeLamports"`
	Slot         uint64            `json:"slot"`
	Status       TransactionStatus `json:"status"`
}

// HistoryResponse represents response for GET /wallet/transactions
type HistoryResponse struct {
	Address      string              `json:"address"`
	Transactions []TransactionRecord `json:"transactions"`
}

// HistoryRequest represents request parameters for GET /wallet/transactions
type HistoryRequest struct {
	Limit     int        `form:"limit"`
	Direction *Direction `form:"type"`
}

// MaxHistoryLimit bounds a single history fetch
const MaxHistoryLimit = 100

// Validate validates HistoryRequest parameters.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 || r.Limit > MaxHistoryLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxHistoryLimit)
	}
	if r.Direction != nil && *r.Direction != DirectionSend && *r.Direction != DirectionReceive {
		return fmt.Errorf("type must be send or receive")
	}
	return nil
}
