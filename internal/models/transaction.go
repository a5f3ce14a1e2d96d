package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnTransfer   TransactionType = "TRANSFER"
	TxnDeposit    TransactionType = "DEPOSIT"
	TxnWithdrawal TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "PENDING"
	TxnProcessing TransactionStatus = "PROCESSING"
	TxnSuccessful TransactionStatus = "SUCCESSFUL"
	TxnFailed     TransactionStatus = "FAILED"
)

// Terminal reports whether no further status transitions are allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TxnSuccessful || s == TxnFailed
}

// CanTransitionTo enforces the monotonic lifecycle
// PENDING → PROCESSING → SUCCESSFUL/FAILED.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case TxnPending:
		return next == TxnProcessing || next == TxnSuccessful || next == TxnFailed
	case TxnProcessing:
		return next == TxnSuccessful || next == TxnFailed
	}
	return false
}

// Transaction is one ledger record: a single row per logical funds movement,
// advanced through its lifecycle via status updates. Every transition is also
// appended to transaction_events, so the full history survives without
// delete-and-recreate.
type Transaction struct {
	ID          string            `json:"id"`
	SenderID    *string           `json:"sender_id,omitempty"`
	RecipientID *string           `json:"recipient_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    Currency          `json:"currency"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	// IsExpense marks records that count against the sender's budget window.
	IsExpense   bool      `json:"is_expense"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Currency.Valid() {
		return ErrInvalidAmount
	}
	return nil
}

// TransactionEvent is one entry of a transaction's append-only status trail.
type TransactionEvent struct {
	ID            string            `json:"id"`
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Detail        string            `json:"detail,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
