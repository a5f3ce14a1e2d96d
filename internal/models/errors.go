package models

import "errors"

// Sentinel errors of the domain. Services wrap these with context; the HTTP
// layer maps them to statuses with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBudgetExceeded    = errors.New("budget exceeded")
	ErrNoBudget          = errors.New("no active budget")
	ErrInvalidCard       = errors.New("invalid card details")
	ErrBankDeclined      = errors.New("bank declined the charge")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSelfRequest       = errors.New("cannot request funds from yourself")
	// ErrInconsistent marks a violated balance invariant, e.g. a debit whose
	// compensating credit could not be applied.
	ErrInconsistent = errors.New("inconsistent ledger state")
)
