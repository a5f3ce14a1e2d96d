package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type Users interface {
	Create(ctx context.Context, username, email, nameTag, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	// GetByTag resolves a public name tag to a user. Returns models.ErrNotFound
	// when the tag does not resolve.
	GetByTag(ctx context.Context, nameTag string) (models.User, error)
	SetBudgetingEnabled(ctx context.Context, id string, enabled bool) error
	List(ctx context.Context) ([]models.User, error)
}

type Balances interface {
	Get(ctx context.Context, userID string, currency models.Currency) (models.Balance, error)
	GetOrCreate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error)
	// GetForUpdate reads the balance row under a row-level lock. Only valid
	// inside Transactor.WithinTx; the lock is held until commit/rollback.
	GetForUpdate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error)
	// Credit and Debit are single atomic read-modify-writes. Debit returns
	// models.ErrInsufficientFunds if the row would go negative; this is the
	// last-line guard behind the orchestrator's own sufficiency pre-check.
	Credit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error)
	Debit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error)
	ListByUser(ctx context.Context, userID string) ([]models.Balance, error)
}

type Budgets interface {
	Create(ctx context.Context, b models.Budget) (models.Budget, error)
	// Current returns the budget with the latest end date for the user, or
	// models.ErrNoBudget.
	Current(ctx context.Context, userID string) (models.Budget, error)
	GetByID(ctx context.Context, id string) (models.Budget, error)
	Delete(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

type Transactions interface {
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	// UpdateStatus advances the lifecycle; terminal rows are never rewritten.
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	ListPendingRequests(ctx context.Context, userID string) ([]models.Transaction, error)
	// SumExpenses totals SUCCESSFUL expense-flagged records sent by the user
	// with created_at in [from, to).
	SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)
	// TotalsForRange partitions the user's SUCCESSFUL records in [from, to)
	// into funds added (received) and funds spent (sent, expense-flagged).
	TotalsForRange(ctx context.Context, userID string, from, to time.Time) (added, spent decimal.Decimal, err error)
}

type TransactionEvents interface {
	Append(ctx context.Context, ev models.TransactionEvent) error
	ListByTransaction(ctx context.Context, txID string) ([]models.TransactionEvent, error)
}

// Transactor runs fn inside one database transaction. Repository calls made
// with the ctx passed to fn join that transaction; fn returning an error rolls
// everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
