package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/models"
	repo "github.com/velkovb/peerpay-backend/internal/repository"
)

// BudgetService owns the active spending budget and the remaining-allowance
// computation. Budget enforcement during a transfer lives in TransferService;
// this service covers the management surface around it.
type BudgetService struct {
	budgets repo.Budgets
	users   repo.Users
	trx     repo.Transactions
	txr     repo.Transactor
}

func NewBudgetService(budgets repo.Budgets, users repo.Users, trx repo.Transactions, txr repo.Transactor) *BudgetService {
	return &BudgetService{budgets: budgets, users: users, trx: trx, txr: txr}
}

// Current returns the budget with the latest end date, or models.ErrNoBudget.
func (s *BudgetService) Current(ctx context.Context, userID string) (models.Budget, error) {
	return s.budgets.Current(ctx, userID)
}

// Remaining computes the current budget's limit minus the expense spend inside
// its window [start, end+1d).
func (s *BudgetService) Remaining(ctx context.Context, userID string) (decimal.Decimal, error) {
	budget, err := s.budgets.Current(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	spent, err := s.trx.SumExpenses(ctx, userID, budget.StartDate, budget.WindowEnd())
	if err != nil {
		return decimal.Zero, err
	}
	return budget.Limit.Sub(spent), nil
}

// Create persists the budget and flips the user's budgeting flag inside the
// same database transaction.
func (s *BudgetService) Create(ctx context.Context, userID string, limit decimal.Decimal, start, end time.Time) (models.Budget, error) {
	b := models.Budget{UserID: userID, Limit: limit, StartDate: start, EndDate: end}
	if err := b.Validate(); err != nil {
		return models.Budget{}, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return models.Budget{}, err
	}

	var created models.Budget
	err := s.txr.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if created, err = s.budgets.Create(ctx, b); err != nil {
			return err
		}
		return s.users.SetBudgetingEnabled(ctx, userID, true)
	})
	if err != nil {
		return models.Budget{}, err
	}
	return created, nil
}

// Delete removes the budget and, when it was the user's last one, flips the
// budgeting flag off in the same transaction.
func (s *BudgetService) Delete(ctx context.Context, userID, budgetID string) error {
	b, err := s.budgets.GetByID(ctx, budgetID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return models.ErrNotFound
	}
	return s.txr.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.budgets.Delete(ctx, budgetID); err != nil {
			return err
		}
		n, err := s.budgets.CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return s.users.SetBudgetingEnabled(ctx, userID, false)
		}
		return nil
	})
}
