package services

import (
	"context"

	"github.com/velkovb/peerpay-backend/internal/models"
	repo "github.com/velkovb/peerpay-backend/internal/repository"
)

type BalanceService struct{ r repo.Balances }

func NewBalanceService(r repo.Balances) *BalanceService { return &BalanceService{r: r} }

func (s *BalanceService) Current(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	return s.r.GetOrCreate(ctx, userID, currency)
}

func (s *BalanceService) List(ctx context.Context, userID string) ([]models.Balance, error) {
	return s.r.ListByUser(ctx, userID)
}
