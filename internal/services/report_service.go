package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	repo "github.com/velkovb/peerpay-backend/internal/repository"
)

// ReportService reduces the user's ledger into spent/added totals. Read-only;
// it never mutates state and tolerates an empty ledger with zero totals.
type ReportService struct{ trx repo.Transactions }

func NewReportService(trx repo.Transactions) *ReportService { return &ReportService{trx: trx} }

type RangeTotals struct {
	TotalAdded decimal.Decimal `json:"total_added"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// TotalsForRange sums the user's successful records in [start, end+1d),
// partitioned by direction. The widened end boundary includes the full end
// date.
func (s *ReportService) TotalsForRange(ctx context.Context, userID string, start, end time.Time) (RangeTotals, error) {
	added, spent, err := s.trx.TotalsForRange(ctx, userID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return RangeTotals{}, err
	}
	return RangeTotals{TotalAdded: added, TotalSpent: spent}, nil
}
