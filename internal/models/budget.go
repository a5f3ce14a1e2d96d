package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Budget caps a user's expense spend within [StartDate, EndDate]. The budget
// with the latest end date is the user's current one.
type Budget struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Limit     decimal.Decimal `json:"limit"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	CreatedAt time.Time       `json:"created_at"`
}

func (b *Budget) Validate() error {
	if b.Limit.IsNegative() {
		return errors.New("budget limit must not be negative")
	}
	if b.EndDate.Before(b.StartDate) {
		return errors.New("budget end date before start date")
	}
	return nil
}

// WindowEnd is the exclusive upper bound of the budget window. The extra day
// widens the boundary so spend on the end date itself still counts.
func (b *Budget) WindowEnd() time.Time {
	return b.EndDate.AddDate(0, 0, 1)
}

// InWindow reports whether ts falls inside [StartDate, EndDate+1d).
func (b *Budget) InWindow(ts time.Time) bool {
	return !ts.Before(b.StartDate) && ts.Before(b.WindowEnd())
}
