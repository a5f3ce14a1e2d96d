package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds a user's funds in one currency. Exactly one row exists per
// (user, currency) pair; the amount never goes negative on a committed write.
type Balance struct {
	UserID        string          `json:"user_id"`
	Currency      Currency        `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

// Covers reports whether the balance can be debited by amount.
func (b Balance) Covers(amount decimal.Decimal) bool {
	return b.Amount.GreaterThanOrEqual(amount)
}
