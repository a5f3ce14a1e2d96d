package models

import "github.com/shopspring/decimal"

// CardDetails carries externally supplied payment-card data for a deposit.
// Transient: validated, charged and discarded within one operation, never
// persisted or logged.
type CardDetails struct {
	UserID       string          `json:"-"`
	Number       string          `json:"card_number"`
	HolderName   string          `json:"holder_name"`
	ExpiryMonth  int             `json:"expiry_month"`
	ExpiryYear   int             `json:"expiry_year"`
	SecurityCode string          `json:"security_code"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     Currency        `json:"currency"`
}
