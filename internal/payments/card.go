// Package payments holds the stateless card checks and the external
// authorization seam used by the deposit path.
package payments

import (
	"strings"
	"time"

	"github.com/velkovb/peerpay-backend/internal/models"
)

// ValidateCard checks externally supplied card details: the number must be
// exactly 16 digits after stripping whitespace and pass the Luhn checksum,
// and the expiry year-month must not lie in the past.
func ValidateCard(card models.CardDetails, now time.Time) bool {
	num := strings.Join(strings.Fields(card.Number), "")
	if len(num) != 16 {
		return false
	}
	if !passesLuhn(num) {
		return false
	}
	return !expired(card.ExpiryYear, card.ExpiryMonth, now)
}

// passesLuhn implements the standard mod-10 check: double every second digit
// from the rightmost, subtract 9 when above 9, sum everything.
func passesLuhn(number string) bool {
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if alternate {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alternate = !alternate
	}
	return sum%10 == 0
}

// expired compares at year-month granularity; a card expiring this month is
// still valid.
func expired(year, month int, now time.Time) bool {
	if month < 1 || month > 12 {
		return true
	}
	if year < now.Year() {
		return true
	}
	return year == now.Year() && time.Month(month) < now.Month()
}
