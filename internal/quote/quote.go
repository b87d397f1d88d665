package quote

import (
	"errors"

	"OTCOfframp/internal/models"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// EUR amounts are quoted to cents.
const eurPrecision = 2

// Calculate derives the EUR amount for selling amountTokens against the
// given listing: amountTokens * price_eur, rounded half-up to cents so the
// seller is never systematically underpaid. The listing's available_amount
// is an upper bound on a single order; it is not reserved, so concurrent
// orders are not checked against each other.
func Calculate(listing *models.Listing, amountTokens decimal.Decimal) (decimal.Decimal, error) {
	if amountTokens.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if amountTokens.GreaterThan(listing.AvailableAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amountTokens.Mul(listing.PriceEUR).Round(eurPrecision), nil
}
