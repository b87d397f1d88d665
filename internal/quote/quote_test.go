package quote

import (
	"errors"
	"testing"

	"OTCOfframp/internal/models"

	"github.com/shopspring/decimal"
)

func listing(price, available string) *models.Listing {
	return &models.Listing{
		TokenSymbol:     "NENO",
		PriceEUR:        decimal.RequireFromString(price),
		AvailableAmount: decimal.RequireFromString(available),
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		available string
		amount    string
		want      string
	}{
		{"neno scenario", "5000", "1000000", "1000", "5000000.00"},
		{"fractional price", "0.015", "1000000", "100", "1.50"},
		{"rounds half up", "0.005", "1000000", "1", "0.01"},
		{"rounds down below half", "0.0049", "1000000", "1", "0.00"},
		{"exact cents untouched", "2.50", "1000000", "3", "7.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(listing(tt.price, tt.available), decimal.RequireFromString(tt.amount))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.StringFixed(2) != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.StringFixed(2))
			}
		})
	}
}

func TestCalculateInvalidAmount(t *testing.T) {
	l := listing("5000", "1000")

	for _, amount := range []string{"0", "-1", "1000.0001"} {
		_, err := Calculate(l, decimal.RequireFromString(amount))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCalculateFullSupplyAllowed(t *testing.T) {
	got, err := Calculate(listing("2", "500"), decimal.RequireFromString("500"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StringFixed(2) != "1000.00" {
		t.Fatalf("expected 1000.00, got %s", got.StringFixed(2))
	}
}
