package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderQuoted        OrderStatus = "quoted"
	OrderPayoutPending OrderStatus = "payout_pending"
	OrderCompleted     OrderStatus = "completed"
	OrderFailed        OrderStatus = "failed"
	OrderCancelled     OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderCompleted, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge from -> to exists in the order
// state machine. Self-edges are not edges; idempotent re-application is
// handled by the store.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderQuoted:
		return to == OrderPayoutPending || to == OrderCancelled
	case OrderPayoutPending:
		return to == OrderCompleted || to == OrderFailed || to == OrderCancelled
	}
	return false
}

type Listing struct {
	TokenSymbol     string
	PriceEUR        decimal.Decimal
	AvailableAmount decimal.Decimal
	UpdatedAt       time.Time
}

type Order struct {
	OrderID          string
	TokenSymbol      string
	AmountTokens     decimal.Decimal
	PriceEUR         decimal.Decimal
	AmountEUR        decimal.Decimal
	IBAN             string
	BeneficiaryName  string
	RedirectURL      string
	Status           OrderStatus
	ExternalPayoutID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
