package services

import (
	"context"
	"errors"
	"strings"

	"OTCOfframp/internal/iban"
	"OTCOfframp/internal/models"
	"OTCOfframp/internal/quote"
	"OTCOfframp/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidListing     = errors.New("invalid listing")
	ErrMissingBeneficiary = errors.New("missing beneficiary name")
)

type OrderService struct {
	Store  *store.Store
	Logger *zap.Logger
}

type CreateOrderInput struct {
	TokenSymbol     string
	AmountTokens    decimal.Decimal
	IBAN            string
	BeneficiaryName string
	RedirectURL     string
}

// SetPrice creates or overwrites the OTC listing for a token. Last write
// wins; no history is kept.
func (s *OrderService) SetPrice(ctx context.Context, tokenSymbol string, priceEUR, availableAmount decimal.Decimal) (*models.Listing, error) {
	tokenSymbol = normalizeSymbol(tokenSymbol)
	if tokenSymbol == "" || priceEUR.Sign() <= 0 || availableAmount.Sign() < 0 {
		return nil, ErrInvalidListing
	}
	listing, err := s.Store.UpsertListing(ctx, &models.Listing{
		TokenSymbol:     tokenSymbol,
		PriceEUR:        priceEUR,
		AvailableAmount: availableAmount,
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("listing set",
		zap.String("token", listing.TokenSymbol),
		zap.String("price_eur", listing.PriceEUR.String()),
		zap.String("available", listing.AvailableAmount.String()))
	return listing, nil
}

func (s *OrderService) Listings(ctx context.Context) ([]*models.Listing, error) {
	return s.Store.ListListings(ctx)
}

// CreateOrder quotes amount_tokens against the current listing and
// persists a new order in quoted state. The EUR amount is a snapshot;
// later listing changes never touch it. Any validation failure leaves the
// ledger untouched.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	tokenSymbol := normalizeSymbol(in.TokenSymbol)
	if tokenSymbol == "" {
		return nil, store.ErrListingNotFound
	}
	if err := iban.Validate(in.IBAN); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.BeneficiaryName) == "" {
		return nil, ErrMissingBeneficiary
	}

	listing, err := s.Store.GetListing(ctx, tokenSymbol)
	if err != nil {
		return nil, err
	}
	amountEUR, err := quote.Calculate(listing, in.AmountTokens)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderID:         uuid.NewString(),
		TokenSymbol:     tokenSymbol,
		AmountTokens:    in.AmountTokens,
		PriceEUR:        listing.PriceEUR,
		AmountEUR:       amountEUR,
		IBAN:            iban.Normalize(in.IBAN),
		BeneficiaryName: strings.TrimSpace(in.BeneficiaryName),
		RedirectURL:     strings.TrimSpace(in.RedirectURL),
		Status:          models.OrderQuoted,
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.Logger.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.String("token", order.TokenSymbol),
		zap.String("amount_eur", order.AmountEUR.String()))
	return s.Store.GetOrder(ctx, order.OrderID)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return s.Store.ListOrders(ctx)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
