package services

import (
	"context"
	"errors"

	"OTCOfframp/internal/models"
	"OTCOfframp/internal/nowpayments"
	"OTCOfframp/internal/store"
	"OTCOfframp/internal/webhook"

	"go.uber.org/zap"
)

var (
	ErrInvalidState     = errors.New("order not in quoted state")
	ErrAlreadyTriggered = errors.New("payout already triggered")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownPayout    = errors.New("unknown payout id")
)

// PayoutProvider is the external payout call. Implemented by
// nowpayments.Client; faked in tests.
type PayoutProvider interface {
	CreateBankPayout(ctx context.Context, req nowpayments.PayoutRequest) (string, error)
}

// StatusPublisher receives order state changes for the advisory status
// stream. May be nil.
type StatusPublisher interface {
	PublishOrderStatus(order *models.Order)
}

type PayoutService struct {
	Store     *store.Store
	Provider  PayoutProvider
	IPNSecret string
	Publisher StatusPublisher
	Logger    *zap.Logger

	triggers keyedLocks
}

// TriggerPayout initiates the SEPA transfer for a quoted order and moves
// it to payout_pending with the provider's payout id. The per-order lock
// is held across the status check, the provider call and the transition,
// so concurrent duplicate triggers produce exactly one provider call; the
// losers observe AlreadyTriggered. A provider failure leaves the order in
// quoted state and is not retried.
func (s *PayoutService) TriggerPayout(ctx context.Context, orderID string) (*models.Order, error) {
	unlock := s.triggers.lock(orderID)
	defer unlock()

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.OrderQuoted:
	case models.OrderPayoutPending:
		return nil, ErrAlreadyTriggered
	default:
		return nil, ErrInvalidState
	}

	payoutID, err := s.Provider.CreateBankPayout(ctx, nowpayments.PayoutRequest{
		AmountEUR:       order.AmountEUR,
		IBAN:            order.IBAN,
		BeneficiaryName: order.BeneficiaryName,
		Reference:       order.OrderID,
	})
	if err != nil {
		s.Logger.Warn("payout trigger failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	updated, err := s.Store.TransitionOrder(ctx, orderID, models.OrderPayoutPending, &payoutID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, ErrAlreadyTriggered
		}
		return nil, err
	}

	s.Logger.Info("payout triggered",
		zap.String("order_id", updated.OrderID),
		zap.String("payout_id", payoutID))
	s.publish(updated)
	return updated, nil
}

// CancelOrder is the administrative cancel edge. Orders already terminal
// stay as they are and the caller sees the state machine violation.
func (s *PayoutService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	unlock := s.triggers.lock(orderID)
	defer unlock()

	updated, err := s.Store.TransitionOrder(ctx, orderID, models.OrderCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("order cancelled", zap.String("order_id", updated.OrderID))
	s.publish(updated)
	return updated, nil
}

// HandleNotification reconciles one signed IPN delivery. Signature
// verification happens before anything else; a bad signature mutates
// nothing and reveals nothing. Redelivered notifications for an already
// terminal order are accepted as no-ops.
func (s *PayoutService) HandleNotification(ctx context.Context, body []byte, signature string) (*models.Order, error) {
	if !webhook.VerifySignature(body, signature, s.IPNSecret) {
		return nil, ErrInvalidSignature
	}

	n, err := webhook.ParseNotification(body)
	if err != nil {
		return nil, err
	}

	order, err := s.Store.GetOrderByPayoutID(ctx, n.PayoutID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrUnknownPayout
		}
		return nil, err
	}

	target, ok := n.TerminalStatus()
	if !ok {
		// Intermediate provider state; acknowledged, no transition.
		return order, nil
	}

	prev := order.Status
	updated, err := s.Store.TransitionOrder(ctx, order.OrderID, target, &n.PayoutID)
	if err != nil {
		return nil, err
	}

	if updated.Status != prev {
		s.Logger.Info("payout reconciled",
			zap.String("order_id", updated.OrderID),
			zap.String("payout_id", n.PayoutID),
			zap.String("status", string(updated.Status)))
		s.publish(updated)
	}
	return updated, nil
}

func (s *PayoutService) publish(order *models.Order) {
	if s.Publisher != nil {
		s.Publisher.PublishOrderStatus(order)
	}
}
