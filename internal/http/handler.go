package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"OTCOfframp/internal/iban"
	"OTCOfframp/internal/models"
	"OTCOfframp/internal/nowpayments"
	"OTCOfframp/internal/quote"
	"OTCOfframp/internal/services"
	"OTCOfframp/internal/store"
	"OTCOfframp/internal/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	Orders  *services.OrderService
	Payouts *services.PayoutService
	Logger  *zap.Logger
}

func NewHandler(orders *services.OrderService, payouts *services.PayoutService, logger *zap.Logger) *Handler {
	return &Handler{Orders: orders, Payouts: payouts, Logger: logger}
}

type setPriceRequest struct {
	TokenSymbol     string          `json:"token_symbol"`
	PriceEUR        decimal.Decimal `json:"price_eur"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
}

type listingResponse struct {
	TokenSymbol     string `json:"token_symbol"`
	PriceEUR        string `json:"price_eur"`
	AvailableAmount string `json:"available_amount"`
	UpdatedAt       string `json:"updated_at"`
}

type createOrderRequest struct {
	TokenSymbol     string          `json:"token_symbol"`
	AmountTokens    decimal.Decimal `json:"amount_tokens"`
	IBAN            string          `json:"iban"`
	BeneficiaryName string          `json:"beneficiary_name"`
	RedirectURL     string          `json:"redirect_url"`
}

type orderResponse struct {
	OrderID          string `json:"order_id"`
	TokenSymbol      string `json:"token_symbol"`
	AmountTokens     string `json:"amount_tokens"`
	PriceEUR         string `json:"price_eur"`
	AmountEUR        string `json:"amount_eur"`
	Status           string `json:"status"`
	ExternalPayoutID string `json:"external_payout_id,omitempty"`
	RedirectURL      string `json:"redirect_url,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type webhookAck struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	listing, err := h.Orders.SetPrice(r.Context(), req.TokenSymbol, req.PriceEUR, req.AvailableAmount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidListing) {
			writeError(w, http.StatusBadRequest, "invalid_listing")
			return
		}
		h.Logger.Error("set price failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

func (h *Handler) Listings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Orders.Listings(r.Context())
	if err != nil {
		h.Logger.Error("list listings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	resp := make([]listingResponse, 0, len(listings))
	for _, listing := range listings {
		resp = append(resp, toListingResponse(listing))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), services.CreateOrderInput{
		TokenSymbol:     req.TokenSymbol,
		AmountTokens:    req.AmountTokens,
		IBAN:            req.IBAN,
		BeneficiaryName: req.BeneficiaryName,
		RedirectURL:     req.RedirectURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrListingNotFound):
			writeError(w, http.StatusNotFound, "listing_not_found")
		case errors.Is(err, quote.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid_amount")
		case errors.Is(err, iban.ErrInvalidIBAN):
			writeError(w, http.StatusBadRequest, "invalid_iban")
		case errors.Is(err, services.ErrMissingBeneficiary):
			writeError(w, http.StatusBadRequest, "missing_beneficiary")
		default:
			h.Logger.Error("create order failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id")
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found")
			return
		}
		h.Logger.Error("get order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListOrders(r.Context())
	if err != nil {
		h.Logger.Error("list orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) TriggerPayout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id")
		return
	}

	order, err := h.Payouts.TriggerPayout(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order_not_found")
		case errors.Is(err, services.ErrAlreadyTriggered):
			writeError(w, http.StatusConflict, "already_triggered")
		case errors.Is(err, services.ErrInvalidState):
			writeError(w, http.StatusConflict, "invalid_state")
		case errors.Is(err, nowpayments.ErrProvider):
			h.Logger.Warn("provider error", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusBadGateway, "provider_error")
		default:
			h.Logger.Error("trigger payout failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id")
		return
	}

	order, err := h.Payouts.CancelOrder(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order_not_found")
		case errors.Is(err, store.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition")
		default:
			h.Logger.Error("cancel order failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Webhook handles the provider's signed IPN. Signature failures get a
// fixed 401 with no detail.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	order, err := h.Payouts.HandleNotification(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			writeError(w, http.StatusUnauthorized, "invalid_signature")
		case errors.Is(err, webhook.ErrMalformedBody), errors.Is(err, webhook.ErrMissingPayoutID):
			writeError(w, http.StatusBadRequest, "invalid_notification")
		case errors.Is(err, services.ErrUnknownPayout):
			writeError(w, http.StatusNotFound, "unknown_payout")
		case errors.Is(err, store.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition")
		default:
			h.Logger.Error("webhook failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	writeJSON(w, http.StatusOK, webhookAck{OK: true, OrderID: order.OrderID, Status: string(order.Status)})
}

func toListingResponse(listing *models.Listing) listingResponse {
	return listingResponse{
		TokenSymbol:     listing.TokenSymbol,
		PriceEUR:        listing.PriceEUR.String(),
		AvailableAmount: listing.AvailableAmount.String(),
		UpdatedAt:       listing.UpdatedAt.Format(time.RFC3339),
	}
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:      order.OrderID,
		TokenSymbol:  order.TokenSymbol,
		AmountTokens: order.AmountTokens.String(),
		PriceEUR:     order.PriceEUR.String(),
		AmountEUR:    order.AmountEUR.StringFixed(2),
		Status:       string(order.Status),
		RedirectURL:  order.RedirectURL,
		CreatedAt:    order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    order.UpdatedAt.Format(time.RFC3339),
	}
	if order.ExternalPayoutID != nil {
		resp.ExternalPayoutID = *order.ExternalPayoutID
	}
	return resp
}
