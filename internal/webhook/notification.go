package webhook

import (
	"encoding/json"
	"errors"
	"strings"

	"OTCOfframp/internal/models"
)

var (
	ErrMalformedBody   = errors.New("malformed notification body")
	ErrMissingPayoutID = errors.New("notification missing payout id")
)

// Notification is the parsed IPN payload. The provider reports the payout
// id either as payout_id or id depending on endpoint, and as either a JSON
// string or a number.
type Notification struct {
	PayoutID     string
	PayoutStatus string
}

type ipnBody struct {
	PayoutID     json.RawMessage `json:"payout_id"`
	ID           json.RawMessage `json:"id"`
	PayoutStatus string          `json:"payout_status"`
}

func ParseNotification(body []byte) (Notification, error) {
	var raw ipnBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return Notification{}, ErrMalformedBody
	}
	payoutID := rawString(raw.PayoutID)
	if payoutID == "" {
		payoutID = rawString(raw.ID)
	}
	if payoutID == "" {
		return Notification{}, ErrMissingPayoutID
	}
	return Notification{
		PayoutID:     payoutID,
		PayoutStatus: strings.ToLower(strings.TrimSpace(raw.PayoutStatus)),
	}, nil
}

// TerminalStatus maps the provider's payout_status onto an order terminal
// state. Intermediate provider states (waiting, sending, ...) map to no
// transition and are acknowledged without effect.
func (n Notification) TerminalStatus() (models.OrderStatus, bool) {
	switch n.PayoutStatus {
	case "finished", "success", "succeeded":
		return models.OrderCompleted, true
	case "failed", "rejected", "expired":
		return models.OrderFailed, true
	}
	return "", false
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
