// Package nowpayments is a minimal client for the provider's EUR bank
// payout API. The provider exposes the same operation on /payout or
// /payouts depending on account, so failed submissions on the first
// endpoint are retried once on the second.
package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrProvider marks any failure reported by or while reaching the
// provider. Callers must leave order state untouched when they see it.
var ErrProvider = errors.New("payout provider error")

type Client struct {
	baseURL string
	apiKey  string
	jwt     string
	client  *http.Client
}

func NewClient(baseURL, apiKey, jwt string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		jwt:     jwt,
		client:  &http.Client{Timeout: timeout},
	}
}

type PayoutRequest struct {
	AmountEUR       decimal.Decimal
	IBAN            string
	BeneficiaryName string
	Reference       string
}

type withdrawal struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Address  string `json:"address"`
	ExtraID  string `json:"extra_id,omitempty"`
	CustomID string `json:"custom_id,omitempty"`
}

type payoutPayload struct {
	Withdrawals []withdrawal `json:"withdrawals"`
}

// CreateBankPayout submits one SEPA withdrawal and returns the provider's
// payout id. A 2xx response without a recognizable payout id is treated as
// a provider error; nothing is retried beyond the documented endpoint
// fallback.
func (c *Client) CreateBankPayout(ctx context.Context, req PayoutRequest) (string, error) {
	payload := payoutPayload{
		Withdrawals: []withdrawal{{
			Amount:   req.AmountEUR.StringFixed(2),
			Currency: "eur",
			Address:  req.IBAN,
			ExtraID:  req.BeneficiaryName,
			CustomID: req.Reference,
		}},
	}

	res, status, err := c.postJSON(ctx, "/payout", payload)
	if err != nil {
		return "", err
	}
	if fallbackStatus(status) {
		res, status, err = c.postJSON(ctx, "/payouts", payload)
		if err != nil {
			return "", err
		}
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: http status %d", ErrProvider, status)
	}

	payoutID := extractPayoutID(res)
	if payoutID == "" {
		return "", fmt.Errorf("%w: response without payout id", ErrProvider)
	}
	return payoutID, nil
}

func fallbackStatus(status int) bool {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (map[string]any, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	var out map[string]any
	if len(data) > 0 {
		// Some error responses are not JSON; keep the status and move on.
		_ = json.Unmarshal(data, &out)
	}
	return out, resp.StatusCode, nil
}

// extractPayoutID handles the response shapes seen in the wild: a top
// level payout_id or id, or a withdrawals/payouts batch whose first entry
// carries the id.
func extractPayoutID(res map[string]any) string {
	if res == nil {
		return ""
	}
	if id := stringField(res, "payout_id"); id != "" {
		return id
	}
	if id := stringField(res, "id"); id != "" {
		return id
	}
	for _, key := range []string{"withdrawals", "payouts"} {
		batch, ok := res[key].([]any)
		if !ok || len(batch) == 0 {
			continue
		}
		first, ok := batch[0].(map[string]any)
		if !ok {
			continue
		}
		if id := stringField(first, "id"); id != "" {
			return id
		}
		if id := stringField(first, "payout_id"); id != "" {
			return id
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
