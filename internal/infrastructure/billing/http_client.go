package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chargeRequestBody struct {
	UserID          int64           `json:"user_id"`
	PaymentMethodID int64           `json:"payment_method_id"`
	Source          string          `json:"source"`
	Amount          decimal.Decimal `json:"amount"`
}

type chargeResponseBody struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("billing base url is empty")
	}

	body, err := json.Marshal(chargeRequestBody{
		UserID:          req.UserID,
		PaymentMethodID: req.PaymentMethodID,
		Source:          req.MethodDetails,
		Amount:          req.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create charge request: %w", err)
	}
	c.setHeaders(httpReq)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute charge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, ErrChargeDeclined
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("billing returned error status %d", resp.StatusCode)
	}

	var out chargeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	if out.Status == "declined" {
		return nil, ErrChargeDeclined
	}
	if out.ID == "" || out.Amount.LessThan(req.Amount) {
		return nil, fmt.Errorf("billing returned incomplete charge %q for %s", out.ID, out.Amount)
	}
	return &Charge{ID: out.ID, Amount: out.Amount}, nil
}

func (c *Client) Refund(ctx context.Context, chargeID string) error {
	url := fmt.Sprintf("%s/charges/%s/refund", c.baseURL, chargeID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Idempotency-Key", "refund-"+chargeID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute refund request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing returned error status %d for refund of %s", resp.StatusCode, chargeID)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
