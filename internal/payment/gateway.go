package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/text/currency"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

// Intent is the gateway-side payment order the client completes against.
type Intent struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// Gateway is the boundary to the external payment provider. Only the
// request/response contract is consumed here.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, cur string, notes map[string]string) (Intent, error)
	// Refund moves money back for a captured payment; returns the gateway refund id.
	Refund(ctx context.Context, transactionID string, amountMinor int64) (string, error)
}

// Client talks to a Razorpay-style REST API with basic auth.
type Client struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	HTTP      *http.Client
	Name      string // gateway name recorded on orders
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTP:      &http.Client{Timeout: timeout},
		Name:      "razorpay",
	}
}

func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, cur string, notes map[string]string) (Intent, error) {
	if amountMinor <= 0 {
		return Intent{}, apperr.New(apperr.KindValidation, "amount must be positive")
	}
	if _, err := currency.ParseISO(cur); err != nil {
		return Intent{}, apperr.Newf(apperr.KindValidation, "invalid currency %q", cur)
	}

	body := map[string]any{"amount": amountMinor, "currency": cur, "notes": notes}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/orders", body, &out); err != nil {
		return Intent{}, err
	}
	return Intent{ID: out.ID, AmountMinor: amountMinor, Currency: cur}, nil
}

func (c *Client) Refund(ctx context.Context, transactionID string, amountMinor int64) (string, error) {
	if transactionID == "" {
		return "", apperr.New(apperr.KindValidation, "missing transaction id")
	}
	if amountMinor <= 0 {
		return "", apperr.New(apperr.KindValidation, "refund amount must be positive")
	}

	body := map[string]any{"amount": amountMinor}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/payments/"+transactionID+"/refund", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// post maps timeouts and provider 5xx to a retryable gateway error and never
// leaks credentials into returned errors.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return apperr.Wrap(apperr.KindGateway, "payment gateway timeout", err)
		}
		return apperr.Wrap(apperr.KindGateway, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperr.Newf(apperr.KindGateway, "payment gateway error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return apperr.Newf(apperr.KindValidation, "payment gateway rejected request: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
