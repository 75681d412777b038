package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses as reported by the payment provider. Only approved
// payments are ever credited.
const (
	PaymentStatusApproved = "approved"
	PaymentStatusPending  = "pending"
	PaymentStatusRejected = "rejected"
)

// PaymentClient talks to the Mercado Pago style payment API: checkout
// preference creation plus the payment/order read endpoints the reconciler
// uses to re-resolve notifications from the source of truth.
type PaymentClient struct {
	BaseURL     string
	AccessToken string

	HTTPClient *http.Client
}

func NewPaymentClient(baseURL, accessToken string) *PaymentClient {
	return &PaymentClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Payment is the authoritative transaction record resolved by id.
// AccountID comes from the checkout metadata; zero when the provider has no
// attribution for the payment.
type Payment struct {
	ID                string
	Status            string
	TransactionAmount decimal.Decimal
	ExternalReference string
	AccountID         int64
}

// OrderPayment is one payment reference inside a merchant order.
type OrderPayment struct {
	ID     string
	Status string
}

// CheckoutSpec is what the billing service asks the provider to create.
type CheckoutSpec struct {
	AccountID         int64
	Amount            decimal.Decimal
	Title             string
	ExternalReference string
	NotificationURL   string
}

// CheckoutResult is the created preference the user gets redirected to.
type CheckoutResult struct {
	PreferenceID string
	InitPoint    string
}

// CreateCheckout creates a checkout preference carrying the account id in
// metadata so approved payments can be attributed back during reconciliation.
func (c *PaymentClient) CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutResult, error) {
	payload := map[string]any{
		"items": []map[string]any{{
			"title":       spec.Title,
			"quantity":    1,
			"currency_id": "BRL",
			// json.Number keeps the price a plain JSON number; decimal's own
			// MarshalJSON would quote it.
			"unit_price": json.Number(spec.Amount.String()),
		}},
		"metadata": map[string]any{
			"account_id": spec.AccountID,
		},
		"external_reference": spec.ExternalReference,
	}
	if spec.NotificationURL != "" {
		payload["notification_url"] = spec.NotificationURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid preference response: %v", ErrUnavailable, err)
	}
	if resp.ID == "" {
		return nil, &RejectedError{Reason: "preference response missing id"}
	}
	return &CheckoutResult{PreferenceID: resp.ID, InitPoint: resp.InitPoint}, nil
}

// ResolvePayment fetches the authoritative payment record by id. The
// notification body is never trusted for status or amount; this is.
func (c *PaymentClient) ResolvePayment(ctx context.Context, id string) (*Payment, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID                json.Number     `json:"id"`
		Status            string          `json:"status"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
		ExternalReference string          `json:"external_reference"`
		Metadata          map[string]any  `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid payment response: %v", ErrUnavailable, err)
	}

	p := &Payment{
		ID:                resp.ID.String(),
		Status:            resp.Status,
		TransactionAmount: resp.TransactionAmount,
		ExternalReference: resp.ExternalReference,
	}
	if p.ID == "" || p.ID == "0" {
		p.ID = id
	}
	if accountID, ok := accountIDFromMetadata(resp.Metadata); ok {
		p.AccountID = accountID
	}
	return p, nil
}

// ResolveOrder fetches a merchant order and returns its payment references.
func (c *PaymentClient) ResolveOrder(ctx context.Context, id string) ([]OrderPayment, error) {
	raw, err := c.do(ctx, http.MethodGet, "/merchant_orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Payments []struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"payments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid order response: %v", ErrUnavailable, err)
	}

	payments := make([]OrderPayment, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		payments = append(payments, OrderPayment{ID: p.ID.String(), Status: p.Status})
	}
	return payments, nil
}

func (c *PaymentClient) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &RejectedError{Reason: fmt.Sprintf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	return raw, nil
}

// accountIDFromMetadata tolerates both numeric and string account ids; the
// provider does not guarantee type preservation across checkout and webhook.
func accountIDFromMetadata(md map[string]any) (int64, bool) {
	v, ok := md["account_id"]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return 0, false
		}
		return int64(t), true
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	case json.Number:
		id, err := t.Int64()
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// ResourceID extracts the trailing identifier from a notification resource,
// which arrives either as a bare id or as a full resource URL
// ("https://api.../merchant_orders/123").
func ResourceID(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return ""
	}
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	resource = strings.TrimRight(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		resource = resource[i+1:]
	}
	return resource
}
