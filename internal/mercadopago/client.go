// Package mercadopago integrates pedidos with the Mercado Pago
// checkout-preference API.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 8 * time.Second

	// Boleto-style payments are always excluded from generated preferences.
	// This is a business rule, not a per-request option.
	excludedPaymentType = "ticket"
)

// Config carries the deployment settings the client needs. It is passed in at
// construction; the client never reads the environment.
type Config struct {
	AccessToken string
	WebhookURL  string
	BaseURL     string        // defaults to the production API host
	Timeout     time.Duration // per-call HTTP timeout
}

// Client issues preference-creation and payment-lookup calls.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a client from explicit configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// PreferenceOrder is the slice of a pedido the preference request needs.
// Declared here so the adapter does not depend on the storage package.
type PreferenceOrder struct {
	ID         string
	Produtos   []PreferenceProduto
	PayerNome  string
	PayerEmail string
}

// PreferenceProduto is one line item of a PreferenceOrder.
type PreferenceProduto struct {
	Nome  string
	Preco float64
}

// PreferenceResult is the gateway's reply, passed through unmodified: the
// HTTP status code and the decoded response body. The client performs no
// success/failure interpretation of its own.
type PreferenceResult struct {
	StatusCode int
	Body       map[string]interface{}
}

// CheckoutURL extracts the sandbox checkout link present on a 201 reply.
func (r PreferenceResult) CheckoutURL() (string, bool) {
	u, ok := r.Body["sandbox_init_point"].(string)
	return u, ok && u != ""
}

// Message extracts the human-readable message carried on failure replies.
func (r PreferenceResult) Message() string {
	if m, ok := r.Body["message"].(string); ok {
		return m
	}
	return ""
}

type preferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type preferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type excludedType struct {
	ID string `json:"id"`
}

type preferencePaymentMethods struct {
	ExcludedPaymentTypes []excludedType `json:"excluded_payment_types"`
}

type preferenceRequest struct {
	Items             []preferenceItem         `json:"items"`
	Payer             *preferencePayer         `json:"payer,omitempty"`
	ExternalReference string                   `json:"external_reference"`
	NotificationURL   string                   `json:"notification_url,omitempty"`
	PaymentMethods    preferencePaymentMethods `json:"payment_methods"`
}

// CreatePreference builds a checkout preference from the pedido and issues a
// single synchronous call: one item per produto (quantity 1, unit price =
// preco), payer from the cliente when present, external_reference = pedido
// id, the configured notification URL, and the fixed payment-type exclusion.
func (c *Client) CreatePreference(ctx context.Context, order PreferenceOrder) (PreferenceResult, error) {
	items := make([]preferenceItem, 0, len(order.Produtos))
	for _, p := range order.Produtos {
		items = append(items, preferenceItem{
			Title:     p.Nome,
			Quantity:  1,
			UnitPrice: p.Preco,
		})
	}

	req := preferenceRequest{
		Items:             items,
		ExternalReference: order.ID,
		NotificationURL:   c.cfg.WebhookURL,
		PaymentMethods: preferencePaymentMethods{
			ExcludedPaymentTypes: []excludedType{{ID: excludedPaymentType}},
		},
	}
	if order.PayerNome != "" || order.PayerEmail != "" {
		req.Payer = &preferencePayer{Name: order.PayerNome, Email: order.PayerEmail}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("marshal preference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("build preference request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("create preference: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("read preference response: %w", err)
	}
	decoded := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return PreferenceResult{}, fmt.Errorf("decode preference response (status %d): %w", resp.StatusCode, err)
		}
	}
	return PreferenceResult{StatusCode: resp.StatusCode, Body: decoded}, nil
}

// Payment is the subset of a Mercado Pago payment the worker needs to apply
// a webhook notification: its approval status and the pedido id that was set
// as external_reference when the preference was created.
type Payment struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"` // approved | rejected | ...
	ExternalReference string `json:"external_reference"`
}

// Payment status values the worker acts on.
const (
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// GetPayment fetches one payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payment{}, fmt.Errorf("read payment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := map[string]interface{}{}
		_ = json.Unmarshal(raw, &msg)
		if m, ok := msg["message"].(string); ok && m != "" {
			return Payment{}, fmt.Errorf("get payment %s: status %d: %s", id, resp.StatusCode, m)
		}
		return Payment{}, fmt.Errorf("get payment %s: status %d", id, resp.StatusCode)
	}

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payment{}, fmt.Errorf("decode payment response: %w", err)
	}
	return p, nil
}
