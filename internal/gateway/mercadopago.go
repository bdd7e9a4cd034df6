// Package gateway wraps the MercadoPago PIX payments REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"

	// DefaultExpiryMinutes is the server-side charge lifetime. Expired
	// charges can never be confirmed; the adapter does not retry past it.
	DefaultExpiryMinutes = 30
)

// Provider-side charge statuses the reconciler branches on.
const (
	ChargeStatusPending   = "pending"
	ChargeStatusApproved  = "approved"
	ChargeStatusRejected  = "rejected"
	ChargeStatusCancelled = "cancelled"
	ChargeStatusExpired   = "expired"
)

// GatewayError is a typed provider failure (4xx/5xx). Callers decide
// whether to fall back to the manual-PIX flow.
type GatewayError struct {
	StatusCode      int
	ProviderMessage string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.ProviderMessage)
}

// ChargeRequest describes one PIX charge to create.
type ChargeRequest struct {
	Amount            float64
	Description       string
	ExternalReference string

	PayerName  string
	PayerEmail string
	PayerPhone string

	// Arbitrary charge metadata; the booking flow stores the whole form
	// payload here so the appointment can be rebuilt from the webhook.
	Metadata map[string]any

	// Zero means DefaultExpiryMinutes.
	ExpiryMinutes int
}

// Charge is the provider's view of a payment.
type Charge struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            float64
	QRCode            string
	QRCodeImage       string
	ExpiresAt         time.Time
	Metadata          map[string]any
	Raw               json.RawMessage
}

type Charger interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*Charge, error)
}

type Client struct {
	BaseURL     string
	AccessToken string
	HTTP        *http.Client

	// now is swappable in tests for deterministic idempotency keys.
	now func() time.Time
}

func NewClient(accessToken string) *Client {
	return &Client{
		BaseURL:     defaultBaseURL,
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
	}
}

type chargePayload struct {
	TransactionAmount float64        `json:"transaction_amount"`
	Description       string         `json:"description"`
	PaymentMethodID   string         `json:"payment_method_id"`
	ExternalReference string         `json:"external_reference"`
	DateOfExpiration  string         `json:"date_of_expiration"`
	Payer             chargePayer    `json:"payer"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type chargePayer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

type chargeResponse struct {
	ID                 json.Number    `json:"id"`
	Status             string         `json:"status"`
	ExternalReference  string         `json:"external_reference"`
	TransactionAmount  float64        `json:"transaction_amount"`
	DateOfExpiration   string         `json:"date_of_expiration"`
	Metadata           map[string]any `json:"metadata"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	Message string `json:"message"`
}

func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	expiry := req.ExpiryMinutes
	if expiry <= 0 {
		expiry = DefaultExpiryMinutes
	}
	now := c.now()

	payload := chargePayload{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
		DateOfExpiration:  now.Add(time.Duration(expiry) * time.Minute).Format(time.RFC3339),
		Payer: chargePayer{
			Email:     req.PayerEmail,
			FirstName: req.PayerName,
		},
		Metadata: req.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal charge payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)
	// Unique per attempt: provider-side retries must not duplicate charges.
	httpReq.Header.Set("X-Idempotency-Key", fmt.Sprintf("%s-%d", req.ExternalReference, now.UnixNano()))

	return c.do(httpReq)
}

func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/payments/"+chargeID, nil)
	if err != nil {
		return nil, fmt.Errorf("build get-charge request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*Charge, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mercadopago response: %w", err)
	}

	var decoded chargeResponse
	if len(raw) > 0 {
		// Ignore decode errors on failure bodies; the status code decides.
		_ = json.Unmarshal(raw, &decoded)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, ProviderMessage: msg}
	}

	charge := &Charge{
		ID:                decoded.ID.String(),
		Status:            decoded.Status,
		ExternalReference: decoded.ExternalReference,
		Amount:            decoded.TransactionAmount,
		QRCode:            decoded.PointOfInteraction.TransactionData.QRCode,
		QRCodeImage:       decoded.PointOfInteraction.TransactionData.QRCodeBase64,
		Metadata:          decoded.Metadata,
		Raw:               raw,
	}
	if decoded.DateOfExpiration != "" {
		if at, perr := time.Parse(time.RFC3339, decoded.DateOfExpiration); perr == nil {
			charge.ExpiresAt = at
		}
	}

	return charge, nil
}
