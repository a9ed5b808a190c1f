package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/meterline/meterline/internal/application/billing/usecases"
	"github.com/meterline/meterline/internal/shared/config"
	"github.com/meterline/meterline/internal/shared/logger"
)

const (
	// Maximum response body size for provider API responses (256KB)
	maxResponseSize = 256 << 10
	// Transient failures retry with exponential backoff
	maxRequestRetries = 2
	retryBaseWait     = 200 * time.Millisecond
)

// Client is the HTTP client for the external payment provider. Requests
// carry a bearer token; 5xx and transport failures retry with backoff, 4xx
// responses are terminal.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     logger.Interface
}

// NewClient creates a new payment provider client.
func NewClient(cfg *config.PaymentConfig, logger logger.Interface) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// Ensure Client implements PaymentProvider
var _ usecases.PaymentProvider = (*Client)(nil)

type createInvoiceRequest struct {
	CustomerID string `json:"customer_id"`
	Currency   string `json:"currency"`
	AutoCharge bool   `json:"auto_charge"`
}

type createInvoiceResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateInvoice(ctx context.Context, customerID, currency string, autoCharge bool) (string, error) {
	var resp createInvoiceResponse
	err := c.do(ctx, http.MethodPost, "/v1/invoices", createInvoiceRequest{
		CustomerID: customerID,
		Currency:   currency,
		AutoCharge: autoCharge,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to create provider invoice: %w", err)
	}
	return resp.ID, nil
}

type addInvoiceItemRequest struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

func (c *Client) AddInvoiceItem(ctx context.Context, invoiceRef string, item usecases.ProviderInvoiceItem) error {
	path := fmt.Sprintf("/v1/invoices/%s/items", invoiceRef)
	err := c.do(ctx, http.MethodPost, path, addInvoiceItemRequest{
		Description: item.Description,
		Quantity:    item.Quantity.String(),
		UnitAmount:  item.UnitAmount,
		Amount:      item.Amount,
		Currency:    item.Currency,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to add provider invoice item: %w", err)
	}
	return nil
}

func (c *Client) FinalizeInvoice(ctx context.Context, invoiceRef string) error {
	path := fmt.Sprintf("/v1/invoices/%s/finalize", invoiceRef)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to finalize provider invoice: %w", err)
	}
	return nil
}

type paymentMethodDoc struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Last4 string `json:"last4"`
}

type listPaymentMethodsResponse struct {
	Data []paymentMethodDoc `json:"data"`
}

func (c *Client) ListPaymentMethods(ctx context.Context, customerID string) ([]usecases.PaymentMethod, error) {
	path := fmt.Sprintf("/v1/customers/%s/payment_methods", customerID)
	var resp listPaymentMethodsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}

	methods := make([]usecases.PaymentMethod, 0, len(resp.Data))
	for _, d := range resp.Data {
		methods = append(methods, usecases.PaymentMethod{
			ID:    d.ID,
			Type:  d.Type,
			Last4: d.Last4,
		})
	}
	return methods, nil
}

// do executes one provider call with bounded retries on transport errors
// and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = raw
	}

	backoff := retry.WithMaxRetries(maxRequestRetries, retry.NewExponential(retryBaseWait))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warnw("provider request failed", "method", method, "path", path, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode >= 500 {
			c.logger.Warnw("provider returned server error",
				"method", method, "path", path, "status", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))
		}

		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to decode provider response: %w", err)
			}
		}
		return nil
	})
}
