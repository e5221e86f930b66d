package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Клиент REST API платёжной сети мгновенных переводов.
// Реализует и приём депозитов (charge intents), и исходящие выплаты.

type APIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

const defaultRequestTimeout = 15 * time.Second

func NewAPIClient(cfg APIClientConfig) (*APIClient, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, errors.New("invalid payment API configuration: base URL and API key are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &APIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

var _ PaymentGateway = (*APIClient)(nil)
var _ PayoutAdapter = (*APIClient)(nil)

type chargeIntentRequest struct {
	Amount        string `json:"amount"`
	PayerIdentity string `json:"payer_identity"`
}

type chargeIntentResponse struct {
	Reference       string `json:"reference"`
	DisplayableCode string `json:"displayable_code"`
	QRImageBase64   string `json:"qr_image_base64"`
}

func (c *APIClient) CreateChargeIntent(ctx context.Context, amount decimal.Decimal, payerIdentity string) (*ChargeIntent, error) {
	var resp chargeIntentResponse
	err := c.post(ctx, "/v1/charge-intents", chargeIntentRequest{
		Amount:        amount.StringFixed(2),
		PayerIdentity: payerIdentity,
	}, &resp)
	if err != nil {
		return nil, err
	}

	var rawImage []byte
	if resp.QRImageBase64 != "" {
		rawImage, err = base64.StdEncoding.DecodeString(resp.QRImageBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode charge intent QR image: %w", err)
		}
	}

	return &ChargeIntent{
		Reference:       resp.Reference,
		DisplayableCode: resp.DisplayableCode,
		RawImage:        rawImage,
	}, nil
}

type transferRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	Description string `json:"description"`
}

type transferResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transfer_id"`
	Error      string `json:"error"`
}

func (c *APIClient) Transfer(ctx context.Context, amount decimal.Decimal, destination, description string) (*TransferResult, error) {
	var resp transferResponse
	err := c.post(ctx, "/v1/transfers", transferRequest{
		Amount:      amount.StringFixed(2),
		Destination: destination,
		Description: description,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &TransferResult{
		Success:    resp.Success,
		TransferID: resp.TransferID,
		Error:      resp.Error,
	}, nil
}

func (c *APIClient) post(ctx context.Context, path string, payload, dst interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Таймаут и сетевые сбои — отказ шлюза, никогда не успех.
		return fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode payment gateway response: %w", err)
	}
	return nil
}
