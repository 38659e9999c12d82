package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type StripeConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type StripeClient struct {
	cfg  StripeConfig
	http *http.Client
}

func NewStripe(cfg StripeConfig) *StripeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeClient{
		cfg: cfg,
		// The claim must never be held hostage by a hung processor call, so
		// the client carries its own hard timeout.
		http: &http.Client{Timeout: timeout},
	}
}

type stripeTransfer struct {
	ID string `json:"id"`
}

type stripeCharge struct {
	ID       string `json:"id"`
	Refunded bool   `json:"refunded"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) CreateTransfer(ctx context.Context, destination string, amount int64, currency string, idempotencyKey string) (string, error) {
	form := url.Values{}
	form.Set("destination", destination)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("transfer_group", idempotencyKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/transfers", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrTransferFailed, readErrorMessage(body, resp.StatusCode))
	}

	var transfer stripeTransfer
	if err := json.Unmarshal(body, &transfer); err != nil || strings.TrimSpace(transfer.ID) == "" {
		return "", fmt.Errorf("%w: malformed transfer response", ErrTransferFailed)
	}
	return transfer.ID, nil
}

func (c *StripeClient) GetCharge(ctx context.Context, chargeRef string) (Charge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/charges/"+url.PathEscape(chargeRef), nil)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %v", ErrChargeLookup, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %v", ErrChargeLookup, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %v", ErrChargeLookup, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Charge{}, fmt.Errorf("%w: %s", ErrChargeLookup, readErrorMessage(body, resp.StatusCode))
	}

	var charge stripeCharge
	if err := json.Unmarshal(body, &charge); err != nil || strings.TrimSpace(charge.ID) == "" {
		return Charge{}, fmt.Errorf("%w: malformed charge response", ErrChargeLookup)
	}
	return Charge{Reference: charge.ID, Refunded: charge.Refunded}, nil
}

func readErrorMessage(body []byte, status int) string {
	var parsed stripeError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", status, parsed.Error.Message)
	}
	return fmt.Sprintf("status %d", status)
}
