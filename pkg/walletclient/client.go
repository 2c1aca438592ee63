/**
 * @description
 * This package provides a client for the wallet-service admin API. It is used
 * by operator tooling to look up transactions and settle or cancel pending
 * deposits and withdrawals.
 */
package walletclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
)

// Client is a client for the wallet-service admin endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new wallet-service client authenticated with an admin
// bearer token.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet service returned error status %d", e.StatusCode)
	}
	return fmt.Sprintf("wallet service returned error status %d: %s", e.StatusCode, e.Message)
}

// GetTransaction fetches any transaction by id.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := c.do(ctx, http.MethodGet, c.transactionPath(transactionID, ""), nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ConfirmDeposit settles a pending deposit.
func (c *Client) ConfirmDeposit(ctx context.Context, transactionID string) (*domain.SettlementResult, error) {
	var result domain.SettlementResult
	if err := c.do(ctx, http.MethodPost, c.transactionPath(transactionID, "confirm-deposit"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmWithdraw settles a pending withdrawal.
func (c *Client) ConfirmWithdraw(ctx context.Context, transactionID string) (*domain.SettlementResult, error) {
	var result domain.SettlementResult
	if err := c.do(ctx, http.MethodPost, c.transactionPath(transactionID, "confirm-withdraw"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelWithdraw cancels a pending withdrawal with a reason.
func (c *Client) CancelWithdraw(ctx context.Context, transactionID, reason string) (*domain.SettlementResult, error) {
	var result domain.SettlementResult
	payload := domain.CancelWithdrawRequest{Reason: reason}
	if err := c.do(ctx, http.MethodPost, c.transactionPath(transactionID, "cancel-withdraw"), payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) transactionPath(transactionID, action string) string {
	path := fmt.Sprintf("%s/admin/transactions/%s", c.baseURL, strings.TrimSpace(transactionID))
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("wallet service base url is empty")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) != nil {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
