/**
 * @description
 * This package provides a client for the Transfer Gateway, the external
 * backend that owns the authoritative ledger and escrow store. It encapsulates
 * the logic for making authenticated HTTP requests to the gateway's endpoints,
 * handling request body construction, and parsing responses.
 *
 * Every mutating operation here is executed by the gateway as a single
 * all-or-nothing transaction; this client never decomposes a transfer into
 * separate debit and credit calls.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Machine-readable error codes returned by the gateway.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeEscrowNotPending  = "escrow_not_pending"
	CodeEscrowNotFound    = "escrow_not_found"
)

// Client is a client for the Transfer Gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Transfer Gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// transferRequest is the payload for an atomic direct transfer.
type transferRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	ResourceID  string `json:"resource_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// TransferResult is the gateway's response to a completed atomic transfer.
type TransferResult struct {
	SenderTxnID    string `json:"sender_txn_id"`
	RecipientTxnID string `json:"recipient_txn_id"`
}

// createEscrowRequest is the payload for opening an escrow.
type createEscrowRequest struct {
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id"`
	Amount           int64  `json:"amount"`
	ResourceID       string `json:"resource_id,omitempty"`
	ReleaseCondition string `json:"release_condition"`
}

// EscrowResult is the gateway's response to a created escrow.
type EscrowResult struct {
	EscrowID      string `json:"escrow_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// escrowActionRequest is the payload for refund and dispute operations.
type escrowActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ActionResult is the gateway's response to a release or dispute operation.
// Success must be explicitly true; an absent field means the operation failed.
type ActionResult struct {
	Success bool `json:"success"`
}

// RefundActionResult is the gateway's response to a refund operation.
type RefundActionResult struct {
	Success        bool   `json:"success"`
	RefundedAmount *int64 `json:"refunded_amount,omitempty"`
}

// Balance is the advisory spendable-balance view of a user's ledger account.
type Balance struct {
	Available int64  `json:"available"` // in coins
	Currency  string `json:"currency"`
}

// EscrowRecord is one escrow row as reported by the gateway.
type EscrowRecord struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"sender_id"`
	RecipientID      string    `json:"recipient_id"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	ReleaseCondition string    `json:"release_condition"`
	ResourceID       string    `json:"resource_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type escrowListResponse struct {
	Escrows []EscrowRecord `json:"escrows"`
}

// ErrorResponse represents an error body returned by the gateway.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error: %s - %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Code)
}

// HasCode reports whether err is a gateway ErrorResponse with the given code.
func HasCode(err error, code string) bool {
	var gatewayErr *ErrorResponse
	return errors.As(err, &gatewayErr) && gatewayErr.Code == code
}

// AtomicTransfer asks the gateway to move funds from sender to recipient in a
// single transaction. The sender debit and recipient credit are one unit of
// work on the gateway side; no intermediate state is ever observable.
func (c *Client) AtomicTransfer(ctx context.Context, senderID, recipientID string, amount int64, resourceID, message string) (*TransferResult, error) {
	payload := transferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		ResourceID:  resourceID,
		Message:     message,
	}

	var result TransferResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers", "transfer", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateEscrow asks the gateway to debit the sender and hold the funds in a
// new escrow with the given release condition.
func (c *Client) CreateEscrow(ctx context.Context, senderID, recipientID string, amount int64, resourceID, releaseCondition string) (*EscrowResult, error) {
	payload := createEscrowRequest{
		SenderID:         senderID,
		RecipientID:      recipientID,
		Amount:           amount,
		ResourceID:       resourceID,
		ReleaseCondition: releaseCondition,
	}

	var result EscrowResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/escrows", "create_escrow", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReleaseEscrow instructs the gateway to move the held funds to the recipient.
// The gateway fails the call if the escrow is not pending.
func (c *Client) ReleaseEscrow(ctx context.Context, escrowID string) (*ActionResult, error) {
	var result ActionResult
	path := "/api/v1/escrows/" + url.PathEscape(escrowID) + "/release"
	if err := c.do(ctx, http.MethodPost, path, "release_escrow", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefundEscrow instructs the gateway to return the held funds to the sender,
// recording the supplied reason. Fails if the escrow is not pending.
func (c *Client) RefundEscrow(ctx context.Context, escrowID, reason string) (*RefundActionResult, error) {
	var result RefundActionResult
	path := "/api/v1/escrows/" + url.PathEscape(escrowID) + "/refund"
	if err := c.do(ctx, http.MethodPost, path, "refund_escrow", escrowActionRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OpenDispute records a dispute against a pending escrow. The gateway persists
// the dispute reason; the escrow itself stays pending.
func (c *Client) OpenDispute(ctx context.Context, escrowID, reason string) (*ActionResult, error) {
	var result ActionResult
	path := "/api/v1/escrows/" + url.PathEscape(escrowID) + "/dispute"
	if err := c.do(ctx, http.MethodPost, path, "open_dispute", escrowActionRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalance fetches a user's available balance. The read is advisory: the
// gateway re-validates funds inside every mutating transaction.
func (c *Client) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	var balance Balance
	path := "/api/v1/balances/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, "get_balance", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListPendingEscrows fetches the pending escrows in which the given user is
// sender or recipient, newest first.
func (c *Client) ListPendingEscrows(ctx context.Context, partyID string) ([]EscrowRecord, error) {
	var list escrowListResponse
	path := "/api/v1/escrows?party=" + url.QueryEscape(partyID) + "&status=pending"
	if err := c.do(ctx, http.MethodGet, path, "list_pending_escrows", nil, &list); err != nil {
		return nil, err
	}
	return list.Escrows, nil
}

// do is a generic helper to execute gateway requests and decode responses.
func (c *Client) do(ctx context.Context, method, path, op string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-gateway-key", c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Code == "" {
			log.Printf("level=warn component=gateway_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("gateway %s failed with status %d", op, resp.StatusCode)
		}
		errResp.Status = resp.StatusCode
		log.Printf("level=warn component=gateway_client op=%s status=%d code=%q", op, resp.StatusCode, errResp.Code)
		return &errResp
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
