/**
 * @description
 * This file defines the core domain models for the settlement-service.
 * These structs represent the entities and data transfer objects (DTOs) used
 * throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in coins, the
 *   platform's smallest virtual-currency unit, which avoids floating-point
 *   inaccuracies with financial data.
 * - The settlement mode is a closed typed constant set rather than a raw
 *   string so every switch over it handles all three modes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SettlementMode classifies how a transfer is settled: paid out immediately,
// escrowed at the sender's choice, or escrowed unconditionally.
type SettlementMode string

const (
	ModeDirect    SettlementMode = "direct"
	ModeOptional  SettlementMode = "optional"
	ModeMandatory SettlementMode = "mandatory"
)

// protectionRank orders modes from least to most protective. Used to assert
// that larger amounts are never classified less protectively than smaller ones.
func (m SettlementMode) protectionRank() int {
	switch m {
	case ModeDirect:
		return 0
	case ModeOptional:
		return 1
	case ModeMandatory:
		return 2
	}
	return -1
}

// MoreProtectiveThan reports whether mode m requires at least as much escrow
// protection as other.
func (m SettlementMode) MoreProtectiveThan(other SettlementMode) bool {
	return m.protectionRank() > other.protectionRank()
}

// EscrowStatus is the lifecycle state of a held transfer. `pending` is the
// only non-terminal state; once an escrow is released or refunded it never
// transitions again.
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// Terminal reports whether the status permits no further transitions.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// ReleaseConditionProofVerified is the release condition attached to every
// escrow this service creates. The condition is evaluated by an external
// verification flow; the escrow stays pending until release/refund is invoked.
const ReleaseConditionProofVerified = "proof_verified"

// Settlement is the local mirror record of one money movement initiated by
// this service, covering both direct transfers and escrows. The Transfer
// Gateway remains the authoritative ledger; these rows serve history listings
// and notification fan-out only.
type Settlement struct {
	ID            uuid.UUID      `json:"id"`
	SenderID      uuid.UUID      `json:"sender_id"`
	RecipientID   uuid.UUID      `json:"recipient_id"`
	Amount        int64          `json:"amount"` // in coins
	Mode          SettlementMode `json:"mode"`
	Status        string         `json:"status"` // 'pending', 'completed', 'failed', 'refunded'
	GatewayTxnID  *string        `json:"gateway_txn_id,omitempty"`
	EscrowID      *string        `json:"escrow_id,omitempty"`
	ResourceID    *uuid.UUID     `json:"resource_id,omitempty"`
	Message       *string        `json:"message,omitempty"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Settlement mirror statuses.
const (
	SettlementPending   = "pending"
	SettlementCompleted = "completed"
	SettlementFailed    = "failed"
	SettlementRefunded  = "refunded"
)

// Escrow is a held transfer as reported by the Transfer Gateway, which owns
// this state. ExpiresAt is informational; expiry enforcement is an external
// scheduler's job, never this service's.
type Escrow struct {
	ID               string       `json:"id"`
	SenderID         uuid.UUID    `json:"sender_id"`
	RecipientID      uuid.UUID    `json:"recipient_id"`
	Amount           int64        `json:"amount"` // in coins
	Status           EscrowStatus `json:"status"`
	ReleaseCondition string       `json:"release_condition"`
	ResourceID       *uuid.UUID   `json:"resource_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

// TransferRequest is the DTO for incoming transfer API requests.
type TransferRequest struct {
	RecipientID uuid.UUID  `json:"recipient_id"`
	Amount      int64      `json:"amount"` // in coins
	ResourceID  *uuid.UUID `json:"resource_id,omitempty"`
	Message     string     `json:"message,omitempty"`
	// UseEscrow is consulted only when the amount falls in the optional band.
	// Absent means escrow, the conservative default.
	UseEscrow *bool `json:"use_escrow,omitempty"`
}

// TransferOutcome is the normalized result of a settled transfer request.
// A non-nil EscrowID means the funds are held, not yet delivered; callers
// must not treat an escrowed outcome as "recipient has the funds".
type TransferOutcome struct {
	TransactionID string         `json:"transaction_id"`
	EscrowID      *string        `json:"escrow_id,omitempty"`
	Mode          SettlementMode `json:"mode"`
	Status        string         `json:"status"`
}

// RefundResult reports a completed refund, including the amount returned to
// the sender when the gateway discloses it.
type RefundResult struct {
	Success        bool   `json:"success"`
	RefundedAmount *int64 `json:"refunded_amount,omitempty"`
}

// EscrowRefundRequest is the DTO for refund and dispute API requests.
type EscrowRefundRequest struct {
	Reason string `json:"reason"`
}

// EscrowStatusEvent is the message emitted by the gateway-side webhook relay
// for escrow lifecycle updates (released, refunded, expired).
type EscrowStatusEvent struct {
	EventID    string    `json:"event_id"`
	EscrowID   string    `json:"escrow_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EscrowCreatedPayload is the message payload published when an escrow is opened.
type EscrowCreatedPayload struct {
	EscrowID    string    `json:"escrow_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"`
}

// TransferCompletedPayload is the message payload published after a direct transfer.
type TransferCompletedPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	RecipientID   uuid.UUID `json:"recipient_id"`
	Amount        int64     `json:"amount"`
}

// EscrowActionPayload is the message payload published for release, refund
// and dispute actions on an existing escrow.
type EscrowActionPayload struct {
	EscrowID string `json:"escrow_id"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
}

// InAppNotification is a notification row written by the escrow status
// consumer and read by the client application.
type InAppNotification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"` // e.g. 'escrow_released', 'escrow_refunded'
	Title     string     `json:"title"`
	Body      *string    `json:"body,omitempty"`
	EscrowID  *string    `json:"escrow_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
