/**
 * @description
 * This file defines the closed error taxonomy surfaced by the settlement
 * service. Raw gateway transport errors are never leaked to callers; every
 * failure path is wrapped into one of these sentinels (plus the validation
 * sentinels in internal/domain) so the API layer can map errors to responses
 * exhaustively.
 */

package app

import "errors"

var (
	// ErrInvalidRecipient is returned when the sender and recipient are the
	// same user. Rejected before any gateway call.
	ErrInvalidRecipient = errors.New("sender and recipient must differ")
	// ErrInsufficientFunds is returned when the advisory balance read (or the
	// gateway's own authoritative check) shows the sender cannot cover the
	// amount. Recoverable by the user.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTransferFailed is returned when a gateway operation on a direct
	// transfer (or a release/refund/dispute request) fails for a reason other
	// than a state conflict. Never retried here; blind retries on money
	// movement risk double-spend unless the gateway call is idempotent.
	ErrTransferFailed = errors.New("transfer gateway operation failed")
	// ErrEscrowCreation is returned when the gateway fails to open an escrow.
	ErrEscrowCreation = errors.New("escrow creation failed")
	// ErrEscrowNotPending is returned when release, refund or dispute is
	// attempted on an escrow that has already reached a terminal state. This
	// is always a logic or race error and is never silently swallowed.
	ErrEscrowNotPending = errors.New("escrow is not pending")
	// ErrEscrowNotFound is returned when the gateway does not know the escrow id.
	ErrEscrowNotFound = errors.New("escrow not found")
	// ErrRateLimited is returned when the sender has exceeded the transfer
	// submission rate limit.
	ErrRateLimited = errors.New("too many transfer attempts")
)
