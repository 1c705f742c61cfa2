/**
 * @description
 * This file defines the `Repository` interface, the contract for the
 * settlement-service's local data access. The local database is a mirror of
 * settlement activity used for history listings and in-app notifications; the
 * Transfer Gateway stays authoritative for balances and escrow state, and
 * nothing here ever moves money.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Settlement mirror methods
	CreateSettlement(ctx context.Context, settlement *domain.Settlement) error
	MarkSettlementCompleted(ctx context.Context, settlementID uuid.UUID, gatewayTxnID string) error
	MarkSettlementFailed(ctx context.Context, settlementID uuid.UUID, reason string) error
	AttachEscrow(ctx context.Context, settlementID uuid.UUID, escrowID string) error
	FindSettlementByEscrowID(ctx context.Context, escrowID string) (*domain.Settlement, error)
	UpdateSettlementStatusByEscrowID(ctx context.Context, escrowID string, status string, reason *string) error
	ListSettlementsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Settlement, error)

	// In-app notification methods
	CreateInAppNotification(ctx context.Context, notification domain.InAppNotification) error
	ListInAppNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.InAppNotification, error)
}
