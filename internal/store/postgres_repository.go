/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL queries for the settlements mirror and the
 * in-app notifications table.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/titanpay/settlement-service/internal/domain"
)

var (
	ErrSettlementNotFound = errors.New("settlement not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateSettlement inserts a new settlement mirror row in its initial status.
func (r *PostgresRepository) CreateSettlement(ctx context.Context, settlement *domain.Settlement) error {
	query := `
		INSERT INTO settlements (id, sender_id, recipient_id, amount, mode, status, resource_id, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := r.db.Exec(ctx, query,
		settlement.ID,
		settlement.SenderID,
		settlement.RecipientID,
		settlement.Amount,
		settlement.Mode,
		settlement.Status,
		settlement.ResourceID,
		settlement.Message,
	)
	return err
}

// MarkSettlementCompleted records the gateway transaction id and flips the row
// to completed.
func (r *PostgresRepository) MarkSettlementCompleted(ctx context.Context, settlementID uuid.UUID, gatewayTxnID string) error {
	query := `
		UPDATE settlements
		SET status = $2, gateway_txn_id = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, settlementID, domain.SettlementCompleted, gatewayTxnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// MarkSettlementFailed records a failure reason and flips the row to failed.
func (r *PostgresRepository) MarkSettlementFailed(ctx context.Context, settlementID uuid.UUID, reason string) error {
	query := `
		UPDATE settlements
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, settlementID, domain.SettlementFailed, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// AttachEscrow links the gateway-assigned escrow id to the settlement row.
// The row stays pending; escrow outcomes arrive later via the status consumer.
func (r *PostgresRepository) AttachEscrow(ctx context.Context, settlementID uuid.UUID, escrowID string) error {
	query := `
		UPDATE settlements
		SET escrow_id = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, settlementID, escrowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// FindSettlementByEscrowID retrieves the settlement mirror row for an escrow.
func (r *PostgresRepository) FindSettlementByEscrowID(ctx context.Context, escrowID string) (*domain.Settlement, error) {
	var settlement domain.Settlement
	query := `
		SELECT id, sender_id, recipient_id, amount, mode, status, gateway_txn_id, escrow_id, resource_id, message, failure_reason, created_at, updated_at
		FROM settlements
		WHERE escrow_id = $1
	`
	err := r.db.QueryRow(ctx, query, escrowID).Scan(
		&settlement.ID,
		&settlement.SenderID,
		&settlement.RecipientID,
		&settlement.Amount,
		&settlement.Mode,
		&settlement.Status,
		&settlement.GatewayTxnID,
		&settlement.EscrowID,
		&settlement.ResourceID,
		&settlement.Message,
		&settlement.FailureReason,
		&settlement.CreatedAt,
		&settlement.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// UpdateSettlementStatusByEscrowID sets the mirror status for an escrow-backed
// settlement, optionally recording a reason (e.g. a refund reason).
func (r *PostgresRepository) UpdateSettlementStatusByEscrowID(ctx context.Context, escrowID string, status string, reason *string) error {
	query := `
		UPDATE settlements
		SET status = $2, failure_reason = COALESCE($3, failure_reason), updated_at = now()
		WHERE escrow_id = $1
	`
	tag, err := r.db.Exec(ctx, query, escrowID, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// ListSettlementsByUser returns settlements where the user is sender or
// recipient, newest first.
func (r *PostgresRepository) ListSettlementsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Settlement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, sender_id, recipient_id, amount, mode, status, gateway_txn_id, escrow_id, resource_id, message, failure_reason, created_at, updated_at
		FROM settlements
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		var settlement domain.Settlement
		if err := rows.Scan(
			&settlement.ID,
			&settlement.SenderID,
			&settlement.RecipientID,
			&settlement.Amount,
			&settlement.Mode,
			&settlement.Status,
			&settlement.GatewayTxnID,
			&settlement.EscrowID,
			&settlement.ResourceID,
			&settlement.Message,
			&settlement.FailureReason,
			&settlement.CreatedAt,
			&settlement.UpdatedAt,
		); err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}
	return settlements, rows.Err()
}

// CreateInAppNotification inserts one notification row.
func (r *PostgresRepository) CreateInAppNotification(ctx context.Context, notification domain.InAppNotification) error {
	query := `
		INSERT INTO in_app_notifications (id, user_id, type, title, body, escrow_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	_, err := r.db.Exec(ctx, query,
		notification.ID,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Body,
		notification.EscrowID,
	)
	return err
}

// ListInAppNotifications returns a user's notifications, newest first.
func (r *PostgresRepository) ListInAppNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.InAppNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, type, title, body, escrow_id, read_at, created_at
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.InAppNotification
	for rows.Next() {
		var notification domain.InAppNotification
		if err := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Type,
			&notification.Title,
			&notification.Body,
			&notification.EscrowID,
			&notification.ReadAt,
			&notification.CreatedAt,
		); err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}
