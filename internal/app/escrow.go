/**
 * @description
 * This file contains the escrow lifecycle manager. It operates on existing
 * escrows by id, independent of how they were created: release held funds to
 * the recipient, refund them to the sender, record a dispute, and list a
 * party's pending escrows.
 *
 * The manager holds no state of its own. It is a thin, stateless facade over
 * the gateway's authoritative escrow store whose job is to form the correct
 * request, map gateway responses into the typed error taxonomy, and never let
 * an ambiguous gateway response pass as success.
 *
 * @dependencies
 * - context, fmt, log, sort, time: Standard Go libraries.
 * - github.com/google/uuid: Party IDs.
 * - internal/domain, internal/store: Domain models and the local mirror.
 * - pkg/gatewayclient, pkg/rabbitmq: External gateway and event broker.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
	"github.com/titanpay/settlement-service/internal/store"
	"github.com/titanpay/settlement-service/pkg/gatewayclient"
	"github.com/titanpay/settlement-service/pkg/rabbitmq"
)

const publishTimeout = 5 * time.Second

// EscrowManager drives release, refund and dispute operations over escrows
// owned by the Transfer Gateway.
type EscrowManager struct {
	repo          store.Repository
	gateway       TransferGateway
	eventProducer rabbitmq.Publisher
}

// NewEscrowManager creates a new escrow lifecycle manager.
func NewEscrowManager(repo store.Repository, gateway TransferGateway, producer rabbitmq.Publisher) *EscrowManager {
	return &EscrowManager{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
	}
}

// Release instructs the gateway to move the held funds to the recipient.
// Only a pending escrow may be released; releasing an already-terminal escrow
// fails with ErrEscrowNotPending because a silent success here would mean a
// duplicated payout.
func (m *EscrowManager) Release(ctx context.Context, escrowID string) error {
	result, err := m.gateway.ReleaseEscrow(ctx, escrowID)
	if err != nil {
		return mapEscrowGatewayError("release_escrow", escrowID, err)
	}
	// The gateway's only documented failure for release is a non-pending
	// escrow, so an explicit false success is treated as that conflict.
	if !result.Success {
		log.Printf("level=warn component=escrow op=release_escrow outcome=rejected escrow_id=%s msg=\"gateway reported unsuccessful release\"", escrowID)
		return fmt.Errorf("%w: escrow %s", ErrEscrowNotPending, escrowID)
	}

	m.mirrorStatus(ctx, escrowID, domain.SettlementCompleted, nil)
	m.publish("settlement.escrow.released", domain.EscrowActionPayload{EscrowID: escrowID, Action: "release"})
	log.Printf("level=info component=escrow op=release_escrow outcome=released escrow_id=%s", escrowID)
	return nil
}

// Refund instructs the gateway to return the held funds to the sender,
// recording the caller-supplied reason. Same terminal-state precondition as
// Release.
func (m *EscrowManager) Refund(ctx context.Context, escrowID, reason string) (*domain.RefundResult, error) {
	result, err := m.gateway.RefundEscrow(ctx, escrowID, reason)
	if err != nil {
		return nil, mapEscrowGatewayError("refund_escrow", escrowID, err)
	}
	if !result.Success {
		log.Printf("level=warn component=escrow op=refund_escrow outcome=rejected escrow_id=%s msg=\"gateway reported unsuccessful refund\"", escrowID)
		return nil, fmt.Errorf("%w: escrow %s", ErrEscrowNotPending, escrowID)
	}

	reasonCopy := reason
	m.mirrorStatus(ctx, escrowID, domain.SettlementRefunded, &reasonCopy)
	m.publish("settlement.escrow.refunded", domain.EscrowActionPayload{EscrowID: escrowID, Action: "refund", Reason: reason})
	log.Printf("level=info component=escrow op=refund_escrow outcome=refunded escrow_id=%s", escrowID)

	return &domain.RefundResult{Success: true, RefundedAmount: result.RefundedAmount}, nil
}

// Dispute records a dispute against a pending escrow. The gateway persists the
// reason; the escrow itself stays pending until a release or refund decision.
func (m *EscrowManager) Dispute(ctx context.Context, escrowID, reason string) error {
	result, err := m.gateway.OpenDispute(ctx, escrowID, reason)
	if err != nil {
		return mapEscrowGatewayError("open_dispute", escrowID, err)
	}
	if !result.Success {
		log.Printf("level=warn component=escrow op=open_dispute outcome=rejected escrow_id=%s msg=\"gateway reported unsuccessful dispute\"", escrowID)
		return fmt.Errorf("%w: escrow %s", ErrEscrowNotPending, escrowID)
	}

	m.publish("settlement.escrow.disputed", domain.EscrowActionPayload{EscrowID: escrowID, Action: "dispute", Reason: reason})
	log.Printf("level=info component=escrow op=open_dispute outcome=disputed escrow_id=%s", escrowID)
	return nil
}

// ListPending returns the pending escrows in which the user is sender or
// recipient, newest first. Read-only; the gateway is the source of truth.
func (m *EscrowManager) ListPending(ctx context.Context, partyID uuid.UUID) ([]domain.Escrow, error) {
	records, err := m.gateway.ListPendingEscrows(ctx, partyID.String())
	if err != nil {
		log.Printf("level=warn component=escrow op=list_pending outcome=failed party_id=%s err=%v", partyID, err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	escrows := make([]domain.Escrow, 0, len(records))
	for _, record := range records {
		escrow, err := escrowFromRecord(record)
		if err != nil {
			log.Printf("level=warn component=escrow op=list_pending msg=\"skipping malformed escrow record\" escrow_id=%s err=%v", record.ID, err)
			continue
		}
		if escrow.Status != domain.EscrowPending {
			continue
		}
		escrows = append(escrows, escrow)
	}

	sort.SliceStable(escrows, func(i, j int) bool {
		return escrows[i].CreatedAt.After(escrows[j].CreatedAt)
	})
	return escrows, nil
}

// mirrorStatus updates the local history row for the escrow. The mirror is
// non-authoritative, so failures are logged and swallowed.
func (m *EscrowManager) mirrorStatus(ctx context.Context, escrowID, status string, reason *string) {
	if err := m.repo.UpdateSettlementStatusByEscrowID(ctx, escrowID, status, reason); err != nil {
		log.Printf("level=warn component=escrow msg=\"settlement mirror update failed\" escrow_id=%s status=%s err=%v", escrowID, status, err)
	}
}

func (m *EscrowManager) publish(routingKey string, body interface{}) {
	if m.eventProducer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.eventProducer.Publish(ctx, EventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=escrow msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// mapEscrowGatewayError converts a gateway failure into the typed taxonomy.
// The reason text is not logged; it may contain user-entered content.
func mapEscrowGatewayError(op, escrowID string, err error) error {
	switch {
	case gatewayclient.HasCode(err, gatewayclient.CodeEscrowNotPending):
		log.Printf("level=warn component=escrow op=%s outcome=conflict escrow_id=%s", op, escrowID)
		return fmt.Errorf("%w: escrow %s", ErrEscrowNotPending, escrowID)
	case gatewayclient.HasCode(err, gatewayclient.CodeEscrowNotFound):
		log.Printf("level=warn component=escrow op=%s outcome=not_found escrow_id=%s", op, escrowID)
		return fmt.Errorf("%w: escrow %s", ErrEscrowNotFound, escrowID)
	default:
		log.Printf("level=warn component=escrow op=%s outcome=failed escrow_id=%s err=%v", op, escrowID, err)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
}

func escrowFromRecord(record gatewayclient.EscrowRecord) (domain.Escrow, error) {
	senderID, err := uuid.Parse(record.SenderID)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("sender id: %w", err)
	}
	recipientID, err := uuid.Parse(record.RecipientID)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("recipient id: %w", err)
	}

	escrow := domain.Escrow{
		ID:               record.ID,
		SenderID:         senderID,
		RecipientID:      recipientID,
		Amount:           record.Amount,
		Status:           domain.EscrowStatus(record.Status),
		ReleaseCondition: record.ReleaseCondition,
		CreatedAt:        record.CreatedAt,
		ExpiresAt:        record.ExpiresAt,
	}
	if record.ResourceID != "" {
		resourceID, err := uuid.Parse(record.ResourceID)
		if err == nil {
			escrow.ResourceID = &resourceID
		}
	}
	return escrow, nil
}
