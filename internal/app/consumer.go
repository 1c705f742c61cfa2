package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
	"github.com/titanpay/settlement-service/internal/store"
)

// EscrowStatusConsumer applies escrow lifecycle events published by the
// gateway-side webhook relay (released, refunded, expired) to the local
// settlement mirror and writes in-app notifications for both parties.
//
// The consumer never drives escrow transitions itself; expiry in particular is
// decided by an external scheduler, and this service only mirrors the result.
type EscrowStatusConsumer struct {
	repo store.Repository
}

func NewEscrowStatusConsumer(repo store.Repository) *EscrowStatusConsumer {
	return &EscrowStatusConsumer{repo: repo}
}

// HandleMessage returns true when the message should be acknowledged,
// including malformed or unknown events, which are dropped rather than
// requeued forever.
func (c *EscrowStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.EscrowStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=escrow_consumer msg=\"failed to unmarshal payload\" err=%v", err)
		return true
	}

	if event.EscrowID == "" {
		log.Printf("level=warn component=escrow_consumer msg=\"missing escrow id in event\" event_id=%s", event.EventID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("level=warn component=escrow_consumer msg=\"processing error; requeueing\" escrow_id=%s err=%v", event.EscrowID, err)
		return false
	}
	return true
}

func (c *EscrowStatusConsumer) processEvent(ctx context.Context, event domain.EscrowStatusEvent) error {
	settlement, err := c.repo.FindSettlementByEscrowID(ctx, event.EscrowID)
	if err != nil {
		if errors.Is(err, store.ErrSettlementNotFound) {
			log.Printf("level=info component=escrow_consumer msg=\"no settlement for escrow; acknowledging\" escrow_id=%s", event.EscrowID)
			return nil
		}
		return fmt.Errorf("lookup settlement: %w", err)
	}

	status := normalizeEscrowEventStatus(event.Status)
	switch status {
	case domain.SettlementCompleted, domain.SettlementRefunded:
	default:
		// Intermediate or unknown statuses carry no mirror change.
		return nil
	}

	// Replays of a status the mirror already reached are acknowledged without
	// side effects, so duplicate deliveries never duplicate notifications.
	if settlement.Status == status {
		return nil
	}

	reason := optionalString(event.Reason)
	if err := c.repo.UpdateSettlementStatusByEscrowID(ctx, event.EscrowID, status, reason); err != nil {
		return fmt.Errorf("update mirror: %w", err)
	}

	c.notifyParties(ctx, settlement, status)
	return nil
}

func (c *EscrowStatusConsumer) notifyParties(ctx context.Context, settlement *domain.Settlement, status string) {
	var notificationType, senderTitle, recipientTitle string
	switch status {
	case domain.SettlementCompleted:
		notificationType = "escrow_released"
		senderTitle = "Escrow released to recipient"
		recipientTitle = "Escrowed funds are now yours"
	case domain.SettlementRefunded:
		notificationType = "escrow_refunded"
		senderTitle = "Escrow refunded to your balance"
		recipientTitle = "An escrow to you was refunded"
	default:
		return
	}

	for _, target := range []struct {
		userID uuid.UUID
		title  string
	}{
		{settlement.SenderID, senderTitle},
		{settlement.RecipientID, recipientTitle},
	} {
		notification := domain.InAppNotification{
			ID:       uuid.New(),
			UserID:   target.userID,
			Type:     notificationType,
			Title:    target.title,
			EscrowID: settlement.EscrowID,
		}
		if err := c.repo.CreateInAppNotification(ctx, notification); err != nil {
			log.Printf("level=warn component=escrow_consumer msg=\"notification write failed\" user_id=%s escrow_id=%v err=%v", target.userID, settlement.EscrowID, err)
		}
	}
}

// normalizeEscrowEventStatus maps gateway event statuses onto mirror statuses.
// An expired escrow has been force-refunded by the external scheduler.
func normalizeEscrowEventStatus(status string) string {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "released", "release":
		return domain.SettlementCompleted
	case "refunded", "refund", "expired":
		return domain.SettlementRefunded
	case "pending", "disputed":
		return domain.SettlementPending
	default:
		return status
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
