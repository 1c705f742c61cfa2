package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
)

func escrowEventBody(t *testing.T, event domain.EscrowStatusEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body
}

func pendingSettlementForEscrow(escrowID string) *domain.Settlement {
	id := escrowID
	return &domain.Settlement{
		ID:          uuid.New(),
		SenderID:    uuid.New(),
		RecipientID: uuid.New(),
		Amount:      80,
		Mode:        domain.ModeOptional,
		Status:      domain.SettlementPending,
		EscrowID:    &id,
	}
}

func TestHandleMessage_MalformedPayloadAcked(t *testing.T) {
	repo := newStubRepository()
	consumer := NewEscrowStatusConsumer(repo)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatalf("expected malformed payload to be acknowledged")
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror updates, got %d", len(repo.statusUpdates))
	}
}

func TestHandleMessage_MissingEscrowIDAcked(t *testing.T) {
	repo := newStubRepository()
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EventID: "evt-1", Status: "released"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected event without escrow id to be acknowledged")
	}
}

func TestHandleMessage_UnknownEscrowAcked(t *testing.T) {
	repo := newStubRepository()
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-unknown", Status: "released"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected event for unknown escrow to be acknowledged")
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror updates, got %d", len(repo.statusUpdates))
	}
}

func TestHandleMessage_ReleasedUpdatesMirrorAndNotifies(t *testing.T) {
	repo := newStubRepository()
	settlement := pendingSettlementForEscrow("esc-10")
	repo.settlementsByEscrow["esc-10"] = settlement
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-10", Status: "released"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected released event to be acknowledged")
	}

	if len(repo.statusUpdates) != 1 {
		t.Fatalf("expected one mirror update, got %d", len(repo.statusUpdates))
	}
	if repo.statusUpdates[0].status != domain.SettlementCompleted {
		t.Fatalf("expected mirror completed, got %q", repo.statusUpdates[0].status)
	}

	if len(repo.notifications) != 2 {
		t.Fatalf("expected notifications for both parties, got %d", len(repo.notifications))
	}
	notified := map[uuid.UUID]bool{}
	for _, notification := range repo.notifications {
		if notification.Type != "escrow_released" {
			t.Fatalf("expected escrow_released notifications, got %q", notification.Type)
		}
		notified[notification.UserID] = true
	}
	if !notified[settlement.SenderID] || !notified[settlement.RecipientID] {
		t.Fatalf("expected sender and recipient to be notified, got %v", notified)
	}
}

func TestHandleMessage_ExpiredMapsToRefunded(t *testing.T) {
	repo := newStubRepository()
	repo.settlementsByEscrow["esc-11"] = pendingSettlementForEscrow("esc-11")
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-11", Status: "expired", Reason: "escrow window elapsed"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected expired event to be acknowledged")
	}
	if len(repo.statusUpdates) != 1 {
		t.Fatalf("expected one mirror update, got %d", len(repo.statusUpdates))
	}
	update := repo.statusUpdates[0]
	if update.status != domain.SettlementRefunded {
		t.Fatalf("expected expired escrow mirrored as refunded, got %q", update.status)
	}
	if update.reason == nil || *update.reason != "escrow window elapsed" {
		t.Fatalf("expected reason mirrored, got %v", update.reason)
	}
	for _, notification := range repo.notifications {
		if notification.Type != "escrow_refunded" {
			t.Fatalf("expected escrow_refunded notifications, got %q", notification.Type)
		}
	}
}

func TestHandleMessage_ReplayedStatusIsNoOp(t *testing.T) {
	repo := newStubRepository()
	settlement := pendingSettlementForEscrow("esc-12")
	settlement.Status = domain.SettlementCompleted
	repo.settlementsByEscrow["esc-12"] = settlement
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-12", Status: "released"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected replayed event to be acknowledged")
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror updates on replay, got %d", len(repo.statusUpdates))
	}
	if len(repo.notifications) != 0 {
		t.Fatalf("expected no duplicate notifications on replay, got %d", len(repo.notifications))
	}
}

func TestHandleMessage_IntermediateStatusIsNoOp(t *testing.T) {
	repo := newStubRepository()
	repo.settlementsByEscrow["esc-13"] = pendingSettlementForEscrow("esc-13")
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-13", Status: "disputed"})
	if !consumer.HandleMessage(body) {
		t.Fatalf("expected disputed event to be acknowledged")
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror change for non-terminal status, got %d", len(repo.statusUpdates))
	}
}

func TestHandleMessage_RepoFailureRequeues(t *testing.T) {
	repo := newStubRepository()
	repo.settlementsByEscrow["esc-14"] = pendingSettlementForEscrow("esc-14")
	repo.updateErr = errors.New("database unavailable")
	consumer := NewEscrowStatusConsumer(repo)

	body := escrowEventBody(t, domain.EscrowStatusEvent{EscrowID: "esc-14", Status: "released"})
	if consumer.HandleMessage(body) {
		t.Fatalf("expected processing failure to requeue the message")
	}
}
