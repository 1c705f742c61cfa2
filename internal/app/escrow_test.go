package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
	"github.com/titanpay/settlement-service/pkg/gatewayclient"
)

func newTestEscrowManager(repo *stubRepository, gateway *stubGateway) *EscrowManager {
	return NewEscrowManager(repo, gateway, nil)
}

func TestRelease_Success(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{releaseResult: &gatewayclient.ActionResult{Success: true}}
	manager := newTestEscrowManager(repo, gateway)

	if err := manager.Release(context.Background(), "esc-1"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if gateway.releaseCalls != 1 {
		t.Fatalf("expected one release call, got %d", gateway.releaseCalls)
	}
	if len(repo.statusUpdates) != 1 {
		t.Fatalf("expected one mirror update, got %d", len(repo.statusUpdates))
	}
	update := repo.statusUpdates[0]
	if update.escrowID != "esc-1" || update.status != domain.SettlementCompleted {
		t.Fatalf("expected mirror completed for esc-1, got %+v", update)
	}
}

func TestRelease_NotPendingConflict(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{releaseErr: &gatewayclient.ErrorResponse{Code: gatewayclient.CodeEscrowNotPending}}
	manager := newTestEscrowManager(repo, gateway)

	err := manager.Release(context.Background(), "esc-1")
	if !errors.Is(err, ErrEscrowNotPending) {
		t.Fatalf("expected ErrEscrowNotPending, got %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror updates on conflict, got %d", len(repo.statusUpdates))
	}
}

func TestRelease_FalseSuccessIsConflict(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{releaseResult: &gatewayclient.ActionResult{Success: false}}
	manager := newTestEscrowManager(repo, gateway)

	err := manager.Release(context.Background(), "esc-1")
	if !errors.Is(err, ErrEscrowNotPending) {
		t.Fatalf("expected ErrEscrowNotPending on unsuccessful release, got %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Fatalf("expected no mirror updates, got %d", len(repo.statusUpdates))
	}
}

func TestRelease_NotFound(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{releaseErr: &gatewayclient.ErrorResponse{Code: gatewayclient.CodeEscrowNotFound}}
	manager := newTestEscrowManager(repo, gateway)

	err := manager.Release(context.Background(), "esc-missing")
	if !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound, got %v", err)
	}
}

func TestRefund_ReturnsAmountAndMirrorsReason(t *testing.T) {
	repo := newStubRepository()
	amount := int64(150)
	gateway := &stubGateway{refundResult: &gatewayclient.RefundActionResult{Success: true, RefundedAmount: &amount}}
	manager := newTestEscrowManager(repo, gateway)

	result, err := manager.Refund(context.Background(), "esc-2", "item never shipped")
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful refund result")
	}
	if result.RefundedAmount == nil || *result.RefundedAmount != 150 {
		t.Fatalf("expected refunded amount 150, got %v", result.RefundedAmount)
	}
	if gateway.lastReason != "item never shipped" {
		t.Fatalf("expected reason forwarded to gateway, got %q", gateway.lastReason)
	}
	if len(repo.statusUpdates) != 1 {
		t.Fatalf("expected one mirror update, got %d", len(repo.statusUpdates))
	}
	update := repo.statusUpdates[0]
	if update.status != domain.SettlementRefunded {
		t.Fatalf("expected mirror refunded, got %q", update.status)
	}
	if update.reason == nil || *update.reason != "item never shipped" {
		t.Fatalf("expected reason mirrored, got %v", update.reason)
	}
}

func TestRefund_TerminalEscrowRejected(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{refundResult: &gatewayclient.RefundActionResult{Success: false}}
	manager := newTestEscrowManager(repo, gateway)

	_, err := manager.Refund(context.Background(), "esc-2", "too late")
	if !errors.Is(err, ErrEscrowNotPending) {
		t.Fatalf("expected ErrEscrowNotPending on unsuccessful refund, got %v", err)
	}
}

func TestDispute_FalseSuccessRejected(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{disputeResult: &gatewayclient.ActionResult{Success: false}}
	manager := newTestEscrowManager(repo, gateway)

	err := manager.Dispute(context.Background(), "esc-3", "not as described")
	if !errors.Is(err, ErrEscrowNotPending) {
		t.Fatalf("expected ErrEscrowNotPending on unsuccessful dispute, got %v", err)
	}
}

func TestListPending_FiltersAndSortsNewestFirst(t *testing.T) {
	partyID := uuid.New()
	otherID := uuid.New()
	now := time.Now()

	repo := newStubRepository()
	gateway := &stubGateway{pendingEscrows: []gatewayclient.EscrowRecord{
		{
			ID: "esc-old", SenderID: partyID.String(), RecipientID: otherID.String(),
			Amount: 40, Status: "pending", CreatedAt: now.Add(-2 * time.Hour),
		},
		{
			ID: "esc-released", SenderID: partyID.String(), RecipientID: otherID.String(),
			Amount: 75, Status: "released", CreatedAt: now.Add(-time.Minute),
		},
		{
			ID: "esc-new", SenderID: otherID.String(), RecipientID: partyID.String(),
			Amount: 60, Status: "pending", CreatedAt: now.Add(-time.Hour),
		},
		{
			ID: "esc-malformed", SenderID: "not-a-uuid", RecipientID: otherID.String(),
			Amount: 10, Status: "pending", CreatedAt: now,
		},
	}}
	manager := newTestEscrowManager(repo, gateway)

	escrows, err := manager.ListPending(context.Background(), partyID)
	if err != nil {
		t.Fatalf("ListPending returned error: %v", err)
	}
	if len(escrows) != 2 {
		t.Fatalf("expected 2 pending escrows, got %d", len(escrows))
	}
	if escrows[0].ID != "esc-new" || escrows[1].ID != "esc-old" {
		t.Fatalf("expected newest-first ordering [esc-new esc-old], got [%s %s]", escrows[0].ID, escrows[1].ID)
	}
	for _, escrow := range escrows {
		if escrow.Status != domain.EscrowPending {
			t.Fatalf("expected only pending escrows, got status %q", escrow.Status)
		}
	}
}

func TestListPending_GatewayFailure(t *testing.T) {
	repo := newStubRepository()
	gateway := &stubGateway{listErr: errors.New("gateway unavailable")}
	manager := newTestEscrowManager(repo, gateway)

	_, err := manager.ListPending(context.Background(), uuid.New())
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}
