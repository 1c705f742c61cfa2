/**
 * @description
 * This file contains the transfer orchestrator for the settlement-service.
 * The `Service` struct drives a single transfer request to completion: it
 * validates the request, performs the advisory funds check, asks the policy
 * engine for the settlement mode, and executes exactly one gateway call for
 * the chosen path.
 *
 * Key invariants:
 * - The orchestrator never mutates balances itself. All money movement is
 *   delegated to the Transfer Gateway's atomic operations, so no partial
 *   transfer state is ever observable from here.
 * - Nothing is retried. Retry policy belongs to the gateway/network layer,
 *   because replaying a money-movement call that may have committed risks a
 *   double-spend.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For settlement record IDs.
 * - internal/domain, internal/store: Domain models and the local mirror.
 * - pkg/gatewayclient, pkg/rabbitmq: External gateway and event broker.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/domain"
	"github.com/titanpay/settlement-service/internal/store"
	"github.com/titanpay/settlement-service/pkg/gatewayclient"
	"github.com/titanpay/settlement-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all settlement events are published to.
const EventsExchange = "titan.events"

// TransferGateway is the RPC surface of the external Transfer Gateway this
// service depends on. Each mutating operation is a single all-or-nothing
// backend transaction.
type TransferGateway interface {
	AtomicTransfer(ctx context.Context, senderID, recipientID string, amount int64, resourceID, message string) (*gatewayclient.TransferResult, error)
	CreateEscrow(ctx context.Context, senderID, recipientID string, amount int64, resourceID, releaseCondition string) (*gatewayclient.EscrowResult, error)
	ReleaseEscrow(ctx context.Context, escrowID string) (*gatewayclient.ActionResult, error)
	RefundEscrow(ctx context.Context, escrowID, reason string) (*gatewayclient.RefundActionResult, error)
	OpenDispute(ctx context.Context, escrowID, reason string) (*gatewayclient.ActionResult, error)
	GetBalance(ctx context.Context, userID string) (*gatewayclient.Balance, error)
	ListPendingEscrows(ctx context.Context, partyID string) ([]gatewayclient.EscrowRecord, error)
}

// Service orchestrates transfer requests.
type Service struct {
	repo          store.Repository
	gateway       TransferGateway
	eventProducer rabbitmq.Publisher
	thresholds    domain.Thresholds
	rateLimiter   TransferRateLimiter
}

// NewService creates a new settlement service instance. The thresholds are
// assumed to have been validated at configuration load time; DecideMode
// re-checks them on every request regardless.
func NewService(repo store.Repository, gateway TransferGateway, producer rabbitmq.Publisher, thresholds domain.Thresholds) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		thresholds:    thresholds,
	}
}

// SetTransferRateLimiter installs a distributed rate limiter for transfer
// submission. Without one, submission is unlimited.
func (s *Service) SetTransferRateLimiter(limiter TransferRateLimiter) {
	s.rateLimiter = limiter
}

// Transfer settles one transfer from sender to the requested recipient.
// escrowChoice is consulted only when the amount lands in the optional band;
// a nil choice defaults to escrow, the conservative path.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest, escrowChoice func() bool) (*domain.TransferOutcome, error) {
	if s.rateLimiter != nil {
		allowed, _, err := s.rateLimiter.Allow(ctx, "transfer:"+senderID.String())
		if err != nil {
			log.Printf("level=warn component=settlement op=transfer msg=\"rate limiter unavailable; allowing request\" sender_id=%s err=%v", senderID, err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	// Validation happens before any I/O: an error here guarantees the gateway
	// was never called.
	if senderID == req.RecipientID {
		return nil, fmt.Errorf("%w: user %s", ErrInvalidRecipient, senderID)
	}
	mode, err := domain.DecideMode(req.Amount, s.thresholds)
	if err != nil {
		return nil, err
	}

	// Advisory funds check. The gateway re-validates inside its transaction,
	// so a failed or stale read here can only cost a redundant round-trip,
	// never money. A read error therefore degrades to "proceed".
	if balance, err := s.gateway.GetBalance(ctx, senderID.String()); err != nil {
		log.Printf("level=warn component=settlement op=transfer msg=\"advisory balance read failed; deferring to gateway\" sender_id=%s err=%v", senderID, err)
	} else if balance.Available < req.Amount {
		return nil, fmt.Errorf("%w: available %d, need %d", ErrInsufficientFunds, balance.Available, req.Amount)
	}

	useEscrow := false
	switch mode {
	case domain.ModeDirect:
		useEscrow = false
	case domain.ModeMandatory:
		useEscrow = true
	case domain.ModeOptional:
		if escrowChoice != nil {
			useEscrow = escrowChoice()
		} else {
			useEscrow = true
		}
	}

	log.Printf("level=info component=settlement op=transfer mode=%s escrow=%t sender_id=%s recipient_id=%s amount=%d", mode, useEscrow, senderID, req.RecipientID, req.Amount)

	if useEscrow {
		return s.settleViaEscrow(ctx, senderID, req, mode)
	}
	return s.settleDirect(ctx, senderID, req, mode)
}

// settleDirect executes the transfer as one atomic gateway operation. The
// sender debit and recipient credit happen in a single gateway transaction;
// this method never issues them as two calls.
func (s *Service) settleDirect(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest, mode domain.SettlementMode) (*domain.TransferOutcome, error) {
	record := newSettlementRecord(senderID, req, mode)
	if err := s.repo.CreateSettlement(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: recording settlement: %v", ErrTransferFailed, err)
	}

	result, err := s.gateway.AtomicTransfer(ctx, senderID.String(), req.RecipientID.String(), req.Amount, resourceIDString(req.ResourceID), req.Message)
	if err != nil {
		if markErr := s.repo.MarkSettlementFailed(ctx, record.ID, err.Error()); markErr != nil {
			log.Printf("level=error component=settlement op=transfer msg=\"failed to mark settlement failed\" settlement_id=%s err=%v", record.ID, markErr)
		}
		if gatewayclient.HasCode(err, gatewayclient.CodeInsufficientFunds) {
			return nil, fmt.Errorf("%w: rejected by gateway", ErrInsufficientFunds)
		}
		log.Printf("level=warn component=settlement op=transfer outcome=failed settlement_id=%s sender_id=%s amount=%d err=%v", record.ID, senderID, req.Amount, err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := s.repo.MarkSettlementCompleted(ctx, record.ID, result.SenderTxnID); err != nil {
		log.Printf("level=error component=settlement op=transfer msg=\"settlement mirror update failed after committed transfer\" settlement_id=%s err=%v", record.ID, err)
	}

	s.publish("settlement.transfer.completed", domain.TransferCompletedPayload{
		TransactionID: record.ID,
		SenderID:      senderID,
		RecipientID:   req.RecipientID,
		Amount:        req.Amount,
	})

	return &domain.TransferOutcome{
		TransactionID: record.ID.String(),
		Mode:          mode,
		Status:        domain.SettlementCompleted,
	}, nil
}

// settleViaEscrow opens an escrow holding the funds until an external release
// condition is met. The returned outcome carries the escrow id so callers know
// the recipient has not been paid yet.
func (s *Service) settleViaEscrow(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest, mode domain.SettlementMode) (*domain.TransferOutcome, error) {
	record := newSettlementRecord(senderID, req, mode)
	if err := s.repo.CreateSettlement(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: recording settlement: %v", ErrEscrowCreation, err)
	}

	result, err := s.gateway.CreateEscrow(ctx, senderID.String(), req.RecipientID.String(), req.Amount, resourceIDString(req.ResourceID), domain.ReleaseConditionProofVerified)
	if err != nil {
		if markErr := s.repo.MarkSettlementFailed(ctx, record.ID, err.Error()); markErr != nil {
			log.Printf("level=error component=settlement op=create_escrow msg=\"failed to mark settlement failed\" settlement_id=%s err=%v", record.ID, markErr)
		}
		if gatewayclient.HasCode(err, gatewayclient.CodeInsufficientFunds) {
			return nil, fmt.Errorf("%w: rejected by gateway", ErrInsufficientFunds)
		}
		log.Printf("level=warn component=settlement op=create_escrow outcome=failed settlement_id=%s sender_id=%s amount=%d err=%v", record.ID, senderID, req.Amount, err)
		return nil, fmt.Errorf("%w: %v", ErrEscrowCreation, err)
	}

	if err := s.repo.AttachEscrow(ctx, record.ID, result.EscrowID); err != nil {
		log.Printf("level=error component=settlement op=create_escrow msg=\"settlement mirror update failed after committed escrow\" settlement_id=%s escrow_id=%s err=%v", record.ID, result.EscrowID, err)
	}

	s.publish("settlement.escrow.created", domain.EscrowCreatedPayload{
		EscrowID:    result.EscrowID,
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
	})

	escrowID := result.EscrowID
	return &domain.TransferOutcome{
		TransactionID: record.ID.String(),
		EscrowID:      &escrowID,
		Mode:          mode,
		Status:        domain.SettlementPending,
	}, nil
}

// GetBalance reads the sender's advisory balance from the gateway.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*gatewayclient.Balance, error) {
	balance, err := s.gateway.GetBalance(ctx, userID.String())
	if err != nil {
		log.Printf("level=warn component=settlement op=get_balance outcome=failed user_id=%s err=%v", userID, err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return balance, nil
}

// ListSettlements returns the local history mirror for a user, newest first.
func (s *Service) ListSettlements(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Settlement, error) {
	return s.repo.ListSettlementsByUser(ctx, userID, limit, offset)
}

// ListNotifications returns the in-app notifications written for a user.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.InAppNotification, error) {
	return s.repo.ListInAppNotifications(ctx, userID, limit, offset)
}

func (s *Service) publish(routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	// Events are best-effort; money movement never depends on the broker.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.eventProducer.Publish(ctx, EventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=settlement msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func newSettlementRecord(senderID uuid.UUID, req domain.TransferRequest, mode domain.SettlementMode) *domain.Settlement {
	record := &domain.Settlement{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Mode:        mode,
		Status:      domain.SettlementPending,
		ResourceID:  req.ResourceID,
	}
	if req.Message != "" {
		message := req.Message
		record.Message = &message
	}
	return record
}

func resourceIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// IsValidationError reports whether err belongs to the pre-I/O validation
// kinds that guarantee no gateway side effects occurred.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvalidThresholds) ||
		errors.Is(err, ErrInvalidRecipient)
}
