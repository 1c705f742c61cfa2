/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's API
 * endpoints. Handlers parse incoming requests, call the appropriate methods on
 * the application services, and map the typed error taxonomy onto HTTP status
 * codes. Unexpected failures always surface as a generic "try again later"
 * message; the detail stays in the server log.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/titanpay/settlement-service/internal/app"
	"github.com/titanpay/settlement-service/internal/domain"
)

const genericErrorMessage = "Something went wrong. Please try again later."

// SettlementHandlers holds the application services that handlers use.
type SettlementHandlers struct {
	service *app.Service
	escrows *app.EscrowManager
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service, escrows *app.EscrowManager) *SettlementHandlers {
	return &SettlementHandlers{service: service, escrows: escrows}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeTaxonomyError maps the closed error taxonomy onto HTTP responses.
// Validation and state-conflict errors carry actionable messages; anything
// unexpected is logged and answered generically.
func (h *SettlementHandlers) writeTaxonomyError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be a positive whole number of coins.")
	case errors.Is(err, app.ErrInvalidRecipient):
		h.writeError(w, http.StatusBadRequest, "You cannot send coins to yourself.")
	case errors.Is(err, app.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Your balance does not cover this amount. Top up or reduce the amount.")
	case errors.Is(err, app.ErrEscrowNotPending):
		h.writeError(w, http.StatusConflict, "This escrow has already been settled.")
	case errors.Is(err, app.ErrEscrowNotFound):
		h.writeError(w, http.StatusNotFound, "Escrow not found.")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer attempts. Please wait a moment.")
	case errors.Is(err, app.ErrTransferFailed), errors.Is(err, app.ErrEscrowCreation):
		log.Printf("level=error component=api endpoint=%s msg=\"gateway operation failed\" err=%v", endpoint, err)
		h.writeError(w, http.StatusBadGateway, genericErrorMessage)
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unexpected error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, genericErrorMessage)
	}
}

// authedUserID extracts and parses the authenticated user id, answering the
// request itself on failure.
func (h *SettlementHandlers) authedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_user_id user_id=%s", userIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// TransferHandler handles requests to settle a transfer.
func (h *SettlementHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// The escrow choice is an injected strategy: when the client stated a
	// preference it is honored in optional mode, otherwise the orchestrator
	// falls back to escrow.
	var escrowChoice func() bool
	if req.UseEscrow != nil {
		choice := *req.UseEscrow
		escrowChoice = func() bool { return choice }
	}

	outcome, err := h.service.Transfer(r.Context(), senderID, req, escrowChoice)
	if err != nil {
		h.writeTaxonomyError(w, "transfer", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, outcome)
}

// ReleaseEscrowHandler releases a pending escrow to its recipient.
func (h *SettlementHandlers) ReleaseEscrowHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authedUserID(w, r); !ok {
		return
	}
	escrowID := strings.TrimSpace(chi.URLParam(r, "escrowID"))
	if escrowID == "" {
		h.writeError(w, http.StatusBadRequest, "Escrow ID is required")
		return
	}

	if err := h.escrows.Release(r.Context(), escrowID); err != nil {
		h.writeTaxonomyError(w, "release_escrow", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RefundEscrowHandler refunds a pending escrow to its sender.
func (h *SettlementHandlers) RefundEscrowHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authedUserID(w, r); !ok {
		return
	}
	escrowID := strings.TrimSpace(chi.URLParam(r, "escrowID"))
	if escrowID == "" {
		h.writeError(w, http.StatusBadRequest, "Escrow ID is required")
		return
	}

	var req domain.EscrowRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=refund_escrow outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.escrows.Refund(r.Context(), escrowID, req.Reason)
	if err != nil {
		h.writeTaxonomyError(w, "refund_escrow", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DisputeEscrowHandler records a dispute against a pending escrow.
func (h *SettlementHandlers) DisputeEscrowHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authedUserID(w, r); !ok {
		return
	}
	escrowID := strings.TrimSpace(chi.URLParam(r, "escrowID"))
	if escrowID == "" {
		h.writeError(w, http.StatusBadRequest, "Escrow ID is required")
		return
	}

	var req domain.EscrowRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=dispute_escrow outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.writeError(w, http.StatusBadRequest, "A dispute reason is required")
		return
	}

	if err := h.escrows.Dispute(r.Context(), escrowID, req.Reason); err != nil {
		h.writeTaxonomyError(w, "dispute_escrow", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListPendingEscrowsHandler lists the caller's pending escrows, newest first.
func (h *SettlementHandlers) ListPendingEscrowsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	escrows, err := h.escrows.ListPending(r.Context(), userID)
	if err != nil {
		h.writeTaxonomyError(w, "list_pending_escrows", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"escrows": escrows})
}

// BalanceHandler returns the caller's advisory balance.
func (h *SettlementHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeTaxonomyError(w, "balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// HistoryHandler lists the caller's settlement history from the local mirror.
func (h *SettlementHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)
	settlements, err := h.service.ListSettlements(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=history msg=\"history query failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, genericErrorMessage)
		return
	}
	if settlements == nil {
		settlements = []domain.Settlement{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"settlements": settlements})
}

// NotificationsHandler lists the caller's in-app notifications.
func (h *SettlementHandlers) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)
	notifications, err := h.service.ListNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=notifications msg=\"notification query failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, genericErrorMessage)
		return
	}
	if notifications == nil {
		notifications = []domain.InAppNotification{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
