/**
 * @description
 * This file contains the HTTP handlers for the wallet-service. Each handler
 * decodes the request, resolves the caller from the context, invokes the
 * ledger service and maps the outcome onto an HTTP status.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/google/uuid: transaction and owner ids.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fservice/wallet-service/internal/app"
	"github.com/fservice/wallet-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	dateLayout        = "2006-01-02"
	defaultStatsRange = 30 * 24 * time.Hour
)

// AmountLimits holds the per-operation minimum amounts in minor units.
type AmountLimits struct {
	MinDeposit  int64
	MinWithdraw int64
	MinTransfer int64
}

// WalletHandlers holds dependencies for the wallet handlers.
type WalletHandlers struct {
	service *app.Service
	limits  AmountLimits
	now     func() time.Time
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service, limits AmountLimits) *WalletHandlers {
	return &WalletHandlers{service: service, limits: limits, now: time.Now}
}

// GetWalletHandler returns the caller's wallet.
func (h *WalletHandlers) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), caller.OwnerID)
	if err != nil {
		h.writeLedgerError(w, "get_wallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, wallet)
}

// DepositHandler records a pending deposit for the caller.
func (h *WalletHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !h.checkMinimum(w, "deposit", req.Amount, h.limits.MinDeposit) {
		return
	}

	tx, err := h.service.Deposit(r.Context(), caller.OwnerID, req)
	if err != nil {
		h.writeLedgerError(w, "deposit", err)
		return
	}
	log.Printf("level=info component=api endpoint=deposit outcome=accepted owner_id=%s transaction_id=%s amount=%d", caller.OwnerID, tx.ID, tx.Amount)
	h.writeJSON(w, http.StatusCreated, tx)
}

// WithdrawHandler moves funds from available to locked pending settlement.
func (h *WalletHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !h.checkMinimum(w, "withdraw", req.Amount, h.limits.MinWithdraw) {
		return
	}

	tx, err := h.service.Withdraw(r.Context(), caller.OwnerID, req)
	if err != nil {
		h.writeLedgerError(w, "withdraw", err)
		return
	}
	log.Printf("level=info component=api endpoint=withdraw outcome=accepted owner_id=%s transaction_id=%s amount=%d", caller.OwnerID, tx.ID, tx.Amount)
	h.writeJSON(w, http.StatusCreated, tx)
}

// TransferHandler moves funds to another owner's wallet immediately.
func (h *WalletHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.RecipientID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}
	if !h.checkMinimum(w, "transfer", req.Amount, h.limits.MinTransfer) {
		return
	}

	result, err := h.service.Transfer(r.Context(), caller.OwnerID, req)
	if err != nil {
		h.writeLedgerError(w, "transfer", err)
		return
	}
	log.Printf("level=info component=api endpoint=transfer outcome=success owner_id=%s recipient_id=%s transaction_id=%s amount=%d", caller.OwnerID, req.RecipientID, result.Transaction.ID, req.Amount)
	h.writeJSON(w, http.StatusCreated, result)
}

// GetHistoryHandler returns a page of the caller's initiated transactions.
func (h *WalletHandlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	query := r.URL.Query()
	var filter domain.HistoryFilter
	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		typ, err := domain.ParseTransactionType(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Type = &typ
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseTransactionStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}

	from, err := parseTimeParam(query.Get("from"), false)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid from date")
		return
	}
	to, err := parseTimeParam(query.Get("to"), true)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid to date")
		return
	}
	filter.From, filter.To = from, to

	page, err := parseOptionalInt(query.Get("page"), 1)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	limit, err := parseOptionalInt(query.Get("limit"), app.DefaultHistoryLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	result, err := h.service.GetHistory(r.Context(), caller.OwnerID, filter, domain.Pagination{Page: page, Limit: limit})
	if err != nil {
		h.writeLedgerError(w, "get_history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetStatsHandler aggregates the caller's successful transactions. The range
// defaults to the last 30 days.
func (h *WalletHandlers) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	query := r.URL.Query()
	now := h.now().UTC()
	to := now
	from := now.Add(-defaultStatsRange)

	if parsed, err := parseTimeParam(query.Get("from"), false); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid from date")
		return
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := parseTimeParam(query.Get("to"), false); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid to date")
		return
	} else if parsed != nil {
		to = *parsed
	}

	report, err := h.service.GetStats(r.Context(), caller.OwnerID, from, to)
	if err != nil {
		h.writeLedgerError(w, "get_stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// GetTransactionHandler returns a transaction the caller initiated or received.
func (h *WalletHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCaller(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transactionID, ok := h.transactionIDParam(w, r)
	if !ok {
		return
	}

	var (
		tx  *domain.Transaction
		err error
	)
	if caller.IsAdmin() {
		tx, err = h.service.GetTransaction(r.Context(), transactionID)
	} else {
		tx, err = h.service.GetTransactionForOwner(r.Context(), caller.OwnerID, transactionID)
	}
	if err != nil {
		h.writeLedgerError(w, "get_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// AdminGetTransactionHandler returns any transaction.
func (h *WalletHandlers) AdminGetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := h.transactionIDParam(w, r)
	if !ok {
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeLedgerError(w, "admin_get_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// ConfirmDepositHandler settles a pending deposit.
func (h *WalletHandlers) ConfirmDepositHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := h.transactionIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.ConfirmDeposit(r.Context(), transactionID)
	if err != nil {
		h.writeLedgerError(w, "confirm_deposit", err)
		return
	}
	h.logAdminAction(r, "confirm_deposit", transactionID)
	h.writeJSON(w, http.StatusOK, result)
}

// ConfirmWithdrawHandler settles a pending withdrawal.
func (h *WalletHandlers) ConfirmWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := h.transactionIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.ConfirmWithdraw(r.Context(), transactionID)
	if err != nil {
		h.writeLedgerError(w, "confirm_withdraw", err)
		return
	}
	h.logAdminAction(r, "confirm_withdraw", transactionID)
	h.writeJSON(w, http.StatusOK, result)
}

// CancelWithdrawHandler cancels a pending withdrawal and releases its funds.
func (h *WalletHandlers) CancelWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := h.transactionIDParam(w, r)
	if !ok {
		return
	}

	var req domain.CancelWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.CancelWithdraw(r.Context(), transactionID, req.Reason)
	if err != nil {
		h.writeLedgerError(w, "cancel_withdraw", err)
		return
	}
	h.logAdminAction(r, "cancel_withdraw", transactionID)
	h.writeJSON(w, http.StatusOK, result)
}

// CreateWalletHandler provisions a wallet for a newly registered owner.
func (h *WalletHandlers) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), req.OwnerType, req.OwnerID)
	if err != nil {
		h.writeLedgerError(w, "create_wallet", err)
		return
	}
	log.Printf("level=info component=api endpoint=create_wallet outcome=success owner_id=%s wallet_id=%s", wallet.OwnerID, wallet.ID)
	h.writeJSON(w, http.StatusCreated, wallet)
}

func (h *WalletHandlers) checkMinimum(w http.ResponseWriter, endpoint string, amount, minimum int64) bool {
	if amount <= 0 {
		h.writeError(w, http.StatusBadRequest, app.ErrInvalidAmount.Error())
		return false
	}
	if amount < minimum {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=below_minimum amount=%d minimum=%d", endpoint, amount, minimum)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Amount must be at least %d", minimum))
		return false
	}
	return true
}

func (h *WalletHandlers) transactionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *WalletHandlers) logAdminAction(r *http.Request, action string, transactionID uuid.UUID) {
	caller, _ := GetCaller(r.Context())
	log.Printf("level=info component=api endpoint=%s outcome=success admin_id=%s transaction_id=%s", action, caller.OwnerID, transactionID)
}

// writeLedgerError maps the ledger error taxonomy onto HTTP statuses.
func (h *WalletHandlers) writeLedgerError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrWalletNotFound):
		h.writeError(w, http.StatusNotFound, "Wallet not found")
	case errors.Is(err, app.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, app.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, app.ErrBalanceOverflow):
		h.writeError(w, http.StatusUnprocessableEntity, "Balance limit exceeded")
	case errors.Is(err, app.ErrWalletExists):
		h.writeError(w, http.StatusConflict, "Wallet already exists")
	case errors.Is(err, app.ErrInvalidTransaction),
		errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, app.ErrInvalidType):
		h.writeError(w, http.StatusConflict, err.Error())
	case app.IsClientError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed retryable=%t err=%v", endpoint, app.IsRetryable(err), err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	log.Printf("level=warn component=api endpoint=%s outcome=reject err=%v", endpoint, err)
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// parseTimeParam accepts RFC3339 or a bare YYYY-MM-DD date. A bare date used
// as an upper bound extends to the end of that UTC day.
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
