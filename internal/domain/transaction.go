/**
 * @description
 * This file defines the core domain models for the wallet-service ledger.
 * These structs represent the wallet, the transaction record and the DTOs
 * used by the engine, the store and the API layer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (VND has no
 *   minor unit, so the integer amount is exact).
 * - A transaction's amount, type and parties are fixed at creation; only the
 *   status and its settlement timestamps change afterwards.
 */

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType identifies which money movement a transaction records.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypeTransfer TransactionType = "transfer"
)

// TransactionTypes lists every supported type, in reporting order.
var TransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdraw,
	TransactionTypeTransfer,
}

// ParseTransactionType normalizes and validates a type filter.
func ParseTransactionType(raw string) (TransactionType, error) {
	t := TransactionType(strings.TrimSpace(strings.ToLower(raw)))
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", raw)
	}
}

// TransactionStatus is the lifecycle state of a transaction.
// pending -> success | cancelled; both outcomes are terminal.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSuccess   TransactionStatus = "success"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusCancelled
}

// ParseTransactionStatus normalizes and validates a status filter.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	s := TransactionStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", raw)
	}
}

// PaymentDetail is the opaque bank / payment-provider payload supplied by the
// initiator of a deposit or withdrawal.
type PaymentDetail map[string]interface{}

// Transaction is the ledger record of one money movement attempt.
// This struct maps directly to the `wallet_transactions` table.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	InitiatorID   uuid.UUID         `json:"initiator_id"`
	RecipientID   *uuid.UUID        `json:"recipient_id,omitempty"`
	Status        TransactionStatus `json:"status"`
	Note          string            `json:"note"`
	PaymentDetail PaymentDetail     `json:"payment_detail,omitempty"`
	CancelReason  *string           `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
}

// Involves reports whether ownerID is a party (initiator or recipient) of t.
func (t *Transaction) Involves(ownerID uuid.UUID) bool {
	if t.InitiatorID == ownerID {
		return true
	}
	return t.RecipientID != nil && *t.RecipientID == ownerID
}

// DepositRequest is the DTO for an incoming deposit API request.
type DepositRequest struct {
	Amount        int64         `json:"amount"`
	PaymentDetail PaymentDetail `json:"payment_detail"`
	Note          string        `json:"note"`
}

// WithdrawRequest is the DTO for an incoming withdrawal API request.
type WithdrawRequest struct {
	Amount   int64         `json:"amount"`
	BankInfo PaymentDetail `json:"bank_info"`
	Note     string        `json:"note"`
}

// TransferRequest is the DTO for an incoming peer-to-peer transfer API request.
type TransferRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
}

// CancelWithdrawRequest carries the admin's reason for rejecting a withdrawal.
type CancelWithdrawRequest struct {
	Reason string `json:"reason"`
}

// SettlementResult is returned by the admin confirm/cancel operations.
type SettlementResult struct {
	Wallet      *Wallet      `json:"wallet"`
	Transaction *Transaction `json:"transaction"`
}

// TransferResult is returned by a completed transfer.
type TransferResult struct {
	Transaction *Transaction `json:"transaction"`
	FromWallet  *Wallet      `json:"from_wallet"`
	ToWallet    *Wallet      `json:"to_wallet"`
}
