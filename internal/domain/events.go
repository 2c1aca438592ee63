package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventLedgerPendingStale is the routing key of the stale pending sweep summary.
const EventLedgerPendingStale = "ledger.pending.stale"

// Routing keys consumed from the payment gateway.
const (
	EventPaymentDepositSucceeded = "payment.deposit.succeeded"
)

// TransactionNotification is emitted after a settlement or transfer commits.
// Downstream notification fan-out reads it from the events exchange.
type TransactionNotification struct {
	EventID        string            `json:"event_id"`
	EventType      string            `json:"event_type"`
	TransactionID  uuid.UUID         `json:"transaction_id"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Amount         int64             `json:"amount"`
	InitiatorID    uuid.UUID         `json:"initiator_id"`
	RecipientID    *uuid.UUID        `json:"recipient_id,omitempty"`
	Note           string            `json:"note,omitempty"`
	CancelReason   string            `json:"cancel_reason,omitempty"`
	InitiatorAvail int64             `json:"initiator_available_balance"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// NotificationRoutingKey returns the topic routing key for a settled transaction,
// e.g. "transaction.notification.withdraw.cancelled".
func NotificationRoutingKey(tx *Transaction) string {
	return fmt.Sprintf("transaction.notification.%s.%s", tx.Type, tx.Status)
}

// PaymentStatusEvent represents the message emitted by the payment gateway
// when money for a pending deposit has actually arrived.
type PaymentStatusEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	ProviderRef   string    `json:"provider_ref"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StalePendingEvent summarizes deposits and withdrawals that have waited for
// an admin decision longer than the configured threshold.
type StalePendingEvent struct {
	EventID         string      `json:"event_id"`
	EventType       string      `json:"event_type"`
	Count           int         `json:"count"`
	TotalAmount     int64       `json:"total_amount"`
	DepositCount    int         `json:"deposit_count"`
	WithdrawCount   int         `json:"withdraw_count"`
	TransactionIDs  []uuid.UUID `json:"transaction_ids"`
	OldestCreatedAt time.Time   `json:"oldest_created_at"`
	OlderThan       time.Time   `json:"older_than"`
	DetectedAt      time.Time   `json:"detected_at"`
}
