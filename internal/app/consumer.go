package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

// DepositConfirmer is the part of the ledger the payment consumer drives.
type DepositConfirmer interface {
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ConfirmDeposit(ctx context.Context, transactionID uuid.UUID) (*domain.SettlementResult, error)
}

// PaymentStatusConsumer confirms pending deposits when the payment gateway
// reports that the money has arrived.
type PaymentStatusConsumer struct {
	ledger DepositConfirmer
}

func NewPaymentStatusConsumer(ledger DepositConfirmer) *PaymentStatusConsumer {
	return &PaymentStatusConsumer{ledger: ledger}
}

// HandleMessage returns false only for failures worth redelivering.
func (c *PaymentStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.PaymentStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"failed to unmarshal payload\" err=%v", err)
		return true
	}

	transactionID, err := uuid.Parse(strings.TrimSpace(event.TransactionID))
	if err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"invalid transaction id\" event_id=%s transaction_id=%q", event.EventID, event.TransactionID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, transactionID, event); err != nil {
		log.Printf("level=error component=payment_consumer msg=\"processing failed\" event_id=%s transaction_id=%s err=%s", event.EventID, transactionID, describe(err))
		return false
	}
	return true
}

func (c *PaymentStatusConsumer) processEvent(ctx context.Context, transactionID uuid.UUID, event domain.PaymentStatusEvent) error {
	status := normalizePaymentStatus(event.Status)
	if status != "succeeded" {
		log.Printf("level=info component=payment_consumer msg=\"ignoring non-success payment status\" transaction_id=%s status=%s", transactionID, event.Status)
		return nil
	}

	txn, err := c.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("level=warn component=payment_consumer msg=\"no transaction for payment; acknowledging\" transaction_id=%s", transactionID)
			return nil
		}
		return fmt.Errorf("lookup transaction: %w", err)
	}

	if txn.Type == domain.TransactionTypeDeposit && txn.Status == domain.TransactionStatusSuccess {
		log.Printf("level=info component=payment_consumer msg=\"duplicate delivery; deposit already confirmed\" transaction_id=%s", transactionID)
		return nil
	}

	if event.Amount > 0 && event.Amount != txn.Amount {
		log.Printf("level=warn component=payment_consumer msg=\"payment amount mismatch; leaving for admin review\" transaction_id=%s expected=%d received=%d", transactionID, txn.Amount, event.Amount)
		return nil
	}

	if _, err := c.ledger.ConfirmDeposit(ctx, transactionID); err != nil {
		if errors.Is(err, ErrInvalidTransaction) || IsNotFound(err) {
			log.Printf("level=warn component=payment_consumer msg=\"deposit not confirmable; acknowledging\" transaction_id=%s err=%s", transactionID, describe(err))
			return nil
		}
		return err
	}

	log.Printf("level=info component=payment_consumer msg=\"deposit confirmed\" transaction_id=%s amount=%d provider_ref=%s", transactionID, txn.Amount, event.ProviderRef)
	return nil
}

func normalizePaymentStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "succeeded", "successful", "success", "completed", "paid":
		return "succeeded"
	case "failed", "failure", "expired", "cancelled", "canceled":
		return "failed"
	default:
		return status
	}
}
