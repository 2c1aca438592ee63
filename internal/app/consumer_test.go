package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

type depositConfirmerStub struct {
	txn        *domain.Transaction
	confirmErr error
	confirmed  int
}

func (s *depositConfirmerStub) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.txn == nil || s.txn.ID != transactionID {
		return nil, ErrTransactionNotFound
	}
	return s.txn, nil
}

func (s *depositConfirmerStub) ConfirmDeposit(ctx context.Context, transactionID uuid.UUID) (*domain.SettlementResult, error) {
	s.confirmed++
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &domain.SettlementResult{Transaction: s.txn}, nil
}

func paymentEventBody(t *testing.T, event domain.PaymentStatusEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func pendingDeposit() *domain.Transaction {
	return &domain.Transaction{
		ID:          uuid.New(),
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusPending,
		Amount:      25000,
		InitiatorID: uuid.New(),
	}
}

func TestHandleMessage_ConfirmsSucceededPayment(t *testing.T) {
	stub := &depositConfirmerStub{txn: pendingDeposit()}
	consumer := NewPaymentStatusConsumer(stub)

	ok := consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{
		TransactionID: stub.txn.ID.String(),
		Status:        "SUCCESSFUL",
		Amount:        25000,
	}))
	if !ok {
		t.Fatalf("expected message to be acknowledged")
	}
	if stub.confirmed != 1 {
		t.Fatalf("expected one confirmation, got %d", stub.confirmed)
	}
}

func TestHandleMessage_AcksDuplicateDelivery(t *testing.T) {
	txn := pendingDeposit()
	txn.Status = domain.TransactionStatusSuccess
	stub := &depositConfirmerStub{txn: txn}
	consumer := NewPaymentStatusConsumer(stub)

	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: txn.ID.String(), Status: "succeeded"})) {
		t.Fatalf("expected duplicate delivery to be acknowledged")
	}
	if stub.confirmed != 0 {
		t.Fatalf("expected no confirmation for an already settled deposit")
	}
}

func TestHandleMessage_SkipsAmountMismatch(t *testing.T) {
	stub := &depositConfirmerStub{txn: pendingDeposit()}
	consumer := NewPaymentStatusConsumer(stub)

	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: stub.txn.ID.String(), Status: "succeeded", Amount: 1})) {
		t.Fatalf("expected mismatch to be acknowledged")
	}
	if stub.confirmed != 0 {
		t.Fatalf("expected mismatched payment to stay pending")
	}
}

func TestHandleMessage_IgnoresFailedPaymentAndBadPayloads(t *testing.T) {
	stub := &depositConfirmerStub{txn: pendingDeposit()}
	consumer := NewPaymentStatusConsumer(stub)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatalf("expected malformed payload to be acknowledged")
	}
	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: "nope", Status: "succeeded"})) {
		t.Fatalf("expected invalid id to be acknowledged")
	}
	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: stub.txn.ID.String(), Status: "expired"})) {
		t.Fatalf("expected failed payment to be acknowledged")
	}
	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: uuid.NewString(), Status: "succeeded"})) {
		t.Fatalf("expected unknown transaction to be acknowledged")
	}
	if stub.confirmed != 0 {
		t.Fatalf("expected no confirmations, got %d", stub.confirmed)
	}
}

func TestHandleMessage_RequeuesStorageFailure(t *testing.T) {
	stub := &depositConfirmerStub{
		txn:        pendingDeposit(),
		confirmErr: &StorageError{Op: "confirm deposit", Err: errors.New("timeout")},
	}
	consumer := NewPaymentStatusConsumer(stub)

	if consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: stub.txn.ID.String(), Status: "succeeded"})) {
		t.Fatalf("expected storage failure to be requeued")
	}
}

func TestHandleMessage_AcksInvalidTransaction(t *testing.T) {
	stub := &depositConfirmerStub{
		txn:        pendingDeposit(),
		confirmErr: &InvalidTransactionError{TransactionID: "x", Cause: ErrInvalidTransition},
	}
	consumer := NewPaymentStatusConsumer(stub)

	if !consumer.HandleMessage(paymentEventBody(t, domain.PaymentStatusEvent{TransactionID: stub.txn.ID.String(), Status: "succeeded"})) {
		t.Fatalf("expected invalid transaction to be acknowledged")
	}
}
