/**
 * @description
 * This file contains the ledger engine of the wallet-service. The `Service` struct
 * owns the transaction state machine and runs every money movement as a single
 * atomic unit against the repository.
 *
 * Key features:
 * - deposit / withdraw create pending transactions; admins settle them with
 *   confirmDeposit, confirmWithdraw or cancelWithdraw.
 * - withdraw reserves funds immediately by moving them from available to locked.
 * - transfer settles instantly between two wallets.
 * - Settlements and transfers publish a notification event to RabbitMQ after commit.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For publishing notification events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/fservice/wallet-service/internal/store"
	"github.com/fservice/wallet-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const (
	DefaultEventsExchange  = "fservice.events"
	DefaultHistoryLimit    = 20
	DefaultHistoryMaxLimit = 100
	publishTimeout         = 5 * time.Second
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	EventsExchange  string
	HistoryMaxLimit int
	Clock           func() time.Time
}

// Service provides the core business logic for wallets and the ledger.
type Service struct {
	repo            store.Repository
	eventProducer   rabbitmq.Publisher
	eventsExchange  string
	historyMaxLimit int
	now             func() time.Time
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, opts Options) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if strings.TrimSpace(opts.EventsExchange) == "" {
		opts.EventsExchange = DefaultEventsExchange
	}
	if opts.HistoryMaxLimit <= 0 {
		opts.HistoryMaxLimit = DefaultHistoryMaxLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:            repo,
		eventProducer:   producer,
		eventsExchange:  opts.EventsExchange,
		historyMaxLimit: opts.HistoryMaxLimit,
		now:             func() time.Time { return opts.Clock().UTC() },
	}
}

// CreateWallet provisions the single wallet of an owner with zero balances.
func (s *Service) CreateWallet(ctx context.Context, ownerType string, ownerID uuid.UUID) (*domain.Wallet, error) {
	kind, err := domain.ParseOwnerType(ownerType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOwner, err)
	}
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidOwner)
	}

	now := s.now()
	wallet := &domain.Wallet{
		ID:              uuid.New(),
		OwnerType:       kind,
		OwnerID:         ownerID,
		TransactionRefs: []uuid.UUID{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateWallet(ctx, wallet); err != nil {
		return nil, classify("create wallet", "", err)
	}
	return wallet, nil
}

// GetWallet returns the owner's wallet.
func (s *Service) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.repo.FindWalletByOwner(ctx, ownerID)
	if err != nil {
		return nil, classify("get wallet", "", err)
	}
	return wallet, nil
}

// GetTransaction returns any transaction. Admin callers only.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, classify("get transaction", transactionID.String(), err)
	}
	return txn, nil
}

// GetTransactionForOwner returns a transaction the owner initiated or received.
// Transactions of other owners are reported as not found.
func (s *Service) GetTransactionForOwner(ctx context.Context, ownerID, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !txn.Involves(ownerID) {
		return nil, store.ErrTransactionNotFound
	}
	return txn, nil
}

// Deposit records a pending deposit. Balances change only on ConfirmDeposit.
func (s *Service) Deposit(ctx context.Context, ownerID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TransactionTypeDeposit,
		Amount:        req.Amount,
		InitiatorID:   ownerID,
		Status:        domain.TransactionStatusPending,
		Note:          strings.TrimSpace(req.Note),
		PaymentDetail: req.PaymentDetail,
		CreatedAt:     s.now(),
	}

	err := s.repo.WithinTx(ctx, func(tx store.LedgerTx) error {
		wallet, err := tx.LockWallet(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.AppendTransactionRef(ctx, wallet.ID, txn.ID)
	})
	if err != nil {
		return nil, classify("deposit", txn.ID.String(), err)
	}
	return txn, nil
}

// ConfirmDeposit credits the deposit amount and marks it successful.
// A second confirmation fails with an InvalidTransactionError.
func (s *Service) ConfirmDeposit(ctx context.Context, transactionID uuid.UUID) (*domain.SettlementResult, error) {
	return s.settle(ctx, "confirm deposit", transactionID, settlement{
		expectedType: domain.TransactionTypeDeposit,
		to:           domain.TransactionStatusSuccess,
		delta: func(amount int64) (int64, int64) {
			return amount, 0
		},
	})
}

// Withdraw reserves the amount by moving it from available to locked and
// records a pending withdrawal.
func (s *Service) Withdraw(ctx context.Context, ownerID uuid.UUID, req domain.WithdrawRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TransactionTypeWithdraw,
		Amount:        req.Amount,
		InitiatorID:   ownerID,
		Status:        domain.TransactionStatusPending,
		Note:          strings.TrimSpace(req.Note),
		PaymentDetail: req.BankInfo,
		CreatedAt:     now,
	}

	err := s.repo.WithinTx(ctx, func(tx store.LedgerTx) error {
		wallet, err := tx.LockWallet(ctx, ownerID)
		if err != nil {
			return err
		}
		if wallet.AvailableBalance < req.Amount {
			return store.ErrInsufficientFunds
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := tx.AppendTransactionRef(ctx, wallet.ID, txn.ID); err != nil {
			return err
		}
		_, err = tx.ApplyDelta(ctx, store.ApplyDeltaParams{
			WalletID:       wallet.ID,
			AvailableDelta: -req.Amount,
			LockedDelta:    req.Amount,
			At:             now,
		})
		return err
	})
	if err != nil {
		return nil, classify("withdraw", txn.ID.String(), err)
	}
	return txn, nil
}

// ConfirmWithdraw releases the reserved funds to the external bank rail.
func (s *Service) ConfirmWithdraw(ctx context.Context, transactionID uuid.UUID) (*domain.SettlementResult, error) {
	return s.settle(ctx, "confirm withdraw", transactionID, settlement{
		expectedType: domain.TransactionTypeWithdraw,
		to:           domain.TransactionStatusSuccess,
		delta: func(amount int64) (int64, int64) {
			return 0, -amount
		},
	})
}

// CancelWithdraw returns the reserved funds to the available balance.
func (s *Service) CancelWithdraw(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.SettlementResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrInvalidReason
	}
	return s.settle(ctx, "cancel withdraw", transactionID, settlement{
		expectedType: domain.TransactionTypeWithdraw,
		to:           domain.TransactionStatusCancelled,
		reason:       &reason,
		delta: func(amount int64) (int64, int64) {
			return amount, -amount
		},
	})
}

type settlement struct {
	expectedType domain.TransactionType
	to           domain.TransactionStatus
	reason       *string
	delta        func(amount int64) (available, locked int64)
}

// settle moves a pending transaction to its terminal status and applies the
// matching balance change to the initiator's wallet in one unit.
func (s *Service) settle(ctx context.Context, op string, transactionID uuid.UUID, st settlement) (*domain.SettlementResult, error) {
	now := s.now()
	result := &domain.SettlementResult{}

	err := s.repo.WithinTx(ctx, func(tx store.LedgerTx) error {
		current, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if current.Type != st.expectedType {
			return store.ErrInvalidType
		}
		if current.Status.Terminal() {
			return store.ErrInvalidTransition
		}

		wallet, err := tx.LockWallet(ctx, current.InitiatorID)
		if err != nil {
			return err
		}

		settled, err := tx.TransitionTransaction(ctx, store.TransitionParams{
			TransactionID: transactionID,
			ExpectedType:  st.expectedType,
			From:          domain.TransactionStatusPending,
			To:            st.to,
			At:            now,
			CancelReason:  st.reason,
		})
		if err != nil {
			return err
		}

		available, locked := st.delta(settled.Amount)
		updated, err := tx.ApplyDelta(ctx, store.ApplyDeltaParams{
			WalletID:       wallet.ID,
			AvailableDelta: available,
			LockedDelta:    locked,
			At:             now,
		})
		if err != nil {
			return err
		}

		result.Transaction = settled
		result.Wallet = updated
		return nil
	})
	if err != nil {
		return nil, classify(op, transactionID.String(), err)
	}

	s.notify(ctx, result.Transaction, result.Wallet)
	return result, nil
}

// Transfer moves funds between two wallets and settles immediately.
func (s *Service) Transfer(ctx context.Context, fromOwnerID uuid.UUID, req domain.TransferRequest) (*domain.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.RecipientID == uuid.Nil {
		return nil, store.ErrWalletNotFound
	}
	if req.RecipientID == fromOwnerID {
		return nil, ErrSelfTransfer
	}

	now := s.now()
	recipientID := req.RecipientID
	txn := &domain.Transaction{
		ID:          uuid.New(),
		Type:        domain.TransactionTypeTransfer,
		Amount:      req.Amount,
		InitiatorID: fromOwnerID,
		RecipientID: &recipientID,
		Status:      domain.TransactionStatusSuccess,
		Note:        strings.TrimSpace(req.Description),
		CreatedAt:   now,
		CompletedAt: &now,
	}
	result := &domain.TransferResult{Transaction: txn}

	err := s.repo.WithinTx(ctx, func(tx store.LedgerTx) error {
		from, to, err := lockPair(ctx, tx, fromOwnerID, recipientID)
		if err != nil {
			return err
		}
		if from.AvailableBalance < req.Amount {
			return store.ErrInsufficientFunds
		}

		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := tx.AppendTransactionRef(ctx, from.ID, txn.ID); err != nil {
			return err
		}
		if err := tx.AppendTransactionRef(ctx, to.ID, txn.ID); err != nil {
			return err
		}

		result.FromWallet, err = tx.ApplyDelta(ctx, store.ApplyDeltaParams{WalletID: from.ID, AvailableDelta: -req.Amount, At: now})
		if err != nil {
			return err
		}
		result.ToWallet, err = tx.ApplyDelta(ctx, store.ApplyDeltaParams{WalletID: to.ID, AvailableDelta: req.Amount, At: now})
		return err
	})
	if err != nil {
		return nil, classify("transfer", txn.ID.String(), err)
	}

	s.notify(ctx, result.Transaction, result.FromWallet)
	return result, nil
}

// lockPair locks both wallets in owner-id order so two opposite transfers
// cannot deadlock each other.
func lockPair(ctx context.Context, tx store.LedgerTx, fromOwnerID, toOwnerID uuid.UUID) (*domain.Wallet, *domain.Wallet, error) {
	first, second := fromOwnerID, toOwnerID
	if strings.Compare(first.String(), second.String()) > 0 {
		first, second = second, first
	}

	a, err := tx.LockWallet(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.LockWallet(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if a.OwnerID == fromOwnerID {
		return a, b, nil
	}
	return b, a, nil
}

// notify publishes the post-commit notification. Failures are logged only;
// the ledger change is already durable.
func (s *Service) notify(ctx context.Context, txn *domain.Transaction, initiatorWallet *domain.Wallet) {
	event := domain.TransactionNotification{
		EventID:       uuid.NewString(),
		EventType:     domain.NotificationRoutingKey(txn),
		TransactionID: txn.ID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		InitiatorID:   txn.InitiatorID,
		RecipientID:   txn.RecipientID,
		Note:          txn.Note,
		OccurredAt:    s.now(),
	}
	if txn.CancelReason != nil {
		event.CancelReason = *txn.CancelReason
	}
	if initiatorWallet != nil {
		event.InitiatorAvail = initiatorWallet.AvailableBalance
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.eventProducer.Publish(publishCtx, s.eventsExchange, event.EventType, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"notification publish failed\" transaction_id=%s routing_key=%s err=%v", txn.ID, event.EventType, err)
	}
}

// describe is used by callers that log engine failures.
func describe(err error) string {
	var invalid *InvalidTransactionError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("invalid_transaction cause=%q", invalid.Cause)
	}
	var storage *StorageError
	if errors.As(err, &storage) {
		return fmt.Sprintf("storage_failure op=%q cause=%q", storage.Op, storage.Err)
	}
	return fmt.Sprintf("%q", err)
}
