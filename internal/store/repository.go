/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the wallet-service. The ledger engine only talks
 * to these interfaces, so the PostgreSQL implementation and the in-memory implementation
 * used in tests and local development are interchangeable.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidTransition   = errors.New("invalid transaction status transition")
	ErrInvalidType         = errors.New("transaction type does not match operation")
	ErrBalanceOverflow     = errors.New("balance would exceed the maximum representable amount")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Wallet methods
	CreateWallet(ctx context.Context, wallet *domain.Wallet) error
	FindWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)

	// Ledger read methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByInitiator(ctx context.Context, initiatorID uuid.UUID, filter domain.HistoryFilter, limit, offset int) ([]domain.Transaction, int64, error)
	ListSettledTransactionsForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]domain.Transaction, error)
	ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)

	// WithinTx runs fn inside one atomic unit. Every write made through the
	// LedgerTx is committed when fn returns nil and rolled back otherwise.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of writes available inside an atomic unit.
type LedgerTx interface {
	// LockWallet loads the owner's wallet and holds it until the unit ends.
	LockWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	// LockTransaction loads a transaction and holds it until the unit ends.
	LockTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)

	// ApplyDelta adds both deltas to the wallet in one write. It fails with
	// ErrInsufficientFunds if either balance would become negative and with
	// ErrBalanceOverflow if either would exceed math.MaxInt64.
	ApplyDelta(ctx context.Context, params ApplyDeltaParams) (*domain.Wallet, error)
	AppendTransactionRef(ctx context.Context, walletID, transactionID uuid.UUID) error

	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	// TransitionTransaction moves a transaction out of params.From. It fails
	// with ErrInvalidType when the stored type differs from params.ExpectedType
	// and ErrInvalidTransition when the stored status is not params.From.
	TransitionTransaction(ctx context.Context, params TransitionParams) (*domain.Transaction, error)
}

// ApplyDeltaParams holds the balance change for one wallet.
type ApplyDeltaParams struct {
	WalletID       uuid.UUID
	AvailableDelta int64
	LockedDelta    int64
	At             time.Time
}

// TransitionParams holds the guarded status change for one transaction.
type TransitionParams struct {
	TransactionID uuid.UUID
	ExpectedType  domain.TransactionType
	From          domain.TransactionStatus
	To            domain.TransactionStatus
	At            time.Time
	CancelReason  *string
}

func checkTransition(current *domain.Transaction, params TransitionParams) error {
	if current.Type != params.ExpectedType {
		return ErrInvalidType
	}
	if current.Status.Terminal() || current.Status != params.From {
		return ErrInvalidTransition
	}
	return nil
}

// addBalance returns balance+delta, refusing results below zero or above
// math.MaxInt64.
func addBalance(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, ErrBalanceOverflow
	}
	next := balance + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	return next, nil
}

func applyTransition(txn *domain.Transaction, params TransitionParams) {
	txn.Status = params.To
	at := params.At
	switch params.To {
	case domain.TransactionStatusSuccess:
		txn.CompletedAt = &at
	case domain.TransactionStatusCancelled:
		txn.CancelledAt = &at
		txn.CancelReason = params.CancelReason
	}
}
