package app

import (
	"errors"
	"fmt"

	"github.com/fservice/wallet-service/internal/store"
)

var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidReason      = errors.New("cancel reason must not be empty")
	ErrSelfTransfer       = errors.New("cannot transfer to your own wallet")
	ErrInvalidRange       = errors.New("start date must not be after end date")
	ErrInvalidOwner       = errors.New("invalid wallet owner")
	ErrInvalidTransaction = errors.New("invalid transaction for this operation")
	ErrStorageFailure     = errors.New("storage failure")

	// Re-exported so callers only need this package for errors.Is checks.
	ErrInsufficientFunds   = store.ErrInsufficientFunds
	ErrWalletNotFound      = store.ErrWalletNotFound
	ErrWalletExists        = store.ErrWalletExists
	ErrTransactionNotFound = store.ErrTransactionNotFound
	ErrInvalidTransition   = store.ErrInvalidTransition
	ErrInvalidType         = store.ErrInvalidType
	ErrBalanceOverflow     = store.ErrBalanceOverflow
)

// InvalidTransactionError reports a transaction of the wrong type or status
// for the requested operation. It matches ErrInvalidTransaction and its cause.
type InvalidTransactionError struct {
	TransactionID string
	Cause         error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TransactionID, e.Cause)
}

func (e *InvalidTransactionError) Unwrap() []error {
	return []error{ErrInvalidTransaction, e.Cause}
}

// StorageError wraps an infrastructure failure. Nothing was committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// classify maps a repository error onto the engine taxonomy. Business
// sentinels pass through unchanged; anything else becomes a StorageError.
func classify(op string, transactionID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrInvalidType):
		return &InvalidTransactionError{TransactionID: transactionID, Cause: err}
	case IsClientError(err):
		return err
	default:
		return &StorageError{Op: op, Err: err}
	}
}

// IsNotFound reports whether err means a wallet or transaction does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrWalletNotFound) || errors.Is(err, store.ErrTransactionNotFound)
}

// IsClientError reports whether err is a business-rule or validation failure
// the caller has to fix before retrying.
func IsClientError(err error) bool {
	switch {
	case IsNotFound(err),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrBalanceOverflow),
		errors.Is(err, store.ErrWalletExists),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrInvalidType),
		errors.Is(err, ErrInvalidTransaction),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidOwner):
		return true
	}
	return false
}

// IsRetryable reports whether the whole operation may safely be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
