/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL used to read and mutate wallets, the transaction ledger
 * and the ordered per-wallet transaction reference index.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Every engine operation runs inside `WithinTx`, i.e. one `pgx.Tx`. Wallet rows
 *   are locked with `SELECT ... FOR UPDATE` and the balance UPDATE is additionally
 *   guarded so a negative balance can never be written.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `
	id, type, amount, initiator_id, recipient_id, status, note, payment_detail,
	cancel_reason, created_at, completed_at, cancelled_at
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateWallet inserts a new wallet. A second wallet for the same owner
// violates the unique owner constraint and is reported as ErrWalletExists.
func (r *PostgresRepository) CreateWallet(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_type, owner_id, available_balance, locked_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		wallet.ID,
		wallet.OwnerType,
		wallet.OwnerID,
		wallet.AvailableBalance,
		wallet.LockedBalance,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrWalletExists
		}
		return err
	}
	return nil
}

// FindWalletByOwner retrieves an owner's wallet together with its ordered transaction refs.
func (r *PostgresRepository) FindWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return findWallet(ctx, r.db, ownerID, false)
}

// FindTransactionByID retrieves a single ledger record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`
	txn, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactionsByInitiator returns one page of the initiator's transactions,
// newest first, plus the total number of rows matching the filter.
func (r *PostgresRepository) ListTransactionsByInitiator(ctx context.Context, initiatorID uuid.UUID, filter domain.HistoryFilter, limit, offset int) ([]domain.Transaction, int64, error) {
	where, args := historyWhereClause(initiatorID, filter)
	argPos := len(args) + 1

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions ` + where +
		fmt.Sprintf(`ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, limit, offset)

	items, err := queryTransactions(ctx, r.db, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// historyWhereClause builds the WHERE clause and positional args shared by the
// history count and page queries.
func historyWhereClause(initiatorID uuid.UUID, filter domain.HistoryFilter) (string, []interface{}) {
	where := `WHERE initiator_id = $1 `
	args := []interface{}{initiatorID}
	argPos := 2

	if filter.Type != nil {
		where += fmt.Sprintf(`AND type = $%d `, argPos)
		args = append(args, *filter.Type)
		argPos++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(`AND status = $%d `, argPos)
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.From != nil {
		where += fmt.Sprintf(`AND created_at >= $%d `, argPos)
		args = append(args, *filter.From)
		argPos++
	}
	if filter.To != nil {
		where += fmt.Sprintf(`AND created_at <= $%d `, argPos)
		args = append(args, *filter.To)
	}
	return where, args
}

// ListSettledTransactionsForOwner returns every successful transaction in
// [from, to] where the owner is the initiator or the recipient.
func (r *PostgresRepository) ListSettledTransactionsForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE status = $1
		  AND (initiator_id = $2 OR recipient_id = $2)
		  AND created_at >= $3
		  AND created_at <= $4
		ORDER BY created_at ASC
	`
	return queryTransactions(ctx, r.db, query, domain.TransactionStatusSuccess, ownerID, from, to)
}

// ListStalePendingTransactions returns the oldest pending deposits and
// withdrawals created before createdBefore.
func (r *PostgresRepository) ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE status = $1
		  AND type IN ($2, $3)
		  AND created_at < $4
		ORDER BY created_at ASC
		LIMIT $5
	`
	return queryTransactions(ctx, r.db, query,
		domain.TransactionStatusPending,
		domain.TransactionTypeDeposit,
		domain.TransactionTypeWithdraw,
		createdBefore,
		limit,
	)
}

// WithinTx runs fn inside a database transaction. Any error returned by fn
// (or by the commit) rolls back every write made through the LedgerTx.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresLedgerTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresLedgerTx struct {
	tx pgx.Tx
}

func (t *postgresLedgerTx) LockWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return findWallet(ctx, t.tx, ownerID, true)
}

func (t *postgresLedgerTx) LockTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1 FOR UPDATE`
	txn, err := scanTransaction(t.tx.QueryRow(ctx, query, transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ApplyDelta only updates the row when both resulting balances stay
// non-negative; zero affected rows is then resolved to a precise error.
func (t *postgresLedgerTx) ApplyDelta(ctx context.Context, params ApplyDeltaParams) (*domain.Wallet, error) {
	query := `
		UPDATE wallets
		SET available_balance = available_balance + $2,
		    locked_balance = locked_balance + $3,
		    updated_at = $4
		WHERE id = $1
		  AND available_balance + $2 >= 0
		  AND locked_balance + $3 >= 0
		RETURNING id, owner_type, owner_id, available_balance, locked_balance, created_at, updated_at
	`
	var wallet domain.Wallet
	err := t.tx.QueryRow(ctx, query, params.WalletID, params.AvailableDelta, params.LockedDelta, params.At).Scan(
		&wallet.ID,
		&wallet.OwnerType,
		&wallet.OwnerID,
		&wallet.AvailableBalance,
		&wallet.LockedBalance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if isNumericOutOfRange(err) {
			return nil, ErrBalanceOverflow
		}
		if err != pgx.ErrNoRows {
			return nil, err
		}
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, params.WalletID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrWalletNotFound
		}
		return nil, ErrInsufficientFunds
	}

	refs, err := loadTransactionRefs(ctx, t.tx, wallet.ID)
	if err != nil {
		return nil, err
	}
	wallet.TransactionRefs = refs
	return &wallet, nil
}

func (t *postgresLedgerTx) AppendTransactionRef(ctx context.Context, walletID, transactionID uuid.UUID) error {
	query := `INSERT INTO wallet_transaction_refs (wallet_id, transaction_id) VALUES ($1, $2)`
	_, err := t.tx.Exec(ctx, query, walletID, transactionID)
	return err
}

func (t *postgresLedgerTx) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	detail, err := marshalPaymentDetail(txn.PaymentDetail)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO wallet_transactions (
			id,
			type,
			amount,
			initiator_id,
			recipient_id,
			status,
			note,
			payment_detail,
			cancel_reason,
			created_at,
			completed_at,
			cancelled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)
	`
	_, err = t.tx.Exec(ctx, query,
		txn.ID,
		txn.Type,
		txn.Amount,
		txn.InitiatorID,
		txn.RecipientID,
		txn.Status,
		txn.Note,
		detail,
		txn.CancelReason,
		txn.CreatedAt,
		txn.CompletedAt,
		txn.CancelledAt,
	)
	return err
}

func (t *postgresLedgerTx) TransitionTransaction(ctx context.Context, params TransitionParams) (*domain.Transaction, error) {
	query := `
		UPDATE wallet_transactions
		SET status = $4,
		    completed_at = CASE WHEN $4 = 'success' THEN $5::timestamptz ELSE completed_at END,
		    cancelled_at = CASE WHEN $4 = 'cancelled' THEN $5::timestamptz ELSE cancelled_at END,
		    cancel_reason = CASE WHEN $4 = 'cancelled' THEN $6::text ELSE cancel_reason END
		WHERE id = $1
		  AND type = $2
		  AND status = $3
		RETURNING ` + transactionColumns

	txn, err := scanTransaction(t.tx.QueryRow(ctx, query,
		params.TransactionID,
		params.ExpectedType,
		params.From,
		params.To,
		params.At,
		params.CancelReason,
	))
	if err == nil {
		return txn, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	// The guard did not match; find out which part of it failed.
	current, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, params.TransactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if err := checkTransition(current, params); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func findWallet(ctx context.Context, q querier, ownerID uuid.UUID, forUpdate bool) (*domain.Wallet, error) {
	query := `
		SELECT id, owner_type, owner_id, available_balance, locked_balance, created_at, updated_at
		FROM wallets
		WHERE owner_id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var wallet domain.Wallet
	err := q.QueryRow(ctx, query, ownerID).Scan(
		&wallet.ID,
		&wallet.OwnerType,
		&wallet.OwnerID,
		&wallet.AvailableBalance,
		&wallet.LockedBalance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	refs, err := loadTransactionRefs(ctx, q, wallet.ID)
	if err != nil {
		return nil, err
	}
	wallet.TransactionRefs = refs
	return &wallet, nil
}

func loadTransactionRefs(ctx context.Context, q querier, walletID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT transaction_id FROM wallet_transaction_refs WHERE wallet_id = $1 ORDER BY position ASC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refs = append(refs, id)
	}
	return refs, rows.Err()
}

func queryTransactions(ctx context.Context, q querier, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// isNumericOutOfRange reports a BIGINT overflow raised by the balance UPDATE.
func isNumericOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		detail []byte
	)
	err := row.Scan(
		&txn.ID,
		&txn.Type,
		&txn.Amount,
		&txn.InitiatorID,
		&txn.RecipientID,
		&txn.Status,
		&txn.Note,
		&detail,
		&txn.CancelReason,
		&txn.CreatedAt,
		&txn.CompletedAt,
		&txn.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if len(detail) > 0 && string(detail) != "null" {
		if err := json.Unmarshal(detail, &txn.PaymentDetail); err != nil {
			return nil, fmt.Errorf("decode payment_detail for %s: %w", txn.ID, err)
		}
	}
	return &txn, nil
}

// marshalPaymentDetail encodes the detail as text so the ::jsonb cast works
// under the simple query protocol used by the pool.
func marshalPaymentDetail(detail domain.PaymentDetail) (*string, error) {
	if detail == nil {
		return nil, nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("encode payment_detail: %w", err)
	}
	encoded := string(raw)
	return &encoded, nil
}
