package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and local runs.
// WithinTx holds the single mutex for the whole unit, so units are serialized
// and staged writes become visible only on commit.
type MemoryRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*domain.Wallet // keyed by wallet id
	owners       map[uuid.UUID]uuid.UUID      // owner id -> wallet id
	transactions map[uuid.UUID]*domain.Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		owners:       make(map[uuid.UUID]uuid.UUID),
		transactions: make(map[uuid.UUID]*domain.Transaction),
	}
}

func (m *MemoryRepository) CreateWallet(_ context.Context, wallet *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owners[wallet.OwnerID]; ok {
		return ErrWalletExists
	}
	stored := cloneWallet(wallet)
	if stored.TransactionRefs == nil {
		stored.TransactionRefs = []uuid.UUID{}
	}
	m.wallets[stored.ID] = stored
	m.owners[stored.OwnerID] = stored.ID
	return nil
}

func (m *MemoryRepository) FindWalletByOwner(_ context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	walletID, ok := m.owners[ownerID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneWallet(m.wallets[walletID]), nil
}

func (m *MemoryRepository) FindTransactionByID(_ context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(txn), nil
}

func (m *MemoryRepository) ListTransactionsByInitiator(_ context.Context, initiatorID uuid.UUID, filter domain.HistoryFilter, limit, offset int) ([]domain.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]domain.Transaction, 0)
	for _, txn := range m.transactions {
		if txn.InitiatorID != initiatorID || !matchesFilter(txn, filter) {
			continue
		}
		matched = append(matched, *cloneTransaction(txn))
	}
	sortNewestFirst(matched)

	total := int64(len(matched))
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *MemoryRepository) ListSettledTransactionsForOwner(_ context.Context, ownerID uuid.UUID, from, to time.Time) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]domain.Transaction, 0)
	for _, txn := range m.transactions {
		if txn.Status != domain.TransactionStatusSuccess || !txn.Involves(ownerID) {
			continue
		}
		if txn.CreatedAt.Before(from) || txn.CreatedAt.After(to) {
			continue
		}
		items = append(items, *cloneTransaction(txn))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (m *MemoryRepository) ListStalePendingTransactions(_ context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 200
	}
	items := make([]domain.Transaction, 0)
	for _, txn := range m.transactions {
		if txn.Status != domain.TransactionStatusPending || txn.Type == domain.TransactionTypeTransfer {
			continue
		}
		if !txn.CreatedAt.Before(createdBefore) {
			continue
		}
		items = append(items, *cloneTransaction(txn))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// WithinTx must not call back into the repository's own methods from fn;
// the mutex is already held.
func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := &memoryLedgerTx{
		repo:         m,
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		transactions: make(map[uuid.UUID]*domain.Transaction),
	}
	if err := fn(staged); err != nil {
		return err
	}

	for id, wallet := range staged.wallets {
		m.wallets[id] = wallet
	}
	for id, txn := range staged.transactions {
		m.transactions[id] = txn
	}
	return nil
}

type memoryLedgerTx struct {
	repo         *MemoryRepository
	wallets      map[uuid.UUID]*domain.Wallet
	transactions map[uuid.UUID]*domain.Transaction
}

func (t *memoryLedgerTx) wallet(walletID uuid.UUID) (*domain.Wallet, bool) {
	if w, ok := t.wallets[walletID]; ok {
		return w, true
	}
	w, ok := t.repo.wallets[walletID]
	if !ok {
		return nil, false
	}
	staged := cloneWallet(w)
	t.wallets[walletID] = staged
	return staged, true
}

func (t *memoryLedgerTx) transaction(transactionID uuid.UUID) (*domain.Transaction, bool) {
	if txn, ok := t.transactions[transactionID]; ok {
		return txn, true
	}
	txn, ok := t.repo.transactions[transactionID]
	if !ok {
		return nil, false
	}
	staged := cloneTransaction(txn)
	t.transactions[transactionID] = staged
	return staged, true
}

func (t *memoryLedgerTx) LockWallet(_ context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	walletID, ok := t.repo.owners[ownerID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	w, _ := t.wallet(walletID)
	return cloneWallet(w), nil
}

func (t *memoryLedgerTx) LockTransaction(_ context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, ok := t.transaction(transactionID)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(txn), nil
}

func (t *memoryLedgerTx) ApplyDelta(_ context.Context, params ApplyDeltaParams) (*domain.Wallet, error) {
	w, ok := t.wallet(params.WalletID)
	if !ok {
		return nil, ErrWalletNotFound
	}
	available, err := addBalance(w.AvailableBalance, params.AvailableDelta)
	if err != nil {
		return nil, err
	}
	locked, err := addBalance(w.LockedBalance, params.LockedDelta)
	if err != nil {
		return nil, err
	}
	w.AvailableBalance = available
	w.LockedBalance = locked
	w.UpdatedAt = params.At
	return cloneWallet(w), nil
}

func (t *memoryLedgerTx) AppendTransactionRef(_ context.Context, walletID, transactionID uuid.UUID) error {
	w, ok := t.wallet(walletID)
	if !ok {
		return ErrWalletNotFound
	}
	w.TransactionRefs = append(w.TransactionRefs, transactionID)
	return nil
}

func (t *memoryLedgerTx) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	t.transactions[txn.ID] = cloneTransaction(txn)
	return nil
}

func (t *memoryLedgerTx) TransitionTransaction(_ context.Context, params TransitionParams) (*domain.Transaction, error) {
	txn, ok := t.transaction(params.TransactionID)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if err := checkTransition(txn, params); err != nil {
		return nil, err
	}
	applyTransition(txn, params)
	return cloneTransaction(txn), nil
}

func matchesFilter(txn *domain.Transaction, filter domain.HistoryFilter) bool {
	if filter.Type != nil && txn.Type != *filter.Type {
		return false
	}
	if filter.Status != nil && txn.Status != *filter.Status {
		return false
	}
	if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && txn.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func sortNewestFirst(items []domain.Transaction) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() > items[j].ID.String()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	c.TransactionRefs = append([]uuid.UUID(nil), w.TransactionRefs...)
	if c.TransactionRefs == nil {
		c.TransactionRefs = []uuid.UUID{}
	}
	return &c
}

func cloneTransaction(txn *domain.Transaction) *domain.Transaction {
	c := *txn
	if txn.RecipientID != nil {
		id := *txn.RecipientID
		c.RecipientID = &id
	}
	if txn.CancelReason != nil {
		reason := *txn.CancelReason
		c.CancelReason = &reason
	}
	if txn.CompletedAt != nil {
		at := *txn.CompletedAt
		c.CompletedAt = &at
	}
	if txn.CancelledAt != nil {
		at := *txn.CancelledAt
		c.CancelledAt = &at
	}
	if txn.PaymentDetail != nil {
		c.PaymentDetail = make(domain.PaymentDetail, len(txn.PaymentDetail))
		for k, v := range txn.PaymentDetail {
			c.PaymentDetail[k] = v
		}
	}
	return &c
}
