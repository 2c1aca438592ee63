package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/fservice/wallet-service/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

type ledgerFixture struct {
	repo      *store.MemoryRepository
	publisher *recordingPublisher
	svc       *Service
	clock     time.Time
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		repo:      store.NewMemoryRepository(),
		publisher: &recordingPublisher{},
		clock:     time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.publisher, Options{
		EventsExchange: "test.events",
		Clock:          func() time.Time { return f.clock },
	})
	return f
}

func (f *ledgerFixture) newWallet(t *testing.T) uuid.UUID {
	t.Helper()
	ownerID := uuid.New()
	_, err := f.svc.CreateWallet(context.Background(), "user", ownerID)
	require.NoError(t, err)
	return ownerID
}

// fund deposits and confirms amount for the owner.
func (f *ledgerFixture) fund(t *testing.T, ownerID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	txn, err := f.svc.Deposit(ctx, ownerID, domain.DepositRequest{Amount: amount, PaymentDetail: domain.PaymentDetail{"method": "qr"}})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDeposit(ctx, txn.ID)
	require.NoError(t, err)
}

func (f *ledgerFixture) wallet(t *testing.T, ownerID uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := f.svc.GetWallet(context.Background(), ownerID)
	require.NoError(t, err)
	return w
}

func TestCreateWallet(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	ownerID := uuid.New()

	w, err := f.svc.CreateWallet(ctx, "", ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.OwnerTypeUser, w.OwnerType)
	assert.Zero(t, w.AvailableBalance)
	assert.Zero(t, w.LockedBalance)
	assert.Empty(t, w.TransactionRefs)

	_, err = f.svc.CreateWallet(ctx, "user", ownerID)
	assert.ErrorIs(t, err, ErrWalletExists)

	_, err = f.svc.CreateWallet(ctx, "organization", uuid.New())
	assert.ErrorIs(t, err, ErrInvalidOwner)
	assert.True(t, IsClientError(err))
}

func TestDepositLeavesBalanceUntilConfirmed(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)

	txn, err := f.svc.Deposit(ctx, owner, domain.DepositRequest{Amount: 50000, PaymentDetail: domain.PaymentDetail{"bank": "VCB"}})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, int64(50000), txn.Amount)

	w := f.wallet(t, owner)
	assert.Zero(t, w.AvailableBalance)
	assert.Equal(t, []uuid.UUID{txn.ID}, w.TransactionRefs)
	assert.Empty(t, f.publisher.routingKeys())

	result, err := f.svc.ConfirmDeposit(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), result.Wallet.AvailableBalance)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Transaction.Status)
	require.NotNil(t, result.Transaction.CompletedAt)
	assert.Equal(t, f.clock, *result.Transaction.CompletedAt)
	assert.Equal(t, []string{"transaction.notification.deposit.success"}, f.publisher.routingKeys())
}

func TestConfirmDepositTwiceCreditsOnce(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)

	txn, err := f.svc.Deposit(ctx, owner, domain.DepositRequest{Amount: 700})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDeposit(ctx, txn.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmDeposit(ctx, txn.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, IsRetryable(err))

	assert.Equal(t, int64(700), f.wallet(t, owner).AvailableBalance)
	assert.Len(t, f.publisher.routingKeys(), 1)
}

func TestConfirmRejectsWrongType(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	from := f.newWallet(t)
	to := f.newWallet(t)
	f.fund(t, from, 1000)

	withdrawal, err := f.svc.Withdraw(ctx, from, domain.WithdrawRequest{Amount: 100})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDeposit(ctx, withdrawal.ID)
	assert.ErrorIs(t, err, ErrInvalidType)
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	transfer, err := f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: to, Amount: 10})
	require.NoError(t, err)
	_, err = f.svc.ConfirmWithdraw(ctx, transfer.Transaction.ID)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = f.svc.ConfirmDeposit(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.True(t, IsNotFound(err))
}

func TestWithdrawAndConfirm(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)
	f.fund(t, owner, 50000)

	txn, err := f.svc.Withdraw(ctx, owner, domain.WithdrawRequest{Amount: 20000, BankInfo: domain.PaymentDetail{"account": "0123"}})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)

	w := f.wallet(t, owner)
	assert.Equal(t, int64(30000), w.AvailableBalance)
	assert.Equal(t, int64(20000), w.LockedBalance)

	result, err := f.svc.ConfirmWithdraw(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), result.Wallet.AvailableBalance)
	assert.Zero(t, result.Wallet.LockedBalance)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Transaction.Status)
}

func TestWithdrawInsufficientFundsChangesNothing(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)
	f.fund(t, owner, 100)
	before := f.wallet(t, owner)

	_, err := f.svc.Withdraw(ctx, owner, domain.WithdrawRequest{Amount: 150})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	after := f.wallet(t, owner)
	assert.Equal(t, before.AvailableBalance, after.AvailableBalance)
	assert.Equal(t, before.LockedBalance, after.LockedBalance)
	assert.Equal(t, before.TransactionRefs, after.TransactionRefs)

	page, err := f.svc.GetHistory(ctx, owner, domain.HistoryFilter{}, domain.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestCancelWithdrawRestoresBalances(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)
	f.fund(t, owner, 2000)
	before := f.wallet(t, owner)

	txn, err := f.svc.Withdraw(ctx, owner, domain.WithdrawRequest{Amount: 500})
	require.NoError(t, err)

	_, err = f.svc.CancelWithdraw(ctx, txn.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidReason)

	result, err := f.svc.CancelWithdraw(ctx, txn.ID, "bank account closed")
	require.NoError(t, err)
	assert.Equal(t, before.AvailableBalance, result.Wallet.AvailableBalance)
	assert.Equal(t, before.LockedBalance, result.Wallet.LockedBalance)
	assert.Equal(t, domain.TransactionStatusCancelled, result.Transaction.Status)
	require.NotNil(t, result.Transaction.CancelReason)
	assert.Equal(t, "bank account closed", *result.Transaction.CancelReason)
	assert.NotNil(t, result.Transaction.CancelledAt)
	assert.Nil(t, result.Transaction.CompletedAt)

	_, err = f.svc.ConfirmWithdraw(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransferSettlesImmediately(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	from := f.newWallet(t)
	to := f.newWallet(t)
	f.fund(t, from, 10000)

	result, err := f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: to, Amount: 4000, Description: "lunch"})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), result.FromWallet.AvailableBalance)
	assert.Equal(t, int64(4000), result.ToWallet.AvailableBalance)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Transaction.Status)
	assert.NotNil(t, result.Transaction.CompletedAt)
	assert.Equal(t, "lunch", result.Transaction.Note)

	assert.Contains(t, f.wallet(t, from).TransactionRefs, result.Transaction.ID)
	assert.Equal(t, []uuid.UUID{result.Transaction.ID}, f.wallet(t, to).TransactionRefs)
	assert.Contains(t, f.publisher.routingKeys(), "transaction.notification.transfer.success")
}

func TestTransferGuards(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	from := f.newWallet(t)
	to := f.newWallet(t)
	f.fund(t, from, 100)

	_, err := f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: from, Amount: 10})
	assert.ErrorIs(t, err, ErrSelfTransfer)

	_, err = f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: to, Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: to, Amount: 101})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.svc.Transfer(ctx, from, domain.TransferRequest{RecipientID: uuid.New(), Amount: 10})
	assert.ErrorIs(t, err, ErrWalletNotFound)

	assert.Equal(t, int64(100), f.wallet(t, from).AvailableBalance)
	assert.Zero(t, f.wallet(t, to).AvailableBalance)
}

func TestConcurrentWithdrawalsOnlyOneSucceeds(t *testing.T) {
	f := newLedgerFixture(t)
	owner := f.newWallet(t)
	f.fund(t, owner, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Withdraw(context.Background(), owner, domain.WithdrawRequest{Amount: 100})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	w := f.wallet(t, owner)
	assert.Zero(t, w.AvailableBalance)
	assert.Equal(t, int64(100), w.LockedBalance)
}

func TestConcurrentTransfersFromOneWalletOnlyOneSucceeds(t *testing.T) {
	f := newLedgerFixture(t)
	from := f.newWallet(t)
	to := f.newWallet(t)
	f.fund(t, from, 100)

	const senders = 8
	var wg sync.WaitGroup
	errs := make([]error, senders)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transfer(context.Background(), from, domain.TransferRequest{RecipientID: to, Amount: 100})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, senders-1, insufficient)

	assert.Zero(t, f.wallet(t, from).AvailableBalance)
	assert.Equal(t, int64(100), f.wallet(t, to).AvailableBalance)
}

func TestOppositeDirectionTransfersConserveBalance(t *testing.T) {
	f := newLedgerFixture(t)
	a := f.newWallet(t)
	b := f.newWallet(t)
	f.fund(t, a, 500)
	f.fund(t, b, 500)

	const rounds = 50
	var wg sync.WaitGroup
	transfer := func(from, to uuid.UUID) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.svc.Transfer(context.Background(), from, domain.TransferRequest{RecipientID: to, Amount: 7})
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
				return
			}
		}
	}
	wg.Add(2)
	go transfer(a, b)
	go transfer(b, a)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("opposite-direction transfers did not finish")
	}

	wa, wb := f.wallet(t, a), f.wallet(t, b)
	assert.Equal(t, int64(1000), wa.Total()+wb.Total())
	assert.GreaterOrEqual(t, wa.AvailableBalance, int64(0))
	assert.GreaterOrEqual(t, wb.AvailableBalance, int64(0))
}

func TestTotalBalanceConservation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.newWallet(t)
	b := f.newWallet(t)

	total := func() int64 {
		return f.wallet(t, a).Total() + f.wallet(t, b).Total()
	}

	dep, err := f.svc.Deposit(ctx, a, domain.DepositRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Zero(t, total())
	_, err = f.svc.ConfirmDeposit(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total())

	_, err = f.svc.Transfer(ctx, a, domain.TransferRequest{RecipientID: b, Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total())

	w1, err := f.svc.Withdraw(ctx, b, domain.WithdrawRequest{Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total())
	_, err = f.svc.CancelWithdraw(ctx, w1.ID, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total())

	w2, err := f.svc.Withdraw(ctx, b, domain.WithdrawRequest{Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total())
	_, err = f.svc.ConfirmWithdraw(ctx, w2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), total())
}

func TestConfirmDepositPastMaxBalanceIsRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)
	f.fund(t, owner, math.MaxInt64-1)

	dep, err := f.svc.Deposit(ctx, owner, domain.DepositRequest{Amount: 10})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDeposit(ctx, dep.ID)
	assert.ErrorIs(t, err, ErrBalanceOverflow)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, IsClientError(err))
	assert.False(t, IsRetryable(err))

	assert.Equal(t, int64(math.MaxInt64-1), f.wallet(t, owner).AvailableBalance)
	stored, err := f.svc.GetTransaction(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, stored.Status)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newLedgerFixture(t)
	f.publisher.err = errors.New("broker down")
	owner := f.newWallet(t)

	f.fund(t, owner, 10)
	assert.Equal(t, int64(10), f.wallet(t, owner).AvailableBalance)
}

func TestAmountMustBePositive(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := f.newWallet(t)

	_, err := f.svc.Deposit(ctx, owner, domain.DepositRequest{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Withdraw(ctx, owner, domain.WithdrawRequest{Amount: -5})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Deposit(ctx, uuid.New(), domain.DepositRequest{Amount: 5})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

type failingRepo struct {
	store.Repository
}

func (failingRepo) WithinTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	return errors.New("connection reset by peer")
}

func TestStorageFailureIsRetryable(t *testing.T) {
	svc := NewService(failingRepo{}, nil, Options{})

	_, err := svc.Deposit(context.Background(), uuid.New(), domain.DepositRequest{Amount: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
}
