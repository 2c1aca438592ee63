/**
 * @description
 * Scheduled job implementations for the wallet-service. Jobs only read the
 * ledger; they never change balances or statuses.
 */
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/fservice/wallet-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const (
	stalePendingBatchSize = 200
	jobTimeout            = 30 * time.Second
)

// Repository defines database operations needed by the jobs.
type Repository interface {
	ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)
}

// Config holds the job settings.
type Config struct {
	EventsExchange    string
	StalePendingAfter time.Duration
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      Repository
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	config    Config
	now       func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo Repository, publisher rabbitmq.Publisher, logger *slog.Logger, cfg Config) *Jobs {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &Jobs{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// ReportStalePending publishes one summary of deposits and withdrawals still
// pending after the configured threshold.
func (j *Jobs) ReportStalePending() {
	j.logger.Info("starting stale pending sweep job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	event, err := j.collectStalePending(ctx)
	if err != nil {
		j.logger.Error("failed to list stale pending transactions", "error", err)
		return
	}
	if event == nil {
		j.logger.Info("stale pending sweep job finished", "stale", 0)
		return
	}

	j.logger.Warn("pending transactions awaiting admin decision",
		"count", event.Count,
		"deposits", event.DepositCount,
		"withdrawals", event.WithdrawCount,
		"total_amount", event.TotalAmount,
		"oldest_created_at", event.OldestCreatedAt,
	)

	if err := j.publisher.Publish(ctx, j.config.EventsExchange, domain.EventLedgerPendingStale, event); err != nil {
		j.logger.Error("failed to publish stale pending event", "event_id", event.EventID, "error", err)
		return
	}

	j.logger.Info("stale pending sweep job finished", "stale", event.Count, "event_id", event.EventID)
}

func (j *Jobs) collectStalePending(ctx context.Context) (*domain.StalePendingEvent, error) {
	now := j.now().UTC()
	olderThan := now.Add(-j.config.StalePendingAfter)

	txns, err := j.repo.ListStalePendingTransactions(ctx, olderThan, stalePendingBatchSize)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}

	event := &domain.StalePendingEvent{
		EventID:        uuid.NewString(),
		EventType:      domain.EventLedgerPendingStale,
		TransactionIDs: make([]uuid.UUID, 0, len(txns)),
		OlderThan:      olderThan,
		DetectedAt:     now,
	}
	for _, txn := range txns {
		// Transfers settle on creation and are never pending.
		switch txn.Type {
		case domain.TransactionTypeDeposit:
			event.DepositCount++
		case domain.TransactionTypeWithdraw:
			event.WithdrawCount++
		default:
			continue
		}
		event.Count++
		event.TotalAmount += txn.Amount
		event.TransactionIDs = append(event.TransactionIDs, txn.ID)
		if event.OldestCreatedAt.IsZero() || txn.CreatedAt.Before(event.OldestCreatedAt) {
			event.OldestCreatedAt = txn.CreatedAt
		}
	}
	if event.Count == 0 {
		return nil, nil
	}
	return event, nil
}
