package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

type jobsRepoStub struct {
	txns          []domain.Transaction
	err           error
	createdBefore time.Time
	limit         int
}

func (s *jobsRepoStub) ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	s.createdBefore = createdBefore
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.txns, nil
}

type publishedMessage struct {
	exchange   string
	routingKey string
	body       []byte
}

type publisherStub struct {
	messages []publishedMessage
	err      error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.messages = append(p.messages, publishedMessage{exchange: exchange, routingKey: routingKey, body: raw})
	return nil
}

func (p *publisherStub) Close() {}

func newTestJobs(repo Repository, publisher *publisherStub, now time.Time) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(repo, publisher, logger, Config{EventsExchange: "fservice.events", StalePendingAfter: 24 * time.Hour})
	jobs.now = func() time.Time { return now }
	return jobs
}

func TestReportStalePending_SkipsPublishWhenNothingIsStale(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := &jobsRepoStub{}
	publisher := &publisherStub{}
	jobs := newTestJobs(repo, publisher, now)

	jobs.ReportStalePending()

	if len(publisher.messages) != 0 {
		t.Fatalf("expected no published events, got %d", len(publisher.messages))
	}
	if !repo.createdBefore.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("expected cutoff %s, got %s", now.Add(-24*time.Hour), repo.createdBefore)
	}
	if repo.limit != stalePendingBatchSize {
		t.Fatalf("expected batch size %d, got %d", stalePendingBatchSize, repo.limit)
	}
}

func TestReportStalePending_PublishesSummary(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-72 * time.Hour)
	depositID, withdrawID := uuid.New(), uuid.New()
	repo := &jobsRepoStub{txns: []domain.Transaction{
		{ID: depositID, Type: domain.TransactionTypeDeposit, Amount: 1500, Status: domain.TransactionStatusPending, CreatedAt: oldest},
		{ID: withdrawID, Type: domain.TransactionTypeWithdraw, Amount: 500, Status: domain.TransactionStatusPending, CreatedAt: now.Add(-30 * time.Hour)},
	}}
	publisher := &publisherStub{}
	jobs := newTestJobs(repo, publisher, now)

	jobs.ReportStalePending()

	if len(publisher.messages) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.exchange != "fservice.events" || msg.routingKey != domain.EventLedgerPendingStale {
		t.Fatalf("unexpected destination %s/%s", msg.exchange, msg.routingKey)
	}

	var event domain.StalePendingEvent
	if err := json.Unmarshal(msg.body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Count != 2 || event.DepositCount != 1 || event.WithdrawCount != 1 {
		t.Fatalf("unexpected counts: %+v", event)
	}
	if event.TotalAmount != 2000 {
		t.Fatalf("expected total 2000, got %d", event.TotalAmount)
	}
	if !event.OldestCreatedAt.Equal(oldest) {
		t.Fatalf("expected oldest %s, got %s", oldest, event.OldestCreatedAt)
	}
	if len(event.TransactionIDs) != 2 || event.TransactionIDs[0] != depositID || event.TransactionIDs[1] != withdrawID {
		t.Fatalf("unexpected transaction ids: %v", event.TransactionIDs)
	}
}

func TestReportStalePending_RepositoryErrorPublishesNothing(t *testing.T) {
	repo := &jobsRepoStub{err: errors.New("db down")}
	publisher := &publisherStub{}
	jobs := newTestJobs(repo, publisher, time.Now())

	jobs.ReportStalePending()

	if len(publisher.messages) != 0 {
		t.Fatalf("expected no published events on repository error")
	}
}

func TestReportStalePending_IgnoresTransfers(t *testing.T) {
	now := time.Now().UTC()
	repo := &jobsRepoStub{txns: []domain.Transaction{
		{ID: uuid.New(), Type: domain.TransactionTypeTransfer, Amount: 100, Status: domain.TransactionStatusPending, CreatedAt: now.Add(-48 * time.Hour)},
	}}
	publisher := &publisherStub{}
	jobs := newTestJobs(repo, publisher, now)

	jobs.ReportStalePending()

	if len(publisher.messages) != 0 {
		t.Fatalf("expected transfers to be ignored")
	}
}

func TestScheduler_InvalidScheduleDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := newTestJobs(&jobsRepoStub{}, &publisherStub{}, time.Now())
	scheduler := NewScheduler(jobs, logger, "not a cron spec")

	scheduler.Start()
	<-scheduler.Stop().Done()
}
