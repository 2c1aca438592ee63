package app

import (
	"context"
	"sort"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

// GetHistory returns the owner's initiated transactions, newest first.
// Page defaults to 1; limit defaults to DefaultHistoryLimit and is capped.
func (s *Service) GetHistory(ctx context.Context, ownerID uuid.UUID, filter domain.HistoryFilter, page domain.Pagination) (*domain.TransactionPage, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, ErrInvalidRange
	}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = DefaultHistoryLimit
	}
	if page.Limit > s.historyMaxLimit {
		page.Limit = s.historyMaxLimit
	}

	items, total, err := s.repo.ListTransactionsByInitiator(ctx, ownerID, filter, page.Limit, page.Offset())
	if err != nil {
		return nil, classify("get history", "", err)
	}

	totalPages := int((total + int64(page.Limit) - 1) / int64(page.Limit))
	return &domain.TransactionPage{
		Items:      items,
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// GetStats aggregates the owner's successful transactions between the start
// of startDate and the end of endDate (UTC days).
func (s *Service) GetStats(ctx context.Context, ownerID uuid.UUID, startDate, endDate time.Time) (*domain.StatsReport, error) {
	from := startOfDay(startDate)
	to := startOfDay(endDate).Add(24*time.Hour - time.Nanosecond)
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	txns, err := s.repo.ListSettledTransactionsForOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, classify("get stats", "", err)
	}
	return BuildStatsReport(ownerID, txns, from, to), nil
}

// BuildStatsReport groups successful transactions by direction and type.
// The owner is outgoing when it initiated the transaction and incoming when
// it received it; a deposit therefore counts as outgoing for its initiator.
func BuildStatsReport(ownerID uuid.UUID, txns []domain.Transaction, from, to time.Time) *domain.StatsReport {
	type bucketKey struct {
		dir domain.Direction
		typ domain.TransactionType
	}
	daily := make(map[bucketKey]map[string]*domain.DailyTotal)
	add := func(dir domain.Direction, txn domain.Transaction) {
		k := bucketKey{dir: dir, typ: txn.Type}
		days, ok := daily[k]
		if !ok {
			days = make(map[string]*domain.DailyTotal)
			daily[k] = days
		}
		day := txn.CreatedAt.UTC().Format(dayLayout)
		d, ok := days[day]
		if !ok {
			d = &domain.DailyTotal{Date: day}
			days[day] = d
		}
		d.Total += txn.Amount
		d.Count++
	}

	for _, txn := range txns {
		if txn.Status != domain.TransactionStatusSuccess {
			continue
		}
		if txn.CreatedAt.Before(from) || txn.CreatedAt.After(to) {
			continue
		}
		if txn.InitiatorID == ownerID {
			add(domain.DirectionOutgoing, txn)
		}
		if txn.RecipientID != nil && *txn.RecipientID == ownerID {
			add(domain.DirectionIncoming, txn)
		}
	}

	report := &domain.StatsReport{
		OwnerID:  ownerID.String(),
		From:     from,
		To:       to,
		Incoming: make(map[domain.TransactionType]domain.StatsBucket),
		Outgoing: make(map[domain.TransactionType]domain.StatsBucket),
	}
	for _, typ := range domain.TransactionTypes {
		report.Incoming[typ] = collapse(daily[bucketKey{dir: domain.DirectionIncoming, typ: typ}])
		report.Outgoing[typ] = collapse(daily[bucketKey{dir: domain.DirectionOutgoing, typ: typ}])
	}
	return report
}

func collapse(days map[string]*domain.DailyTotal) domain.StatsBucket {
	bucket := domain.StatsBucket{Daily: make([]domain.DailyTotal, 0, len(days))}
	for _, d := range days {
		bucket.Daily = append(bucket.Daily, *d)
		bucket.Total += d.Total
		bucket.Count += d.Count
	}
	sort.Slice(bucket.Daily, func(i, j int) bool {
		return bucket.Daily[i].Date < bucket.Daily[j].Date
	})
	return bucket
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
