package domain

import (
	"math"
	"time"
)

// HistoryFilter narrows an owner's transaction history. Nil fields do not filter.
type HistoryFilter struct {
	Type   *TransactionType
	Status *TransactionStatus
	From   *time.Time
	To     *time.Time
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip for p. It saturates at
// math.MaxInt instead of wrapping for very large pages.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// TransactionPage is one page of an owner's history, newest first.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// Direction says which side of a transaction the reporting owner was on.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// DailyTotal aggregates one UTC day of a stats bucket.
type DailyTotal struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Total int64  `json:"total"`
	Count int64  `json:"count"`
}

// StatsBucket aggregates successful transactions of one (direction, type).
type StatsBucket struct {
	Total int64        `json:"total"`
	Count int64        `json:"count"`
	Daily []DailyTotal `json:"daily"`
}

// StatsReport is the owner's settled activity over a date range.
type StatsReport struct {
	OwnerID  string                          `json:"owner_id"`
	From     time.Time                       `json:"from"`
	To       time.Time                       `json:"to"`
	Incoming map[TransactionType]StatsBucket `json:"incoming"`
	Outgoing map[TransactionType]StatsBucket `json:"outgoing"`
}
