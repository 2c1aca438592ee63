package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OwnerType tags what kind of entity owns a wallet. Only users hold wallets
// today; the tag is persisted so other owner kinds need no schema change.
type OwnerType string

const (
	OwnerTypeUser OwnerType = "user"
)

// ParseOwnerType validates an owner type coming from an internal caller.
// An empty value defaults to OwnerTypeUser.
func ParseOwnerType(raw string) (OwnerType, error) {
	t := OwnerType(strings.TrimSpace(strings.ToLower(raw)))
	switch t {
	case "", OwnerTypeUser:
		return OwnerTypeUser, nil
	default:
		return "", fmt.Errorf("unsupported owner type %q", raw)
	}
}

// Wallet is the per-owner balance record.
// AvailableBalance is spendable; LockedBalance is reserved for in-flight
// withdrawals. Both are never negative.
type Wallet struct {
	ID               uuid.UUID   `json:"id"`
	OwnerType        OwnerType   `json:"owner_type"`
	OwnerID          uuid.UUID   `json:"owner_id"`
	AvailableBalance int64       `json:"available_balance"`
	LockedBalance    int64       `json:"locked_balance"`
	TransactionRefs  []uuid.UUID `json:"transaction_refs"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Total is the owner's funds still held by the system.
func (w *Wallet) Total() int64 {
	return w.AvailableBalance + w.LockedBalance
}

// CreateWalletRequest is the internal provisioning payload sent by the
// registration flow.
type CreateWalletRequest struct {
	OwnerType string    `json:"owner_type"`
	OwnerID   uuid.UUID `json:"owner_id"`
}
