package domain

import "time"

// SettlementStatus tracks whether the platform has collected a debt.
type SettlementStatus string

const (
	SettlementOwed     SettlementStatus = "OWED"
	SettlementInvoiced SettlementStatus = "INVOICED"
	SettlementSettled  SettlementStatus = "SETTLED"
)

// Valid reports whether s is a known settlement status.
func (s SettlementStatus) Valid() bool {
	switch s {
	case SettlementOwed, SettlementInvoiced, SettlementSettled:
		return true
	}
	return false
}

// Settlement tracks the collection status of a debt entry. Every *_DEBT
// entry has exactly one settlement, created OWED alongside it.
type Settlement struct {
	EntryID   string
	Status    SettlementStatus
	Amount    int64
	Currency  string
	CreatedAt time.Time
	SettledAt *time.Time
}
