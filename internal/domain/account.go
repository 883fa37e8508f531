package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the engine's read-only view of the account directory. The
// directory itself (profiles, membership, approval workflow) lives outside
// the ledger; the engine only needs currency and hosting metadata.
type Account struct {
	ID       string
	Name     string
	Currency string

	// HostID points at the fiscal host backing this account's balance.
	// Nil when the account is not hosted.
	HostID   *string
	IsActive bool

	// HostFeePercent is the fee the host charges on money it processes.
	// HostFeeSharePercent is the platform's revenue share of those host
	// fees. Both are meaningful on host accounts only.
	HostFeePercent      decimal.Decimal
	HostFeeSharePercent decimal.Decimal

	CreatedAt time.Time
}

// IsHosted reports whether the account has an active fiscal host.
func (a *Account) IsHosted() bool {
	return a != nil && a.IsActive && a.HostID != nil
}
