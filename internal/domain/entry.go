package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind identifies the economic nature of a ledger entry.
type EntryKind string

const (
	KindContribution        EntryKind = "CONTRIBUTION"
	KindExpense             EntryKind = "EXPENSE"
	KindHostFee             EntryKind = "HOST_FEE"
	KindHostFeeShare        EntryKind = "HOST_FEE_SHARE"
	KindHostFeeShareDebt    EntryKind = "HOST_FEE_SHARE_DEBT"
	KindPlatformTip         EntryKind = "PLATFORM_TIP"
	KindPlatformTipDebt     EntryKind = "PLATFORM_TIP_DEBT"
	KindPaymentProcessorFee EntryKind = "PAYMENT_PROCESSOR_FEE"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindContribution, KindExpense, KindHostFee, KindHostFeeShare,
		KindHostFeeShareDebt, KindPlatformTip, KindPlatformTipDebt,
		KindPaymentProcessorFee:
		return true
	}
	return false
}

// IsFee reports whether entries of this kind are themselves fee entries.
// Fee entries never carry fee fields of their own.
func (k EntryKind) IsFee() bool {
	switch k {
	case KindHostFee, KindHostFeeShare, KindPlatformTip, KindPaymentProcessorFee:
		return true
	}
	return false
}

// IsDebt reports whether entries of this kind record an amount owed to the
// platform that has not been physically transferred yet.
func (k EntryKind) IsDebt() bool {
	return k == KindHostFeeShareDebt || k == KindPlatformTipDebt
}

// Direction of a ledger entry, derived from the sign of its amount.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// DirectionOf derives the entry direction from a signed amount.
func DirectionOf(amount int64) Direction {
	if amount < 0 {
		return DirectionDebit
	}
	return DirectionCredit
}

// RateSnapshot is a conversion rate captured at charge/settlement time,
// embedded in the entry so that re-derivation reproduces the original number
// instead of drifting with a live lookup.
type RateSnapshot struct {
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
}

// LedgerEntry is one row of money movement. Amounts are signed integers in
// minor units of their currency. Entries are immutable after creation except
// for soft-deletion and currency migration.
type LedgerEntry struct {
	ID                   string
	GroupID              string
	Kind                 EntryKind
	Direction            Direction
	SourceAccountID      string
	DestinationAccountID string
	HostAccountID        *string

	// Amount in the currency of the economic event.
	Amount   int64
	Currency string

	// The same amount expressed in the host's operating currency.
	AmountInHostCurrency int64
	HostCurrency         string
	HostCurrencyFxRate   decimal.Decimal

	// CrossHostFxRate converts this entry's host currency into the paired
	// entry's host currency. Nil for self-transfers and same-host pairs.
	CrossHostFxRate *decimal.Decimal

	// NetAmount is the amount after fees and taxes, in event currency.
	NetAmount int64

	// Fee adjustments in host currency, negative-signed. Zero once
	// decomposed into sibling entries.
	HostFee             int64
	PlatformFee         int64
	PaymentProcessorFee int64

	// TaxAmount in event currency.
	TaxAmount int64

	IsRefund   bool
	IsDebt     bool
	IsDisputed bool
	IsInternal bool

	RefundOfEntryID   *string
	SourceReferenceID *string

	CreatedAt time.Time
	DeletedAt *time.Time
}

// IsSelfTransfer reports whether the entry moves money within one account,
// the shortcut used for host-internal bookkeeping. Self-transfers have no
// mirror entry.
func (e *LedgerEntry) IsSelfTransfer() bool {
	return e.SourceAccountID == e.DestinationAccountID
}
