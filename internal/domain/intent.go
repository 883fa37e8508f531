package domain

import "time"

// EntryIntent is the raw monetary intent an Order/Expense workflow submits to
// the ledger: signed amount, currency, the two accounts, and fee fields still
// attached. The decomposition pipeline strips the fees into sibling entry
// pairs and the pair factory persists the balanced remainder.
type EntryIntent struct {
	GroupID              string
	Kind                 EntryKind
	SourceAccountID      string
	DestinationAccountID string

	// Amount in event currency, signed. Positive for credits into the
	// destination, negative for disbursements out of it.
	Amount   int64
	Currency string

	// Fee fields in host currency, negative-signed.
	HostFee             int64
	PlatformFee         int64
	PaymentProcessorFee int64

	// TaxAmount in event currency.
	TaxAmount int64

	// PlatformTip in event currency, positive. Part of the gross amount.
	PlatformTip int64

	// ProcessorProvider keys the vendor account that receives the payment
	// processor fee.
	ProcessorProvider string

	// TipDirectlyCollected is true when the tip money arrived in the
	// platform's own bank account rather than the host's.
	TipDirectlyCollected bool

	// HostFeeShareCollected is true when the platform already collected
	// its share of the host fee.
	HostFeeShareCollected bool

	IsRefund   bool
	IsDebt     bool
	IsInternal bool

	RefundOfEntryID   *string
	SourceReferenceID *string

	// Snapshot is a processor-reported rate captured with the charge, when
	// available.
	Snapshot *RateSnapshot

	CreatedAt time.Time
}

// Validate rejects malformed intents before any I/O happens.
func (i *EntryIntent) Validate() error {
	if i.Amount == 0 {
		return &InvalidIntentError{Reason: "amount is required"}
	}
	if i.Currency == "" {
		return &InvalidIntentError{Reason: "currency is required"}
	}
	if !i.Kind.Valid() {
		return &InvalidIntentError{Reason: "unknown entry kind " + string(i.Kind)}
	}
	if i.SourceAccountID == "" || i.DestinationAccountID == "" {
		return &InvalidIntentError{Reason: "source and destination accounts are required"}
	}
	if i.HostFee > 0 || i.PlatformFee > 0 || i.PaymentProcessorFee > 0 {
		return &InvalidIntentError{Reason: "fee fields must be negative-signed"}
	}
	if i.PlatformTip < 0 {
		return &InvalidIntentError{Reason: "platform tip must be positive"}
	}
	return nil
}
