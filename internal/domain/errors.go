package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Lookup errors
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrMirrorNotFound     = errors.New("mirror entry not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrVendorNotFound     = errors.New("vendor account not found")
	ErrHostNotFound       = errors.New("host account not found")

	// Settlement errors
	ErrSettlementClosed = errors.New("settlement is no longer owed")
)

// InvalidIntentError rejects a malformed monetary intent before any I/O.
type InvalidIntentError struct {
	Reason string
}

func (e *InvalidIntentError) Error() string {
	return "invalid intent: " + e.Reason
}

// FxResolutionError means no conversion rate could be derived for a currency
// pair. It aborts the whole economic event; the engine never defaults to 1.
type FxResolutionError struct {
	From  string
	To    string
	At    time.Time
	Cause error
}

func (e *FxResolutionError) Error() string {
	msg := fmt.Sprintf("no fx rate from %s to %s at %s", e.From, e.To, e.At.Format(time.RFC3339))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FxResolutionError) Unwrap() error {
	return e.Cause
}

// MissingFieldError names a required entry field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// AmountMismatchError reports an entry whose amount/fee/currency relationship
// is internally inconsistent.
type AmountMismatchError struct {
	Field    string
	Actual   string
	Expected string
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: got %s, want %s", e.Field, e.Actual, e.Expected)
}

// MirrorMismatchError reports a double-entry pair whose entries disagree.
type MirrorMismatchError struct {
	Field    string
	Actual   string
	Expected string
}

func (e *MirrorMismatchError) Error() string {
	return fmt.Sprintf("mirror %s mismatch: got %s, want %s", e.Field, e.Actual, e.Expected)
}

// NegativeFeeError means a fee decomposition step would invert the sign of an
// entry. The whole economic event is aborted.
type NegativeFeeError struct {
	Kind   EntryKind
	Amount int64
}

func (e *NegativeFeeError) Error() string {
	return fmt.Sprintf("fee decomposition for %s would produce invalid amount %d", e.Kind, e.Amount)
}
