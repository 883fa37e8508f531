package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ValidateOptions controls the invariant validator.
type ValidateOptions struct {
	// CheckMirror enables cross-checking against the paired entry.
	CheckMirror bool
	// Mirror is the paired entry, required when CheckMirror is set and the
	// entry is not a self-transfer.
	Mirror *LedgerEntry
}

// ValidateEntry asserts that an entry's amount/fee/currency relationships are
// internally consistent. It is a pure check with no side effects, run both at
// creation time (fail fast) and by offline consistency audits.
func ValidateEntry(e *LedgerEntry, opts ValidateOptions) error {
	// TODO: validate PLATFORM_TIP entries once their net/fee relationship
	// is pinned down; tips settle in platform currency and do not satisfy
	// the standard formula.
	if e.Kind == KindPlatformTip {
		return nil
	}

	if err := checkRequiredFields(e); err != nil {
		return err
	}

	one := decimal.New(1, 0)
	if e.Currency == e.HostCurrency {
		if !e.HostCurrencyFxRate.Equal(one) {
			return &AmountMismatchError{
				Field:    "hostCurrencyFxRate",
				Actual:   e.HostCurrencyFxRate.String(),
				Expected: "1",
			}
		}
	} else if e.HostCurrencyFxRate.Equal(one) {
		return &AmountMismatchError{
			Field:    "hostCurrencyFxRate",
			Actual:   "1",
			Expected: "!= 1 for " + e.Currency + "->" + e.HostCurrency,
		}
	}

	back := UnapplyRate(e.AmountInHostCurrency, e.HostCurrencyFxRate)
	if !WithinTolerance(back, e.Amount) {
		return &AmountMismatchError{
			Field:    "amount",
			Actual:   formatAmount(e.Amount),
			Expected: formatAmount(back),
		}
	}

	grossHost := e.AmountInHostCurrency + e.HostFee + e.PlatformFee + e.PaymentProcessorFee
	expectedNet := UnapplyRate(grossHost, e.HostCurrencyFxRate) + e.TaxAmount
	if !WithinTolerance(e.NetAmount, expectedNet) {
		return &AmountMismatchError{
			Field:    "netAmount",
			Actual:   formatAmount(e.NetAmount),
			Expected: formatAmount(expectedNet),
		}
	}

	if e.Kind.IsFee() || e.Kind.IsDebt() {
		// Fees are never stacked on fee entries.
		if e.HostFee != 0 || e.PlatformFee != 0 || e.PaymentProcessorFee != 0 {
			return &AmountMismatchError{
				Field:    "feeFields",
				Actual:   formatAmount(e.HostFee + e.PlatformFee + e.PaymentProcessorFee),
				Expected: "0",
			}
		}
	}

	if opts.CheckMirror && !e.IsSelfTransfer() {
		if opts.Mirror == nil {
			return ErrMirrorNotFound
		}
		return validateMirror(e, opts.Mirror)
	}

	return nil
}

func checkRequiredFields(e *LedgerEntry) error {
	switch {
	case e.Amount == 0:
		return &MissingFieldError{Field: "amount"}
	case e.Currency == "":
		return &MissingFieldError{Field: "currency"}
	case e.AmountInHostCurrency == 0:
		return &MissingFieldError{Field: "amountInHostCurrency"}
	case e.HostCurrency == "":
		return &MissingFieldError{Field: "hostCurrency"}
	case e.HostCurrencyFxRate.IsZero():
		return &MissingFieldError{Field: "hostCurrencyFxRate"}
	case e.NetAmount == 0:
		return &MissingFieldError{Field: "netAmount"}
	}
	return nil
}

// validateMirror asserts the double-entry relationship between an entry and
// its counter-entry: same group, opposite direction, swapped accounts,
// amount/netAmount swapped with opposite sign, and fee fields scaled by the
// cross-host FX rate.
func validateMirror(e, m *LedgerEntry) error {
	if m.GroupID != e.GroupID {
		return &MirrorMismatchError{Field: "groupId", Actual: m.GroupID, Expected: e.GroupID}
	}
	if m.Direction == e.Direction {
		return &MirrorMismatchError{
			Field:    "direction",
			Actual:   string(m.Direction),
			Expected: "opposite of " + string(e.Direction),
		}
	}
	if m.SourceAccountID != e.DestinationAccountID || m.DestinationAccountID != e.SourceAccountID {
		return &MirrorMismatchError{
			Field:    "accounts",
			Actual:   m.SourceAccountID + "->" + m.DestinationAccountID,
			Expected: e.DestinationAccountID + "->" + e.SourceAccountID,
		}
	}

	if !WithinTolerance(m.Amount, -e.NetAmount) {
		return &MirrorMismatchError{
			Field:    "amount",
			Actual:   formatAmount(m.Amount),
			Expected: formatAmount(-e.NetAmount),
		}
	}
	if !WithinTolerance(m.NetAmount, -e.Amount) {
		return &MirrorMismatchError{
			Field:    "netAmount",
			Actual:   formatAmount(m.NetAmount),
			Expected: formatAmount(-e.Amount),
		}
	}

	cross, err := crossHostRate(e, m)
	if err != nil {
		return err
	}

	checks := []struct {
		field            string
		entryFee, mirror int64
	}{
		{"hostFee", e.HostFee, m.HostFee},
		{"platformFee", e.PlatformFee, m.PlatformFee},
		{"paymentProcessorFee", e.PaymentProcessorFee, m.PaymentProcessorFee},
	}
	for _, c := range checks {
		want := ApplyRate(c.entryFee, cross)
		if !WithinTolerance(c.mirror, want) {
			return &MirrorMismatchError{
				Field:    c.field,
				Actual:   formatAmount(c.mirror),
				Expected: formatAmount(want),
			}
		}
	}

	return nil
}

func crossHostRate(e, m *LedgerEntry) (decimal.Decimal, error) {
	if e.CrossHostFxRate != nil {
		return *e.CrossHostFxRate, nil
	}
	if m.CrossHostFxRate != nil {
		return InverseRate(*m.CrossHostFxRate), nil
	}
	if e.HostCurrency == m.HostCurrency {
		return decimal.New(1, 0), nil
	}
	return decimal.Decimal{}, &MissingFieldError{Field: "crossHostFxRate"}
}

func formatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}
