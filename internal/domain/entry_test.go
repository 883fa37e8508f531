package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEntryKindValid(t *testing.T) {
	t.Parallel()

	kinds := []EntryKind{
		KindContribution, KindExpense, KindHostFee, KindHostFeeShare,
		KindHostFeeShareDebt, KindPlatformTip, KindPlatformTipDebt,
		KindPaymentProcessorFee,
	}
	for _, k := range kinds {
		if !k.Valid() {
			t.Errorf("expected %s to be valid", k)
		}
	}

	if EntryKind("TRANSFER").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
	if EntryKind("").Valid() {
		t.Error("expected empty kind to be invalid")
	}
}

func TestEntryKindIsFee(t *testing.T) {
	t.Parallel()

	feeKinds := []EntryKind{KindHostFee, KindHostFeeShare, KindPlatformTip, KindPaymentProcessorFee}
	for _, k := range feeKinds {
		if !k.IsFee() {
			t.Errorf("expected %s to be a fee kind", k)
		}
	}

	if KindContribution.IsFee() {
		t.Error("CONTRIBUTION is not a fee kind")
	}
	if KindHostFeeShareDebt.IsFee() {
		t.Error("HOST_FEE_SHARE_DEBT is a debt kind, not a fee kind")
	}
}

func TestEntryKindIsDebt(t *testing.T) {
	t.Parallel()

	if !KindHostFeeShareDebt.IsDebt() || !KindPlatformTipDebt.IsDebt() {
		t.Error("expected debt kinds to report IsDebt")
	}
	if KindHostFee.IsDebt() {
		t.Error("HOST_FEE is not a debt kind")
	}
}

func TestDirectionOf(t *testing.T) {
	t.Parallel()

	if DirectionOf(-1) != DirectionDebit {
		t.Error("negative amount should be a debit")
	}
	if DirectionOf(1) != DirectionCredit {
		t.Error("positive amount should be a credit")
	}
	if DirectionOf(0) != DirectionCredit {
		t.Error("zero amount defaults to credit")
	}
}

func TestIsSelfTransfer(t *testing.T) {
	t.Parallel()

	e := &LedgerEntry{SourceAccountID: "host-1", DestinationAccountID: "host-1"}
	if !e.IsSelfTransfer() {
		t.Error("same source and destination should be a self-transfer")
	}

	e.DestinationAccountID = "collective-1"
	if e.IsSelfTransfer() {
		t.Error("distinct accounts are not a self-transfer")
	}
}

func TestApplyRateRoundsHalfAwayFromZero(t *testing.T) {
	t.Parallel()

	half := decimal.RequireFromString("0.5")
	if got := ApplyRate(101, half); got != 51 {
		t.Errorf("expected 50.5 to round to 51, got %d", got)
	}
	if got := ApplyRate(-101, half); got != -51 {
		t.Errorf("expected -50.5 to round to -51, got %d", got)
	}
}

func TestUnapplyRateInvertsApplyRate(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString("1.1")
	amount := int64(1000)

	converted := ApplyRate(amount, rate)
	back := UnapplyRate(converted, rate)

	if !WithinTolerance(back, amount) {
		t.Errorf("round trip drifted: %d -> %d -> %d", amount, converted, back)
	}
}

func TestWithinTolerance(t *testing.T) {
	t.Parallel()

	if !WithinTolerance(1000, 1000+AmountTolerance) {
		t.Error("difference at the tolerance boundary should pass")
	}
	if WithinTolerance(1000, 1000+AmountTolerance+1) {
		t.Error("difference beyond the tolerance should fail")
	}
	if !WithinTolerance(-500, -400) {
		t.Error("tolerance applies to the absolute difference")
	}
}

func TestInverseRate(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString("0.8")
	inv := InverseRate(rate)
	if !inv.Mul(rate).Round(10).Equal(decimal.New(1, 0)) {
		t.Errorf("expected inverse of 0.8 times 0.8 to be 1, got %s", inv.Mul(rate))
	}
}
