package domain

import (
	"errors"
	"testing"
)

func TestEntryIntentValidate(t *testing.T) {
	t.Parallel()

	valid := func() EntryIntent {
		return EntryIntent{
			Kind:                 KindContribution,
			SourceAccountID:      "donor-1",
			DestinationAccountID: "collective-1",
			Amount:               1000,
			Currency:             "USD",
			HostFee:              -97,
			PaymentProcessorFee:  -30,
			PlatformTip:          100,
		}
	}

	if i := valid(); i.Validate() != nil {
		t.Fatalf("expected valid intent, got %v", i.Validate())
	}

	tests := []struct {
		name   string
		mutate func(*EntryIntent)
	}{
		{"zero amount", func(i *EntryIntent) { i.Amount = 0 }},
		{"empty currency", func(i *EntryIntent) { i.Currency = "" }},
		{"unknown kind", func(i *EntryIntent) { i.Kind = "TRANSFER" }},
		{"missing source", func(i *EntryIntent) { i.SourceAccountID = "" }},
		{"missing destination", func(i *EntryIntent) { i.DestinationAccountID = "" }},
		{"positive host fee", func(i *EntryIntent) { i.HostFee = 97 }},
		{"positive processor fee", func(i *EntryIntent) { i.PaymentProcessorFee = 30 }},
		{"negative tip", func(i *EntryIntent) { i.PlatformTip = -100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := valid()
			tt.mutate(&i)
			err := i.Validate()
			var invalid *InvalidIntentError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidIntentError, got %v", err)
			}
		})
	}
}

func TestSettlementStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []SettlementStatus{SettlementOwed, SettlementInvoiced, SettlementSettled} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if SettlementStatus("PAID").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}
