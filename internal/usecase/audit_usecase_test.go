package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/usecase"
)

func recordDonation(t *testing.T, f *recorderFixture) *domain.LedgerEntry {
	t.Helper()
	primary, err := f.recorder.Record(context.Background(), domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		HostFee:              -97,
		PaymentProcessorFee:  -30,
		PlatformTip:          100,
		ProcessorProvider:    "stripe",
	})
	if err != nil {
		t.Fatalf("recording donation: %v", err)
	}
	return primary
}

func TestAuditGroupClean(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())
	primary := recordDonation(t, f)

	audit := usecase.NewAuditUseCase(f.entryRepo, nil, zerolog.Nop())
	violations, err := audit.AuditGroup(context.Background(), primary.GroupID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 0 {
		for _, v := range violations {
			t.Logf("violation on %s: %v", v.EntryID, v.Err)
		}
		t.Fatalf("expected a clean audit, got %d violations", len(violations))
	}
}

func TestAuditGroupDetectsCorruption(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())
	primary := recordDonation(t, f)

	// Corrupt the primary's amount well past tolerance.
	corrupted := *primary
	corrupted.Amount = primary.Amount + 5000
	if err := f.entryRepo.Update(context.Background(), nil, &corrupted); err != nil {
		t.Fatalf("corrupting entry: %v", err)
	}

	audit := usecase.NewAuditUseCase(f.entryRepo, nil, zerolog.Nop())
	violations, err := audit.AuditGroup(context.Background(), primary.GroupID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) == 0 {
		t.Fatal("expected the corrupted amount to be flagged")
	}

	found := false
	for _, v := range violations {
		if v.EntryID == primary.ID && v.GroupID == primary.GroupID {
			found = true
		}
	}
	if !found {
		t.Error("expected a violation attributed to the corrupted entry")
	}
}

func TestAuditGroupMissingGroup(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

	audit := usecase.NewAuditUseCase(f.entryRepo, nil, zerolog.Nop())
	_, err := audit.AuditGroup(context.Background(), "no-such-group")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestAuditRecent(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())
	recordDonation(t, f)
	recordDonation(t, f)

	audit := usecase.NewAuditUseCase(f.entryRepo, nil, zerolog.Nop())
	report, err := audit.AuditRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.GroupsChecked != 2 {
		t.Errorf("expected 2 groups checked, got %d", report.GroupsChecked)
	}
	if report.EntriesChecked != 26 {
		t.Errorf("expected 26 entries checked, got %d", report.EntriesChecked)
	}
	if len(report.Violations) != 0 {
		t.Errorf("expected no violations, got %d", len(report.Violations))
	}
	if report.CheckedAt.IsZero() {
		t.Error("expected a report timestamp")
	}
}
