package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/usecase"
	"github.com/fiscalhost/ledger/internal/usecase/mocks"
)

type recorderFixture struct {
	entryRepo      *mocks.MockEntryRepository
	settlementRepo *mocks.MockSettlementRepository
	outboxRepo     *mocks.MockOutboxRepository
	directory      *mocks.MockAccountDirectory
	rates          *mocks.MockRateService
	recorder       *usecase.LedgerRecorder
}

// newRecorderFixture wires a recorder over one USD host ("host-1") backing
// "collective-1", an unhosted donor, a processor vendor, and the platform
// account. The host fee share is 15 percent.
func newRecorderFixture(t *testing.T, policy usecase.Policy) *recorderFixture {
	t.Helper()

	entryRepo := mocks.NewMockEntryRepository()
	settlementRepo := mocks.NewMockSettlementRepository()
	outboxRepo := mocks.NewMockOutboxRepository()
	directory := mocks.NewMockAccountDirectory()
	rates := mocks.NewMockRateService()
	txMgr := mocks.NewMockTransactionManager()
	idGen := mocks.NewMockIDGenerator()

	hostID := "host-1"
	directory.AddAccount(&domain.Account{
		ID: hostID, Name: "Open Host", Currency: "USD", HostID: &hostID,
		IsActive: true, HostFeePercent: decimal.NewFromInt(10),
	})
	directory.AddAccount(&domain.Account{
		ID: "collective-1", Name: "Collective", Currency: "USD", HostID: &hostID, IsActive: true,
	})
	directory.AddAccount(&domain.Account{ID: "donor-1", Name: "Donor", Currency: "USD", IsActive: true})
	directory.AddAccount(&domain.Account{ID: "platform", Name: "Platform", Currency: "USD", IsActive: true})
	directory.AddVendor("stripe", &domain.Account{ID: "vendor-stripe", Name: "Stripe", Currency: "USD", IsActive: true})

	fx := usecase.NewDefaultFxResolver(rates)
	factory := usecase.NewEntryPairFactory(entryRepo, outboxRepo, directory, fx, idGen, zerolog.Nop())
	recorder := usecase.NewLedgerRecorder(
		txMgr, factory, entryRepo, settlementRepo, outboxRepo, directory, fx, idGen,
		policy, nil, zerolog.Nop(),
	)

	return &recorderFixture{
		entryRepo:      entryRepo,
		settlementRepo: settlementRepo,
		outboxRepo:     outboxRepo,
		directory:      directory,
		rates:          rates,
		recorder:       recorder,
	}
}

func defaultPolicy() usecase.Policy {
	return usecase.Policy{
		SeparateProcessorFees:      true,
		PlatformAccountID:          "platform",
		PlatformCurrency:           "USD",
		DefaultHostFeeSharePercent: decimal.NewFromInt(15),
	}
}

func entriesByKind(entries []*domain.LedgerEntry, kind domain.EntryKind) []*domain.LedgerEntry {
	var out []*domain.LedgerEntry
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// A $10.00 donation with a $0.30 processor fee, $1.00 platform tip and $0.97
// host fee nets to $7.73 on the collective.
func TestRecordDonationDecomposition(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

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
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.Kind != domain.KindContribution {
		t.Errorf("expected CONTRIBUTION primary, got %s", primary.Kind)
	}
	if primary.Amount != 773 {
		t.Errorf("expected net contribution of 773, got %d", primary.Amount)
	}
	if primary.NetAmount != 773 {
		t.Errorf("expected fully decomposed net of 773, got %d", primary.NetAmount)
	}
	if primary.HostFee != 0 || primary.PlatformFee != 0 || primary.PaymentProcessorFee != 0 {
		t.Error("expected fee fields stripped off the primary entry")
	}

	entries := f.entryRepo.All()
	for _, e := range entries {
		if e.GroupID != primary.GroupID {
			t.Errorf("entry %s has group %s, want %s", e.ID, e.GroupID, primary.GroupID)
		}
	}

	processorFees := entriesByKind(entries, domain.KindPaymentProcessorFee)
	if len(processorFees) != 2 {
		t.Fatalf("expected processor fee pair, got %d entries", len(processorFees))
	}
	for _, e := range processorFees {
		if e.Amount == 30 && e.DestinationAccountID != "vendor-stripe" {
			t.Errorf("processor fee credit should land on the vendor, got %s", e.DestinationAccountID)
		}
	}

	tips := entriesByKind(entries, domain.KindPlatformTip)
	if len(tips) != 2 {
		t.Fatalf("expected platform tip pair, got %d entries", len(tips))
	}

	hostFees := entriesByKind(entries, domain.KindHostFee)
	if len(hostFees) != 1 {
		t.Fatalf("expected a single self-transfer host fee entry, got %d", len(hostFees))
	}
	if hostFees[0].Amount != 97 || !hostFees[0].IsSelfTransfer() {
		t.Errorf("host fee should be a 97 self-transfer on the host, got %d %s->%s",
			hostFees[0].Amount, hostFees[0].SourceAccountID, hostFees[0].DestinationAccountID)
	}

	// 15% of the 97 host fee rounds to 15.
	shares := entriesByKind(entries, domain.KindHostFeeShare)
	if len(shares) != 2 {
		t.Fatalf("expected host fee share pair, got %d entries", len(shares))
	}
	var shareCredit *domain.LedgerEntry
	for _, e := range shares {
		if e.Amount > 0 {
			shareCredit = e
		}
	}
	if shareCredit == nil || shareCredit.Amount != 15 {
		t.Fatalf("expected a 15 share credit, got %+v", shareCredit)
	}
	if shareCredit.DestinationAccountID != "platform" {
		t.Errorf("share credit should land on the platform, got %s", shareCredit.DestinationAccountID)
	}
}

func TestRecordDonationCreatesDebtSettlements(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

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
		t.Fatalf("unexpected error: %v", err)
	}

	entries := f.entryRepo.All()

	// Tip landed in the host's bank, and the share was not collected: both
	// spawn a debt pair plus an OWED settlement on the debit entry.
	tipDebts := entriesByKind(entries, domain.KindPlatformTipDebt)
	shareDebts := entriesByKind(entries, domain.KindHostFeeShareDebt)
	if len(tipDebts) != 2 || len(shareDebts) != 2 {
		t.Fatalf("expected tip and share debt pairs, got %d and %d", len(tipDebts), len(shareDebts))
	}

	assertSettlement := func(kind domain.EntryKind, wantAmount int64) {
		t.Helper()
		for _, e := range entriesByKind(entries, kind) {
			if e.Amount >= 0 {
				continue
			}
			s, err := f.settlementRepo.GetByEntry(context.Background(), e.ID)
			if err != nil {
				t.Fatalf("expected settlement on %s debit, got %v", kind, err)
			}
			if s.Status != domain.SettlementOwed {
				t.Errorf("expected OWED settlement, got %s", s.Status)
			}
			if s.Amount != wantAmount {
				t.Errorf("expected settlement of %d, got %d", wantAmount, s.Amount)
			}
			return
		}
		t.Fatalf("no debit entry of kind %s found", kind)
	}
	assertSettlement(domain.KindPlatformTipDebt, 100)
	assertSettlement(domain.KindHostFeeShareDebt, 15)

	var created int
	for _, ev := range f.outboxRepo.Events() {
		if ev.EventType == domain.EventTypeSettlementCreated {
			created++
		}
	}
	if created != 2 {
		t.Errorf("expected 2 settlement.created events, got %d", created)
	}

	if primary.GroupID == "" {
		t.Error("expected a generated group id")
	}
}

func TestRecordTipDirectlyCollectedSkipsDebt(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

	_, err := f.recorder.Record(context.Background(), domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		PlatformTip:          100,
		TipDirectlyCollected: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := f.entryRepo.All()
	if n := len(entriesByKind(entries, domain.KindPlatformTipDebt)); n != 0 {
		t.Errorf("expected no tip debt entries, got %d", n)
	}
	if n := len(entriesByKind(entries, domain.KindPlatformTip)); n != 2 {
		t.Errorf("expected tip pair, got %d entries", n)
	}
}

func TestProcessorFeeKeptInlineWhenPolicyDisabled(t *testing.T) {
	policy := defaultPolicy()
	policy.SeparateProcessorFees = false
	f := newRecorderFixture(t, policy)

	primary, err := f.recorder.Record(context.Background(), domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		PaymentProcessorFee:  -30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.PaymentProcessorFee != -30 {
		t.Errorf("expected inline processor fee of -30, got %d", primary.PaymentProcessorFee)
	}
	if primary.Amount != 1000 {
		t.Errorf("expected undiminished amount, got %d", primary.Amount)
	}
	if primary.NetAmount != 970 {
		t.Errorf("expected net of 970, got %d", primary.NetAmount)
	}
	if n := len(entriesByKind(f.entryRepo.All(), domain.KindPaymentProcessorFee)); n != 0 {
		t.Errorf("expected no processor fee entries, got %d", n)
	}
}

func TestRecordRejectsPositiveFeeOutcome(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

	// Fees exceeding the gross amount would flip the contribution negative.
	_, err := f.recorder.Record(context.Background(), domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               100,
		Currency:             "USD",
		HostFee:              -97,
		PlatformTip:          50,
	})
	var negFee *domain.NegativeFeeError
	if !errors.As(err, &negFee) {
		t.Fatalf("expected NegativeFeeError, got %v", err)
	}

	if n := len(f.entryRepo.All()); n != 0 {
		t.Errorf("expected nothing persisted on failure, got %d entries", n)
	}
}

func TestDecompositionStagesArePure(t *testing.T) {
	t.Parallel()

	c := &usecase.DecomposeContext{
		Policy:            defaultPolicy(),
		Host:              &domain.Account{ID: "host-1", Currency: "USD"},
		VendorAccountID:   "vendor-stripe",
		EventToHostRate:   decimal.New(1, 0),
		TipToPlatformRate: decimal.New(1, 0),
	}
	c.HostFeeSharePercent = decimal.NewFromInt(15)

	state := usecase.DecomposeState{Intent: domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		HostFee:              -97,
		PaymentProcessorFee:  -30,
		PlatformTip:          100,
	}}

	var err error
	for _, stage := range usecase.DefaultStages() {
		state, err = stage(c, state)
		if err != nil {
			t.Fatalf("stage failed: %v", err)
		}
	}

	if state.Intent.Amount != 773 {
		t.Errorf("expected reduced amount of 773, got %d", state.Intent.Amount)
	}
	if state.Intent.HostFee != 0 || state.Intent.PaymentProcessorFee != 0 || state.Intent.PlatformTip != 0 {
		t.Error("expected all fee fields consumed")
	}
	if len(state.Siblings) != 6 {
		t.Fatalf("expected 6 siblings, got %d", len(state.Siblings))
	}

	// Running the pipeline again over the already-decomposed intent must be
	// a no-op: all fee fields are zero.
	again := usecase.DecomposeState{Intent: state.Intent}
	for _, stage := range usecase.DefaultStages() {
		again, err = stage(c, again)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
	}
	if again.Intent.Amount != 773 || len(again.Siblings) != 0 {
		t.Errorf("expected idempotent second pass, got amount %d with %d siblings",
			again.Intent.Amount, len(again.Siblings))
	}
}

func TestVoidGroup(t *testing.T) {
	f := newRecorderFixture(t, defaultPolicy())

	primary, err := f.recorder.Record(context.Background(), domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := f.recorder.VoidGroup(context.Background(), primary.GroupID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 voided entries, got %d", count)
	}

	if _, err := f.entryRepo.GetByID(context.Background(), primary.ID); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("expected voided entry to be gone, got %v", err)
	}

	if _, err := f.recorder.VoidGroup(context.Background(), primary.GroupID); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("expected voiding an empty group to fail, got %v", err)
	}

	var voided int
	for _, ev := range f.outboxRepo.Events() {
		if ev.EventType == domain.EventTypeGroupVoided {
			voided++
		}
	}
	if voided != 1 {
		t.Errorf("expected 1 group.voided event, got %d", voided)
	}
}
