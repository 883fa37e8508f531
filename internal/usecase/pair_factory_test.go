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

type factoryFixture struct {
	entryRepo  *mocks.MockEntryRepository
	outboxRepo *mocks.MockOutboxRepository
	directory  *mocks.MockAccountDirectory
	rates      *mocks.MockRateService
	factory    *usecase.EntryPairFactory
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()

	entryRepo := mocks.NewMockEntryRepository()
	outboxRepo := mocks.NewMockOutboxRepository()
	directory := mocks.NewMockAccountDirectory()
	rates := mocks.NewMockRateService()
	idGen := mocks.NewMockIDGenerator()

	fx := usecase.NewDefaultFxResolver(rates)
	factory := usecase.NewEntryPairFactory(entryRepo, outboxRepo, directory, fx, idGen, zerolog.Nop())

	return &factoryFixture{
		entryRepo:  entryRepo,
		outboxRepo: outboxRepo,
		directory:  directory,
		rates:      rates,
		factory:    factory,
	}
}

func (f *factoryFixture) addHost(id, currency string) {
	hostID := id
	f.directory.AddAccount(&domain.Account{
		ID: id, Currency: currency, HostID: &hostID, IsActive: true,
	})
}

func (f *factoryFixture) addHosted(id, hostID string) {
	h := hostID
	f.directory.AddAccount(&domain.Account{ID: id, Currency: "USD", HostID: &h, IsActive: true})
}

func TestCreatePairSameHostCurrency(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "USD")
	f.addHosted("collective-1", "host-1")
	f.directory.AddAccount(&domain.Account{ID: "donor-1", Currency: "USD", IsActive: true})

	primary, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		HostFee:              -97,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.AmountInHostCurrency != 1000 {
		t.Errorf("expected host amount 1000, got %d", primary.AmountInHostCurrency)
	}
	if primary.NetAmount != 903 {
		t.Errorf("expected net 903, got %d", primary.NetAmount)
	}
	if hostID := primary.HostAccountID; hostID == nil || *hostID != "host-1" {
		t.Errorf("expected host-1 on the primary, got %v", hostID)
	}

	mirror, err := f.entryRepo.GetMirror(context.Background(), primary.GroupID, primary.ID)
	if err != nil {
		t.Fatalf("expected a mirror: %v", err)
	}
	if mirror.Amount != -primary.NetAmount {
		t.Errorf("mirror amount %d, want %d", mirror.Amount, -primary.NetAmount)
	}
	if mirror.NetAmount != -primary.Amount {
		t.Errorf("mirror net %d, want %d", mirror.NetAmount, -primary.Amount)
	}
	if mirror.Direction != domain.DirectionDebit {
		t.Errorf("expected debit mirror, got %s", mirror.Direction)
	}
	// Donor is unhosted: the mirror stays on the primary's rate with no host.
	if mirror.HostAccountID != nil {
		t.Errorf("expected no host on the mirror, got %v", *mirror.HostAccountID)
	}
	if primary.CrossHostFxRate != nil {
		t.Error("expected no cross rate for a same-currency pair")
	}
}

func TestCreatePairCrossHostCurrencies(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-usd", "USD")
	f.addHost("host-gbp", "GBP")
	hostUSD, hostGBP := "host-usd", "host-gbp"
	f.directory.AddAccount(&domain.Account{ID: "collective-1", Currency: "USD", HostID: &hostUSD, IsActive: true})
	f.directory.AddAccount(&domain.Account{ID: "payer-1", Currency: "GBP", HostID: &hostGBP, IsActive: true})

	f.rates.SetRate("EUR", "USD", decimal.RequireFromString("1.1"))
	f.rates.SetRate("EUR", "GBP", decimal.RequireFromString("0.9"))
	f.rates.SetRate("USD", "GBP", decimal.RequireFromString("0.8"))

	primary, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "payer-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "EUR",
		HostFee:              -50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.AmountInHostCurrency != 1100 {
		t.Errorf("expected 1100 USD cents, got %d", primary.AmountInHostCurrency)
	}
	// net = (1100 - 50) / 1.1 = 954.5..., rounded away from zero.
	if primary.NetAmount != 955 {
		t.Errorf("expected net 955, got %d", primary.NetAmount)
	}
	if primary.CrossHostFxRate == nil || !primary.CrossHostFxRate.Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("expected cross rate 0.8 on the primary, got %v", primary.CrossHostFxRate)
	}

	mirror, err := f.entryRepo.GetMirror(context.Background(), primary.GroupID, primary.ID)
	if err != nil {
		t.Fatalf("expected a mirror: %v", err)
	}
	if mirror.HostCurrency != "GBP" {
		t.Errorf("expected GBP mirror host currency, got %s", mirror.HostCurrency)
	}
	if mirror.Amount != -955 || mirror.NetAmount != -1000 {
		t.Errorf("mirror amounts %d/%d, want -955/-1000", mirror.Amount, mirror.NetAmount)
	}
	// -955 EUR at 0.9 = -859.5, rounded away from zero.
	if mirror.AmountInHostCurrency != -860 {
		t.Errorf("expected mirror host amount -860, got %d", mirror.AmountInHostCurrency)
	}
	// -50 USD cents at the 0.8 cross rate.
	if mirror.HostFee != -40 {
		t.Errorf("expected mirror host fee -40, got %d", mirror.HostFee)
	}
	if mirror.CrossHostFxRate == nil {
		t.Fatal("expected the inverse cross rate on the mirror")
	}
	wantInverse := domain.InverseRate(decimal.RequireFromString("0.8"))
	if !mirror.CrossHostFxRate.Equal(wantInverse) {
		t.Errorf("mirror cross rate %s, want %s", mirror.CrossHostFxRate, wantInverse)
	}
}

func TestCreatePairSelfTransfer(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "USD")

	entry, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindHostFee,
		SourceAccountID:      "host-1",
		DestinationAccountID: "host-1",
		Amount:               97,
		Currency:             "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if all := f.entryRepo.All(); len(all) != 1 {
		t.Fatalf("expected a single entry for a self-transfer, got %d", len(all))
	}
	if _, err := f.entryRepo.GetMirror(context.Background(), entry.GroupID, entry.ID); err == nil {
		t.Error("expected no mirror for a self-transfer")
	}
}

func TestCreatePairNegativeFirstPersistOrder(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "USD")
	f.addHosted("collective-1", "host-1")
	f.directory.AddAccount(&domain.Account{ID: "donor-1", Currency: "USD", IsActive: true})

	_, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := f.entryRepo.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Amount >= 0 {
		t.Errorf("expected the debit side persisted first, got amount %d", all[0].Amount)
	}
}

func TestCreatePairEmitsRecordedEvents(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "USD")
	f.addHosted("collective-1", "host-1")
	f.directory.AddAccount(&domain.Account{ID: "donor-1", Currency: "USD", IsActive: true})

	_, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.outboxRepo.Events()
	if len(events) != 2 {
		t.Fatalf("expected one event per entry, got %d", len(events))
	}
	for _, ev := range events {
		if ev.EventType != domain.EventTypeEntryRecorded {
			t.Errorf("expected entry.recorded event, got %s", ev.EventType)
		}
		if ev.AggregateType != domain.AggregateTypeEntry {
			t.Errorf("expected ledger_entry aggregate, got %s", ev.AggregateType)
		}
	}
}

func TestCreatePairFxResolutionFailure(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "EUR")
	hostID := "host-1"
	f.directory.AddAccount(&domain.Account{ID: "collective-1", Currency: "EUR", HostID: &hostID, IsActive: true})
	f.directory.AddAccount(&domain.Account{ID: "donor-1", Currency: "USD", IsActive: true})

	// No USD->EUR rate registered.
	_, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
	})

	var fxErr *domain.FxResolutionError
	if !errors.As(err, &fxErr) {
		t.Fatalf("expected FxResolutionError, got %v", err)
	}
	if n := len(f.entryRepo.All()); n != 0 {
		t.Errorf("expected nothing persisted, got %d entries", n)
	}
}

func TestCreatePairSnapshotRateWins(t *testing.T) {
	f := newFactoryFixture(t)
	f.addHost("host-1", "EUR")
	hostID := "host-1"
	f.directory.AddAccount(&domain.Account{ID: "collective-1", Currency: "EUR", HostID: &hostID, IsActive: true})
	f.directory.AddAccount(&domain.Account{ID: "donor-1", Currency: "USD", IsActive: true})

	// A live rate exists but the charge captured its own snapshot.
	f.rates.SetRate("USD", "EUR", decimal.RequireFromString("0.95"))

	primary, err := f.factory.CreatePair(context.Background(), &mocks.MockTransaction{}, domain.EntryIntent{
		Kind:                 domain.KindContribution,
		SourceAccountID:      "donor-1",
		DestinationAccountID: "collective-1",
		Amount:               1000,
		Currency:             "USD",
		Snapshot: &domain.RateSnapshot{
			FromCurrency: "USD",
			ToCurrency:   "EUR",
			Rate:         decimal.RequireFromString("0.9"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.AmountInHostCurrency != 900 {
		t.Errorf("expected the snapshot rate to win (900), got %d", primary.AmountInHostCurrency)
	}
	if !primary.HostCurrencyFxRate.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("expected snapshot rate 0.9 persisted, got %s", primary.HostCurrencyFxRate)
	}
}
