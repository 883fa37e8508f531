package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
)

// EntryPairFactory is the double-entry engine: given one intent entry it
// synthesizes the mirror entry on the counter-account, handling currency and
// host differences between the two sides, and persists the balanced pair.
type EntryPairFactory struct {
	entryRepo  EntryRepository
	outboxRepo OutboxRepository
	directory  AccountDirectory
	fx         *FxResolver
	idGen      IDGenerator
	logger     zerolog.Logger
}

// NewEntryPairFactory creates a new EntryPairFactory.
func NewEntryPairFactory(
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	directory AccountDirectory,
	fx *FxResolver,
	idGen IDGenerator,
	logger zerolog.Logger,
) *EntryPairFactory {
	return &EntryPairFactory{
		entryRepo:  entryRepo,
		outboxRepo: outboxRepo,
		directory:  directory,
		fx:         fx,
		idGen:      idGen,
		logger:     logger,
	}
}

// CreatePair builds and persists the balanced entry pair for one intent
// inside the caller's transaction, returning the primary entry. The caller
// can fetch the mirror via group/counter-account lookup.
//
// When source and destination are the same account, a single entry is
// persisted with no mirror (the self-transfer shortcut used for
// host-internal bookkeeping).
func (f *EntryPairFactory) CreatePair(ctx context.Context, tx Transaction, intent domain.EntryIntent) (*domain.LedgerEntry, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if intent.GroupID == "" {
		intent.GroupID = uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}

	destHost, err := f.directory.ResolveHost(ctx, intent.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	primary, err := f.buildPrimary(ctx, intent, destHost)
	if err != nil {
		return nil, err
	}

	if primary.IsSelfTransfer() {
		if err := domain.ValidateEntry(primary, domain.ValidateOptions{}); err != nil {
			return nil, err
		}
		if err := f.persist(ctx, tx, primary); err != nil {
			return nil, err
		}
		return primary, nil
	}

	mirror, err := f.buildMirror(ctx, primary)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateEntry(primary, domain.ValidateOptions{CheckMirror: true, Mirror: mirror}); err != nil {
		return nil, err
	}

	// The entry with the negative amount is written first, so money is
	// never "created" mid-transaction even under partial failure.
	first, second := primary, mirror
	if mirror.Amount < 0 {
		first, second = mirror, primary
	}
	if err := f.persist(ctx, tx, first); err != nil {
		return nil, err
	}
	if err := f.persist(ctx, tx, second); err != nil {
		return nil, err
	}

	f.logger.Debug().
		Str("group_id", primary.GroupID).
		Str("kind", string(primary.Kind)).
		Int64("amount", primary.Amount).
		Str("currency", primary.Currency).
		Msg("entry pair recorded")

	return primary, nil
}

// buildPrimary assembles the primary entry on the destination side. Its host
// is the destination's fiscal host; when the destination is not hosted the
// amounts stay in event currency.
func (f *EntryPairFactory) buildPrimary(ctx context.Context, intent domain.EntryIntent, destHost *domain.Account) (*domain.LedgerEntry, error) {
	hostCurrency := intent.Currency
	var hostAccountID *string
	if destHost != nil {
		hostCurrency = destHost.Currency
		id := destHost.ID
		hostAccountID = &id
	}

	rate, err := f.fx.GetRate(ctx, RateQuery{
		From:     intent.Currency,
		To:       hostCurrency,
		At:       intent.CreatedAt,
		Snapshot: intent.Snapshot,
	})
	if err != nil {
		return nil, err
	}

	amountInHost := domain.ApplyRate(intent.Amount, rate)
	grossHost := amountInHost + intent.HostFee + intent.PlatformFee + intent.PaymentProcessorFee
	netAmount := domain.UnapplyRate(grossHost, rate) + intent.TaxAmount

	return &domain.LedgerEntry{
		ID:                   f.idGen.Generate(),
		GroupID:              intent.GroupID,
		Kind:                 intent.Kind,
		Direction:            domain.DirectionOf(intent.Amount),
		SourceAccountID:      intent.SourceAccountID,
		DestinationAccountID: intent.DestinationAccountID,
		HostAccountID:        hostAccountID,
		Amount:               intent.Amount,
		Currency:             intent.Currency,
		AmountInHostCurrency: amountInHost,
		HostCurrency:         hostCurrency,
		HostCurrencyFxRate:   rate,
		NetAmount:            netAmount,
		HostFee:              intent.HostFee,
		PlatformFee:          intent.PlatformFee,
		PaymentProcessorFee:  intent.PaymentProcessorFee,
		TaxAmount:            intent.TaxAmount,
		IsRefund:             intent.IsRefund,
		IsDebt:               intent.IsDebt,
		IsInternal:           intent.IsInternal,
		RefundOfEntryID:      intent.RefundOfEntryID,
		SourceReferenceID:    intent.SourceReferenceID,
		CreatedAt:            intent.CreatedAt,
	}, nil
}

// buildMirror assembles the counter-entry on the source account. The mirror
// is a pure swap: its amount is the primary's negated netAmount and vice
// versa; no new fees are introduced on the mirror itself, only the primary's
// fee fields scaled into the mirror host's currency.
func (f *EntryPairFactory) buildMirror(ctx context.Context, primary *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	mirror := &domain.LedgerEntry{
		ID:                   f.idGen.Generate(),
		GroupID:              primary.GroupID,
		Kind:                 primary.Kind,
		SourceAccountID:      primary.DestinationAccountID,
		DestinationAccountID: primary.SourceAccountID,
		Amount:               -primary.NetAmount,
		Currency:             primary.Currency,
		NetAmount:            -primary.Amount,
		TaxAmount:            primary.TaxAmount,
		IsRefund:             primary.IsRefund,
		IsDebt:               primary.IsDebt,
		IsInternal:           primary.IsInternal,
		RefundOfEntryID:      primary.RefundOfEntryID,
		SourceReferenceID:    primary.SourceReferenceID,
		CreatedAt:            primary.CreatedAt,
	}
	mirror.Direction = domain.DirectionOf(mirror.Amount)

	srcHost, err := f.directory.ResolveHost(ctx, primary.SourceAccountID)
	if err != nil {
		return nil, err
	}

	if srcHost == nil {
		// No independent host currency to convert into: reuse the
		// primary's own FX rate.
		mirror.HostAccountID = nil
		mirror.HostCurrency = primary.HostCurrency
		mirror.HostCurrencyFxRate = primary.HostCurrencyFxRate
		mirror.AmountInHostCurrency = domain.ApplyRate(mirror.Amount, primary.HostCurrencyFxRate)
		mirror.HostFee = primary.HostFee
		mirror.PlatformFee = primary.PlatformFee
		mirror.PaymentProcessorFee = primary.PaymentProcessorFee
		return mirror, nil
	}

	hostID := srcHost.ID
	mirror.HostAccountID = &hostID
	mirror.HostCurrency = srcHost.Currency

	rate, err := f.fx.GetRate(ctx, RateQuery{
		From: primary.Currency,
		To:   srcHost.Currency,
		At:   primary.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	mirror.HostCurrencyFxRate = rate
	mirror.AmountInHostCurrency = domain.ApplyRate(mirror.Amount, rate)

	cross := decimal.New(1, 0)
	if primary.HostCurrency != srcHost.Currency {
		cross, err = f.fx.GetRate(ctx, RateQuery{
			From: primary.HostCurrency,
			To:   srcHost.Currency,
			At:   primary.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		// Persisted on both sides so validation and audits never have
		// to re-resolve it from a time-drifted external source.
		primaryCross := cross
		mirrorCross := domain.InverseRate(cross)
		primary.CrossHostFxRate = &primaryCross
		mirror.CrossHostFxRate = &mirrorCross
	}

	mirror.HostFee = domain.ApplyRate(primary.HostFee, cross)
	mirror.PlatformFee = domain.ApplyRate(primary.PlatformFee, cross)
	mirror.PaymentProcessorFee = domain.ApplyRate(primary.PaymentProcessorFee, cross)

	return mirror, nil
}

func (f *EntryPairFactory) persist(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error {
	if err := f.entryRepo.Create(ctx, tx, entry); err != nil {
		return err
	}

	payload := domain.NewEntryRecordedEvent(entry)
	return f.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            f.idGen.Generate(),
		AggregateID:   entry.ID,
		AggregateType: domain.AggregateTypeEntry,
		EventType:     domain.EventTypeEntryRecorded,
		Payload:       toPayloadMap(payload),
		CreatedAt:     entry.CreatedAt,
	})
}

func toPayloadMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
