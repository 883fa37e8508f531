package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/domain"
)

// CurrencyMigration recomputes all amounts of an existing entry (and its
// mirror) when an account's operating currency changes.
//
// It is only ever invoked on accounts with zero settled ledger activity in
// the target currency; that precondition is enforced by the caller (see
// EntryRepository.HasSettledActivity), not re-validated here. This component
// purely recomputes numbers.
type CurrencyMigration struct {
	txManager TransactionManager
	entryRepo EntryRepository
	fx        *FxResolver
	logger    zerolog.Logger
}

// NewCurrencyMigration creates a new CurrencyMigration.
func NewCurrencyMigration(txManager TransactionManager, entryRepo EntryRepository, fx *FxResolver, logger zerolog.Logger) *CurrencyMigration {
	return &CurrencyMigration{
		txManager: txManager,
		entryRepo: entryRepo,
		fx:        fx,
		logger:    logger,
	}
}

// MigrateCurrency rewrites the entry identified by entryID, and its mirror if
// one exists, into newCurrency. No-op when the currency is unchanged.
func (m *CurrencyMigration) MigrateCurrency(ctx context.Context, entryID, newCurrency string) (*domain.LedgerEntry, error) {
	entry, err := m.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Currency == newCurrency {
		return entry, nil
	}

	var mirror *domain.LedgerEntry
	if !entry.IsSelfTransfer() {
		mirror, err = m.entryRepo.GetMirror(ctx, entry.GroupID, entry.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := m.Recompute(ctx, entry, newCurrency); err != nil {
		return nil, err
	}
	if mirror != nil {
		if err := m.Recompute(ctx, mirror, newCurrency); err != nil {
			return nil, err
		}
	}

	tx, err := m.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := m.entryRepo.Update(ctx, tx, entry); err != nil {
		return nil, err
	}
	if mirror != nil {
		if err := m.entryRepo.Update(ctx, tx, mirror); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("entry_id", entry.ID).
		Str("currency", newCurrency).
		Msg("entry currency migrated")

	return entry, nil
}

// Recompute rewrites the entry's amounts in place for newCurrency without
// persisting anything. The host-currency amount is the anchor: taxAmount is
// converted first (it is not re-derivable from other stored fields), then the
// FX rate, then amount and netAmount via the standard formula.
func (m *CurrencyMigration) Recompute(ctx context.Context, entry *domain.LedgerEntry, newCurrency string) error {
	if entry.Currency == newCurrency {
		return nil
	}

	taxRate, err := m.fx.GetRate(ctx, RateQuery{
		From: entry.Currency,
		To:   newCurrency,
		At:   entry.CreatedAt,
	})
	if err != nil {
		return err
	}
	newTax := domain.ApplyRate(entry.TaxAmount, taxRate)

	newRate, err := m.fx.GetRate(ctx, RateQuery{
		From: newCurrency,
		To:   entry.HostCurrency,
		At:   entry.CreatedAt,
	})
	if err != nil {
		return err
	}

	entry.Currency = newCurrency
	entry.TaxAmount = newTax
	entry.HostCurrencyFxRate = newRate
	entry.Amount = domain.UnapplyRate(entry.AmountInHostCurrency, newRate)

	grossHost := entry.AmountInHostCurrency + entry.HostFee + entry.PlatformFee + entry.PaymentProcessorFee
	entry.NetAmount = domain.UnapplyRate(grossHost, newRate) + newTax

	return nil
}
