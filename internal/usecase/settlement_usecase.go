package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
)

// SettlementUseCase manages the collection lifecycle of debt entries. The
// periodic job that turns OWED settlements into invoices lives outside the
// engine; this usecase only exposes the state transitions it needs.
type SettlementUseCase struct {
	txManager      TransactionManager
	settlementRepo SettlementRepository
	entryRepo      EntryRepository
	outboxRepo     OutboxRepository
	idGen          IDGenerator
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewSettlementUseCase creates a new SettlementUseCase. Metrics may be nil.
func NewSettlementUseCase(
	txManager TransactionManager,
	settlementRepo SettlementRepository,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *SettlementUseCase {
	return &SettlementUseCase{
		txManager:      txManager,
		settlementRepo: settlementRepo,
		entryRepo:      entryRepo,
		outboxRepo:     outboxRepo,
		idGen:          idGen,
		metrics:        m,
		logger:         logger,
	}
}

// ListByStatus lists settlements in a given status.
func (uc *SettlementUseCase) ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	return uc.settlementRepo.ListByStatus(ctx, status, limit, offset)
}

// GetByEntry returns the settlement attached to a debt entry.
func (uc *SettlementUseCase) GetByEntry(ctx context.Context, entryID string) (*domain.Settlement, error) {
	return uc.settlementRepo.GetByEntry(ctx, entryID)
}

// MarkInvoiced transitions an OWED settlement to INVOICED.
func (uc *SettlementUseCase) MarkInvoiced(ctx context.Context, entryID string) error {
	settlement, err := uc.settlementRepo.GetByEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if settlement.Status != domain.SettlementOwed {
		return domain.ErrSettlementClosed
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := uc.settlementRepo.UpdateStatus(ctx, tx, entryID, domain.SettlementInvoiced, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkSettled records that the platform actually collected the owed amount.
func (uc *SettlementUseCase) MarkSettled(ctx context.Context, entryID string) error {
	settlement, err := uc.settlementRepo.GetByEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if settlement.Status == domain.SettlementSettled {
		return domain.ErrSettlementClosed
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if err := uc.settlementRepo.UpdateStatus(ctx, tx, entryID, domain.SettlementSettled, &now); err != nil {
		return err
	}

	err = uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   entryID,
		AggregateType: domain.AggregateTypeSettlement,
		EventType:     domain.EventTypeSettlementSettled,
		Payload: toPayloadMap(domain.SettlementSettledEvent{
			EntryID:   entryID,
			SettledAt: now.Format(time.RFC3339),
		}),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.SettlementsSettled.Inc()
	}

	uc.logger.Info().Str("entry_id", entryID).Msg("settlement collected")
	return nil
}
