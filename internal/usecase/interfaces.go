package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
)

// EntryRepository defines data access for ledger entries. The entries table
// is append-only; Update exists solely for the currency migration path and
// SoftDeleteGroup for voiding a whole economic event.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	GetByGroup(ctx context.Context, groupID string) ([]*domain.LedgerEntry, error)
	// GetMirror returns the counter-entry of a pair: same group and kind,
	// swapped accounts.
	GetMirror(ctx context.Context, groupID, entryID string) (*domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error)
	ListGroupIDs(ctx context.Context, limit, offset int) ([]string, error)
	Update(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	SoftDeleteGroup(ctx context.Context, tx Transaction, groupID string, at time.Time) (int, error)
	// HasSettledActivity reports whether the account has any settled ledger
	// activity in the given currency. Callers use it to guard currency
	// migration.
	HasSettledActivity(ctx context.Context, accountID, currency string) (bool, error)
}

// SettlementRepository defines data access for debt settlements.
type SettlementRepository interface {
	Create(ctx context.Context, tx Transaction, settlement *domain.Settlement) error
	GetByEntry(ctx context.Context, entryID string) (*domain.Settlement, error)
	UpdateStatus(ctx context.Context, tx Transaction, entryID string, status domain.SettlementStatus, settledAt *time.Time) error
	ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error)
}

// AccountDirectory resolves account metadata. It is an external collaborator:
// the ledger never mutates accounts through it.
type AccountDirectory interface {
	ResolveAccount(ctx context.Context, id string) (*domain.Account, error)
	// ResolveHost returns the fiscal host backing accountID, or (nil, nil)
	// when the account has no active host.
	ResolveHost(ctx context.Context, accountID string) (*domain.Account, error)
	// ResolveVendor returns the fee-recipient account for a payment
	// processor provider.
	ResolveVendor(ctx context.Context, provider string) (*domain.Account, error)
}

// RateService is the external point-in-time FX rate lookup, used as the last
// resort of the rate source chain.
type RateService interface {
	LookupRate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique entry IDs.
type IDGenerator interface {
	Generate() string
}
