package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/usecase"
)

// SettlementRepository implements usecase.SettlementRepository on PostgreSQL.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

// Create inserts a settlement within the transaction.
func (r *SettlementRepository) Create(ctx context.Context, tx usecase.Transaction, settlement *domain.Settlement) error {
	pgxTx := tx.(*Tx).PgxTx()

	_, err := pgxTx.Exec(ctx, `
		INSERT INTO settlements (entry_id, status, amount, currency, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		settlement.EntryID,
		string(settlement.Status),
		settlement.Amount,
		settlement.Currency,
		timeToPgTimestamptz(settlement.CreatedAt),
		timePtrToPgTimestamptz(settlement.SettledAt),
	)

	return err
}

// GetByEntry retrieves the settlement tracking a debt entry.
func (r *SettlementRepository) GetByEntry(ctx context.Context, entryID string) (*domain.Settlement, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT entry_id, status, amount, currency, created_at, settled_at
		 FROM settlements WHERE entry_id = $1`,
		entryID,
	)

	settlement, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettlementNotFound
	}
	return settlement, err
}

// UpdateStatus transitions a settlement to the given status.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, entryID string, status domain.SettlementStatus, settledAt *time.Time) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx,
		`UPDATE settlements SET status = $2, settled_at = $3 WHERE entry_id = $1`,
		entryID, string(status), timePtrToPgTimestamptz(settledAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotFound
	}

	return nil
}

// ListByStatus retrieves settlements in the given status, oldest first.
func (r *SettlementRepository) ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entry_id, status, amount, currency, created_at, settled_at
		 FROM settlements
		 WHERE status = $1
		 ORDER BY created_at, entry_id
		 LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []*domain.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}

	return settlements, rows.Err()
}

func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var (
		s         domain.Settlement
		status    string
		createdAt pgtype.Timestamptz
		settledAt pgtype.Timestamptz
	)

	err := row.Scan(&s.EntryID, &status, &s.Amount, &s.Currency, &createdAt, &settledAt)
	if err != nil {
		return nil, err
	}

	s.Status = domain.SettlementStatus(status)
	s.CreatedAt = createdAt.Time
	s.SettledAt = pgTimestamptzToTimePtr(settledAt)

	return &s, nil
}
