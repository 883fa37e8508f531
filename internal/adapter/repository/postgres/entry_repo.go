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

const entryColumns = `
	id, group_id, kind, direction, source_account_id, destination_account_id,
	host_account_id, amount, currency, amount_in_host_currency, host_currency,
	host_currency_fx_rate, cross_host_fx_rate, net_amount, host_fee,
	platform_fee, payment_processor_fee, tax_amount, is_refund, is_debt,
	is_disputed, is_internal, refund_of_entry_id, source_reference_id,
	created_at, deleted_at`

// EntryRepository implements usecase.EntryRepository on PostgreSQL.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Create inserts a new entry within the transaction.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	pgxTx := tx.(*Tx).PgxTx()

	_, err := pgxTx.Exec(ctx, `
		INSERT INTO ledger_entries (
			id, group_id, kind, direction, source_account_id, destination_account_id,
			host_account_id, amount, currency, amount_in_host_currency, host_currency,
			host_currency_fx_rate, cross_host_fx_rate, net_amount, host_fee,
			platform_fee, payment_processor_fee, tax_amount, is_refund, is_debt,
			is_disputed, is_internal, refund_of_entry_id, source_reference_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)`,
		entry.ID,
		entry.GroupID,
		string(entry.Kind),
		string(entry.Direction),
		entry.SourceAccountID,
		entry.DestinationAccountID,
		textPtr(entry.HostAccountID),
		entry.Amount,
		entry.Currency,
		entry.AmountInHostCurrency,
		entry.HostCurrency,
		decimalToNumeric(entry.HostCurrencyFxRate),
		numericPtr(entry.CrossHostFxRate),
		entry.NetAmount,
		entry.HostFee,
		entry.PlatformFee,
		entry.PaymentProcessorFee,
		entry.TaxAmount,
		entry.IsRefund,
		entry.IsDebt,
		entry.IsDisputed,
		entry.IsInternal,
		textPtr(entry.RefundOfEntryID),
		textPtr(entry.SourceReferenceID),
		timeToPgTimestamptz(entry.CreatedAt),
	)

	return err
}

// GetByID retrieves an entry by its ID.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	return entry, err
}

// GetByGroup retrieves all live entries of a group ordered by creation.
func (r *EntryRepository) GetByGroup(ctx context.Context, groupID string) ([]*domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE group_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetMirror retrieves the counter-entry of a pair: same group and kind,
// accounts swapped relative to the given entry.
func (r *EntryRepository) GetMirror(ctx context.Context, groupID, entryID string) (*domain.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+mirrorColumns("m")+`
		 FROM ledger_entries e
		 JOIN ledger_entries m
		   ON m.group_id = e.group_id
		  AND m.kind = e.kind
		  AND m.source_account_id = e.destination_account_id
		  AND m.destination_account_id = e.source_account_id
		  AND m.id <> e.id
		 WHERE e.id = $1 AND e.group_id = $2
		   AND e.deleted_at IS NULL AND m.deleted_at IS NULL`,
		entryID, groupID,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMirrorNotFound
	}
	return entry, err
}

// ListByAccount retrieves live entries touching the account, newest first.
func (r *EntryRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE (source_account_id = $1 OR destination_account_id = $1)
		   AND deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListGroupIDs retrieves distinct group IDs, newest groups first.
func (r *EntryRepository) ListGroupIDs(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT group_id
		 FROM ledger_entries
		 WHERE deleted_at IS NULL
		 GROUP BY group_id
		 ORDER BY MAX(created_at) DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Update rewrites the monetary fields of an entry. Only the currency
// migration path uses it.
func (r *EntryRepository) Update(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx, `
		UPDATE ledger_entries
		SET currency = $2,
			amount = $3,
			net_amount = $4,
			tax_amount = $5,
			host_currency_fx_rate = $6,
			cross_host_fx_rate = $7
		WHERE id = $1 AND deleted_at IS NULL`,
		entry.ID,
		entry.Currency,
		entry.Amount,
		entry.NetAmount,
		entry.TaxAmount,
		decimalToNumeric(entry.HostCurrencyFxRate),
		numericPtr(entry.CrossHostFxRate),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}

	return nil
}

// SoftDeleteGroup marks every live entry of the group deleted and returns the
// number of entries affected.
func (r *EntryRepository) SoftDeleteGroup(ctx context.Context, tx usecase.Transaction, groupID string, at time.Time) (int, error) {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx,
		`UPDATE ledger_entries SET deleted_at = $2 WHERE group_id = $1 AND deleted_at IS NULL`,
		groupID, timeToPgTimestamptz(at),
	)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// HasSettledActivity reports whether the account appears in any live entry in
// the given currency that has a settlement no longer OWED.
func (r *EntryRepository) HasSettledActivity(ctx context.Context, accountID, currency string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM ledger_entries e
			JOIN settlements s ON s.entry_id = e.id
			WHERE (e.source_account_id = $1 OR e.destination_account_id = $1)
			  AND e.currency = $2
			  AND e.deleted_at IS NULL
			  AND s.status <> 'OWED'
		)`,
		accountID, currency,
	).Scan(&exists)

	return exists, err
}

func mirrorColumns(alias string) string {
	return alias + `.id, ` + alias + `.group_id, ` + alias + `.kind, ` + alias + `.direction, ` +
		alias + `.source_account_id, ` + alias + `.destination_account_id, ` + alias + `.host_account_id, ` +
		alias + `.amount, ` + alias + `.currency, ` + alias + `.amount_in_host_currency, ` +
		alias + `.host_currency, ` + alias + `.host_currency_fx_rate, ` + alias + `.cross_host_fx_rate, ` +
		alias + `.net_amount, ` + alias + `.host_fee, ` + alias + `.platform_fee, ` +
		alias + `.payment_processor_fee, ` + alias + `.tax_amount, ` + alias + `.is_refund, ` +
		alias + `.is_debt, ` + alias + `.is_disputed, ` + alias + `.is_internal, ` +
		alias + `.refund_of_entry_id, ` + alias + `.source_reference_id, ` +
		alias + `.created_at, ` + alias + `.deleted_at`
}

func scanEntries(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e           domain.LedgerEntry
		kind        string
		direction   string
		hostAccount pgtype.Text
		rate        pgtype.Numeric
		crossRate   pgtype.Numeric
		refundOf    pgtype.Text
		sourceRef   pgtype.Text
		createdAt   pgtype.Timestamptz
		deletedAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&e.ID, &e.GroupID, &kind, &direction,
		&e.SourceAccountID, &e.DestinationAccountID, &hostAccount,
		&e.Amount, &e.Currency, &e.AmountInHostCurrency, &e.HostCurrency,
		&rate, &crossRate, &e.NetAmount, &e.HostFee,
		&e.PlatformFee, &e.PaymentProcessorFee, &e.TaxAmount,
		&e.IsRefund, &e.IsDebt, &e.IsDisputed, &e.IsInternal,
		&refundOf, &sourceRef, &createdAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.EntryKind(kind)
	e.Direction = domain.Direction(direction)
	e.HostAccountID = pgTextToPtr(hostAccount)
	e.HostCurrencyFxRate = numericToDecimal(rate)
	e.CrossHostFxRate = pgNumericToDecimalPtr(crossRate)
	e.RefundOfEntryID = pgTextToPtr(refundOf)
	e.SourceReferenceID = pgTextToPtr(sourceRef)
	e.CreatedAt = createdAt.Time
	e.DeletedAt = pgTimestamptzToTimePtr(deletedAt)

	return &e, nil
}
