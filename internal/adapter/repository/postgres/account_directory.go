package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalhost/ledger/internal/domain"
)

const accountColumns = `
	id, name, currency, host_id, is_active, host_fee_percent,
	host_fee_share_percent, created_at`

// AccountDirectory implements usecase.AccountDirectory on the replicated
// accounts table. The directory of record lives outside the ledger; this
// adapter only reads the projection the platform keeps in sync.
type AccountDirectory struct {
	pool *pgxpool.Pool
}

// NewAccountDirectory creates a new AccountDirectory.
func NewAccountDirectory(pool *pgxpool.Pool) *AccountDirectory {
	return &AccountDirectory{pool: pool}
}

// ResolveAccount retrieves account metadata by ID.
func (d *AccountDirectory) ResolveAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

// ResolveHost returns the fiscal host backing the account, or (nil, nil) when
// the account is unhosted. A host account resolves to itself.
func (d *AccountDirectory) ResolveHost(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := d.ResolveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.HostID != nil && *account.HostID == account.ID {
		return account, nil
	}
	if !account.IsHosted() {
		return nil, nil
	}

	host, err := d.ResolveAccount(ctx, *account.HostID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.ErrHostNotFound
	}
	return host, err
}

// ResolveVendor returns the fee-recipient account for a payment processor
// provider.
func (d *AccountDirectory) ResolveVendor(ctx context.Context, provider string) (*domain.Account, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a
		 JOIN processor_vendors v ON v.account_id = a.id
		 WHERE v.provider = $1`,
		provider,
	)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVendorNotFound
	}
	return account, err
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		hostID    pgtype.Text
		feePct    pgtype.Numeric
		sharePct  pgtype.Numeric
		createdAt pgtype.Timestamptz
	)

	err := row.Scan(&a.ID, &a.Name, &a.Currency, &hostID, &a.IsActive,
		&feePct, &sharePct, &createdAt)
	if err != nil {
		return nil, err
	}

	a.HostID = pgTextToPtr(hostID)
	a.HostFeePercent = numericToDecimal(feePct)
	a.HostFeeSharePercent = numericToDecimal(sharePct)
	a.CreatedAt = createdAt.Time

	return &a, nil
}
