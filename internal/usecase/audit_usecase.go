package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
)

// AuditUseCase replays the invariant validator over persisted entries. It is
// a post-hoc consistency check: violations are logged and counted, never
// blocking — the entries were already committed by upstream business logic.
type AuditUseCase struct {
	entryRepo EntryRepository
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewAuditUseCase creates a new AuditUseCase. Metrics may be nil.
func NewAuditUseCase(entryRepo EntryRepository, m *metrics.Metrics, logger zerolog.Logger) *AuditUseCase {
	return &AuditUseCase{entryRepo: entryRepo, metrics: m, logger: logger}
}

// AuditViolation is one invariant failure found on a persisted entry.
type AuditViolation struct {
	GroupID string
	EntryID string
	Err     error
}

// AuditReport summarizes an audit run.
type AuditReport struct {
	GroupsChecked  int
	EntriesChecked int
	Violations     []AuditViolation
	CheckedAt      time.Time
}

// AuditGroup validates every entry of one economic event, pairing each entry
// with its mirror for the cross-check.
func (uc *AuditUseCase) AuditGroup(ctx context.Context, groupID string) ([]AuditViolation, error) {
	entries, err := uc.entryRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrEntryNotFound
	}

	var violations []AuditViolation
	for _, entry := range entries {
		opts := domain.ValidateOptions{}
		if !entry.IsSelfTransfer() {
			opts.CheckMirror = true
			opts.Mirror = findMirror(entries, entry)
		}

		if err := domain.ValidateEntry(entry, opts); err != nil {
			violations = append(violations, AuditViolation{
				GroupID: groupID,
				EntryID: entry.ID,
				Err:     err,
			})
			uc.reportViolation(entry, err)
		}
	}

	return violations, nil
}

// AuditRecent walks the most recent groups and validates each one.
func (uc *AuditUseCase) AuditRecent(ctx context.Context, limit int) (*AuditReport, error) {
	if limit <= 0 {
		limit = 100
	}

	groupIDs, err := uc.entryRepo.ListGroupIDs(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{CheckedAt: time.Now().UTC()}
	for _, groupID := range groupIDs {
		entries, err := uc.entryRepo.GetByGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}

		report.GroupsChecked++
		report.EntriesChecked += len(entries)

		violations, err := uc.AuditGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		report.Violations = append(report.Violations, violations...)
	}

	return report, nil
}

func (uc *AuditUseCase) reportViolation(entry *domain.LedgerEntry, err error) {
	uc.logger.Warn().
		Str("group_id", entry.GroupID).
		Str("entry_id", entry.ID).
		Str("kind", string(entry.Kind)).
		Err(err).
		Msg("ledger invariant violation")

	if uc.metrics != nil {
		uc.metrics.AuditViolations.WithLabelValues(string(entry.Kind)).Inc()
	}
}

// findMirror locates the counter-entry of e within its group: same kind,
// swapped accounts.
func findMirror(entries []*domain.LedgerEntry, e *domain.LedgerEntry) *domain.LedgerEntry {
	for _, candidate := range entries {
		if candidate.ID == e.ID || candidate.Kind != e.Kind {
			continue
		}
		if candidate.SourceAccountID == e.DestinationAccountID &&
			candidate.DestinationAccountID == e.SourceAccountID {
			return candidate
		}
	}
	return nil
}
