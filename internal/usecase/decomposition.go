package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
)

// Policy configures fee decomposition for the whole platform.
type Policy struct {
	// SeparateProcessorFees extracts payment processor fees into their own
	// entry pairs instead of leaving them as a field on the economic entry.
	SeparateProcessorFees bool

	// PlatformAccountID and PlatformCurrency identify the platform's own
	// account and its settlement currency.
	PlatformAccountID string
	PlatformCurrency  string

	// DefaultHostFeeSharePercent applies when a host has no negotiated
	// share percentage of its own.
	DefaultHostFeeSharePercent decimal.Decimal

	// CrossHostExpenseHostFee charges a host fee when an expense is
	// disbursed between accounts backed by two different hosts.
	CrossHostExpenseHostFee bool
}

// Sibling is a derived entry pair produced by a decomposition stage, recorded
// before the net intent.
type Sibling struct {
	Intent domain.EntryIntent
	// CreateSettlement marks debt siblings that need an OWED settlement
	// attached to the recorded entry.
	CreateSettlement bool
}

// DecomposeState threads the shrinking intent and the accumulated siblings
// through the pipeline. Stages never mutate shared state; each returns a new
// value.
type DecomposeState struct {
	Intent   domain.EntryIntent
	Siblings []Sibling
}

// DecomposeContext carries pre-resolved collaborator data (accounts, rates,
// policy) so the stages themselves stay pure and independently testable.
type DecomposeContext struct {
	Policy Policy

	// Host is the destination account's fiscal host, nil when unhosted.
	Host *domain.Account

	// VendorAccountID receives the payment processor fee. Resolved only
	// when a processor fee is being decomposed.
	VendorAccountID string

	// HostFeeSharePercent is the effective revenue share for this host.
	HostFeeSharePercent decimal.Decimal

	// EventToHostRate converts event currency into the destination host's
	// currency; TipToPlatformRate converts event currency into the
	// platform's settlement currency.
	EventToHostRate   decimal.Decimal
	TipToPlatformRate decimal.Decimal
}

// Stage is one pure transform of the decomposition pipeline.
type Stage func(c *DecomposeContext, s DecomposeState) (DecomposeState, error)

// DefaultStages returns the pipeline in its fixed order. The order matters:
// later steps depend on earlier ones having already reduced the primary
// amount, and the host-fee-share stage reads the host-fee sibling.
func DefaultStages() []Stage {
	return []Stage{
		ProcessorFeeStage,
		PlatformTipStage,
		HostFeeStage,
		HostFeeShareStage,
	}
}

// ProcessorFeeStage extracts the payment processor fee into a pair crediting
// the per-provider vendor account. Runs only under the separate-processor-fees
// policy; otherwise the fee stays as a field on the economic entry.
func ProcessorFeeStage(c *DecomposeContext, s DecomposeState) (DecomposeState, error) {
	in := s.Intent
	if !c.Policy.SeparateProcessorFees || in.PaymentProcessorFee == 0 {
		return s, nil
	}
	if in.PaymentProcessorFee > 0 {
		return s, &domain.NegativeFeeError{Kind: domain.KindPaymentProcessorFee, Amount: in.PaymentProcessorFee}
	}
	if c.VendorAccountID == "" {
		return s, domain.ErrVendorNotFound
	}

	feeHost := -in.PaymentProcessorFee
	feeEvent := domain.UnapplyRate(feeHost, c.EventToHostRate)

	sibling := Sibling{Intent: domain.EntryIntent{
		GroupID:              in.GroupID,
		Kind:                 domain.KindPaymentProcessorFee,
		SourceAccountID:      in.DestinationAccountID,
		DestinationAccountID: c.VendorAccountID,
		Amount:               feeEvent,
		Currency:             in.Currency,
		SourceReferenceID:    in.SourceReferenceID,
		Snapshot:             in.Snapshot,
		CreatedAt:            in.CreatedAt,
	}}

	in.PaymentProcessorFee = 0
	var err error
	in.Amount, err = reduceByFee(in.Amount, feeEvent, domain.KindPaymentProcessorFee)
	if err != nil {
		return s, err
	}

	return DecomposeState{Intent: in, Siblings: append(s.Siblings, sibling)}, nil
}

// PlatformTipStage extracts the platform tip into a pair crediting the
// platform account in the platform's settlement currency. When the tip money
// landed in the host's bank account rather than the platform's, a
// PLATFORM_TIP_DEBT debit pair from host to platform is synthesized alongside
// it, with an OWED settlement.
func PlatformTipStage(c *DecomposeContext, s DecomposeState) (DecomposeState, error) {
	in := s.Intent
	if in.PlatformTip == 0 {
		return s, nil
	}
	if in.PlatformTip < 0 {
		return s, &domain.NegativeFeeError{Kind: domain.KindPlatformTip, Amount: in.PlatformTip}
	}

	tipPlatform := domain.ApplyRate(in.PlatformTip, c.TipToPlatformRate)
	if tipPlatform <= 0 {
		return s, &domain.NegativeFeeError{Kind: domain.KindPlatformTip, Amount: tipPlatform}
	}

	snapshot := &domain.RateSnapshot{
		FromCurrency: in.Currency,
		ToCurrency:   c.Policy.PlatformCurrency,
		Rate:         c.TipToPlatformRate,
	}

	siblings := []Sibling{{Intent: domain.EntryIntent{
		GroupID:              in.GroupID,
		Kind:                 domain.KindPlatformTip,
		SourceAccountID:      in.SourceAccountID,
		DestinationAccountID: c.Policy.PlatformAccountID,
		Amount:               tipPlatform,
		Currency:             c.Policy.PlatformCurrency,
		SourceReferenceID:    in.SourceReferenceID,
		Snapshot:             snapshot,
		CreatedAt:            in.CreatedAt,
	}}}

	if !in.TipDirectlyCollected && c.Host != nil {
		siblings = append(siblings, Sibling{
			CreateSettlement: true,
			Intent: domain.EntryIntent{
				GroupID:              in.GroupID,
				Kind:                 domain.KindPlatformTipDebt,
				SourceAccountID:      c.Policy.PlatformAccountID,
				DestinationAccountID: c.Host.ID,
				Amount:               -tipPlatform,
				Currency:             c.Policy.PlatformCurrency,
				IsDebt:               true,
				SourceReferenceID:    in.SourceReferenceID,
				Snapshot:             snapshot,
				CreatedAt:            in.CreatedAt,
			},
		})
	}

	tip := in.PlatformTip
	in.PlatformTip = 0
	var err error
	in.Amount, err = reduceByFee(in.Amount, tip, domain.KindPlatformTip)
	if err != nil {
		return s, err
	}

	return DecomposeState{Intent: in, Siblings: append(s.Siblings, siblings...)}, nil
}

// HostFeeStage extracts the host fee into a self-transfer pair on the host's
// own account: the host is both a party to, and the fee recipient of, the
// transaction.
func HostFeeStage(c *DecomposeContext, s DecomposeState) (DecomposeState, error) {
	in := s.Intent
	if in.HostFee == 0 {
		return s, nil
	}
	if in.HostFee > 0 {
		return s, &domain.NegativeFeeError{Kind: domain.KindHostFee, Amount: in.HostFee}
	}
	if c.Host == nil {
		return s, &domain.InvalidIntentError{Reason: "host fee requires a hosted destination"}
	}

	feeHost := -in.HostFee
	feeEvent := domain.UnapplyRate(feeHost, c.EventToHostRate)

	sibling := Sibling{Intent: domain.EntryIntent{
		GroupID:              in.GroupID,
		Kind:                 domain.KindHostFee,
		SourceAccountID:      c.Host.ID,
		DestinationAccountID: c.Host.ID,
		Amount:               feeEvent,
		Currency:             in.Currency,
		SourceReferenceID:    in.SourceReferenceID,
		Snapshot:             in.Snapshot,
		CreatedAt:            in.CreatedAt,
	}}

	in.HostFee = 0
	var err error
	in.Amount, err = reduceByFee(in.Amount, feeEvent, domain.KindHostFee)
	if err != nil {
		return s, err
	}

	return DecomposeState{Intent: in, Siblings: append(s.Siblings, sibling)}, nil
}

// HostFeeShareStage carves the platform's revenue share out of the host fee
// recorded by the previous stage. The share uses the host-fee entry's
// host-currency amount as its basis, not the original event currency; a
// share that rounds to zero is a no-op. When the platform has not collected
// the share directly, a HOST_FEE_SHARE_DEBT pair plus OWED settlement is
// synthesized, mirroring the platform-tip debt pattern.
func HostFeeShareStage(c *DecomposeContext, s DecomposeState) (DecomposeState, error) {
	in := s.Intent

	var hostFee *domain.EntryIntent
	for i := range s.Siblings {
		if s.Siblings[i].Intent.Kind == domain.KindHostFee {
			hostFee = &s.Siblings[i].Intent
			break
		}
	}
	if hostFee == nil || c.Host == nil {
		return s, nil
	}

	pct := c.HostFeeSharePercent
	if pct.IsZero() {
		return s, nil
	}

	basisHost := domain.ApplyRate(hostFee.Amount, c.EventToHostRate)
	share := decimal.NewFromInt(basisHost).Mul(pct).Div(decimal.New(100, 0)).Round(0).IntPart()
	if share == 0 {
		return s, nil
	}
	if share < 0 {
		return s, &domain.NegativeFeeError{Kind: domain.KindHostFeeShare, Amount: share}
	}

	siblings := []Sibling{{Intent: domain.EntryIntent{
		GroupID:              in.GroupID,
		Kind:                 domain.KindHostFeeShare,
		SourceAccountID:      c.Host.ID,
		DestinationAccountID: c.Policy.PlatformAccountID,
		Amount:               share,
		Currency:             c.Host.Currency,
		SourceReferenceID:    in.SourceReferenceID,
		CreatedAt:            in.CreatedAt,
	}}}

	if !in.HostFeeShareCollected {
		siblings = append(siblings, Sibling{
			CreateSettlement: true,
			Intent: domain.EntryIntent{
				GroupID:              in.GroupID,
				Kind:                 domain.KindHostFeeShareDebt,
				SourceAccountID:      c.Policy.PlatformAccountID,
				DestinationAccountID: c.Host.ID,
				Amount:               -share,
				Currency:             c.Host.Currency,
				IsDebt:               true,
				SourceReferenceID:    in.SourceReferenceID,
				CreatedAt:            in.CreatedAt,
			},
		})
	}

	return DecomposeState{Intent: in, Siblings: append(s.Siblings, siblings...)}, nil
}

// reduceByFee removes an already-extracted fee from the primary amount.
// Gross credits include their fees, so the amount shrinks; debit
// disbursements carry fees on top and keep their amount.
func reduceByFee(amount, fee int64, kind domain.EntryKind) (int64, error) {
	if amount <= 0 {
		return amount, nil
	}
	reduced := amount - fee
	if reduced <= 0 {
		return amount, &domain.NegativeFeeError{Kind: kind, Amount: reduced}
	}
	return reduced, nil
}

// LedgerRecorder runs the full pipeline for one economic event: fee
// decomposition, entry pair creation for every sibling and the net intent,
// debt settlements, and outbox notification, all inside one transaction.
type LedgerRecorder struct {
	txManager      TransactionManager
	factory        *EntryPairFactory
	entryRepo      EntryRepository
	settlementRepo SettlementRepository
	outboxRepo     OutboxRepository
	directory      AccountDirectory
	fx             *FxResolver
	idGen          IDGenerator
	policy         Policy
	stages         []Stage
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewLedgerRecorder creates a new LedgerRecorder. Metrics may be nil.
func NewLedgerRecorder(
	txManager TransactionManager,
	factory *EntryPairFactory,
	entryRepo EntryRepository,
	settlementRepo SettlementRepository,
	outboxRepo OutboxRepository,
	directory AccountDirectory,
	fx *FxResolver,
	idGen IDGenerator,
	policy Policy,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *LedgerRecorder {
	return &LedgerRecorder{
		txManager:      txManager,
		factory:        factory,
		entryRepo:      entryRepo,
		settlementRepo: settlementRepo,
		outboxRepo:     outboxRepo,
		directory:      directory,
		fx:             fx,
		idGen:          idGen,
		policy:         policy,
		stages:         DefaultStages(),
		metrics:        m,
		logger:         logger,
	}
}

// Record decomposes the intent and persists every resulting entry pair as one
// atomic unit of work. If any step fails, nothing is persisted.
func (r *LedgerRecorder) Record(ctx context.Context, intent domain.EntryIntent) (*domain.LedgerEntry, error) {
	entry, err := r.record(ctx, intent)
	if err != nil && r.metrics != nil {
		r.metrics.RecordErrors.WithLabelValues(errorType(err)).Inc()
	}
	return entry, err
}

func (r *LedgerRecorder) record(ctx context.Context, intent domain.EntryIntent) (*domain.LedgerEntry, error) {
	start := time.Now()

	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if intent.GroupID == "" {
		intent.GroupID = uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}

	c, err := r.buildContext(ctx, &intent)
	if err != nil {
		return nil, err
	}

	state := DecomposeState{Intent: intent}
	for _, stage := range r.stages {
		state, err = stage(c, state)
		if err != nil {
			return nil, err
		}
	}

	tx, err := r.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, sibling := range state.Siblings {
		entry, err := r.factory.CreatePair(ctx, tx, sibling.Intent)
		if err != nil {
			return nil, err
		}
		if sibling.CreateSettlement {
			if err := r.createSettlement(ctx, tx, entry); err != nil {
				return nil, err
			}
		}
		r.countEntry(entry)
	}

	primary, err := r.factory.CreatePair(ctx, tx, state.Intent)
	if err != nil {
		return nil, err
	}
	r.countEntry(primary)

	if state.Intent.Kind == domain.KindExpense && r.policy.CrossHostExpenseHostFee {
		if err := r.recordCrossHostExpenseFee(ctx, tx, c, primary); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordDuration.Observe(time.Since(start).Seconds())
	}

	r.logger.Info().
		Str("group_id", primary.GroupID).
		Str("kind", string(primary.Kind)).
		Int64("amount", primary.Amount).
		Str("currency", primary.Currency).
		Int("siblings", len(state.Siblings)).
		Msg("economic event recorded")

	return primary, nil
}

// VoidGroup soft-deletes every entry of an economic event when the parent
// contribution/expense is voided.
func (r *LedgerRecorder) VoidGroup(ctx context.Context, groupID string) (int, error) {
	tx, err := r.txManager.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	count, err := r.entryRepo.SoftDeleteGroup(ctx, tx, groupID, now)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ErrEntryNotFound
	}

	err = r.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            r.idGen.Generate(),
		AggregateID:   groupID,
		AggregateType: domain.AggregateTypeEntry,
		EventType:     domain.EventTypeGroupVoided,
		Payload:       toPayloadMap(domain.GroupVoidedEvent{GroupID: groupID, Entries: count}),
		CreatedAt:     now,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	if r.metrics != nil {
		r.metrics.GroupsVoided.Inc()
	}

	r.logger.Info().Str("group_id", groupID).Int("entries", count).Msg("group voided")
	return count, nil
}

func (r *LedgerRecorder) buildContext(ctx context.Context, intent *domain.EntryIntent) (*DecomposeContext, error) {
	host, err := r.directory.ResolveHost(ctx, intent.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	c := &DecomposeContext{Policy: r.policy, Host: host}

	hostCurrency := intent.Currency
	if host != nil {
		hostCurrency = host.Currency
	}
	c.EventToHostRate, err = r.fx.GetRate(ctx, RateQuery{
		From:     intent.Currency,
		To:       hostCurrency,
		At:       intent.CreatedAt,
		Snapshot: intent.Snapshot,
	})
	if err != nil {
		return nil, err
	}

	if intent.PlatformTip != 0 {
		c.TipToPlatformRate, err = r.fx.GetRate(ctx, RateQuery{
			From:     intent.Currency,
			To:       r.policy.PlatformCurrency,
			At:       intent.CreatedAt,
			Snapshot: intent.Snapshot,
		})
		if err != nil {
			return nil, err
		}
	}

	if r.policy.SeparateProcessorFees && intent.PaymentProcessorFee != 0 {
		vendor, err := r.directory.ResolveVendor(ctx, intent.ProcessorProvider)
		if err != nil {
			return nil, err
		}
		c.VendorAccountID = vendor.ID
	}

	c.HostFeeSharePercent = r.policy.DefaultHostFeeSharePercent
	if host != nil && !host.HostFeeSharePercent.IsZero() {
		c.HostFeeSharePercent = host.HostFeeSharePercent
	}

	return c, nil
}

// recordCrossHostExpenseFee charges the source-side host's fee on an expense
// disbursed between accounts backed by two different hosts, as a self-transfer
// pair on that host.
func (r *LedgerRecorder) recordCrossHostExpenseFee(ctx context.Context, tx Transaction, c *DecomposeContext, primary *domain.LedgerEntry) error {
	if c.Host == nil {
		return nil
	}

	srcHost, err := r.directory.ResolveHost(ctx, primary.SourceAccountID)
	if err != nil {
		return err
	}
	if srcHost == nil || srcHost.ID == c.Host.ID {
		return nil
	}

	pct := srcHost.HostFeePercent
	if pct.IsZero() {
		return nil
	}

	base := primary.Amount
	if base < 0 {
		base = -base
	}
	fee := decimal.NewFromInt(base).Mul(pct).Div(decimal.New(100, 0)).Round(0).IntPart()
	if fee <= 0 {
		return nil
	}

	sibling := domain.EntryIntent{
		GroupID:              primary.GroupID,
		Kind:                 domain.KindHostFee,
		SourceAccountID:      srcHost.ID,
		DestinationAccountID: srcHost.ID,
		Amount:               fee,
		Currency:             primary.Currency,
		SourceReferenceID:    primary.SourceReferenceID,
		CreatedAt:            primary.CreatedAt,
	}

	entry, err := r.factory.CreatePair(ctx, tx, sibling)
	if err != nil {
		return err
	}
	r.countEntry(entry)
	return nil
}

func (r *LedgerRecorder) createSettlement(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error {
	amount := entry.Amount
	if amount < 0 {
		amount = -amount
	}

	settlement := &domain.Settlement{
		EntryID:   entry.ID,
		Status:    domain.SettlementOwed,
		Amount:    amount,
		Currency:  entry.Currency,
		CreatedAt: entry.CreatedAt,
	}
	if err := r.settlementRepo.Create(ctx, tx, settlement); err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.SettlementsCreated.Inc()
	}

	return r.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            r.idGen.Generate(),
		AggregateID:   entry.ID,
		AggregateType: domain.AggregateTypeSettlement,
		EventType:     domain.EventTypeSettlementCreated,
		Payload: toPayloadMap(domain.SettlementCreatedEvent{
			EntryID:  entry.ID,
			Status:   string(domain.SettlementOwed),
			Amount:   settlement.Amount,
			Currency: settlement.Currency,
		}),
		CreatedAt: entry.CreatedAt,
	})
}

func (r *LedgerRecorder) countEntry(entry *domain.LedgerEntry) {
	if r.metrics != nil {
		r.metrics.EntriesRecorded.WithLabelValues(string(entry.Kind)).Inc()
	}
}

func errorType(err error) string {
	var (
		invalid  *domain.InvalidIntentError
		fx       *domain.FxResolutionError
		negFee   *domain.NegativeFeeError
		missing  *domain.MissingFieldError
		mismatch *domain.AmountMismatchError
		mirror   *domain.MirrorMismatchError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_intent"
	case errors.As(err, &fx):
		return "fx_resolution"
	case errors.As(err, &negFee):
		return "negative_fee"
	case errors.As(err, &missing), errors.As(err, &mismatch), errors.As(err, &mirror):
		return "validation"
	default:
		return "other"
	}
}
