package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
)

// RateQuery asks for a conversion rate between two currencies at a point in
// time, optionally carrying the rate snapshot embedded in the entry context.
type RateQuery struct {
	From     string
	To       string
	At       time.Time
	Snapshot *domain.RateSnapshot
}

// RateSource is one strategy for resolving a conversion rate. Sources report
// a miss with ok=false so the resolver can fall through to the next one; an
// error aborts resolution.
type RateSource interface {
	Name() string
	Rate(ctx context.Context, q RateQuery) (rate decimal.Decimal, ok bool, err error)
}

// FxResolver tries a prioritized chain of rate sources and returns the first
// hit. With the default chain, a rate captured with the original charge wins
// over a live lookup, so re-deriving a rate for an existing entry reproduces
// the original number instead of drifting.
type FxResolver struct {
	sources []RateSource
}

// NewFxResolver creates a resolver over the given source chain, tried in
// order.
func NewFxResolver(sources ...RateSource) *FxResolver {
	return &FxResolver{sources: sources}
}

// NewDefaultFxResolver builds the standard chain: snapshot-embedded rates
// first, then the external rate service.
func NewDefaultFxResolver(svc RateService) *FxResolver {
	return NewFxResolver(SnapshotRateSource{}, LiveRateSource{Service: svc})
}

// GetRate resolves the conversion rate for q. Returns 1 when the currencies
// are equal and a FxResolutionError when no source can serve the pair; it
// never silently defaults to 1 for distinct currencies.
func (r *FxResolver) GetRate(ctx context.Context, q RateQuery) (decimal.Decimal, error) {
	if q.From == q.To {
		return decimal.New(1, 0), nil
	}

	for _, src := range r.sources {
		rate, ok, err := src.Rate(ctx, q)
		if err != nil {
			return decimal.Decimal{}, &domain.FxResolutionError{From: q.From, To: q.To, At: q.At, Cause: err}
		}
		if ok {
			return rate, nil
		}
	}

	return decimal.Decimal{}, &domain.FxResolutionError{From: q.From, To: q.To, At: q.At}
}

// SnapshotRateSource serves rates out of the processor-reported snapshot
// captured with the charge, matching the requested pair exactly or inversely.
type SnapshotRateSource struct{}

func (SnapshotRateSource) Name() string { return "snapshot" }

func (SnapshotRateSource) Rate(_ context.Context, q RateQuery) (decimal.Decimal, bool, error) {
	s := q.Snapshot
	if s == nil || s.Rate.IsZero() {
		return decimal.Decimal{}, false, nil
	}
	if s.FromCurrency == q.From && s.ToCurrency == q.To {
		return s.Rate, true, nil
	}
	if s.FromCurrency == q.To && s.ToCurrency == q.From {
		return domain.InverseRate(s.Rate), true, nil
	}
	return decimal.Decimal{}, false, nil
}

// LiveRateSource falls back to the external rate service, keyed by the
// entry's creation timestamp.
type LiveRateSource struct {
	Service RateService
}

func (LiveRateSource) Name() string { return "live" }

func (s LiveRateSource) Rate(ctx context.Context, q RateQuery) (decimal.Decimal, bool, error) {
	rate, err := s.Service.LookupRate(ctx, q.From, q.To, q.At)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if rate.IsZero() {
		return decimal.Decimal{}, false, nil
	}
	return rate, true, nil
}
