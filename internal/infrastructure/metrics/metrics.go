package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Recording metrics
	EntriesRecorded *prometheus.CounterVec
	RecordDuration  prometheus.Histogram
	RecordErrors    *prometheus.CounterVec
	GroupsVoided    prometheus.Counter

	// Settlement metrics
	SettlementsCreated prometheus.Counter
	SettlementsSettled prometheus.Counter

	// FX metrics
	FxLookups   *prometheus.CounterVec
	FxDuration  prometheus.Histogram
	FxErrors    prometheus.Counter
	FxCacheHits prometheus.Counter

	// Audit metrics
	AuditViolations *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		// Recording metrics
		EntriesRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_entries_recorded_total",
				Help: "Total number of ledger entries recorded by kind",
			},
			[]string{"kind"},
		),
		RecordDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_record_duration_seconds",
			Help:    "Duration of economic event recording",
			Buckets: prometheus.DefBuckets,
		}),
		RecordErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_record_errors_total",
				Help: "Total number of recording errors by type",
			},
			[]string{"error_type"},
		),
		GroupsVoided: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_groups_voided_total",
			Help: "Total number of voided entry groups",
		}),

		// Settlement metrics
		SettlementsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlements_created_total",
			Help: "Total number of debt settlements created",
		}),
		SettlementsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlements_settled_total",
			Help: "Total number of settlements collected",
		}),

		// FX metrics
		FxLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fx_lookups_total",
				Help: "Total FX rate lookups by source",
			},
			[]string{"source"},
		),
		FxDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_fx_lookup_duration_seconds",
			Help:    "Duration of external FX rate lookups",
			Buckets: prometheus.DefBuckets,
		}),
		FxErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fx_errors_total",
			Help: "Total failed FX rate lookups",
		}),
		FxCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fx_cache_hits_total",
			Help: "Total FX rate lookups served from cache",
		}),

		// Audit metrics
		AuditViolations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_audit_violations_total",
				Help: "Total invariant violations found by consistency audits",
			},
			[]string{"kind"},
		),

		// Outbox metrics
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_published_total",
				Help: "Total outbox events published by type",
			},
			[]string{"event_type"},
		),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_publish_errors_total",
			Help: "Total outbox publish failures",
		}),
	}
}
