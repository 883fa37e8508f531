package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fiscalhost/ledger/internal/adapter/fxservice"
	postgresRepo "github.com/fiscalhost/ledger/internal/adapter/repository/postgres"
	redisRepo "github.com/fiscalhost/ledger/internal/adapter/repository/redis"
	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/infrastructure/config"
	"github.com/fiscalhost/ledger/internal/infrastructure/eventpublisher"
	"github.com/fiscalhost/ledger/internal/infrastructure/logger"
	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
	"github.com/fiscalhost/ledger/internal/infrastructure/postgres"
	"github.com/fiscalhost/ledger/internal/infrastructure/redis"
	"github.com/fiscalhost/ledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Fiscal hosting ledger engine control tool",
		Long:  `Operational commands for the double-entry ledger engine: migrations, recording, audits, settlements and event publishing.`,
	}

	rootCmd.AddCommand(
		migrateCmd(cfg, log),
		recordCmd(cfg, log),
		entriesCmd(cfg, log),
		voidCmd(cfg, log),
		auditCmd(cfg, log),
		settlementsCmd(cfg, log),
		migrateCurrencyCmd(cfg, log),
		eventsCmd(cfg, log),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine bundles the wired use cases behind shared connections.
type engine struct {
	pool        *pgxpool.Pool
	redisClient *redislib.Client
	recorder    *usecase.LedgerRecorder
	audit       *usecase.AuditUseCase
	settlements *usecase.SettlementUseCase
	migration   *usecase.CurrencyMigration
	entryRepo   usecase.EntryRepository
	outboxRepo  usecase.OutboxRepository
	metrics     *metrics.Metrics
}

func (e *engine) Close() {
	e.redisClient.Close()
	e.pool.Close()
}

func buildEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*engine, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	sharePct, err := decimal.NewFromString(cfg.DefaultHostFeeSharePercent)
	if err != nil {
		redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("parsing HOST_FEE_SHARE_PERCENT: %w", err)
	}

	txManager := postgresRepo.NewTxManager(pool)
	entryRepo := postgresRepo.NewEntryRepository(pool)
	settlementRepo := postgresRepo.NewSettlementRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	directory := postgresRepo.NewAccountDirectory(pool)
	idGen := postgresRepo.NewULIDGenerator()

	rateClient := fxservice.NewClient(fxservice.Config{
		BaseURL: cfg.FxServiceURL,
		Timeout: cfg.FxServiceTimeout,
		Metrics: m,
		Logger:  log,
	})
	rateService := redisRepo.NewRateCache(redisClient, rateClient, cfg.FxCacheTTL, m, log)
	fx := usecase.NewDefaultFxResolver(rateService)

	factory := usecase.NewEntryPairFactory(entryRepo, outboxRepo, directory, fx, idGen, log)

	policy := usecase.Policy{
		SeparateProcessorFees:      cfg.SeparateProcessorFees,
		PlatformAccountID:          cfg.PlatformAccountID,
		PlatformCurrency:           cfg.PlatformCurrency,
		DefaultHostFeeSharePercent: sharePct,
		CrossHostExpenseHostFee:    cfg.CrossHostExpenseHostFee,
	}

	return &engine{
		pool:        pool,
		redisClient: redisClient,
		recorder:    usecase.NewLedgerRecorder(txManager, factory, entryRepo, settlementRepo, outboxRepo, directory, fx, idGen, policy, m, log),
		audit:       usecase.NewAuditUseCase(entryRepo, m, log),
		settlements: usecase.NewSettlementUseCase(txManager, settlementRepo, entryRepo, outboxRepo, idGen, m, log),
		migration:   usecase.NewCurrencyMigration(txManager, entryRepo, fx, log),
		entryRepo:   entryRepo,
		outboxRepo:  outboxRepo,
		metrics:     m,
	}, nil
}

func migrateCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrations(log, cfg.DatabaseURL, cfg.MigrationsPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrationsDown(log, cfg.DatabaseURL, cfg.MigrationsPath)
		},
	})

	return cmd
}

func recordCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an economic event from an intent file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var raw []byte
			var err error
			if file == "-" || file == "" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("reading intent: %w", err)
			}

			var intent domain.EntryIntent
			if err := json.Unmarshal(raw, &intent); err != nil {
				return fmt.Errorf("parsing intent: %w", err)
			}

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			retrier := postgresRepo.NewRetrier(log)
			var entry *domain.LedgerEntry
			err = retrier.Retry(ctx, func() error {
				entry, err = eng.recorder.Record(ctx, intent)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("recorded entry %s (group %s, kind %s, amount %d %s)\n",
				entry.ID, entry.GroupID, entry.Kind, entry.Amount, entry.Currency)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Intent JSON file ('-' for stdin)")

	return cmd
}

func entriesCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	var account string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List ledger entries for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			entries, err := eng.entryRepo.ListByAccount(ctx, account, limit, offset)
			if err != nil {
				return err
			}

			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\t%d %s\t%s->%s\t%s\n",
					e.ID, e.GroupID, e.Kind, e.Amount, e.Currency,
					e.SourceAccountID, e.DestinationAccountID, e.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account to list entries for")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Listing offset")
	cmd.MarkFlagRequired("account")

	return cmd
}

func voidCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "void <group-id>",
		Short: "Void every entry of an economic event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			count, err := eng.recorder.VoidGroup(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("voided %d entries in group %s\n", count, args[0])
			return nil
		},
	}
}

func auditCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	var groupID string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check recorded groups against the ledger invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if groupID != "" {
				violations, err := eng.audit.AuditGroup(ctx, groupID)
				if err != nil {
					return err
				}
				printViolations(violations)
				return nil
			}

			report, err := eng.audit.AuditRecent(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("audited %d groups, %d entries\n", report.GroupsChecked, report.EntriesChecked)
			printViolations(report.Violations)
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "Audit a single group")
	cmd.Flags().IntVar(&limit, "limit", 100, "Number of recent groups to audit")

	return cmd
}

func printViolations(violations []usecase.AuditViolation) {
	if len(violations) == 0 {
		fmt.Println("no violations found")
		return
	}
	for _, v := range violations {
		fmt.Printf("VIOLATION group=%s entry=%s: %v\n", v.GroupID, v.EntryID, v.Err)
	}
}

func settlementsCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "Debt settlement operations",
	}

	var status string
	var limit, offset int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List settlements by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st := domain.SettlementStatus(status)
			if !st.Valid() {
				return fmt.Errorf("unknown settlement status %q", status)
			}

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			settlements, err := eng.settlements.ListByStatus(ctx, st, limit, offset)
			if err != nil {
				return err
			}

			for _, s := range settlements {
				fmt.Printf("%s\t%s\t%d %s\t%s\n", s.EntryID, s.Status, s.Amount, s.Currency, s.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&status, "status", "OWED", "Settlement status (OWED, INVOICED, SETTLED)")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum settlements to list")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Listing offset")

	invoiceCmd := &cobra.Command{
		Use:   "invoice <entry-id>",
		Short: "Mark an owed settlement as invoiced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.settlements.MarkInvoiced(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("settlement %s marked invoiced\n", args[0])
			return nil
		},
	}

	settleCmd := &cobra.Command{
		Use:   "settle <entry-id>",
		Short: "Mark a settlement as collected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.settlements.MarkSettled(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("settlement %s settled\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, invoiceCmd, settleCmd)

	return cmd
}

func migrateCurrencyCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-currency <entry-id> <currency>",
		Short: "Re-express an entry pair in a new currency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			existing, err := eng.entryRepo.GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			settled, err := eng.entryRepo.HasSettledActivity(ctx, existing.DestinationAccountID, args[1])
			if err != nil {
				return err
			}
			if settled {
				return fmt.Errorf("account %s already has settled activity in %s", existing.DestinationAccountID, args[1])
			}

			retrier := postgresRepo.NewRetrier(log)
			var entry *domain.LedgerEntry
			err = retrier.Retry(ctx, func() error {
				entry, err = eng.migration.MigrateCurrency(ctx, args[0], args[1])
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("entry %s migrated to %s (amount %d, net %d)\n",
				entry.ID, entry.Currency, entry.Amount, entry.NetAmount)
			return nil
		},
	}
}

func eventsCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Outbox event operations",
	}

	var stream string
	var toLog bool

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Run the outbox publishing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := metrics.New()

			eng, err := buildEngine(ctx, cfg, log, m)
			if err != nil {
				return err
			}
			defer eng.Close()

			metricsServer := &http.Server{
				Addr:    ":" + cfg.MetricsPort,
				Handler: promhttp.Handler(),
			}
			go func() {
				log.Info().Str("port", cfg.MetricsPort).Msg("metrics listener started")
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("metrics listener failed")
				}
			}()
			defer metricsServer.Close()

			var sink eventpublisher.Publisher = eventpublisher.NewRedisStreamPublisher(eng.redisClient, stream)
			if toLog {
				sink = eventpublisher.NewLogPublisher(log)
			}

			publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
				OutboxRepo: eng.outboxRepo,
				Publisher:  sink,
				Metrics:    m,
				Logger:     log,
				BatchSize:  cfg.PublishBatchSize,
				Interval:   cfg.PublishInterval,
			})

			if err := publisher.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	publishCmd.Flags().StringVar(&stream, "stream", "ledger:events", "Redis stream to publish to")
	publishCmd.Flags().BoolVar(&toLog, "log-only", false, "Log events instead of publishing to Redis")

	var olderThan time.Duration

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete published outbox events older than a retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			before := time.Now().UTC().Add(-olderThan)
			if err := eng.outboxRepo.DeletePublished(ctx, before); err != nil {
				return err
			}
			fmt.Printf("pruned published events older than %s\n", before.Format(time.RFC3339))
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Retention window for published events")

	cmd.AddCommand(publishCmd, pruneCmd)

	return cmd
}
