package main

import (
	"OptionLedger/internal/asset"
	"OptionLedger/internal/callee"
	"OptionLedger/internal/config"
	"OptionLedger/internal/controller"
	"OptionLedger/internal/core"
	"OptionLedger/internal/event"
	"OptionLedger/internal/ingestion"
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/observability"
	"OptionLedger/internal/oracle"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/persistence"
	"OptionLedger/internal/pool"
	"OptionLedger/internal/query"
	"OptionLedger/internal/server"
	"OptionLedger/internal/vault"
	"OptionLedger/internal/whitelist"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxWarmIDs bounds how many recent batch ids are loaded into the dedup LRU.
const maxWarmIDs = 100_000

// ledgerSet is the in-memory ledger and its collaborators.
type ledgerSet struct {
	store   *vault.Store
	book    *ledger.BalanceTracker
	assets  *asset.Registry
	oracle  *oracle.Oracle
	otokens *otoken.Registry
	factory *otoken.Factory
	ctrl    *controller.Controller
	clock   *core.Clock
}

func main() {
	configPath := flag.String("config", os.Getenv("OPTIONLEDGER_CONFIG"), "path to YAML config")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: OptionLedger starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Println("INFO: OptionLedger shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	loggers := observability.NewLoggers(cfg.Logging.Level, cfg.Logging.Format)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker(observability.ComponentNATS, observability.ComponentDatabase, observability.ComponentCore)

	ls, err := buildLedger(cfg, metrics, loggers.For("controller"))
	if err != nil {
		return fmt.Errorf("build ledger: %w", err)
	}

	// --- Audit database (optional) ---
	var (
		db        *persistence.DB
		processed *persistence.ProcessedBatches
	)
	if cfg.Database.URL != "" {
		db, err = persistence.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("audit db ping: %w", err)
		}
		n, err := persistence.NewMigrator(db, cfg.Database.MigrationsDir).Up(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Printf("INFO: audit db connected (%s), %d migrations applied", db.Dialect(), n)
		processed = persistence.NewProcessedBatches(db)
	} else {
		log.Println("WARN: no audit database configured, outcomes are not persisted")
	}
	healthChecker.SetComponentReady(observability.ComponentDatabase, true)

	// --- Channels ---
	var persistChan chan event.Outcome
	if db != nil {
		persistChan = make(chan event.Outcome, cfg.Persistence.ChannelSize)
	}
	publishChan := make(chan event.Outcome, cfg.Persistence.ChannelSize)

	// --- Sequencer ---
	deps := core.Deps{
		Operator: ls.ctrl,
		Admin:    ls.ctrl,
		Prices:   ls.oracle,
		Factory:  ls.factory,
		Series:   ls.otokens,
		Store:    ls.store,
		Book:     ls.book,
		Clock:    ls.clock,
		Metrics:  metrics,
		Logger:   loggers.For("core"),
		Publish:  publishChan,
	}
	if persistChan != nil {
		deps.Persist = persistChan
	}
	if processed != nil {
		deps.Processed = processed
	}
	sequencer := core.NewSequencer(core.Config{
		DedupCapacity: cfg.Ingestion.DedupCapacity,
		CheckEvery:    cfg.Ingestion.CheckEvery,
	}, deps)

	// --- LRU warming ---
	if processed != nil {
		limit := cfg.Ingestion.DedupCapacity
		if limit > maxWarmIDs {
			limit = maxWarmIDs
		}
		ids, err := processed.RecentIDs(ctx, limit)
		if err != nil {
			log.Printf("WARN: warm dedup cache: %v", err)
		} else if len(ids) > 0 {
			sequencer.Warm(ids)
			log.Printf("INFO: warmed dedup cache with %d batch ids", len(ids))
		}
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	streamCfg := ingestion.StreamConfig{
		StreamName:    cfg.NATS.Stream,
		SubjectPrefix: cfg.NATS.CommandSubject,
		ConsumerName:  cfg.NATS.Consumer,
		MaxPerSecond:  cfg.Ingestion.MaxBatchesPerSecond,
	}
	if err := ingestion.EnsureStreams(ctx, js, streamCfg); err != nil {
		return fmt.Errorf("ensure command stream: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, cfg.NATS.OutcomeStream, cfg.NATS.OutcomeSubject); err != nil {
		return fmt.Errorf("ensure outcome stream: %w", err)
	}
	healthChecker.SetComponentReady(observability.ComponentNATS, true)

	rawEventChan := make(chan ingestion.RawEvent, cfg.Ingestion.ChannelSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawEventChan, metrics)

	// --- Outbound publisher + websocket stream ---
	hub := server.NewHub(metrics)
	publisher := ingestion.NewOutboundPublisher(js, cfg.NATS.OutcomeSubject, publishChan, metrics)
	publisher.OnPublish(hub.Publish)

	// --- Query + servers ---
	queryService := query.NewQueryService(query.Deps{
		Ledger:   ls.ctrl,
		Series:   ls.otokens,
		Assets:   ls.assets,
		Balances: ls.book,
		AsOf:     sequencer.LastSequence,
		DB:       db,
	})
	grpcServer, err := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		QueryService:  queryService,
		Hub:           hub,
		HealthChecker: healthChecker,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	// --- Start goroutines ---
	g, gctx := errgroup.WithContext(ctx)

	if db != nil {
		worker := persistence.NewPersistenceWorker(db, persistChan, cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout, metrics)
		g.Go(func() error { return ignoreCanceled(worker.Run(gctx)) })
	}
	g.Go(func() error { return ignoreCanceled(publisher.Run(gctx)) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return grpcServer.StartGRPC(gctx) })
	g.Go(func() error { return grpcServer.StartHTTPGateway(gctx) })
	g.Go(func() error { return server.StartMetrics(gctx, cfg.Server.MetricsAddr) })

	if cfg.Snapshot.Dir != "" {
		exporter := persistence.NewSnapshotExporter(cfg.Snapshot.Dir, metrics)
		g.Go(func() error {
			runPeriodicSnapshots(gctx, ls, sequencer, exporter, cfg.Snapshot.Interval)
			return nil
		})
	}

	// The subscriber replays the whole command stream before live traffic.
	if err := subscriber.Subscribe(gctx, streamCfg); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	g.Go(func() error {
		defer subscriber.Stop()
		return runIngestionLoop(gctx, cfg.NATS.CommandSubject, rawEventChan, sequencer, metrics, deps.Logger)
	})

	healthChecker.SetComponentReady(observability.ComponentCore, true)
	log.Printf("INFO: OptionLedger ready (grpc=%s, http=%s, metrics=%s)",
		cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, cfg.Server.MetricsAddr)

	err = g.Wait()
	healthChecker.SetComponentReady(observability.ComponentCore, false)
	if err != nil {
		log.Printf("ERROR: goroutine failed: %v", err)
	}
	return err
}

// buildLedger wires the in-memory ledger from the bootstrap config.
func buildLedger(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*ledgerSet, error) {
	clock := core.NewClock(time.Unix(0, 0))
	store := vault.NewStore()
	book := ledger.NewBalanceTracker()

	assets := asset.NewRegistry()
	for _, info := range cfg.Assets {
		if err := assets.Register(info); err != nil {
			return nil, err
		}
	}

	wl := whitelist.New()
	for _, p := range cfg.Products {
		wl.WhitelistProduct(p.Underlying, p.Strike, p.Collateral, p.IsPut)
	}
	for _, c := range cfg.Collaterals {
		wl.WhitelistCollateral(c)
	}

	orc := oracle.New(clock.Now)
	if cfg.Oracle.Disputer != (common.Address{}) {
		orc.SetDisputer(cfg.Oracle.Disputer)
	}
	for _, p := range cfg.Oracle.Pricers {
		if err := orc.SetAssetPricer(p.Asset, p.Pricer); err != nil {
			return nil, fmt.Errorf("pricer for %s: %w", p.Asset.Hex(), err)
		}
		orc.SetLockingPeriod(p.Pricer, p.LockingPeriod)
		orc.SetDisputePeriod(p.Pricer, p.DisputePeriod)
	}
	for _, s := range cfg.Oracle.StablePrices {
		price, err := s.Value()
		if err != nil {
			return nil, err
		}
		if err := orc.SetStablePrice(s.Asset, price); err != nil {
			return nil, fmt.Errorf("stable price for %s: %w", s.Asset.Hex(), err)
		}
	}

	callees := callee.NewRegistry()
	for _, c := range cfg.Callees {
		target, err := callee.New(c.Kind, book)
		if err != nil {
			return nil, fmt.Errorf("callee %s: %w", c.Address.Hex(), err)
		}
		if err := callees.Register(c.Address, target); err != nil {
			return nil, err
		}
		wl.WhitelistCallee(c.Address)
	}

	registry := otoken.NewRegistry(book)
	factory := otoken.NewFactory(registry, wl, assets, clock.Now)

	owner := cfg.Controller.Owner
	ctrl := controller.New(owner, controller.Deps{
		Store:        store,
		Pool:         pool.New(book),
		Oracle:       orc,
		Whitelist:    wl,
		Otokens:      registry,
		Decimals:     assets,
		Callees:      callees,
		Checkpointer: book,
		Metrics:      metrics,
		Logger:       logger,
		Now:          clock.Now,
	})
	if cfg.Controller.PartialPauser != (common.Address{}) {
		if err := ctrl.SetPartialPauser(owner, cfg.Controller.PartialPauser); err != nil {
			return nil, err
		}
	}
	if cfg.Controller.FullPauser != (common.Address{}) {
		if err := ctrl.SetFullPauser(owner, cfg.Controller.FullPauser); err != nil {
			return nil, err
		}
	}
	if !cfg.CallRestriction() {
		if err := ctrl.SetCallRestriction(owner, false); err != nil {
			return nil, err
		}
	}

	return &ledgerSet{
		store:   store,
		book:    book,
		assets:  assets,
		oracle:  orc,
		otokens: registry,
		factory: factory,
		ctrl:    ctrl,
		clock:   clock,
	}, nil
}

// runIngestionLoop is the single goroutine that feeds the sequencer. Commands
// that cannot be parsed are acked and counted; sequence gaps are nacked for
// redelivery. An invariant violation stops the process.
func runIngestionLoop(
	ctx context.Context,
	prefix string,
	in <-chan ingestion.RawEvent,
	seq *core.Sequencer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case raw := <-in:
			cmd, err := ingestion.ParseCommand(prefix, raw)
			if err != nil {
				metrics.IngestParseErrors.Inc()
				logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable command")
				raw.AckFunc()
				continue
			}

			_, err = seq.Handle(ctx, cmd)
			switch {
			case err == nil:
				raw.AckFunc()
			case errors.Is(err, core.ErrInvariant):
				raw.NakFunc()
				return err
			case errors.Is(err, core.ErrSequenceGap):
				logger.Warn().Err(err).Str("subject", raw.Subject).Msg("sequence gap, awaiting redelivery")
				raw.NakFunc()
			case ctx.Err() != nil:
				raw.NakFunc()
				return nil
			default:
				logger.Error().Err(err).Str("subject", raw.Subject).Msg("command failed")
				raw.NakFunc()
			}
		}
	}
}

// runPeriodicSnapshots exports the vault store every interval when new
// batches have been decided, and once more on shutdown.
func runPeriodicSnapshots(ctx context.Context, ls *ledgerSet, seq *core.Sequencer, exporter *persistence.SnapshotExporter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64 = -1
	take := func() {
		var (
			path string
			err  error
			at   int64
		)
		ls.ctrl.View(func() {
			at = seq.LastSequence()
			if at == last {
				return
			}
			path, err = exporter.Export(ls.store, at)
		})
		if at == last {
			return
		}
		if err != nil {
			log.Printf("ERROR: vault snapshot at sequence %d: %v", at, err)
			return
		}
		last = at
		log.Printf("INFO: vault snapshot written to %s", path)
	}

	for {
		select {
		case <-ctx.Done():
			take()
			return
		case <-ticker.C:
			take()
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
