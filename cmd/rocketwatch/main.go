package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rocketwatch/internal/aggregate"
	"rocketwatch/internal/chain"
	"rocketwatch/internal/chat"
	"rocketwatch/internal/clock"
	"rocketwatch/internal/config"
	"rocketwatch/internal/consensus"
	"rocketwatch/internal/dispatch"
	"rocketwatch/internal/labels"
	"rocketwatch/internal/normalize"
	"rocketwatch/internal/offchain"
	"rocketwatch/internal/queue"
	"rocketwatch/internal/render"
	"rocketwatch/internal/reporter"
	"rocketwatch/internal/scheduler"
	"rocketwatch/internal/sources"
	"rocketwatch/internal/storage"
	"rocketwatch/internal/storage/memory"
	"rocketwatch/internal/storage/postgres"
	"rocketwatch/internal/storage/redis"
)

func main() {
	root := &cobra.Command{
		Use:          "rocketwatch",
		Short:        "Rocket Pool chain notification daemon",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the chain and post notifications",
		RunE:  runDaemon,
	}

	runCmd.Flags().String("rpc", "", "primary EL RPC URL")
	runCmd.Flags().StringSlice("rpc-fallbacks", nil, "fallback EL RPC URLs, tried in order")
	runCmd.Flags().String("beacon", "", "consensus node REST URL")
	runCmd.Flags().String("redis-url", "", "redis URL for the label cache")
	runCmd.Flags().String("discord-token", "", "bot token; messages are logged when empty")
	runCmd.Flags().Uint64("lookback", 16, "blocks re-scanned behind the cursor")
	runCmd.Flags().Duration("tick-interval", 15*time.Second, "scheduler tick")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(runCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE:  runMigrate,
	}

	root.AddCommand(migrateCmd)

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the head of the delivery queue",
		RunE:  runQueue,
	}

	queueCmd.Flags().Int("limit", 20, "pending events to print")

	root.AddCommand(queueCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.RPC) == 0 {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Beacon == "" {
		return fmt.Errorf("beacon url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	chainClient, err := chain.NewClient(ctx, cfg.RPC, chain.Options{
		FailureThreshold: cfg.BreakerFailures,
		RecoveryInterval: cfg.BreakerRecovery,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	registry := chain.NewRegistry(chainClient, cfg.StorageAddress, cfg.MulticallAddress, cfg.ABIDir, cfg.StaticContracts)
	if err := registry.Preload(ctx, contractNames(cfg)); err != nil {
		logger.Warn("contract preload incomplete", zap.Error(err))
	}

	slotClock, err := clock.New(chainClient, cfg.Clock, 0)
	if err != nil {
		return err
	}

	labelStore, err := openLabelStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	resolver, err := labels.NewResolver(registry, labels.Options{
		ExplorerURL:       cfg.ExplorerURL,
		BeaconExplorerURL: cfg.BeaconExplorerURL,
		Store:             labelStore,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	renderer, err := render.New(render.DefaultSpecs(), logger)
	if err != nil {
		return err
	}
	errs := reporter.New(backend, cfg.ErrorChannel, cfg.ErrorCooldown, logger)
	q := queue.New(store, logger)
	dispatcher := dispatch.New(dispatch.Config{
		BatchSize:   cfg.DispatchBatch,
		MaxAttempts: cfg.DispatchMaxAttempts,
	}, q, dispatch.NewRouter(cfg.Destinations), backend, errs, logger)

	srcs := buildSources(cfg, chainClient, registry, slotClock, store, logger)
	sched := scheduler.New(scheduler.Config{
		TickInterval: cfg.TickInterval,
		Lookback:     cfg.Lookback,
		MaxWindow:    cfg.MaxWindow,
	}, scheduler.Deps{
		Head:       chainClient,
		Cursors:    store,
		Normalizer: normalize.New(chainClient, registry, resolver, normalize.DefaultSchemas(), cfg.Thresholds, logger),
		Aggregator: aggregate.New(logger),
		Renderer:   renderer,
		Queue:      q,
		Dispatcher: dispatcher,
		Reporter:   errs,
	}, srcs, logger)

	logger.Info("rocketwatch start",
		zap.Int("rpc_endpoints", len(cfg.RPC)),
		zap.String("beacon", cfg.Beacon),
		zap.Int("sources", len(srcs)),
		zap.Int("routes", len(cfg.Destinations)),
		zap.Uint64("lookback", cfg.Lookback),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("discord", cfg.DiscordToken != ""),
	)

	return sched.Run(ctx)
}

func buildSources(
	cfg config.Config,
	chainClient *chain.Client,
	registry *chain.Registry,
	slotClock *clock.Clock,
	store storage.Storage,
	logger *zap.Logger,
) []sources.Source {
	beacon := consensus.NewClient(cfg.Beacon, consensus.Options{RPS: 10, Burst: 10, Logger: logger})
	relay := consensus.NewRelayClient(cfg.RelayAPI, consensus.Options{Logger: logger})
	tracker := sources.NewTracker(registry, beacon, logger)

	all := []sources.Source{
		sources.NewLogSource(sources.LogConfig{
			Events: cfg.LogEvents,
			Global: cfg.GlobalEvents,
		}, chainClient, registry, logger),
		sources.NewTxSource(sources.TxConfig{
			Functions: cfg.TxFunctions,
			Payloads:  sources.DefaultPayloadRules(),
		}, chainClient, registry, logger),
		sources.NewBeaconSource(sources.BeaconConfig{
			FinalityThreshold: cfg.FinalityThreshold,
		}, chainClient, registry, beacon, relay, slotClock, tracker, store, logger),
		sources.NewMilestoneSource(sources.MilestoneConfig{
			Milestones: cfg.Milestones,
		}, registry, store, logger),
		sources.NewSnapshotSource(sources.SnapshotConfig{
			Space:    cfg.SnapshotSpace,
			LinkBase: cfg.SnapshotLink,
		}, chainClient, offchain.NewSnapshotClient(cfg.SnapshotAPI, offchain.Options{Logger: logger}), logger),
	}
	if cfg.OrdersAPI != "" {
		market := offchain.NewOrdersClient(cfg.OrdersAPI, offchain.Options{Logger: logger})
		all = append(all, sources.NewOrdersSource(sources.OrdersConfig{}, chainClient, registry, market, logger))
	}

	var out []sources.Source
	for _, src := range all {
		if !cfg.SourceEnabled(src.Name()) {
			logger.Info("source disabled", zap.String("source", src.Name()))
			continue
		}
		out = append(out, src)
	}
	return out
}

// contractNames lists every contract the configured sources bind to.
func contractNames(cfg config.Config) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, e := range cfg.LogEvents {
		add(e.Contract)
	}
	for _, f := range cfg.TxFunctions {
		add(f.Contract)
	}
	for _, m := range cfg.Milestones {
		add(m.Contract)
	}
	return names
}

// openStore uses Postgres when a DSN is configured. Without one the queue
// lives in memory and is lost on restart.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.PGDSN == "" {
		logger.Warn("no pg-dsn configured, using in-memory storage")
		return memory.New(), nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	pruned, err := store.PruneLabels(ctx, time.Now())
	if err != nil {
		logger.Warn("prune labels failed", zap.Error(err))
	} else if pruned > 0 {
		logger.Info("expired labels pruned", zap.Int64("count", pruned))
	}
	return store, nil
}

func openLabelStore(ctx context.Context, cfg config.Config, fallback labels.Store) (labels.Store, error) {
	if cfg.RedisURL == "" {
		return fallback, nil
	}
	return redis.NewLabelStore(ctx, cfg.RedisURL)
}

func newBackend(cfg config.Config, logger *zap.Logger) (chat.Backend, error) {
	if cfg.DiscordToken == "" {
		logger.Warn("no discord token configured, messages are only logged")
		return chat.NewLogBackend(logger), nil
	}
	return chat.NewDiscord(cfg.DiscordToken, logger)
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
