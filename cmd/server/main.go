/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the incentive engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + INCENTIVE_* env)
  2. Build zap logger
  3. Open SQLite store
  4. Optional: wrap plan reads in the Redis cache
  5. Pick notifier: Kafka when brokers are configured, log otherwise
  6. Build engine with audit, metrics, escalation policy, CEL deductions
  7. Seed plans from plans.dir
  8. Start escalation scheduler and HTTP server

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the scheduler
  4. Flush Kafka, close Redis and the database
  5. Exit

EXAMPLES:
  # Defaults: ./incentive.db, port 8080, log notifier
  ./server

  # In-memory database on another port
  INCENTIVE_DATABASE_PATH=":memory:" INCENTIVE_SERVER_PORT=3000 ./server

  # Full stack
  ./server -config=./config/incentive.yaml

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/incentive-engine/api"
	"github.com/warp/incentive-engine/config"
	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/metrics"
	"github.com/warp/incentive-engine/notify"
	"github.com/warp/incentive-engine/store/plancache"
	"github.com/warp/incentive-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	// Store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	var engineStore incentive.Store = store
	var planWriter api.PlanWriter = store
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, plan cache will fall back to the database", zap.Error(err))
		}
		cached := plancache.New(store, rdb,
			plancache.WithTTL(cfg.Redis.PlanTTL),
			plancache.WithLogger(logger))
		engineStore = cached
		planWriter = cached
		logger.Info("plan cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Notifications
	var notifier incentive.Notifier = notify.NewLogDispatcher(logger)
	if cfg.Kafka.Enabled() {
		kafkaNotifier := notify.NewKafkaDispatcher(
			notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			cfg.Kafka.WriteTimeout)
		defer kafkaNotifier.Close()
		notifier = notify.Fanout{kafkaNotifier, notifier}
		logger.Info("kafka notifications enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	// Engine
	engine := incentive.NewEngine(engineStore,
		incentive.WithAuditSink(store),
		incentive.WithNotifier(notifier),
		incentive.WithMetrics(recorder),
		incentive.WithLogger(logger.Named("engine")),
		incentive.WithDeductionCompiler(factory.CompileDeduction),
		incentive.WithEscalationPolicy(incentive.EscalationPolicy{
			Mode:         incentive.EscalationMode(cfg.Escalation.Mode),
			EscalateTo:   cfg.Escalation.EscalateTo,
			WarningRatio: cfg.Escalation.WarningRatio,
			Workers:      cfg.Escalation.Workers,
		}),
	)

	handler := api.NewHandler(engine, store, logger)
	handler.Plans = planWriter
	handler.SLAHours = cfg.Escalation.SLAHours

	// Plan seeding
	if cfg.Plans.Dir != "" {
		plans, err := factory.LoadPlanDir(context.Background(), cfg.Plans.Dir)
		if err != nil {
			return fmt.Errorf("failed to load plans: %w", err)
		}
		if err := handler.SeedPlans(context.Background(), plans); err != nil {
			return err
		}
	}

	// Scheduler
	scheduler := api.NewEscalationScheduler(engine, logger)
	scheduler.CheckInterval = cfg.Escalation.Interval
	scheduler.SLAHours = cfg.Escalation.SLAHours
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
