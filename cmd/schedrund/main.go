// Command schedrund runs the scheduled-job execution engine: it polls for
// due jobs on a fixed interval and hands each to a durable workflow.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oakline/schedcore/pkg/action"
	"github.com/oakline/schedcore/pkg/agent"
	"github.com/oakline/schedcore/pkg/breaker"
	"github.com/oakline/schedcore/pkg/config"
	"github.com/oakline/schedcore/pkg/poller"
	"github.com/oakline/schedcore/pkg/storage"
	"github.com/oakline/schedcore/pkg/workflow"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("SCHEDCORE_CONFIG_PATH")
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := initLogger(&cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting schedrund",
		slog.String("driver", cfg.Database.Driver),
		slog.Duration("interval", cfg.Poller.Interval),
	)

	db, err := openDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate job store: %w", err)
	}
	product := storage.NewProductStore(db)
	if err := product.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate product store: %w", err)
	}

	brk := breaker.New(store,
		breaker.WithThreshold(cfg.Breaker.FailureThreshold),
		breaker.WithLogger(logger),
	)
	runner := agent.NewRunner(agent.Unconfigured(),
		agent.MaxToolCalls(cfg.Agent.MaxToolCalls),
		agent.MaxTokens(cfg.Agent.MaxTokens),
		agent.WithLogger(logger),
	)
	dispatcher := action.NewDispatcher(action.Deps{
		Conversations: product,
		Notifications: product,
		Tasks:         product,
		Agents:        staticAgents{},
		AgentRunner:   runner,
		AgentTools:    agent.Toolset{Jobs: store, Tasks: product, Memory: noMemory{}},
		HTTPClient:    httpClient(cfg.Webhook.Timeout),
	}, action.WithLogger(logger))
	wf := workflow.NewRunner(store, dispatcher, brk,
		workflow.WithLeaseTTL(cfg.Poller.LeaseTTL),
		workflow.WithLogger(logger),
	)
	p := poller.New(store, wf,
		poller.BatchSize(cfg.Poller.BatchSize),
		poller.WithLogger(logger),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- tick(ctx, p, cfg.Poller.Interval, logger)
	}()

	logger.Info("schedrund started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("poll loop error", slog.Any("error", err))
			return err
		}
	}

	cancel()
	return nil
}

// tick drives the poll loop until the context is cancelled. A failed
// cycle is logged and retried on the next tick.
func tick(ctx context.Context, p *poller.Poller, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.ReleaseStale(ctx); err != nil {
				logger.Error("release stale leases", slog.Any("error", err))
			}
			result, err := p.Poll(ctx)
			if err != nil {
				logger.Error("poll cycle failed", slog.Any("error", err))
				continue
			}
			if result.ProcessedCount > 0 {
				logger.Info("cycle summary",
					slog.Int("processed", result.ProcessedCount),
					slog.Int("succeeded", result.SuccessCount),
				)
			}
		}
	}
}

func initLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	return slog.New(handler)
}

func openDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}
