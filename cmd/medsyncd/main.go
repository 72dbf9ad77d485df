// Command medsyncd runs background medication-data synchronization: it
// replays the offline mutation queue against the remote API, reconciles
// the local and server snapshots and persists the merged result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	medsync "github.com/dosetrack/medsync"
	"github.com/dosetrack/medsync/logging"
	"github.com/dosetrack/medsync/storage/sqlite"
	"github.com/dosetrack/medsync/transport/httptransport"
)

func main() {
	configPath := flag.String("config", "medsyncd.yaml", "path to configuration file")
	once := flag.Bool("once", false, "run a single sync cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "medsyncd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logging.Init(config.Logging)
	logger := logging.WithComponent(logging.Component("medsyncd"))

	store, err := sqlite.NewWithDataSource(config.Store)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	clientOpts := []httptransport.ClientOption{}
	if config.RateLimit > 0 {
		clientOpts = append(clientOpts,
			httptransport.WithRateLimit(rate.Limit(config.RateLimit), 1))
	}
	transport := httptransport.NewClient(config.Remote, clientOpts...)

	queue := medsync.NewQueue(store)
	if _, err := queue.Load(context.Background()); err != nil {
		store.Close()
		return fmt.Errorf("failed to load mutation queue: %w", err)
	}

	strategy, err := medsync.ParseStrategy(config.Strategy)
	if err != nil {
		store.Close()
		return err
	}

	manager, err := medsync.NewManagerBuilder().
		WithQueue(queue).
		WithSnapshotStore(store).
		WithTransport(transport).
		WithStrategy(strategy).
		WithTimeout(time.Duration(config.Timeout)).
		WithRetry(medsync.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		}).
		WithLogger(logger).
		Build()
	if err != nil {
		store.Close()
		return err
	}
	defer manager.Close()

	runSync := func() {
		result, err := manager.Sync(context.Background())
		if err != nil {
			logging.LogError(context.Background(), err, "sync cycle failed")
			return
		}
		logger.Info("sync cycle completed",
			slog.Duration("duration", result.Duration),
			slog.Int("items_replayed", result.ItemsReplayed),
			slog.Int("items_deduped", result.ItemsDeduped),
			slog.Int("errors", len(result.Errors)))
	}

	// The first cycle always runs immediately so a freshly started daemon
	// drains anything queued while it was down.
	runSync()

	if once || config.Schedule == "" {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(config.Schedule, runSync); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}
	scheduler.Start()
	logger.Info("scheduler started", slog.String("schedule", config.Schedule))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))

	<-scheduler.Stop().Done()
	return nil
}
