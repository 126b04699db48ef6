package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mcclellann/jdaLoan/pkg/config"
	"github.com/mcclellann/jdaLoan/pkg/ledger"
	"github.com/mcclellann/jdaLoan/pkg/lock"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/mcclellann/jdaLoan/pkg/store"
)

// newLocker picks a Redis lease when Redis is configured and an in-process
// mutex otherwise.
func newLocker(ctx context.Context, cfg config.RedisConfig) (lock.Locker, func(), error) {
	if cfg.Addr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client, err := lock.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, cfg.LockTTL), func() { client.Close() }, nil
}

// runOverdueScan logs overdue installments every interval until ctx ends.
func runOverdueScan(ctx context.Context, l *ledger.Ledger, interval time.Duration) {
	if interval <= 0 {
		logger.Info("Overdue scan disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Running overdue installment scan...")
			l.ScanOverdue(ctx)
			logger.Info("Overdue installment scan complete.")
		}
	}
}

func main() {
	cfg, err := config.LoadFromConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)

	if err := run(cfg); err != nil {
		logger.Error("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	defer sqliteStore.Close()

	locker, closeLocker, err := newLocker(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize loan locker: %w", err)
	}
	defer closeLocker()

	l := ledger.NewLedger(sqliteStore, locker, cfg.Lending, cfg.Group)
	server := NewServer(l, sqliteStore)
	router := NewRouter(server)

	go runOverdueScan(ctx, l, cfg.Jobs.OverdueScanInterval)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server starting on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
