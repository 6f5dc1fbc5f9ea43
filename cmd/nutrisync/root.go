package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nutrisync/internal/api"
	"github.com/hyperengineering/nutrisync/internal/cache"
	"github.com/hyperengineering/nutrisync/internal/config"
	"github.com/hyperengineering/nutrisync/internal/store"
	nutrisync "github.com/hyperengineering/nutrisync/internal/sync"
	"github.com/hyperengineering/nutrisync/internal/verify"
	"github.com/hyperengineering/nutrisync/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "nutrisync",
	Short: "Nutrisync - multi-device sync service for nutrition tracking",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Signal handling drives the whole shutdown sequence.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// The cache is a disposable optimization; every path works without it.
	c := newCache(cfg)

	extractor := nutrisync.NewExtractor(db, c, time.Duration(cfg.Sync.PullCacheTTL))
	applier := nutrisync.NewApplier(db, c)
	verifier := verify.New(db)

	handler := api.NewHandler(api.HandlerConfig{
		Extractor:      extractor,
		Applier:        applier,
		Idempotency:    db,
		Meta:           db,
		APIKey:         cfg.Auth.APIKey,
		Version:        Version,
		MaxPushChanges: cfg.Sync.MaxPushChanges,
		IdempotencyTTL: time.Duration(cfg.Sync.IdempotencyTTL),
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	verifyWorker := worker.NewVerifyWorker(verifier, db, time.Duration(cfg.Worker.VerifyInterval))
	retentionWorker := worker.NewRetentionWorker(db,
		time.Duration(cfg.Worker.RetentionInterval),
		time.Duration(cfg.Worker.TombstoneRetention))
	startWorker(ctx, &wg, "verify", verifyWorker.Run)
	startWorker(ctx, &wg, "retention", retentionWorker.Run)

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully; anything else should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// Stop HTTP server first (drains in-flight requests), then workers,
	// then the store.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newCache builds the configured cache: Redis when enabled, otherwise an
// in-process cache.
func newCache(cfg *config.Config) cache.Cache {
	if cfg.Redis.Enabled {
		slog.Info("cache initialized", "backend", "redis", "addr", cfg.Redis.Addr)
		return cache.NewRedisCache(cfg.Redis.Addr,
			time.Duration(cfg.Redis.DefaultTTL),
			time.Duration(cfg.Redis.OpTimeout))
	}
	slog.Info("cache initialized", "backend", "memory")
	return cache.NewMemoryCache(time.Duration(cfg.Redis.DefaultTTL))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
