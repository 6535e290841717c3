package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/partysync/internal/api"
	"github.com/dmitrijs2005/partysync/internal/buildinfo"
	"github.com/dmitrijs2005/partysync/internal/cache"
	"github.com/dmitrijs2005/partysync/internal/config"
	"github.com/dmitrijs2005/partysync/internal/conflict"
	"github.com/dmitrijs2005/partysync/internal/connectivity"
	"github.com/dmitrijs2005/partysync/internal/loader"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/dmitrijs2005/partysync/internal/service"
	"github.com/dmitrijs2005/partysync/internal/storage"
	"github.com/dmitrijs2005/partysync/internal/syncer"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(os.Stdout, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	db, err := storage.InitDatabase(ctx, cfg.StorageDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store := storage.NewSQLiteStore(db)
	client := api.NewHTTPClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	defer client.Close()

	monitor := connectivity.New(func(ctx context.Context) bool {
		return client.Ping(ctx) == nil
	}, cfg.OnlineCheckInterval, logger)

	q := queue.New(store, logger)

	registry := syncer.NewRegistry()
	service.RegisterDefaultExecutors(registry, client)

	c, err := cache.New(store, cfg.CacheMaxBytes, cfg.CacheMaxEntries, cfg.CacheDefaultTTL, logger)
	if err != nil {
		return err
	}

	engine := syncer.New(q, registry, conflict.NewResolver(), conflict.NewTracker(),
		monitor.IsOnline, logger, syncer.Options{
			Tracked: map[queue.ActionType]conflict.EntityType{
				queue.ActionUpdateProfile: conflict.EntityProfile,
			},
			OnResolved: func(ctx context.Context, t conflict.EntityType, resolved json.RawMessage) {
				c.Set(ctx, "entity:"+string(t)+":me", resolved, cfg.CacheDefaultTTL)
			},
		})

	l := loader.New(client, c, monitor.IsOnline, logger, loader.Options{
		BatchSize:      cfg.BatchSize,
		MaxConcurrency: cfg.MaxConcurrency,
		FetchAttempts:  cfg.FetchAttempts,
		BaseDelay:      cfg.FetchBaseDelay,
		DefaultTTL:     cfg.CacheDefaultTTL,
		TTLs:           cfg.CacheTTLs,
	})

	svc := service.New(monitor, q, engine, l, c, logger, service.Options{})
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	logger.Info(ctx, "partysync started",
		"api", cfg.APIBaseURL, "online", monitor.IsOnline(), "pending", q.Count())

	// Blocks until the context is cancelled by a signal.
	monitor.Run(ctx)

	logger.Info(ctx, "partysync stopped")
	return nil
}
