package main

import (
	"context"
	"fmt"

	"fleetops/internal/config"
	"fleetops/internal/events"
	"fleetops/internal/logging"
	"fleetops/internal/service"
	"fleetops/internal/store"
)

// app holds the runtime dependencies shared by the commands.
type app struct {
	cfg   config.Config
	log   logging.Logger
	store store.Store
	bus   events.Bus
	svc   *service.Service

	closers []func() error
}

func loadConfig(file string) (config.Config, logging.Logger, error) {
	cfg, err := config.Load(file)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.Logging())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// openStore returns the in-memory store when no database URL is set.
func openStore(ctx context.Context, cfg config.Config, log logging.Logger, migrate bool) (store.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database url configured, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated")
	}
	return pg, nil
}

func openBus(cfg config.Config, log logging.Logger) (events.Bus, error) {
	if cfg.Redis.URL == "" {
		return events.NewHub(), nil
	}
	rb, err := events.NewRedisBus(cfg.Redis.URL, log)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}
	return rb, nil
}

func newApp(ctx context.Context, file string) (*app, error) {
	cfg, log, err := loadConfig(file)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.store, err = openStore(ctx, cfg, log, cfg.Database.Migrate)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	a.bus, err = openBus(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rb, ok := a.bus.(*events.RedisBus); ok {
		a.closers = append(a.closers, rb.Close)
	}

	a.svc = service.New(a.store, events.NewPublisher(a.bus, log), log, service.Options{
		Paging:          cfg.PageConfig(),
		MaxNearestLimit: cfg.RetailPoints.MaxNearestLimit,
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
	_ = logging.Sync(a.log)
}
