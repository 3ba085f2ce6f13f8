package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"fleetops/internal/api"
	"fleetops/internal/buildinfo"
	"fleetops/internal/metrics"
	"fleetops/internal/seed"
	"fleetops/internal/webhooks"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and change feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfgFile)
		},
	}
}

func serve(ctx context.Context, cfgFile string) error {
	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()
	metrics.RegisterDefault()

	if a.cfg.Seed.File != "" {
		res, err := seed.LoadFile(ctx, a.svc, a.cfg.Seed.File)
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.cfg.Seed.File, err)
		}
		a.log.Info("seed applied", "file", a.cfg.Seed.File, "routes", res.Routes, "retailPoints", res.RetailPoints)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if urls := a.cfg.Webhooks.URLs; len(urls) > 0 {
		targets := make([]webhooks.Target, len(urls))
		for i, u := range urls {
			targets[i] = webhooks.Target{URL: u, Secret: a.cfg.Webhooks.Secret}
		}
		fwd := webhooks.NewForwarder(a.bus, targets, a.log, webhooks.Options{
			MaxAttempts: a.cfg.Webhooks.MaxAttempts,
			Timeout:     a.cfg.Webhooks.Timeout,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			fwd.Run(ctx)
		}()
	}

	srv := api.NewServer(a.svc, a.bus, a.log, api.Options{
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		RateRPS:        a.cfg.Rate.RPS,
		RateBurst:      a.cfg.Rate.Burst,
		Info:           a.cfg.Summary(),
	})
	httpSrv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.HTTP.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("API listening", "addr", httpSrv.Addr, "version", buildinfo.String())
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
