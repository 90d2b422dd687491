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

	"golang.org/x/sync/errgroup"

	_ "pantry/docs"
	"pantry/pkg/app"
	"pantry/pkg/config"
	"pantry/pkg/httpapi"
	"pantry/pkg/logger"
	"pantry/pkg/metrics"
	"pantry/pkg/otel"
)

// @title Pantry API
// @version 1.0
// @description Inventory counts backed by a document store
// @host localhost:8443
// @BasePath /
func main() {
	configPath := flag.String("config", os.Getenv("PANTRY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, level, cfg.Service, otel.GetTraceID)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := otel.Config{ServiceName: cfg.Service, Host: cfg.Tracing.Host, Probability: cfg.Tracing.Probability}
	if cfg.Tracing.Stdout {
		tcfg.Writer = os.Stdout
	}
	tp, shutdownTracing, err := otel.InitTracing(log, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	m := metrics.New(true)
	svc, closeStore, err := app.NewService(ctx, cfg, log, m)
	defer func() { _ = closeStore() }()
	if err != nil {
		return err
	}
	if err := svc.Refresh(ctx); err != nil {
		// the store may come up later; readyz reports it
		log.Warn(ctx, "initial refresh", "error", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.New(svc, log, m, tp.Tracer(cfg.Service)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "listening", "addr", cfg.HTTP.Addr, "tls", cfg.HTTP.TLS(), "store", cfg.Store.Driver, "sync", cfg.Sync.Mode)
		var err error
		if cfg.HTTP.TLS() {
			err = srv.ListenAndServeTLS(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info(sctx, "shutting down")
		return srv.Shutdown(sctx)
	})
	if cfg.Sync.Mode == config.SyncLocal {
		g.Go(func() error { return svc.Run(gctx, cfg.Sync.Interval) })
	}
	return g.Wait()
}
