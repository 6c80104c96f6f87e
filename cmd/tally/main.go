package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/log"
	"tally/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger, err := cli.SetupLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	result, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, result.Backend, apphttp.Options{
		UserHeader:          cfg.UserHeader,
		DefaultPageSize:     cfg.DefaultPageSize,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		ImportRatePerMinute: cfg.ImportRatePerMinute,
		Logger:              logger,
	})
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tally server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.AMQPCacheInvalidation {
		sub, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("Cache invalidation disabled, AMQP unavailable", log.FieldError, err)
		} else {
			defer sub.Close()
			w := worker.NewInvalidationWorker(sub, result.Backend.Dashboard, logger)
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
