package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snackwars/tallyd/internal/config"
	"github.com/snackwars/tallyd/internal/fanout"
	"github.com/snackwars/tallyd/internal/hub"
	"github.com/snackwars/tallyd/internal/ingress"
	"github.com/snackwars/tallyd/internal/pipeline"
	"github.com/snackwars/tallyd/internal/store"
	"github.com/snackwars/tallyd/internal/store/memory"
	"github.com/snackwars/tallyd/internal/store/postgres"
	"github.com/snackwars/tallyd/internal/stream"
)

// consumerDurable names the pull consumer on the order stream. Restarting
// the process resumes from the last acknowledged record.
const consumerDurable = "tallyd"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tally server",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		setupLogger(cfg)
		logger := slog.Default()

		// Open the aggregate store. Without a database URL the process
		// runs on the in-memory store, which is fine for development
		// but loses all counts on restart.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("using postgres store")
		} else {
			st = memory.New()
			logger.Info("using in-memory store (TALLYD_DATABASE_URL not set)")
		}

		// Create the order publisher. This also ensures the stream exists.
		publisher, err := stream.NewPublisher(cfg.NATSURL, cfg.OrderTTL)
		if err != nil {
			st.Close()
			return err
		}

		// Wire the fanout path: the hub owns live sockets, the
		// broadcaster walks the registry and prunes dead entries.
		viewerHub := hub.New(st, cfg.Products, cfg.ConnTTL, cfg.SendTimeout)
		broadcaster := fanout.New(st, viewerHub, cfg.SendTimeout)

		// Start the batch consumer.
		processor := pipeline.New(st, broadcaster, cfg.Products, cfg.OrderTTL)
		consumer, err := stream.NewConsumer(cfg.NATSURL, consumerDurable, cfg.BatchSize, cfg.Workers, processor.ProcessBatch)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		consumerCtx, consumerCancel := context.WithCancel(context.Background())
		go consumer.Run(consumerCtx)
		logger.Info("consumer started", "durable", consumerDurable, "workers", cfg.Workers, "batch_size", cfg.BatchSize)

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: ingress.NewRouter(publisher, cfg.Products, viewerHub.HandleWS),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the expiry janitor.
		var janitor *store.Janitor
		if cfg.SweepInterval > 0 {
			janitor = store.NewJanitor(st, cfg.SweepInterval)
			janitor.Start()
		}

		logger.Info("tallyd started",
			"http_addr", cfg.HTTPAddr,
			"products", cfg.Products,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown: stop pulling new batches first so nothing is
		// half-processed when the store goes away.
		consumerCancel()
		if err := consumer.Close(); err != nil {
			logger.Error("error closing consumer", "err", err)
		}
		logger.Info("consumer stopped")

		if janitor != nil {
			janitor.Stop()
			logger.Info("janitor stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		viewerHub.Close()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
