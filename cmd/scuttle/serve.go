package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark/scuttlestore/internal/config"
	"github.com/tidemark/scuttlestore/internal/events"
	"github.com/tidemark/scuttlestore/internal/scuttledb"
	"github.com/tidemark/scuttlestore/internal/server"
	scuttlesync "github.com/tidemark/scuttlestore/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scuttlestore HTTP server",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Open the offset log and its SQLite index.
		db, err := scuttledb.Open(cfg.DBPath, cfg.LogPath, logger)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				db.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (SCUTTLE_NATS_URL not set)")
		}

		// Create server components.
		scuttleServer := server.NewScuttleServer(db, publisher)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: scuttleServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start backup scheduler if a destination is configured.
		var scheduler *scuttlesync.Scheduler
		if cfg.BackupInterval > 0 && cfg.BackupS3Bucket != "" {
			s3Dest, err := scuttlesync.NewS3Destination(
				context.Background(),
				cfg.BackupS3Bucket,
				cfg.BackupS3Key,
				cfg.BackupS3Region,
				cfg.BackupS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 backup destination", "err", err)
			} else {
				scheduler = scuttlesync.NewScheduler(db.Log(), []scuttlesync.Destination{s3Dest}, cfg.BackupInterval, logger)
				scheduler.Start()
				logger.Info("backup scheduler started", "interval", cfg.BackupInterval, "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
			}
		}

		// Log startup info.
		logger.Info("scuttlestore server started",
			"http_addr", cfg.HTTPAddr,
			"db_path", cfg.DBPath,
			"log_path", cfg.LogPath,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := db.Close(); err != nil {
			logger.Error("error closing database", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
