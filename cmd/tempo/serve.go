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

	"github.com/groblegark/tempo/internal/archive"
	"github.com/groblegark/tempo/internal/capture"
	"github.com/groblegark/tempo/internal/classify"
	"github.com/groblegark/tempo/internal/config"
	"github.com/groblegark/tempo/internal/crm"
	"github.com/groblegark/tempo/internal/daemon"
	"github.com/groblegark/tempo/internal/events"
	"github.com/groblegark/tempo/internal/jira"
	"github.com/groblegark/tempo/internal/store/postgres"
	"github.com/groblegark/tempo/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the tracking daemon",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (nats_url not set)")
		}

		opts := tracker.Options{
			Store:               store,
			Capture:             capture.NewClient(cfg.Capture.URL, cfg.Capture.Timeout.Duration),
			Publisher:           publisher,
			Logger:              logger,
			UserEmail:           cfg.Jira.Email,
			BillableThreshold:   cfg.Tracking.BillableThreshold.Duration,
			ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
			IssueCacheTTL:       cfg.Jira.CacheTTL.Duration,
			ExportOnStop:        cfg.Tracking.ExportOnStop,
		}
		if cfg.Jira.Enabled {
			opts.Issues = jira.NewClient(cfg.Jira.URL, cfg.Jira.Email, cfg.Jira.APIToken, cfg.Jira.Timeout.Duration)
			logger.Info("issue tracker enabled", "url", cfg.Jira.URL)
		}
		if cfg.CRM.Enabled {
			opts.Mirror = crm.NewClient(cfg.CRM.URL, crm.Credentials{
				Username:     cfg.CRM.Username,
				Password:     cfg.CRM.Password,
				ClientID:     cfg.CRM.ClientID,
				ClientSecret: cfg.CRM.ClientSecret,
			}, cfg.CRM.Timeout.Duration)
			logger.Info("crm mirror enabled", "url", cfg.CRM.URL)
		}
		if cfg.Classifier.Enabled {
			opts.Classifier = classify.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, cfg.Classifier.Timeout.Duration)
			logger.Info("classifier enabled", "endpoint", cfg.Classifier.Endpoint)
		}
		if cfg.Archive.S3Bucket != "" {
			arch, err := archive.NewS3Archiver(cmd.Context(), store,
				cfg.Archive.S3Bucket, cfg.Archive.S3Prefix, cfg.Archive.S3Region, cfg.Archive.S3Endpoint)
			if err != nil {
				logger.Error("failed to create s3 archiver", "err", err)
			} else {
				opts.Archiver = arch
				logger.Info("session archive enabled", "bucket", cfg.Archive.S3Bucket)
			}
		}

		trk := tracker.New(opts)

		// A session left open by an unclean shutdown would shadow the next
		// start, so close it before tracking begins.
		if err := trk.CloseOrphanedSession(cmd.Context()); err != nil {
			logger.Error("orphaned session recovery failed", "err", err)
		}

		scheduler := tracker.NewScheduler(trk,
			cfg.Tracking.PollInterval.Duration,
			cfg.Tracking.ExportInterval.Duration,
			logger)
		scheduler.Start()

		srv := daemon.NewServer(trk, store, logger, version)
		httpServer := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: srv.NewHTTPHandler(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("control api listening", "addr", cfg.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case err := <-errCh:
			// Bind failures (a second instance) land here.
			logger.Error("control api error", "err", err)
			scheduler.Stop()
			publisher.Close()
			store.Close()
			return err
		}

		scheduler.Stop()
		logger.Info("scheduler stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("control api shutdown error", "err", err)
		}
		logger.Info("control api stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
