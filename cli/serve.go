package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cronwatch/config"
	"cronwatch/handlers"
	"cronwatch/metrics"
	"cronwatch/services"
)

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the detection loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cfg, config.LoadFeatures())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (defaults to PORT or 8080)")
	return cmd
}

func serve(cfg config.Config, features config.Features) error {
	setupLogging(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)
	slog.Info("starting cronwatch", "version", Version,
		"auth", features.AuthEnabled,
		"metrics", features.MetricsEnabled,
		"detection", features.DetectionEnabled,
	)
	if features.AuthEnabled && cfg.JWTSecret == "" {
		return errors.New("AUTH_ENABLED requires JWT_SECRET")
	}
	metrics.Init(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	hub := services.NewBroadcaster(cfg.EventBuffer)
	defer hub.Close()

	origin := uuid.NewString()
	publishers := []services.Publisher{hub}
	if cfg.NATSURL != "" {
		nc, err := services.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return err
		}
		bridge := services.NewNATSBridge(nc, cfg.NATSSubject, origin, hub)
		if err := bridge.Start(); err != nil {
			nc.Close()
			return err
		}
		defer bridge.Close()
		publishers = append(publishers, bridge)
		slog.Info("connected to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	var sinks []services.AlertSink
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, services.NewSlackSink(cfg.SlackWebhookURL))
	}
	if cfg.EmailEnabled() {
		sinks = append(sinks, services.NewEmailSink(cfg.SendGridAPIKey, cfg.AlertEmail))
	} else {
		slog.Info("missing SendGrid config, email alerts disabled")
	}

	monitor := services.New(services.Options{
		Store:        store,
		Publishers:   publishers,
		Sinks:        sinks,
		StoreTimeout: cfg.StoreTimeout,
		Workers:      cfg.DetectionWorkers,
		PerPage:      cfg.RunsPerPage,
		Origin:       origin,
	})
	defer monitor.Wait()

	if cfg.JobsFile != "" {
		jobs, err := config.LoadJobsFile(cfg.JobsFile)
		if err != nil {
			return err
		}
		if err := monitor.Seed(ctx, jobs); err != nil {
			return err
		}
		slog.Info("seeded jobs", "file", cfg.JobsFile, "count", len(jobs))
	}

	if features.DetectionEnabled {
		detector := services.NewDetector(monitor, cfg.CheckInterval)
		if err := detector.Start(); err != nil {
			return err
		}
		defer detector.Stop()
	}

	api := &handlers.API{
		Monitor:   monitor,
		Hub:       hub,
		Features:  features,
		JWTSecret: []byte(cfg.JWTSecret),
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	// SSE streams end when the hub closes; close it before draining.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
